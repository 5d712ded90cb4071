package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var errStoreDown = errors.New("store unavailable")

// mockStore is a testify mock of Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, state *State) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockStore) Get(ctx context.Context, jobID string) (*State, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*State), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, jobID string, u Update) error {
	args := m.Called(ctx, jobID, u)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTracker_RetriesTransientFailures(t *testing.T) {
	store := new(mockStore)
	u := Update{Status: StatusProcessing, Progress: Progress(5)}
	store.On("Update", mock.Anything, "J1", u).Return(errStoreDown).Twice()
	store.On("Update", mock.Anything, "J1", u).Return(nil).Once()

	tracker := NewTracker(store, discardLogger(), WithWriteBackoff(0))
	tracker.Update(context.Background(), "J1", u)

	store.AssertNumberOfCalls(t, "Update", 3)
}

func TestTracker_GivesUpSilently(t *testing.T) {
	store := new(mockStore)
	store.On("Update", mock.Anything, "J1", mock.Anything).Return(errStoreDown)

	tracker := NewTracker(store, discardLogger(), WithWriteAttempts(4), WithWriteBackoff(0))

	assert.NotPanics(t, func() {
		tracker.Update(context.Background(), "J1", Update{Status: StatusFailed})
	})
	store.AssertNumberOfCalls(t, "Update", 4)
}

func TestTracker_DoesNotRetryPermanentErrors(t *testing.T) {
	for _, permanent := range []error{ErrJobNotFound, ErrInvalidTransition} {
		store := new(mockStore)
		store.On("Update", mock.Anything, "J1", mock.Anything).Return(permanent)

		tracker := NewTracker(store, discardLogger(), WithWriteBackoff(0))
		tracker.Update(context.Background(), "J1", Update{Status: StatusProcessing})

		store.AssertNumberOfCalls(t, "Update", 1)
	}
}

func TestTracker_WritesAfterCancellation(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), NewState(validDescriptor()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker := NewTracker(store, discardLogger())
	tracker.Update(ctx, "J1", Update{Status: StatusFailed, Error: "worker shutting down"})

	state, err := store.Get(context.Background(), "J1")
	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, state.Status)
}

func TestTracker_ClaimReportsConflict(t *testing.T) {
	store := new(mockStore)
	store.On("Update", mock.Anything, "J1", mock.Anything).Return(ErrStatusConflict)

	tracker := NewTracker(store, discardLogger(), WithWriteBackoff(0))
	err := tracker.Claim(context.Background(), "J1", Update{Expect: StatusQueued, Status: StatusProcessing})

	assert.ErrorIs(t, err, ErrStatusConflict)
	store.AssertNumberOfCalls(t, "Update", 1)
}

func TestTracker_ClaimReturnsLastError(t *testing.T) {
	store := new(mockStore)
	store.On("Update", mock.Anything, "J1", mock.Anything).Return(errStoreDown)

	tracker := NewTracker(store, discardLogger(), WithWriteAttempts(2), WithWriteBackoff(0))
	err := tracker.Claim(context.Background(), "J1", Update{Expect: StatusQueued, Status: StatusProcessing})

	assert.ErrorIs(t, err, errStoreDown)
	store.AssertNumberOfCalls(t, "Update", 2)
}
