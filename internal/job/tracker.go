package job

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	defaultTrackerAttempts = 3
	defaultTrackerBackoff  = 500 * time.Millisecond
	trackerWriteTimeout    = 10 * time.Second
)

// Tracker writes job state updates with bounded retry. A failed write is
// logged and dropped: losing a progress update never fails the job.
type Tracker struct {
	store    Store
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithWriteAttempts sets how many times a write is tried.
func WithWriteAttempts(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.attempts = n
		}
	}
}

// WithWriteBackoff sets the linear backoff step between attempts.
func WithWriteBackoff(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.backoff = d
	}
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:    store,
		logger:   logger,
		attempts: defaultTrackerAttempts,
		backoff:  defaultTrackerBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update writes u for jobID. It returns once the write succeeded or the
// attempts are exhausted. Writes still go through after ctx is cancelled so
// that a terminal state is recorded during shutdown.
func (t *Tracker) Update(ctx context.Context, jobID string, u Update) {
	_ = t.write(ctx, jobID, u)
}

// Claim writes u like Update but reports the outcome. A status conflict is
// returned without being logged as a failure.
func (t *Tracker) Claim(ctx context.Context, jobID string, u Update) error {
	return t.write(ctx, jobID, u)
}

func (t *Tracker) write(ctx context.Context, jobID string, u Update) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, trackerWriteTimeout)
		err = t.store.Update(writeCtx, jobID, u)
		cancel()
		if err == nil {
			t.logger.Debug("job state updated",
				slog.String("job_id", jobID),
				slog.String("status", string(u.Status)),
				slog.String("message", u.Message),
			)
			return nil
		}
		if errors.Is(err, ErrStatusConflict) {
			return err
		}
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) {
			break
		}
		if attempt < t.attempts {
			time.Sleep(time.Duration(attempt) * t.backoff)
		}
	}

	t.logger.Error("failed to update job state",
		slog.String("job_id", jobID),
		slog.String("status", string(u.Status)),
		slog.String("error", err.Error()),
	)
	return err
}
