package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Store persists job state records keyed by job ID. Writes are last-write-wins
// per record; no locking is required beyond the store's own per-record atomicity.
type Store interface {
	// Save creates or replaces the record for state.JobID.
	Save(ctx context.Context, state *State) error

	// Get retrieves a record by job ID.
	// Returns ErrJobNotFound if the record does not exist.
	Get(ctx context.Context, jobID string) (*State, error)

	// Update applies a partial write to an existing record.
	// Returns ErrJobNotFound if the record does not exist and
	// ErrInvalidTransition if the status change is not allowed.
	Update(ctx context.Context, jobID string, u Update) error
}
