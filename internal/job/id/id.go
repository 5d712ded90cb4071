// Package id provides unique identifier generation for jobs and job runs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID for submissions that arrive without one.
// Format: job-<timestamp>-<random>
// Example: job-1701432000-a1b2c3d4
func Generate() string {
	return fmt.Sprintf("job-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

// NewRun returns an identifier for one processing attempt of a job.
// A redelivered job gets a new run ID while keeping its job ID.
func NewRun() string {
	return uuid.NewString()
}
