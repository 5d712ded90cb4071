package job

import (
	"context"
	"errors"
	"sync"
)

// Progress plan for one run.
const (
	progressStart      = 5
	progressWorkFloor  = 10
	progressWorkCeil   = 80
	progressCombining  = 80
	progressUploading  = 85
	progressComplete   = 100
	messageInitialize  = "Initializing video processing..."
	messageComplete    = "Video processing complete!"
	messageUploading   = "Uploading final video..."
	messageFailedPhase = "Video processing failed"
)

// progressReporter turns completed work units into percentages between
// progressWorkFloor and progressWorkCeil. Reported values never decrease,
// and writes are serialized so the store sees them in order.
type progressReporter struct {
	tracker *Tracker
	jobID   string

	mu    sync.Mutex
	total int
	done  int
	last  int
}

func newProgressReporter(tracker *Tracker, jobID string, units int) *progressReporter {
	return &progressReporter{tracker: tracker, jobID: jobID, total: max(units, 1)}
}

// claim moves the job from Queued to Processing in one atomic store update.
// It fails only when another run already owns the job; any other write
// failure is logged by the tracker and the run goes ahead.
func (p *progressReporter) claim(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.tracker.Claim(ctx, p.jobID, Update{
		Expect:   StatusQueued,
		Status:   StatusProcessing,
		Progress: Progress(progressStart),
		Message:  messageInitialize,
	})
	if errors.Is(err, ErrStatusConflict) {
		return err
	}
	p.last = progressStart
	return nil
}

// advance marks n units of resolve/extract work as done.
func (p *progressReporter) advance(ctx context.Context, n int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(p.done+n, p.total)
	pct := progressWorkFloor + (progressWorkCeil-progressWorkFloor)*p.done/p.total
	p.writeLocked(ctx, StatusProcessing, pct, message)
}

// set reports a phase boundary.
func (p *progressReporter) set(ctx context.Context, status Status, pct int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked(ctx, status, pct, message)
}

// complete records the terminal success state.
func (p *progressReporter) complete(ctx context.Context, message, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = progressComplete
	p.tracker.Update(ctx, p.jobID, Update{
		Status:        StatusComplete,
		Progress:      Progress(progressComplete),
		Message:       message,
		FinalVideoURL: url,
	})
}

// fail records the terminal failure state. Progress is left where it was.
func (p *progressReporter) fail(ctx context.Context, f failure) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tracker.Update(ctx, p.jobID, Update{
		Status:      StatusFailed,
		Message:     messageFailedPhase,
		Error:       f.message,
		Suggestions: f.suggestions,
	})
}

func (p *progressReporter) writeLocked(ctx context.Context, status Status, pct int, message string) {
	pct = max(pct, p.last)
	p.last = pct
	p.tracker.Update(ctx, p.jobID, Update{
		Status:   status,
		Progress: Progress(pct),
		Message:  message,
	})
}
