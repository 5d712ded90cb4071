// Package job provides the compilation job model, its state machine,
// persistence of job state, and the orchestrator that runs a job end to end.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status represents the current state of a job.
type Status string

const (
	// StatusQueued indicates the job was accepted and waits for a worker.
	StatusQueued Status = "Queued"
	// StatusProcessing indicates sources are being acquired, cut and combined.
	StatusProcessing Status = "Processing"
	// StatusUploading indicates the final artifact is being published.
	StatusUploading Status = "Uploading"
	// StatusComplete indicates the artifact is published and finalVideoUrl is set.
	StatusComplete Status = "Complete"
	// StatusFailed indicates the job ended with an error and suggestions.
	StatusFailed Status = "Failed"
)

// Static errors for the job model.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInvalidDescriptor is returned when a job descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid job descriptor")
	// ErrStatusConflict is returned when an Update's expected status does not
	// match the stored one, e.g. a second run claiming an already running job.
	ErrStatusConflict = errors.New("job status conflict")
)

// validTransitions defines which state transitions are allowed. Self transitions
// carry progress updates within a phase.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusProcessing, StatusUploading, StatusFailed},
	StatusUploading:  {StatusUploading, StatusComplete, StatusFailed},
	StatusComplete:   {},
	StatusFailed:     {},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for Complete and Failed.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// InFlight returns true while a worker owns the job.
func (s Status) InFlight() bool {
	return s == StatusProcessing || s == StatusUploading
}

// Segment is a sub-clip of one source video.
type Segment struct {
	VideoID          string  `json:"videoId" validate:"required,max=64,excludesall=/\\"`
	StartTimeSeconds float64 `json:"startTimeSeconds" validate:"gte=0"`
	EndTimeSeconds   float64 `json:"endTimeSeconds" validate:"gte=0"`
	VideoTitle       string  `json:"videoTitle,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndTimeSeconds - s.StartTimeSeconds
}

// Descriptor is the immutable input of one job run. Segment order is the
// order of the final artifact.
type Descriptor struct {
	JobID    string    `json:"jobId" validate:"required,max=128,excludesall=/\\"`
	Segments []Segment `json:"segments" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural shape of the descriptor. Per-segment time
// ranges are checked by the orchestrator so that one bad segment does not
// reject the whole job.
func (d Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return nil
}

// VideoIDs returns the distinct video IDs in order of first appearance.
func (d Descriptor) VideoIDs() []string {
	seen := make(map[string]bool, len(d.Segments))
	ids := make([]string, 0, len(d.Segments))
	for _, s := range d.Segments {
		if !seen[s.VideoID] {
			seen[s.VideoID] = true
			ids = append(ids, s.VideoID)
		}
	}
	return ids
}

// State is the externally persisted record of a job, read by clients polling
// for progress.
type State struct {
	JobID           string    `json:"jobId"`
	Status          Status    `json:"status"`
	Progress        int       `json:"progress"`
	ProgressMessage string    `json:"progressMessage,omitempty"`
	Error           string    `json:"error,omitempty"`
	Suggestions     []string  `json:"suggestions,omitempty"`
	FinalVideoURL   string    `json:"finalVideoUrl,omitempty"`
	SegmentCount    int       `json:"segmentCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	StartedAt       time.Time `json:"startedAt,omitzero"`
	CompletedAt     time.Time `json:"completedAt,omitzero"`
}

// NewState creates a Queued record for a descriptor.
func NewState(d Descriptor) *State {
	now := time.Now()
	return &State{
		JobID:           d.JobID,
		Status:          StatusQueued,
		ProgressMessage: "Queued for processing",
		SegmentCount:    len(d.Segments),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Update is a partial write to a State. Empty fields leave the stored value
// untouched; Progress is only written when non-nil.
type Update struct {
	// Expect, when set, must equal the stored status for the update to apply.
	Expect        Status
	Status        Status
	Progress      *int
	Message       string
	Error         string
	Suggestions   []string
	FinalVideoURL string
}

// Progress returns a pointer to p clamped to 0-100, for use in Update.
func Progress(p int) *int {
	p = min(max(p, 0), 100)
	return &p
}

// Apply writes u onto s, enforcing the state machine.
func (s *State) Apply(u Update, now time.Time) error {
	if u.Expect != "" && s.Status != u.Expect {
		return fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, u.Expect, s.Status)
	}
	if u.Status != "" {
		if !CanTransition(s.Status, u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, u.Status)
		}
		if s.Status == StatusQueued && u.Status == StatusProcessing {
			s.StartedAt = now
		}
		s.Status = u.Status
		if s.Status.IsTerminal() {
			s.CompletedAt = now
		}
	}
	if u.Progress != nil {
		s.Progress = *u.Progress
	}
	if u.Message != "" {
		s.ProgressMessage = u.Message
	}
	if u.Error != "" {
		s.Error = u.Error
	}
	if len(u.Suggestions) > 0 {
		s.Suggestions = append([]string(nil), u.Suggestions...)
	}
	if u.FinalVideoURL != "" {
		s.FinalVideoURL = u.FinalVideoURL
	}
	s.UpdatedAt = now
	return nil
}

// Clone creates a deep copy of the state for safe reads.
func (s *State) Clone() *State {
	c := *s
	c.Suggestions = append([]string(nil), s.Suggestions...)
	return &c
}
