package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/media"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/segment"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/source"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

// ErrNoSegmentsProcessed is returned by Process when no clip was extracted.
var ErrNoSegmentsProcessed = errors.New("no video segments were successfully processed")

const (
	suggestRetryLater = "Try again in a few minutes"
	suggestFewer      = "Try selecting different or fewer segments"
)

// VideoFailure records why one source video contributed no clips.
type VideoFailure struct {
	VideoID string
	Err     error
}

// Reason is the short user-facing cause, e.g. "video unavailable".
func (f VideoFailure) Reason() string {
	return failureReason(f.Err)
}

func (f VideoFailure) String() string {
	return fmt.Sprintf("%s (%s)", f.VideoID, f.Reason())
}

var sourceReasons = map[source.Kind]string{
	source.KindUnavailable:       "video unavailable",
	source.KindRestricted:        "video restricted",
	source.KindRegionBlocked:     "not available in this region",
	source.KindExtractionBlocked: "download blocked",
	source.KindTimeout:           "download timed out",
	source.KindFetchFailed:       "download failed",
}

var sourceHints = map[source.Kind]string{
	source.KindUnavailable:       "Check that the selected videos are still publicly available",
	source.KindRestricted:        "Age-restricted or members-only videos cannot be processed",
	source.KindRegionBlocked:     "Some videos are not available in the processing region",
	source.KindExtractionBlocked: "The video host is temporarily refusing downloads",
}

func failureReason(err error) string {
	var srcErr *source.Error
	switch {
	case errors.As(err, &srcErr):
		return sourceReasons[srcErr.Kind]
	case errors.Is(err, segment.ErrInvalidRange):
		return "invalid time range"
	case errors.Is(err, segment.ErrBeyondSource):
		return "segment starts after the video ends"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, process.ErrTimeout):
		return "timeout"
	case errors.Is(err, segment.ErrExtractionFailed):
		return "segment extraction failed"
	default:
		return "processing error"
	}
}

// failure is a fatal outcome rendered for the user. The raw error is only
// logged.
type failure struct {
	message     string
	suggestions []string
}

func describeFailure(err error, videos []VideoFailure) failure {
	switch {
	case errors.Is(err, ErrNoSegmentsProcessed):
		return noSegmentsFailure(videos)
	case errors.Is(err, media.ErrCombineFailed):
		return failure{
			message: "Combining the video segments failed.",
			suggestions: []string{
				"Try selecting shorter segments or fewer videos",
				suggestRetryLater,
			},
		}
	case errors.Is(err, storage.ErrPublishFailed):
		return failure{
			message: "Uploading the final video failed.",
			suggestions: []string{
				"Please try generating the video again",
				suggestRetryLater,
			},
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, process.ErrTimeout):
		return failure{
			message: "Video processing timed out.",
			suggestions: []string{
				"Try selecting shorter video segments",
				"Reduce the number of videos in your request",
				suggestRetryLater,
			},
		}
	case errors.Is(err, context.Canceled):
		return failure{
			message:     "Video processing was interrupted.",
			suggestions: []string{suggestRetryLater},
		}
	default:
		return failure{
			message: "Video processing encountered an unexpected error.",
			suggestions: []string{
				suggestRetryLater,
				"If the problem persists, please contact support with this job ID",
			},
		}
	}
}

func noSegmentsFailure(videos []VideoFailure) failure {
	parts := make([]string, len(videos))
	for i, v := range videos {
		parts[i] = v.String()
	}

	suggestions := []string{suggestRetryLater, suggestFewer}
	seen := make(map[source.Kind]bool)
	for _, v := range videos {
		var srcErr *source.Error
		if !errors.As(v.Err, &srcErr) || seen[srcErr.Kind] {
			continue
		}
		seen[srcErr.Kind] = true
		if hint, ok := sourceHints[srcErr.Kind]; ok {
			suggestions = append(suggestions, hint)
		}
	}

	return failure{
		message:     "No video segments were successfully processed. Failed videos: " + strings.Join(parts, ", "),
		suggestions: suggestions,
	}
}

// partialNote is appended to the completion message when some videos failed.
func partialNote(videos []VideoFailure, total int) string {
	if len(videos) == 0 {
		return ""
	}
	parts := make([]string, len(videos))
	for i, v := range videos {
		parts[i] = v.String()
	}
	return fmt.Sprintf(" Note: %d of %d videos failed: %s.", len(videos), total, strings.Join(parts, ", "))
}
