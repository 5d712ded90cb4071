// Package segment cuts time ranges out of source videos.
package segment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
)

const defaultTimeout = 5 * time.Minute

// Static errors for segment extraction.
var (
	// ErrInvalidRange is returned, before any tool runs, when end <= start or start < 0.
	ErrInvalidRange = errors.New("invalid segment range")
	// ErrBeyondSource is returned when a segment starts at or after the end of its source.
	ErrBeyondSource = errors.New("segment starts beyond end of source")
	// ErrExtractionFailed is returned when the tool fails or writes no output.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Extractor cuts [start, end) out of a source file.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string, start, end float64, outputPath string) (string, error)
}

// ValidateRange is the precondition every segment must pass before extraction.
func ValidateRange(start, end float64) error {
	switch {
	case math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0):
		return fmt.Errorf("%w: non-finite bounds", ErrInvalidRange)
	case start < 0:
		return fmt.Errorf("%w: start %.3f is negative", ErrInvalidRange, start)
	case end <= start:
		return fmt.Errorf("%w: end %.3f is not after start %.3f", ErrInvalidRange, end, start)
	}
	return nil
}

// Fit clamps end to the source duration. A segment starting at or past the
// end of the source cannot be extracted. A non-positive sourceDuration means
// unknown and leaves the range untouched.
func Fit(start, end, sourceDuration float64) (float64, float64, error) {
	if sourceDuration <= 0 {
		return start, end, nil
	}
	if start >= sourceDuration {
		return 0, 0, fmt.Errorf("%w: start %.3f, source %.3f", ErrBeyondSource, start, sourceDuration)
	}
	return start, math.Min(end, sourceDuration), nil
}

// Compile-time check that FFmpegExtractor implements Extractor.
var _ Extractor = (*FFmpegExtractor)(nil)

// FFmpegExtractor extracts segments with an ffmpeg stream copy. Codec
// parameters are left as they are; normalization happens when clips are combined.
type FFmpegExtractor struct {
	runner     process.Runner
	ffmpegPath string
	timeout    time.Duration
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegExtractor(runner process.Runner, ffmpegPath string, timeout time.Duration) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FFmpegExtractor{runner: runner, ffmpegPath: ffmpegPath, timeout: timeout}
}

// Extract writes the segment to outputPath. On failure the partial output is
// removed, and nothing else is touched.
func (e *FFmpegExtractor) Extract(ctx context.Context, sourcePath string, start, end float64, outputPath string) (string, error) {
	if err := ValidateRange(start, end); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0750); err != nil {
		return "", fmt.Errorf("%w: create output directory: %w", ErrExtractionFailed, err)
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y", // Overwrite output
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", sourcePath,
		"-t", fmt.Sprintf("%.3f", end-start),
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-c", "copy", // Copy without re-encoding
		"-avoid_negative_ts", "make_zero",
		"-movflags", "+faststart", // A lone clip is published as is
		outputPath,
	}

	if _, err := e.runner.Run(ctx, process.Command{Name: e.ffmpegPath, Args: args, Timeout: e.timeout}); err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("%w: no output written to %s", ErrExtractionFailed, outputPath)
	}

	return outputPath, nil
}
