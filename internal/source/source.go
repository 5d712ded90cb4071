// Package source turns a video identifier into a local, playable media file.
// Sources are looked up in a pre-populated content mount or bucket first and
// downloaded with yt-dlp otherwise, with per-attempt quality fallback.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

// MinValidSize is the smallest file accepted as a playable source.
const MinValidSize = 1024

// Kind classifies why a source could not be acquired.
type Kind string

const (
	KindUnavailable       Kind = "unavailable"
	KindRestricted        Kind = "restricted"
	KindRegionBlocked     Kind = "region_blocked"
	KindExtractionBlocked Kind = "extraction_blocked"
	KindTimeout           Kind = "timeout"
	KindFetchFailed       Kind = "fetch_failed"
)

// Static errors for source acquisition. Each *Error matches the sentinel of its Kind.
var (
	// ErrSourceUnavailable is returned when the video is private, removed or does not exist.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceRestricted is returned for age-restricted or members-only videos.
	ErrSourceRestricted = errors.New("source restricted")
	// ErrSourceRegionBlocked is returned when the video is not available in the worker's region.
	ErrSourceRegionBlocked = errors.New("source region blocked")
	// ErrSourceExtractionBlocked is returned when the host refuses automated downloads.
	ErrSourceExtractionBlocked = errors.New("source extraction blocked")
	// ErrSourceTimeout is returned when downloads keep timing out.
	ErrSourceTimeout = errors.New("source download timed out")
	// ErrSourceFetchFailed is returned for every other acquisition failure.
	ErrSourceFetchFailed = errors.New("source fetch failed")

	// ErrNotFound is returned by a Locator that does not hold the video.
	ErrNotFound = errors.New("source not found")
	// ErrEmptyResult is returned when an acquisition produced no usable file.
	ErrEmptyResult = errors.New("source file missing or too small")
)

var kindErrors = map[Kind]error{
	KindUnavailable:       ErrSourceUnavailable,
	KindRestricted:        ErrSourceRestricted,
	KindRegionBlocked:     ErrSourceRegionBlocked,
	KindExtractionBlocked: ErrSourceExtractionBlocked,
	KindTimeout:           ErrSourceTimeout,
	KindFetchFailed:       ErrSourceFetchFailed,
}

// Permanent reports whether retrying cannot change the outcome.
func (k Kind) Permanent() bool {
	return k == KindUnavailable || k == KindRestricted || k == KindRegionBlocked
}

// Error is a classified acquisition failure for one video.
type Error struct {
	VideoID  string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %s after %d attempt(s): %v", e.VideoID, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the Kind.
func (e *Error) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

// KindOf returns the Kind of a resolve error, or KindFetchFailed if err is
// not a classified *Error.
func KindOf(err error) Kind {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	return KindFetchFailed
}

// Locator finds an already-fetched copy of a video.
// It returns ErrNotFound when it does not hold the video.
type Locator interface {
	Locate(ctx context.Context, videoID string, ws *storage.Workspace) (string, error)
}

// Fetcher downloads a video into dir using the given parameters.
type Fetcher interface {
	Fetch(ctx context.Context, videoID, dir string, p Params) (string, error)
}

// checkMedia verifies that path is a regular file of at least minSize bytes.
func checkMedia(path string, minSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmptyResult, err)
	}
	if !info.Mode().IsRegular() || info.Size() < minSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrEmptyResult, path, info.Size())
	}
	return nil
}
