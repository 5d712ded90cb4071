// Package media normalizes and concatenates video clips with ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for media operations.
var (
	// ErrNoClips is returned when Combine receives no input clips.
	ErrNoClips = errors.New("no clips provided")
	// ErrCombineFailed wraps every normalization or concatenation failure.
	ErrCombineFailed = errors.New("combine failed")
	// ErrProbeFailed is returned when ffprobe fails or its output cannot be parsed.
	ErrProbeFailed = errors.New("ffprobe execution failed")
	// ErrInvalidProfile is returned when the normalization target is not positive.
	ErrInvalidProfile = errors.New("invalid profile: dimensions, frame rate and sample rate must be positive")
)

// Processor defines the media operations the compile pipeline needs.
type Processor interface {
	// Combine normalizes every clip to the processor's Profile and joins
	// them, in order, into output. A single clip is copied unchanged.
	Combine(ctx context.Context, clips []string, output string) (string, error)

	// Probe reads container and stream information from a media file.
	Probe(ctx context.Context, path string) (Info, error)
}

// Profile is the common format every clip is rewritten to before joining.
type Profile struct {
	Width        int
	Height       int
	FrameRate    int
	SampleRate   int
	Channels     int
	PixelFormat  string
	VideoCodec   string
	Preset       string
	CRF          int
	AudioCodec   string
	AudioBitrate string
}

// DefaultProfile returns 720p30 H.264/AAC, suitable for web playback.
func DefaultProfile() Profile {
	return Profile{
		Width:        1280,
		Height:       720,
		FrameRate:    30,
		SampleRate:   44100,
		Channels:     2,
		PixelFormat:  "yuv420p",
		VideoCodec:   "libx264",
		Preset:       "fast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}

// Validate checks that the profile describes a usable target.
func (p Profile) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || p.FrameRate <= 0 || p.SampleRate <= 0 || p.Channels <= 0 {
		return fmt.Errorf("%w: %dx%d@%d, %dHz x%d", ErrInvalidProfile, p.Width, p.Height, p.FrameRate, p.SampleRate, p.Channels)
	}
	return nil
}

// videoFilter scales to fit within the target while keeping aspect ratio,
// pads the rest with black, then fixes SAR, frame rate and pixel format.
func (p Profile) videoFilter() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,setsar=1,fps=%d,format=%s",
		p.Width, p.Height, p.Width, p.Height, p.FrameRate, p.PixelFormat,
	)
}

func (p Profile) channelLayout() string {
	if p.Channels == 1 {
		return "mono"
	}
	return "stereo"
}
