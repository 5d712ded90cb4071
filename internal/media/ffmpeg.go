package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
)

const (
	defaultEncodeTimeout = 20 * time.Minute
	defaultProbeTimeout  = 30 * time.Second
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	runner        process.Runner
	ffmpegPath    string
	ffprobePath   string
	profile       Profile
	encodeTimeout time.Duration
	probeTimeout  time.Duration
}

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithFFmpegPath sets the ffmpeg binary. Empty keeps "ffmpeg" from PATH.
func WithFFmpegPath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffmpegPath = path
		}
	}
}

// WithFFprobePath sets the ffprobe binary. Empty keeps "ffprobe" from PATH.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithProfile sets the normalization target.
func WithProfile(profile Profile) Option {
	return func(p *FFmpegProcessor) { p.profile = profile }
}

// WithEncodeTimeout bounds each normalize and concat invocation.
func WithEncodeTimeout(d time.Duration) Option {
	return func(p *FFmpegProcessor) {
		if d > 0 {
			p.encodeTimeout = d
		}
	}
}

// WithProbeTimeout bounds each ffprobe invocation.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *FFmpegProcessor) {
		if d > 0 {
			p.probeTimeout = d
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor using DefaultProfile
// unless WithProfile is given.
func NewFFmpegProcessor(runner process.Runner, opts ...Option) *FFmpegProcessor {
	p := &FFmpegProcessor{
		runner:        runner,
		ffmpegPath:    "ffmpeg",
		ffprobePath:   "ffprobe",
		profile:       DefaultProfile(),
		encodeTimeout: defaultEncodeTimeout,
		probeTimeout:  defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Profile returns the normalization target.
func (p *FFmpegProcessor) Profile() Profile {
	return p.profile
}

// Combine normalizes each clip into a scratch directory next to output,
// joins the normalized clips with the concat demuxer and removes the
// scratch directory. A single clip is copied without re-encoding.
func (p *FFmpegProcessor) Combine(ctx context.Context, clips []string, output string) (string, error) {
	if len(clips) == 0 {
		return "", ErrNoClips
	}
	if err := p.profile.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCombineFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return "", fmt.Errorf("%w: create output directory: %w", ErrCombineFailed, err)
	}

	if len(clips) == 1 {
		if err := copyFile(clips[0], output); err != nil {
			_ = os.Remove(output)
			return "", fmt.Errorf("%w: %w", ErrCombineFailed, err)
		}
		return output, nil
	}

	scratch, err := os.MkdirTemp(filepath.Dir(output), "normalize_*")
	if err != nil {
		return "", fmt.Errorf("%w: create scratch directory: %w", ErrCombineFailed, err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	normalized := make([]string, 0, len(clips))
	for i, clip := range clips {
		out := filepath.Join(scratch, fmt.Sprintf("norm_%03d.mp4", i))
		if err := p.normalize(ctx, clip, out); err != nil {
			return "", fmt.Errorf("%w: normalize clip %d: %w", ErrCombineFailed, i, err)
		}
		normalized = append(normalized, out)
	}

	listFile := filepath.Join(scratch, "concat.txt")
	if err := writeConcatList(listFile, normalized); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCombineFailed, err)
	}

	if err := p.concat(ctx, listFile, output); err != nil {
		_ = os.Remove(output)
		return "", fmt.Errorf("%w: concat: %w", ErrCombineFailed, err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(output)
		return "", fmt.Errorf("%w: no output written to %s", ErrCombineFailed, output)
	}
	return output, nil
}

// normalize re-encodes one clip to the profile. Clips without audio get a
// generated silent track so every normalized clip has the same streams.
func (p *FFmpegProcessor) normalize(ctx context.Context, clip, out string) error {
	hasAudio := true
	if info, err := p.Probe(ctx, clip); err == nil {
		hasAudio = info.HasAudio
	}

	prof := p.profile
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", clip}
	if hasAudio {
		args = append(args, "-map", "0:v:0", "-map", "0:a:0")
	} else {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d", prof.channelLayout(), prof.SampleRate),
			"-map", "0:v:0", "-map", "1:a:0",
			"-shortest",
		)
	}
	args = append(args,
		"-vf", prof.videoFilter(),
		"-c:v", prof.VideoCodec,
		"-preset", prof.Preset,
		"-crf", strconv.Itoa(prof.CRF),
		"-c:a", prof.AudioCodec,
		"-b:a", prof.AudioBitrate,
		"-ar", strconv.Itoa(prof.SampleRate),
		"-ac", strconv.Itoa(prof.Channels),
		"-video_track_timescale", "90000",
		"-movflags", "+faststart",
		out,
	)

	_, err := p.runner.Run(ctx, process.Command{Name: p.ffmpegPath, Args: args, Timeout: p.encodeTimeout})
	return err
}

// concat joins already-normalized clips with a stream copy.
func (p *FFmpegProcessor) concat(ctx context.Context, listFile, output string) error {
	args := []string{
		"-hide_banner", "-nostdin",
		"-y",           // Overwrite output file
		"-f", "concat", // Use concat demuxer
		"-safe", "0", // Allow absolute paths
		"-i", listFile, // Input file list
		"-c", "copy", // Streams already share codec parameters
		"-movflags", "+faststart",
		output,
	}
	_, err := p.runner.Run(ctx, process.Command{Name: p.ffmpegPath, Args: args, Timeout: p.encodeTimeout})
	return err
}

// writeConcatList writes the file list in the format required by ffmpeg's
// concat demuxer.
func writeConcatList(listFile string, paths []string) error {
	var b strings.Builder
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		// Escape single quotes in path
		escaped := strings.ReplaceAll(absPath, "'", "'\\''")
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listFile, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is a clip inside the job workspace
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
