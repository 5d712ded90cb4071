package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
)

const (
	defaultYTDLPPath    = "yt-dlp"
	defaultURLTemplate  = "https://www.youtube.com/watch?v=%s"
	defaultFetchTimeout = 30 * time.Minute
)

// ErrNoOutput is returned when the downloader exits cleanly without leaving a media file.
var ErrNoOutput = errors.New("downloader produced no media file")

// mediaExtensions are accepted downloader outputs, in order of preference.
var mediaExtensions = []string{".mp4", ".mkv", ".webm", ".mov"}

// Compile-time check that YTDLPFetcher implements Fetcher.
var _ Fetcher = (*YTDLPFetcher)(nil)

// YTDLPFetcher downloads videos with the yt-dlp command-line tool.
type YTDLPFetcher struct {
	runner      process.Runner
	path        string
	cookiesFile string
	urlTemplate string
	timeout     time.Duration
}

// YTDLPOption configures a YTDLPFetcher.
type YTDLPOption func(*YTDLPFetcher)

// WithYTDLPPath sets the yt-dlp binary.
func WithYTDLPPath(path string) YTDLPOption {
	return func(f *YTDLPFetcher) {
		if path != "" {
			f.path = path
		}
	}
}

// WithCookiesFile passes a Netscape cookie file to attempts that allow cookies.
func WithCookiesFile(path string) YTDLPOption {
	return func(f *YTDLPFetcher) {
		f.cookiesFile = path
	}
}

// WithURLTemplate sets the fmt template turning a video ID into a URL.
func WithURLTemplate(tmpl string) YTDLPOption {
	return func(f *YTDLPFetcher) {
		if tmpl != "" {
			f.urlTemplate = tmpl
		}
	}
}

// WithFetchTimeout bounds one download attempt.
func WithFetchTimeout(d time.Duration) YTDLPOption {
	return func(f *YTDLPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewYTDLPFetcher creates a fetcher running yt-dlp through runner.
func NewYTDLPFetcher(runner process.Runner, opts ...YTDLPOption) *YTDLPFetcher {
	f := &YTDLPFetcher{
		runner:      runner,
		path:        defaultYTDLPPath,
		urlTemplate: defaultURLTemplate,
		timeout:     defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads videoID into dir and returns the media file path.
func (f *YTDLPFetcher) Fetch(ctx context.Context, videoID, dir string, p Params) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	_, err := f.runner.Run(ctx, process.Command{
		Name:    f.path,
		Args:    f.args(videoID, dir, p),
		Dir:     dir,
		Timeout: f.timeout,
	})
	if err != nil {
		return "", err
	}

	return findDownloaded(dir, videoID)
}

func (f *YTDLPFetcher) args(videoID, dir string, p Params) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-part",
		"--format", p.Format,
		"--merge-output-format", "mp4",
		"--output", filepath.Join(dir, videoID+".%(ext)s"),
	}
	if p.MaxFileSize != "" {
		args = append(args, "--max-filesize", p.MaxFileSize)
	}
	if p.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(p.Retries), "--fragment-retries", strconv.Itoa(p.Retries))
	}
	if p.UserAgent != "" {
		args = append(args, "--user-agent", p.UserAgent)
	}
	if len(p.PlayerClients) > 0 {
		args = append(args, "--extractor-args", "youtube:player_client="+strings.Join(p.PlayerClients, ","))
	}
	if p.UseCookies && f.cookiesFile != "" {
		args = append(args, "--cookies", f.cookiesFile)
	}
	return append(args, "--", fmt.Sprintf(f.urlTemplate, videoID))
}

// findDownloaded returns the preferred media file named after videoID in dir.
func findDownloaded(dir, videoID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read download directory: %w", err)
	}

	best, bestRank := "", len(mediaExtensions)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, videoID+".") {
			continue
		}
		rank := slices.Index(mediaExtensions, strings.ToLower(filepath.Ext(name)))
		if rank >= 0 && rank < bestRank {
			best, bestRank = filepath.Join(dir, name), rank
		}
	}
	if best == "" {
		return "", ErrNoOutput
	}
	return best, nil
}
