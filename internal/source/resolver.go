package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

const (
	defaultAttempts    = 3
	defaultBaseBackoff = 2 * time.Second
)

// Resolver returns a local path for a video, consulting the job's Cache,
// then each Locator, then downloading with retries.
type Resolver struct {
	fetcher     Fetcher
	locators    []Locator
	strategy    Strategy
	attempts    int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLocators adds locators consulted, in order, before downloading.
func WithLocators(locators ...Locator) ResolverOption {
	return func(r *Resolver) {
		r.locators = append(r.locators, locators...)
	}
}

// WithStrategy sets the per-attempt parameter strategy.
func WithStrategy(s Strategy) ResolverOption {
	return func(r *Resolver) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithAttempts sets the number of download attempts.
func WithAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithBaseBackoff sets the delay before the second attempt; it doubles after each failure.
func WithBaseBackoff(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.baseBackoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver downloading with fetcher.
func NewResolver(fetcher Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher:     fetcher,
		strategy:    DefaultStrategy,
		attempts:    defaultAttempts,
		baseBackoff: defaultBaseBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "source"))
	return r
}

// Resolve returns a playable local file for videoID. A video already in cache
// is returned without any acquisition; concurrent calls for the same ID share
// one acquisition.
func (r *Resolver) Resolve(ctx context.Context, cache *Cache, videoID string, ws *storage.Workspace) (string, error) {
	path, hit, err := cache.load(videoID, func() (string, error) {
		return r.acquire(ctx, videoID, ws)
	})
	if hit {
		r.logger.Debug("source cache hit", slog.String("video_id", videoID))
	}
	return path, err
}

func (r *Resolver) acquire(ctx context.Context, videoID string, ws *storage.Workspace) (string, error) {
	for _, loc := range r.locators {
		path, err := loc.Locate(ctx, videoID, ws)
		if err == nil {
			r.logger.Info("source located",
				slog.String("video_id", videoID),
				slog.String("path", path),
			)
			return path, nil
		}
		if ctx.Err() != nil {
			return "", &Error{VideoID: videoID, Kind: KindFetchFailed, Err: ctx.Err()}
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("source locator failed, falling through",
				slog.String("video_id", videoID),
				slog.String("error", err.Error()),
			)
		}
	}

	return r.download(ctx, videoID, ws)
}

// download runs the bounded retry loop. Each attempt writes to its own
// directory, which is removed if the attempt fails.
func (r *Resolver) download(ctx context.Context, videoID string, ws *storage.Workspace) (string, error) {
	dir, err := ws.SourceDir(videoID)
	if err != nil {
		return "", &Error{VideoID: videoID, Kind: KindFetchFailed, Err: err}
	}

	var (
		lastErr  error
		lastKind = KindFetchFailed
		backoff  = r.baseBackoff
		attempt  int
	)
	for attempt = 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", &Error{VideoID: videoID, Kind: lastKind, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptDir := filepath.Join(dir, fmt.Sprintf("attempt-%d", attempt))
		params := r.strategy(attempt)

		path, err := r.fetcher.Fetch(ctx, videoID, attemptDir, params)
		if err == nil {
			err = checkMedia(path, MinValidSize)
		}
		if err == nil {
			r.logger.Info("source downloaded",
				slog.String("video_id", videoID),
				slog.Int("attempt", attempt),
				slog.String("format", params.Format),
			)
			return path, nil
		}

		_ = os.RemoveAll(attemptDir)
		lastErr = err
		lastKind = classifyError(err)

		attrs := []any{
			slog.String("video_id", videoID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.attempts),
			slog.String("kind", string(lastKind)),
			slog.String("error", err.Error()),
		}
		var procErr *process.Error
		if errors.As(err, &procErr) {
			attrs = append(attrs, slog.String("stderr", process.StderrTail(procErr.Result.Stderr, 2048)))
		}
		r.logger.Warn("source download attempt failed", attrs...)

		if ctx.Err() != nil || lastKind.Permanent() {
			break
		}
	}

	return "", &Error{VideoID: videoID, Kind: lastKind, Attempts: min(attempt, r.attempts), Err: lastErr}
}
