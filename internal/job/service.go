package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/job/id"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/media"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/segment"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/source"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

const (
	defaultMaxParallelVideos = 1
	defaultVideoTimeout      = 60 * time.Minute
	durationTolerance        = 1.0 // seconds
)

// SourceResolver turns a video ID into a local file, at most once per cache.
type SourceResolver interface {
	Resolve(ctx context.Context, cache *source.Cache, videoID string, ws *storage.Workspace) (string, error)
}

// Pipeline holds the long-lived collaborators shared by every job run.
type Pipeline struct {
	Resolver  SourceResolver
	Extractor segment.Extractor
	Media     media.Processor
	Publisher storage.Publisher
}

// SubmitResult reports what Submit did with a delivery.
type SubmitResult struct {
	State   *State
	Skipped bool
}

// Result summarizes a successful run.
type Result struct {
	JobID         string
	FinalVideoURL string
	Clips         int
	FailedVideos  []VideoFailure
}

// CompileService runs compilation jobs: it acquires sources, cuts segments,
// combines them and publishes the artifact, recording progress as it goes.
type CompileService struct {
	store             Store
	tracker           *Tracker
	pipeline          Pipeline
	logger            *slog.Logger
	workDir           string
	maxParallelVideos int
	videoTimeout      time.Duration
	trackerOpts       []TrackerOption
}

// ServiceOption configures a CompileService.
type ServiceOption func(*CompileService)

// WithWorkDir sets the parent directory of job workspaces.
func WithWorkDir(dir string) ServiceOption {
	return func(s *CompileService) { s.workDir = dir }
}

// WithMaxParallelVideos bounds how many source videos are resolved and cut
// at the same time within one job.
func WithMaxParallelVideos(n int) ServiceOption {
	return func(s *CompileService) {
		if n > 0 {
			s.maxParallelVideos = n
		}
	}
}

// WithVideoTimeout bounds resolve plus extraction for a single video.
func WithVideoTimeout(d time.Duration) ServiceOption {
	return func(s *CompileService) {
		if d > 0 {
			s.videoTimeout = d
		}
	}
}

// WithTrackerOptions configures the state write retry policy.
func WithTrackerOptions(opts ...TrackerOption) ServiceOption {
	return func(s *CompileService) { s.trackerOpts = append(s.trackerOpts, opts...) }
}

// NewCompileService creates a new CompileService.
func NewCompileService(store Store, pipeline Pipeline, logger *slog.Logger, opts ...ServiceOption) *CompileService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CompileService{
		store:             store,
		pipeline:          pipeline,
		logger:            logger.With(slog.String("component", "orchestrator")),
		workDir:           os.TempDir(),
		maxParallelVideos: defaultMaxParallelVideos,
		videoTimeout:      defaultVideoTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = NewTracker(store, logger.With(slog.String("component", "tracker")), s.trackerOpts...)
	return s
}

// Submit validates a delivery and records it as Queued. Deliveries for jobs
// already Processing, Uploading or Complete are skipped; a Failed job is
// reset so it runs again.
func (s *CompileService) Submit(ctx context.Context, d Descriptor) (*SubmitResult, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.Get(ctx, d.JobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
	case err != nil:
		return nil, fmt.Errorf("read job %s: %w", d.JobID, err)
	case existing.Status == StatusQueued:
		return &SubmitResult{State: existing}, nil
	case existing.Status != StatusFailed:
		s.logger.Info("skipping duplicate delivery",
			slog.String("job_id", d.JobID),
			slog.String("status", string(existing.Status)),
		)
		return &SubmitResult{State: existing, Skipped: true}, nil
	default:
		s.logger.Info("re-queueing failed job", slog.String("job_id", d.JobID))
	}

	state := NewState(d)
	if err := s.store.Save(ctx, state); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", d.JobID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return &SubmitResult{State: state}, nil
}

// Handle submits a queued delivery and, unless it is a duplicate, runs it
// to completion. A delivery that loses the claim to a concurrent run is
// acknowledged as a duplicate.
func (s *CompileService) Handle(ctx context.Context, d Descriptor) error {
	res, err := s.Submit(ctx, d)
	if err != nil {
		return err
	}
	if res.Skipped {
		return nil
	}
	_, err = s.Process(ctx, d)
	if errors.Is(err, ErrStatusConflict) {
		return nil
	}
	return err
}

// GetJob retrieves the state of a job by ID.
func (s *CompileService) GetJob(ctx context.Context, jobID string) (*State, error) {
	return s.store.Get(ctx, jobID)
}

// extracted is one successfully cut clip.
type extracted struct {
	path     string
	duration float64
}

// Process runs a submitted job to a terminal state. The returned error is
// the cause of a Failed job; it has already been recorded.
//
// The workflow:
//  1. Claim the job, moving it from Queued to Processing
//  2. Resolve each distinct video and cut its segments, in parallel across videos
//  3. Fail if no clip was cut
//  4. Normalize and join the clips in segment order
//  5. Publish the artifact while Uploading
//  6. Mark Complete with the artifact URL
//
// The job workspace is removed on every path. A job that is no longer
// Queued belongs to another run: Process returns ErrStatusConflict and
// records nothing.
func (s *CompileService) Process(ctx context.Context, d Descriptor) (*Result, error) {
	runID := id.NewRun()
	logger := s.logger.With(slog.String("job_id", d.JobID), slog.String("run_id", runID))
	videoIDs := d.VideoIDs()
	prog := newProgressReporter(s.tracker, d.JobID, len(videoIDs)+len(d.Segments))

	logger.Info("processing job",
		slog.Int("segments", len(d.Segments)),
		slog.Int("videos", len(videoIDs)),
	)
	if err := prog.claim(ctx); err != nil {
		logger.Info("job already claimed by another run", slog.String("error", err.Error()))
		return nil, err
	}

	ws, err := storage.NewWorkspace(s.workDir, d.JobID)
	if err != nil {
		return nil, s.fail(ctx, logger, prog, err, nil)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("failed to remove workspace", slog.String("error", err.Error()))
		}
	}()

	clips, failures := s.extractAll(ctx, logger, d, videoIDs, ws, prog)
	if len(clips) == 0 {
		return nil, s.fail(ctx, logger, prog, ErrNoSegmentsProcessed, failures)
	}

	ok := len(videoIDs) - len(failures)
	combineMsg := fmt.Sprintf("Successfully processed all %d videos. Combining results...", len(videoIDs))
	if len(failures) > 0 {
		combineMsg = fmt.Sprintf("Processed %d/%d videos successfully. Combining results...", ok, len(videoIDs))
		logger.Warn("partial success",
			slog.Int("videos_ok", ok),
			slog.Int("videos_failed", len(failures)),
		)
	}
	prog.set(ctx, StatusProcessing, progressCombining, combineMsg)

	paths := make([]string, len(clips))
	var expected float64
	for i, c := range clips {
		paths[i] = c.path
		expected += c.duration
	}

	output, err := s.pipeline.Media.Combine(ctx, paths, ws.OutputPath())
	if err != nil {
		return nil, s.fail(ctx, logger, prog, err, failures)
	}
	s.verifyDuration(ctx, logger, output, expected)

	prog.set(ctx, StatusUploading, progressUploading, messageUploading)
	url, err := s.pipeline.Publisher.Publish(ctx, output, d.JobID)
	if err != nil {
		return nil, s.fail(ctx, logger, prog, err, failures)
	}

	prog.complete(ctx, messageComplete+partialNote(failures, len(videoIDs)), url)
	logger.Info("job complete",
		slog.String("url", url),
		slog.Int("clips", len(clips)),
	)

	return &Result{
		JobID:         d.JobID,
		FinalVideoURL: url,
		Clips:         len(clips),
		FailedVideos:  failures,
	}, nil
}

// extractAll resolves and cuts every video, returning the clips in segment
// order and the videos that yielded none.
func (s *CompileService) extractAll(ctx context.Context, logger *slog.Logger, d Descriptor, videoIDs []string, ws *storage.Workspace, prog *progressReporter) ([]extracted, []VideoFailure) {
	indices := make(map[string][]int, len(videoIDs))
	for i, seg := range d.Segments {
		indices[seg.VideoID] = append(indices[seg.VideoID], i)
	}

	cache := source.NewCache()
	bySegment := make([]*extracted, len(d.Segments))
	errs := make([]error, len(videoIDs))

	var g errgroup.Group
	g.SetLimit(s.maxParallelVideos)
	for vi, videoID := range videoIDs {
		g.Go(func() error {
			errs[vi] = s.processVideo(ctx, logger.With(slog.String("video_id", videoID)), d, videoID, indices[videoID], cache, ws, prog, bySegment)
			return nil
		})
	}
	_ = g.Wait()

	var clips []extracted
	for _, c := range bySegment {
		if c != nil {
			clips = append(clips, *c)
		}
	}
	var failures []VideoFailure
	for vi, err := range errs {
		if err != nil {
			failures = append(failures, VideoFailure{VideoID: videoIDs[vi], Err: err})
		}
	}
	return clips, failures
}

// processVideo resolves one source and cuts its segments into out. Each
// goroutine writes only the out slots of its own segments.
func (s *CompileService) processVideo(ctx context.Context, logger *slog.Logger, d Descriptor, videoID string, indices []int, cache *source.Cache, ws *storage.Workspace, prog *progressReporter, out []*extracted) error {
	var valid []int
	var lastErr error
	for _, i := range indices {
		seg := d.Segments[i]
		if err := segment.ValidateRange(seg.StartTimeSeconds, seg.EndTimeSeconds); err != nil {
			logger.Warn("rejecting segment", slog.Int("segment", i), slog.String("error", err.Error()))
			lastErr = err
			prog.advance(ctx, 1, fmt.Sprintf("Skipped invalid segment %d", i+1))
			continue
		}
		valid = append(valid, i)
	}
	if len(valid) == 0 {
		prog.advance(ctx, 1, fmt.Sprintf("Skipped video %s", videoID))
		return lastErr
	}

	vctx, cancel := context.WithTimeout(ctx, s.videoTimeout)
	defer cancel()

	src, err := s.pipeline.Resolver.Resolve(vctx, cache, videoID, ws)
	if err != nil {
		logger.Error("failed to resolve source", slog.String("error", err.Error()))
		prog.advance(ctx, 1+len(valid), fmt.Sprintf("Could not download video %s", videoID))
		return err
	}
	prog.advance(ctx, 1, fmt.Sprintf("Downloaded video %s", videoID))

	defer func() {
		cache.Forget(videoID)
		if err := ws.Release(src); err != nil {
			logger.Warn("failed to release source", slog.String("error", err.Error()))
		}
	}()

	var sourceDuration float64
	if info, err := s.pipeline.Media.Probe(vctx, src); err != nil {
		logger.Warn("failed to probe source duration", slog.String("error", err.Error()))
	} else {
		sourceDuration = info.Duration
	}

	cut := 0
	for n, i := range valid {
		seg := d.Segments[i]
		clip, err := s.extractSegment(vctx, src, seg, sourceDuration, ws.ClipPath(i, videoID))
		prog.advance(ctx, 1, fmt.Sprintf("Extracted segment %d of %d from video %s", n+1, len(valid), videoID))
		if err != nil {
			logger.Warn("failed to extract segment",
				slog.Int("segment", i),
				slog.Float64("start", seg.StartTimeSeconds),
				slog.Float64("end", seg.EndTimeSeconds),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		out[i] = clip
		cut++
	}

	if cut == 0 {
		return lastErr
	}
	logger.Info("video processed", slog.Int("clips", cut), slog.Int("segments", len(indices)))
	return nil
}

func (s *CompileService) extractSegment(ctx context.Context, src string, seg Segment, sourceDuration float64, outPath string) (*extracted, error) {
	start, end, err := segment.Fit(seg.StartTimeSeconds, seg.EndTimeSeconds, sourceDuration)
	if err != nil {
		return nil, err
	}
	path, err := s.pipeline.Extractor.Extract(ctx, src, start, end, outPath)
	if err != nil {
		return nil, err
	}
	return &extracted{path: path, duration: end - start}, nil
}

// verifyDuration logs when the artifact length drifts from the clip total.
func (s *CompileService) verifyDuration(ctx context.Context, logger *slog.Logger, output string, expected float64) {
	info, err := s.pipeline.Media.Probe(ctx, output)
	if err != nil {
		logger.Warn("failed to probe combined video", slog.String("error", err.Error()))
		return
	}
	if math.Abs(info.Duration-expected) > durationTolerance {
		logger.Warn("combined duration differs from clip total",
			slog.Float64("expected", expected),
			slog.Float64("actual", info.Duration),
		)
	}
}

func (s *CompileService) fail(ctx context.Context, logger *slog.Logger, prog *progressReporter, err error, videos []VideoFailure) error {
	f := describeFailure(err, videos)
	logger.Error("job failed",
		slog.String("error", err.Error()),
		slog.String("message", f.message),
	)
	prog.fail(ctx, f)
	return err
}
