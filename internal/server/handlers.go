package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/job"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/job/id"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/queue"
)

// maxBodyBytes bounds a job message body.
const maxBodyBytes = 1 << 20

// JobService is the part of job.CompileService the handlers use.
type JobService interface {
	Submit(ctx context.Context, d job.Descriptor) (*job.SubmitResult, error)
	Process(ctx context.Context, d job.Descriptor) (*job.Result, error)
	GetJob(ctx context.Context, jobID string) (*job.State, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            JobService
	logger             *slog.Logger
	artifacts          fs.FS
	enableAsyncProcess bool
	inflight           sync.WaitGroup
	// runCtx outlives requests and is cancelled by Shutdown.
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only records the job and returns immediately.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithArtifactDir serves published artifacts from dir under /artifacts/.
func WithArtifactDir(dir string) HandlerOption {
	return func(h *Handlers) {
		if dir != "" {
			h.artifacts = os.DirFS(dir)
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		logger:             logger.With(slog.String("component", "http")),
		enableAsyncProcess: true,
	}
	h.runCtx, h.cancelRuns = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every background job started by CreateJob has finished.
func (h *Handlers) Wait() {
	h.inflight.Wait()
}

// Shutdown waits for background jobs until ctx is done. Jobs still running
// then are cancelled, which records them as Failed, and Shutdown returns
// ctx.Err() once they have stopped.
func (h *Handlers) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	h.logger.Warn("cancelling background jobs still running")
	h.cancelRuns()
	<-done
	return ctx.Err()
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests. The body is a job descriptor or a
// push envelope carrying one. A descriptor without a jobId is given one.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}

	d, err := queue.Decode(body)
	if err != nil {
		h.logger.Warn("rejecting job message", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_JSON")
		return
	}
	if d.JobID == "" {
		d.JobID = id.Generate()
	}
	if err := d.Validate(); err != nil {
		h.logger.Warn("rejecting job message", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	res, err := h.service.Submit(r.Context(), d)
	if err != nil {
		h.logger.Error("failed to submit job",
			slog.String("job_id", d.JobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit job", "JOB_SUBMIT_FAILED")
		return
	}

	if res.Skipped {
		writeJSON(w, http.StatusOK, SubmitResponse{
			JobID:   d.JobID,
			Status:  string(res.State.Status),
			Skipped: true,
		})
		return
	}

	// Processing outlives the request and stops only on Shutdown.
	if h.enableAsyncProcess {
		h.inflight.Add(1)
		go func(ctx context.Context, d job.Descriptor) {
			defer h.inflight.Done()
			_, err := h.service.Process(ctx, d)
			switch {
			case errors.Is(err, job.ErrStatusConflict):
				h.logger.Info("job already running elsewhere", slog.String("job_id", d.JobID))
			case err != nil:
				h.logger.Error("background processing failed",
					slog.String("job_id", d.JobID),
					slog.String("error", err.Error()),
				)
			}
		}(h.runCtx, d)
	}

	h.logger.Info("job accepted",
		slog.String("job_id", d.JobID),
		slog.Int("segments", len(d.Segments)),
	)
	writeJSON(w, http.StatusAccepted, res.State)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	state, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// Artifact handles GET /artifacts/{path...} requests for locally published
// videos. Directories are not listed.
func (h *Handlers) Artifact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	if h.artifacts == nil || !fs.ValidPath(name) {
		writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
		return
	}
	info, err := fs.Stat(h.artifacts, name)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
		return
	}
	http.ServeFileFS(w, r, h.artifacts, name)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
