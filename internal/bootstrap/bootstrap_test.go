package bootstrap

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/config"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/job"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/media"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkerMode:         config.ModeHTTP,
		PublicBaseURL:      "http://localhost:8080",
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		YTDLPPath:          "yt-dlp",
		SourceURLTemplate:  "https://www.youtube.com/watch?v=%s",
		ContentMountPath:   t.TempDir(),
		DownloadAttempts:   3,
		DownloadBackoff:    time.Second,
		MaxParallelVideos:  2,
		TargetWidth:        1280,
		TargetHeight:       720,
		TargetFPS:          30,
		TargetSampleRate:   44100,
		VideoPreset:        "fast",
		VideoCRF:           23,
		AudioBitrate:       "128k",
		TempDir:            t.TempDir(),
		ArtifactDir:        filepath.Join(t.TempDir(), "artifacts"),
		StateWriteAttempts: 3,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDependencies_LocalDefaults(t *testing.T) {
	cfg := localConfig(t)

	deps, err := NewDependencies(t.Context(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	assert.NotNil(t, deps.Service)
	assert.IsType(t, &job.MemoryStore{}, deps.Store)
	assert.Nil(t, deps.Redis)
	assert.Equal(t, cfg.ArtifactDir, deps.ArtifactDir)
	assert.DirExists(t, cfg.ArtifactDir)
}

func TestNewDependencies_InvalidProfile(t *testing.T) {
	cfg := localConfig(t)
	cfg.TargetFPS = 0

	_, err := NewDependencies(t.Context(), cfg, discardLogger())
	assert.ErrorIs(t, err, media.ErrInvalidProfile)
}

func TestNewDependencies_UnreachableRedis(t *testing.T) {
	cfg := localConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := NewDependencies(t.Context(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}
