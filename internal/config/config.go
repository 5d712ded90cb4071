// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Worker modes.
const (
	ModeHTTP  = "http"
	ModeRedis = "redis"
)

// Static errors for configuration validation.
var (
	// ErrUnknownWorkerMode is returned when WORKER_MODE is neither http nor redis.
	ErrUnknownWorkerMode = errors.New("config: WORKER_MODE must be http or redis")
	// ErrRedisAddrRequired is returned when redis mode is selected without REDIS_ADDR.
	ErrRedisAddrRequired = errors.New("config: REDIS_ADDR is required when WORKER_MODE=redis")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
	// ErrInvalidTarget is returned when the normalization target is not positive.
	ErrInvalidTarget = errors.New("config: TARGET_WIDTH, TARGET_HEIGHT, TARGET_FPS and TARGET_SAMPLE_RATE must be positive")
	// ErrInvalidAttempts is returned when DOWNLOAD_ATTEMPTS or STATE_WRITE_ATTEMPTS is below one.
	ErrInvalidAttempts = errors.New("config: attempt counts must be at least 1")
)

// Config holds all configuration for the worker.
type Config struct {
	// Service settings
	Port               int      `env:"PORT, default=8080" json:"port"`
	WorkerMode         string   `env:"WORKER_MODE, default=http" json:"worker_mode"`
	PublicBaseURL      string   `env:"PUBLIC_BASE_URL, default=http://localhost:8080" json:"public_base_url"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// External tools
	FFmpegPath        string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath       string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	YTDLPPath         string `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path"`
	YTDLPCookiesFile  string `env:"YTDLP_COOKIES_FILE" json:"ytdlp_cookies_file,omitempty"`
	SourceURLTemplate string `env:"SOURCE_URL_TEMPLATE, default=https://www.youtube.com/watch?v=%s" json:"source_url_template"`

	// Alternative sources
	ContentMountPath string `env:"CONTENT_MOUNT_PATH" json:"content_mount_path,omitempty"`
	SourceBucket     string `env:"SOURCE_BUCKET" json:"source_bucket,omitempty"`

	// Retry and timeouts
	DownloadAttempts  int           `env:"DOWNLOAD_ATTEMPTS, default=3" json:"download_attempts"`
	DownloadBackoff   time.Duration `env:"DOWNLOAD_BACKOFF, default=2s" json:"download_backoff"`
	DownloadTimeout   time.Duration `env:"DOWNLOAD_TIMEOUT, default=30m" json:"download_timeout"`
	ExtractTimeout    time.Duration `env:"EXTRACT_TIMEOUT, default=5m" json:"extract_timeout"`
	EncodeTimeout     time.Duration `env:"ENCODE_TIMEOUT, default=20m" json:"encode_timeout"`
	ProbeTimeout      time.Duration `env:"PROBE_TIMEOUT, default=30s" json:"probe_timeout"`
	VideoTimeout      time.Duration `env:"VIDEO_TIMEOUT, default=60m" json:"video_timeout"`
	MaxParallelVideos int           `env:"MAX_PARALLEL_VIDEOS, default=1" json:"max_parallel_videos"`

	// Normalization target
	TargetWidth      int    `env:"TARGET_WIDTH, default=1280" json:"target_width"`
	TargetHeight     int    `env:"TARGET_HEIGHT, default=720" json:"target_height"`
	TargetFPS        int    `env:"TARGET_FPS, default=30" json:"target_fps"`
	TargetSampleRate int    `env:"TARGET_SAMPLE_RATE, default=44100" json:"target_sample_rate"`
	VideoPreset      string `env:"VIDEO_PRESET, default=fast" json:"video_preset"`
	VideoCRF         int    `env:"VIDEO_CRF, default=23" json:"video_crf"`
	AudioBitrate     string `env:"AUDIO_BITRATE, default=128k" json:"audio_bitrate"`

	// Workspace settings
	TempDir     string `env:"TEMP_DIR, default=/tmp/clipper" json:"temp_dir"`
	ArtifactDir string `env:"ARTIFACT_DIR, default=/tmp/clipper-artifacts" json:"artifact_dir"`

	// Optional S3 settings
	S3Bucket           string        `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string        `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string        `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string        `env:"S3_KEY_PREFIX, default=edited-clips" json:"s3_key_prefix"`
	S3PublicURLs       bool          `env:"S3_PUBLIC_URLS, default=false" json:"s3_public_urls"`
	SignedURLTTL       time.Duration `env:"SIGNED_URL_TTL, default=168h" json:"signed_url_ttl"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// State store and queue
	RedisAddr          string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword      string        `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB            int           `env:"REDIS_DB, default=0" json:"redis_db"`
	RedisQueueKey      string        `env:"REDIS_QUEUE_KEY, default=clipper:jobs" json:"redis_queue_key"`
	RedisKeyPrefix     string        `env:"REDIS_KEY_PREFIX, default=clipper:job:" json:"redis_key_prefix"`
	JobStateTTL        time.Duration `env:"JOB_STATE_TTL, default=168h" json:"job_state_ttl"`
	StateWriteAttempts int           `env:"STATE_WRITE_ATTEMPTS, default=3" json:"state_write_attempts"`
	StateWriteBackoff  time.Duration `env:"STATE_WRITE_BACKOFF, default=500ms" json:"state_write_backoff"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 publishing is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.WorkerMode) {
	case ModeHTTP:
	case ModeRedis:
		if c.RedisAddr == "" {
			return ErrRedisAddrRequired
		}
	default:
		return ErrUnknownWorkerMode
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	if c.TargetWidth <= 0 || c.TargetHeight <= 0 || c.TargetFPS <= 0 || c.TargetSampleRate <= 0 {
		return ErrInvalidTarget
	}
	if c.DownloadAttempts < 1 || c.StateWriteAttempts < 1 {
		return ErrInvalidAttempts
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, WorkerMode: %s, TempDir: %s, ContentMountPath: %s, SourceBucket: %s, DownloadAttempts: %d, MaxParallelVideos: %d, Target: %dx%d@%d, S3Bucket: %s, S3Region: %s, RedisAddr: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.WorkerMode,
		c.TempDir,
		c.ContentMountPath,
		c.SourceBucket,
		c.DownloadAttempts,
		c.MaxParallelVideos,
		c.TargetWidth,
		c.TargetHeight,
		c.TargetFPS,
		c.S3Bucket,
		c.S3Region,
		c.RedisAddr,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
