// Package bootstrap provides dependency initialization for the clip compiler.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/config"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/job"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/media"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/segment"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/source"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

// Dependencies holds the long-lived handles shared by every job run.
type Dependencies struct {
	Service *job.CompileService
	Store   job.Store
	// Redis is nil unless REDIS_ADDR is set.
	Redis *redis.Client
	// ArtifactDir is set when artifacts are published to the local disk.
	ArtifactDir string
}

// Close releases network clients.
func (d *Dependencies) Close() error {
	if d.Redis != nil {
		return d.Redis.Close()
	}
	return nil
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	runner := process.NewExecRunner()

	s3Cfg := storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		KeyPrefix:       cfg.S3KeyPrefix,
		PublicURLs:      cfg.S3PublicURLs,
		URLExpiry:       cfg.SignedURLTTL,
	}

	resolver, err := initResolver(ctx, cfg, s3Cfg, runner, logger)
	if err != nil {
		return nil, err
	}

	profile := media.Profile{
		Width:        cfg.TargetWidth,
		Height:       cfg.TargetHeight,
		FrameRate:    cfg.TargetFPS,
		SampleRate:   cfg.TargetSampleRate,
		Channels:     2,
		PixelFormat:  "yuv420p",
		VideoCodec:   "libx264",
		Preset:       cfg.VideoPreset,
		CRF:          cfg.VideoCRF,
		AudioCodec:   "aac",
		AudioBitrate: cfg.AudioBitrate,
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	processor := media.NewFFmpegProcessor(runner,
		media.WithFFmpegPath(cfg.FFmpegPath),
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithProfile(profile),
		media.WithEncodeTimeout(cfg.EncodeTimeout),
		media.WithProbeTimeout(cfg.ProbeTimeout),
	)

	publisher, err := initPublisher(ctx, cfg, s3Cfg, logger)
	if err != nil {
		return nil, err
	}
	if lp, ok := publisher.(*storage.LocalPublisher); ok {
		deps.ArtifactDir = lp.Dir()
	}

	store, client, err := initStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	deps.Redis = client

	deps.Service = job.NewCompileService(
		store,
		job.Pipeline{
			Resolver:  resolver,
			Extractor: segment.NewFFmpegExtractor(runner, cfg.FFmpegPath, cfg.ExtractTimeout),
			Media:     processor,
			Publisher: publisher,
		},
		logger,
		job.WithWorkDir(cfg.TempDir),
		job.WithMaxParallelVideos(cfg.MaxParallelVideos),
		job.WithVideoTimeout(cfg.VideoTimeout),
		job.WithTrackerOptions(
			job.WithWriteAttempts(cfg.StateWriteAttempts),
			job.WithWriteBackoff(cfg.StateWriteBackoff),
		),
	)

	return deps, nil
}

// initResolver builds the source resolver. Local sources are tried before
// any network download: the content mount first, then the source bucket.
func initResolver(ctx context.Context, cfg *config.Config, s3Cfg storage.S3Config, runner process.Runner, logger *slog.Logger) (*source.Resolver, error) {
	var locators []source.Locator
	if cfg.ContentMountPath != "" {
		locators = append(locators, source.NewMountLocator(cfg.ContentMountPath))
		logger.Info("content mount configured", slog.String("path", cfg.ContentMountPath))
	}
	if cfg.SourceBucket != "" {
		bucketCfg := s3Cfg
		bucketCfg.Bucket = cfg.SourceBucket
		client, err := storage.NewS3Client(ctx, bucketCfg)
		if err != nil {
			return nil, fmt.Errorf("create source bucket client: %w", err)
		}
		locators = append(locators, source.NewBucketLocator(client, cfg.SourceBucket))
		logger.Info("source bucket configured", slog.String("bucket", cfg.SourceBucket))
	}

	fetcher := source.NewYTDLPFetcher(runner,
		source.WithYTDLPPath(cfg.YTDLPPath),
		source.WithCookiesFile(cfg.YTDLPCookiesFile),
		source.WithURLTemplate(cfg.SourceURLTemplate),
		source.WithFetchTimeout(cfg.DownloadTimeout),
	)

	return source.NewResolver(fetcher,
		source.WithLocators(locators...),
		source.WithAttempts(cfg.DownloadAttempts),
		source.WithBaseBackoff(cfg.DownloadBackoff),
		source.WithLogger(logger),
	), nil
}

// initPublisher creates the appropriate artifact publisher based on configuration.
func initPublisher(ctx context.Context, cfg *config.Config, s3Cfg storage.S3Config, logger *slog.Logger) (storage.Publisher, error) {
	if cfg.S3Enabled() {
		client, err := storage.NewS3Client(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 client: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.Bool("public_urls", cfg.S3PublicURLs),
		)
		return storage.NewS3Publisher(client, s3Cfg), nil
	}

	local, err := storage.NewLocalPublisher(cfg.ArtifactDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local publisher: %w", err)
	}
	logger.Info("local publishing configured",
		slog.String("artifact_dir", cfg.ArtifactDir),
		slog.String("base_url", cfg.PublicBaseURL),
	)
	return local, nil
}

// initStore uses Redis when an address is configured and memory otherwise.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Store, *redis.Client, error) {
	if !cfg.RedisEnabled() {
		logger.Warn("no REDIS_ADDR set, job state is kept in memory")
		return job.NewMemoryStore(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("redis state store configured",
		slog.String("addr", cfg.RedisAddr),
		slog.String("key_prefix", cfg.RedisKeyPrefix),
	)
	return job.NewRedisStore(client, cfg.RedisKeyPrefix, cfg.JobStateTTL), client, nil
}
