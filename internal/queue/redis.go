package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/job"
)

const (
	defaultPollTimeout  = 5 * time.Second
	defaultErrorBackoff = time.Second
)

// Handler runs one decoded job.
type Handler func(ctx context.Context, d job.Descriptor) error

// ListPopper is the subset of the Redis client used by RedisConsumer.
type ListPopper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisConsumer pops job messages from a Redis list, one at a time.
type RedisConsumer struct {
	client       ListPopper
	key          string
	pollTimeout  time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

// ConsumerOption configures a RedisConsumer.
type ConsumerOption func(*RedisConsumer)

// WithPollTimeout sets how long one BLPOP blocks.
func WithPollTimeout(d time.Duration) ConsumerOption {
	return func(c *RedisConsumer) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithErrorBackoff sets the pause after a Redis error.
func WithErrorBackoff(d time.Duration) ConsumerOption {
	return func(c *RedisConsumer) { c.errorBackoff = d }
}

// NewRedisConsumer creates a consumer of the list at key.
func NewRedisConsumer(client ListPopper, key string, logger *slog.Logger, opts ...ConsumerOption) *RedisConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RedisConsumer{
		client:       client,
		key:          key,
		pollTimeout:  defaultPollTimeout,
		errorBackoff: defaultErrorBackoff,
		logger:       logger.With(slog.String("component", "queue"), slog.String("queue", key)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes messages until ctx is cancelled. Undecodable messages are
// dropped and handler errors are logged; neither stops the loop.
func (c *RedisConsumer) Run(ctx context.Context, handle Handler) error {
	c.logger.Info("consuming jobs")
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := c.client.BLPop(ctx, c.pollTimeout, c.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to pop job message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.errorBackoff):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		c.dispatch(ctx, []byte(res[1]), handle)
	}
}

func (c *RedisConsumer) dispatch(ctx context.Context, body []byte, handle Handler) {
	d, err := DecodeMessage(body)
	if err != nil {
		c.logger.Warn("dropping undecodable job message",
			slog.String("error", err.Error()),
			slog.Int("bytes", len(body)),
		)
		return
	}

	logger := c.logger.With(slog.String("job_id", d.JobID))
	logger.Info("job message received", slog.Int("segments", len(d.Segments)))
	if err := handle(ctx, d); err != nil {
		logger.Error("job handler failed", slog.String("error", err.Error()))
	}
}
