package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis hash fields of a job record. The full record lives in fieldState;
// status and progress are duplicated for cheap HGET reads by other tools.
const (
	fieldState    = "state"
	fieldStatus   = "status"
	fieldProgress = "progress"
)

// maxWatchRetries bounds optimistic-lock retries in Update.
const maxWatchRetries = 5

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// RedisStore keeps one Redis hash per job under prefix+jobID.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps records forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(jobID string) string {
	return r.prefix + jobID
}

// Save creates or replaces the record.
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	fields, err := stateFields(state)
	if err != nil {
		return err
	}
	key := r.key(state.JobID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", state.JobID, err)
	}
	return nil
}

// Get reads the record.
func (r *RedisStore) Get(ctx context.Context, jobID string) (*State, error) {
	raw, err := r.client.HGet(ctx, r.key(jobID), fieldState).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", jobID, err)
	}
	return decodeState(raw)
}

// Update applies u under WATCH so that concurrent writers never interleave a
// read-modify-write of the same record.
func (r *RedisStore) Update(ctx context.Context, jobID string, u Update) error {
	key := r.key(jobID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, fieldState).Result()
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		state, err := decodeState(raw)
		if err != nil {
			return err
		}
		if err := state.Apply(u, time.Now()); err != nil {
			return err
		}
		fields, err := stateFields(state)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrJobNotFound) && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrStatusConflict) {
			return fmt.Errorf("redis update %s: %w", jobID, err)
		}
		return err
	}
	return fmt.Errorf("redis update %s: %w", jobID, redis.TxFailedErr)
}

func stateFields(state *State) (map[string]interface{}, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode job state: %w", err)
	}
	return map[string]interface{}{
		fieldState:    string(data),
		fieldStatus:   string(state.Status),
		fieldProgress: state.Progress,
	}, nil
}

func decodeState(raw string) (*State, error) {
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return &state, nil
}
