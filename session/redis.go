package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 5

// RedisService stores each session as a JSON string under
// "{prefix}:{id}". State updates use WATCH/MULTI so concurrent writers never
// lose each other's keys.
type RedisService struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

var _ Service = (*RedisService)(nil)

// NewRedisService creates a Redis-backed session store. A zero ttl keeps
// sessions until deleted; an empty prefix uses "catering:session".
func NewRedisService(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisService {
	if keyPrefix == "" {
		keyPrefix = "catering:session"
	}
	return &RedisService{client: client, keyPrefix: keyPrefix, ttl: ttl, now: time.Now}
}

// DialRedisService parses a redis:// URL and creates a RedisService.
func DialRedisService(redisURL string, ttl time.Duration) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewRedisService(redis.NewClient(opts), "", ttl), nil
}

func (r *RedisService) key(id string) string {
	return r.keyPrefix + ":" + id
}

func (r *RedisService) save(ctx context.Context, cmd redis.Cmdable, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return cmd.Set(ctx, r.key(s.ID), data, r.ttl).Err()
}

func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.State == nil {
		s.State = make(map[string]interface{})
	}
	return &s, nil
}

// Create implements Service.
func (r *RedisService) Create(ctx context.Context, userID string, state map[string]interface{}) (*Session, error) {
	s := newSession(uuid.NewString(), userID, state, r.now().UTC())
	if err := r.save(ctx, r.client, s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return s, nil
}

// Get implements Service.
func (r *RedisService) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decode(data)
}

// UpdateState implements Service.
func (r *RedisService) UpdateState(ctx context.Context, id string, delta map[string]interface{}) (*Session, error) {
	key := r.key(id)
	var updated *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		s, err := decode(data)
		if err != nil {
			return err
		}
		mergeState(s.State, delta)
		s.UpdatedAt = r.now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.save(ctx, pipe, s)
		})
		if err == nil {
			updated = s
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to update session %s: too much contention", id)
}

// Delete implements Service.
func (r *RedisService) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisService) Close() error {
	return r.client.Close()
}
