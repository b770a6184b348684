package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// RedisMemory stores turns in Redis so several server instances can share a
// conversation.
//
// Layout:
//   - "{prefix}:{session}:messages" sorted set, score = sequence number,
//     member = JSON(message, metadata)
//   - "{prefix}:{session}:seq" counter providing the sequence
//
// Both keys get the TTL on every write.
type RedisMemory struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	maxSize   int64
}

// RedisOptions configures RedisMemory.
type RedisOptions struct {
	TTL       time.Duration
	KeyPrefix string
	// MaxSize caps the stored turns per session (default 1000).
	MaxSize int
}

// NewRedisMemory creates a Redis-backed memory on an existing client.
func NewRedisMemory(client redis.UniversalClient, opts RedisOptions) *RedisMemory {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "catering:memory"
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1000
	}
	return &RedisMemory{
		client:    client,
		ttl:       opts.TTL,
		keyPrefix: opts.KeyPrefix,
		maxSize:   int64(opts.MaxSize),
	}
}

// DialRedisMemory parses a redis:// URL and creates a RedisMemory.
func DialRedisMemory(redisURL string, opts RedisOptions) (*RedisMemory, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewRedisMemory(redis.NewClient(parsed), opts), nil
}

func (r *RedisMemory) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:messages", r.keyPrefix, sessionID)
}

func (r *RedisMemory) seqKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:seq", r.keyPrefix, sessionID)
}

type redisEntry struct {
	Seq       int64                  `json:"seq"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Store saves a message.
func (r *RedisMemory) Store(ctx context.Context, sessionID string, message *agenkit.Message, metadata map[string]interface{}) error {
	seq, err := r.client.Incr(ctx, r.seqKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	value, err := json.Marshal(redisEntry{
		Seq:       seq,
		Role:      message.Role,
		Content:   message.Content,
		Timestamp: message.Timestamp,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	key := r.sessionKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(seq), Member: string(value)})
	// Keep only the newest maxSize members.
	pipe.ZRemRangeByRank(ctx, key, 0, -r.maxSize-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, r.seqKey(sessionID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

// Retrieve returns messages most recent first. Malformed members are
// skipped.
func (r *RedisMemory) Retrieve(ctx context.Context, sessionID string, opts RetrieveOptions) ([]*agenkit.Message, error) {
	limit := opts.limit()
	stop := int64(limit - 1)
	if len(opts.Tags) > 0 {
		stop = -1
	}

	values, err := r.client.ZRevRange(ctx, r.sessionKey(sessionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}

	out := make([]*agenkit.Message, 0, min(limit, len(values)))
	for _, value := range values {
		var e redisEntry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			continue
		}
		if !hasAnyTag(e.Metadata, opts.Tags) {
			continue
		}
		msg := agenkit.NewMessage(e.Role, e.Content)
		if !e.Timestamp.IsZero() {
			msg.Timestamp = e.Timestamp
		}
		out = append(out, msg)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Clear removes all memory for a session.
func (r *RedisMemory) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.sessionKey(sessionID), r.seqKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Capabilities returns the memory capabilities.
func (r *RedisMemory) Capabilities() []string {
	caps := []string{"basic_retrieval", "tag_filtering", "persistence"}
	if r.ttl > 0 {
		caps = append(caps, "ttl")
	}
	return caps
}

// Count returns the number of turns stored for a session.
func (r *RedisMemory) Count(ctx context.Context, sessionID string) (int64, error) {
	n, err := r.client.ZCard(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (r *RedisMemory) Close() error {
	return r.client.Close()
}
