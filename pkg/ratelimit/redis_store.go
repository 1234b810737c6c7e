package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis, sharing one attempt log and block
// table across storefront instances.
//
// Attempts live in two sorted sets per (identifier, class), one for
// successes and one for failures, scored by unix nanoseconds. Outcome
// filtering is then a ZCOUNT rather than a member scan. Blocks are plain keys
// with a TTL, which makes lazy expiry Redis's job.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default "ratelimit" key namespace.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: "ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) attemptsKey(identifier, class string, succeeded bool) string {
	suffix := ":fail"
	if succeeded {
		suffix = ":ok"
	}
	return s.keyPrefix + ":attempts:" + class + ":" + identifier + suffix
}

func (s *RedisStore) blockKey(identifier, class string) string {
	return s.keyPrefix + ":block:" + class + ":" + identifier
}

type redisAttempt struct {
	At       time.Time         `json:"at"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Nonce    string            `json:"nonce"`
}

// RecordAttempt appends the attempt and prunes the log in one pipeline. The
// retained-count cap applies to the pair's combined log across both outcome
// sets, matching the single-log MemoryStore semantics.
func (s *RedisStore) RecordAttempt(ctx context.Context, a Attempt, retention time.Duration, maxRetained int) error {
	member, err := json.Marshal(redisAttempt{
		At:       a.At,
		Metadata: a.Metadata,
		Nonce:    uuid.NewString(),
	})
	if err != nil {
		return err
	}

	key := s.attemptsKey(a.Identifier, a.Class, a.Succeeded)
	otherKey := s.attemptsKey(a.Identifier, a.Class, !a.Succeeded)
	cutoff := strconv.FormatInt(a.At.Add(-retention).UnixNano(), 10)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(a.At.UnixNano()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
	pipe.Expire(ctx, key, retention)
	cardCmd := pipe.ZCard(ctx, key)
	otherCardCmd := pipe.ZCard(ctx, otherKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if maxRetained <= 0 {
		return nil
	}
	excess := retainExcess(cardCmd.Val(), otherCardCmd.Val(), maxRetained)
	if excess <= 0 {
		return nil
	}

	// Trim oldest entries, starting with the set just written; spill the
	// remainder onto the other set when one set alone cannot absorb it.
	removed, err := s.client.ZRemRangeByRank(ctx, key, 0, excess-1).Result()
	if err != nil {
		return err
	}
	if rest := excess - removed; rest > 0 {
		return s.client.ZRemRangeByRank(ctx, otherKey, 0, rest-1).Err()
	}
	return nil
}

// retainExcess returns how many entries must be dropped so the pair's
// combined log stays within maxRetained.
func retainExcess(count, otherCount int64, maxRetained int) int64 {
	return count + otherCount - int64(maxRetained)
}

// CountAttempts counts attempts at or after since, filtered by outcome.
func (s *RedisStore) CountAttempts(ctx context.Context, identifier, class string, since time.Time, outcome Outcome) (int, error) {
	minScore := strconv.FormatInt(since.UnixNano(), 10)

	var keys []string
	switch outcome {
	case OutcomeSucceeded:
		keys = []string{s.attemptsKey(identifier, class, true)}
	case OutcomeFailed:
		keys = []string{s.attemptsKey(identifier, class, false)}
	default:
		keys = []string{
			s.attemptsKey(identifier, class, true),
			s.attemptsKey(identifier, class, false),
		}
	}

	total := 0
	for _, key := range keys {
		n, err := s.client.ZCount(ctx, key, minScore, "+inf").Result()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

// GetBlock returns the active block or nil. Redis TTL handles expiry, so a
// missing key simply means unblocked.
func (s *RedisStore) GetBlock(ctx context.Context, identifier, class string) (*Block, error) {
	raw, err := s.client.Get(ctx, s.blockKey(identifier, class)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, err
	}
	if block.Expired() {
		_ = s.client.Del(ctx, s.blockKey(identifier, class)).Err()
		return nil, nil
	}
	return &block, nil
}

func (s *RedisStore) SetBlock(ctx context.Context, b Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}

	ttl := time.Until(b.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.blockKey(b.Identifier, b.Class), raw, ttl).Err()
}

func (s *RedisStore) DeleteBlock(ctx context.Context, identifier, class string) error {
	return s.client.Del(ctx, s.blockKey(identifier, class)).Err()
}

// Close is a no-op: the Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
