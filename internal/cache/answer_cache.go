package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// CachedAnswer is the stored result of one answered question.
type CachedAnswer struct {
	Answer  string         `json:"answer"`
	Sources []CachedSource `json:"sources"`
}

type CachedSource struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// AnswerCache keeps recently answered questions in redis with a TTL.
// Ingesting new documents doesn't invalidate entries; the TTL bounds
// how long a stale answer can live.
type AnswerCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redisv9.Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AnswerCache{client: client, ttl: ttl}
}

// Key builds the cache key from everything that determines the answer.
func (c *AnswerCache) Key(question string, k int, documentID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", k, documentID, question)))
	return "answer:" + hex.EncodeToString(sum[:])
}

// Get returns the cached answer, or nil on miss. Backend errors are
// returned so the caller can log and degrade to uncached operation.
func (c *AnswerCache) Get(ctx context.Context, key string) (*CachedAnswer, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached answer failed: %w", err)
	}
	var cached CachedAnswer
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("decode cached answer failed: %w", err)
	}
	return &cached, nil
}

func (c *AnswerCache) Set(ctx context.Context, key string, answer CachedAnswer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer failed: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached answer failed: %w", err)
	}
	return nil
}
