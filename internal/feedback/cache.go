package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps the last successful result per subject in Redis
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCache(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(subjectID string) string {
	return c.prefix + ":" + subjectID
}

func (c *Cache) Put(ctx context.Context, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(result.SubjectID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache feedback: %w", err)
	}
	return nil
}

// Get returns ErrNotFound when nothing is cached for subjectID
func (c *Cache) Get(ctx context.Context, subjectID string) (Result, error) {
	payload, err := c.client.Get(ctx, c.key(subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("read cached feedback: %w", err)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("decode cached feedback: %w", err)
	}
	return result, nil
}
