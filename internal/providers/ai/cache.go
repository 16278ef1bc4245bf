package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedInvoker wraps an Invoker with a Redis response cache. Model output
// for an identical (model, prompt) pair is served from cache within the
// TTL, sparing both latency and provider quota on re-runs. Cache failures
// are never fatal; the inner invoker is always the fallback.
type CachedInvoker struct {
	inner Invoker
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedInvoker wraps inner with a Redis response cache
func NewCachedInvoker(inner Invoker, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedInvoker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedInvoker{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

// Invoke serves from cache when possible, delegating to the inner invoker
// on a miss and storing its successful output.
func (c *CachedInvoker) Invoke(ctx context.Context, prompt string, modelID string) (string, error) {
	key := cacheKey(prompt, modelID)

	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		c.log.Debug("model response cache hit", zap.String("model", modelID))
		return cached, nil
	}
	if err != redis.Nil {
		c.log.Debug("model response cache unavailable", zap.Error(err))
	}

	output, err := c.inner.Invoke(ctx, prompt, modelID)
	if err != nil {
		return "", err
	}

	if setErr := c.rdb.Set(ctx, key, output, c.ttl).Err(); setErr != nil {
		c.log.Debug("model response cache write failed", zap.Error(setErr))
	}
	return output, nil
}

func cacheKey(prompt, modelID string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "ai:" + modelID + ":" + hex.EncodeToString(sum[:])
}
