package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheConfig configures the optional Redis-backed embedding cache, keyed on
// model name + text hash so a provider switch never serves a stale vector
// (grounded on intelligencedev-manifold's RedisSkillsCache).
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// cachedEmbedder wraps an Embedder with a Redis cache. A cache miss or Redis
// error falls through to the wrapped embedder rather than failing the call —
// the cache is a latency optimization, never a correctness dependency.
type cachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
}

// NewCached wraps inner with a Redis cache when cfg.Addr is set. Returns
// inner unchanged when cfg.Addr is empty.
func NewCached(inner Embedder, cfg CacheConfig) (Embedder, error) {
	if cfg.Addr == "" {
		return inner, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis embedding cache ping: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &cachedEmbedder{inner: inner, client: client, ttl: ttl}, nil
}

func (c *cachedEmbedder) ModelName() string { return c.inner.ModelName() }
func (c *cachedEmbedder) Dims() int         { return c.inner.Dims() }

func (c *cachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return "secondloop:embed:" + c.inner.ModelName() + ":" + hex.EncodeToString(h[:16])
}

func (c *cachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		val, err := c.client.Get(ctx, c.key(text)).Result()
		if err != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(val), &vec); err != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		out[i] = vec
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		if data, err := json.Marshal(fresh[j]); err == nil {
			c.client.Set(ctx, c.key(missTexts[j]), data, c.ttl)
		}
	}
	return out, nil
}
