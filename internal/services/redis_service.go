package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const embedCacheTTL = 24 * time.Hour

// EmbeddingCache caches query embeddings in Redis so repeated prompts skip
// the encoder round trip. Entirely optional: a nil cache is a valid cache
// that always misses.
type EmbeddingCache struct {
	client *redis.Client
}

// NewEmbeddingCache connects to Redis. Returns nil (cache disabled) when url
// is empty or the connection fails; a cache outage must never block chat.
func NewEmbeddingCache(url string) *EmbeddingCache {
	if url == "" {
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("⚠️  [EMBED-CACHE] Invalid Redis URL, cache disabled: %v", err)
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  [EMBED-CACHE] Redis unreachable, cache disabled: %v", err)
		return nil
	}

	log.Println("✅ [EMBED-CACHE] Redis embedding cache enabled")
	return &EmbeddingCache{client: client}
}

func embedCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding for text, or nil on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, text string) []float32 {
	if c == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, embedCacheKey(text)).Bytes()
	if err != nil {
		embedCacheHits.WithLabelValues("miss").Inc()
		return nil
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		embedCacheHits.WithLabelValues("miss").Inc()
		return nil
	}
	embedCacheHits.WithLabelValues("hit").Inc()
	return vec
}

// Set stores an embedding. Failures are logged and swallowed.
func (c *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) {
	if c == nil || len(vec) == 0 {
		return
	}

	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, embedCacheKey(text), raw, embedCacheTTL).Err(); err != nil {
		log.Printf("⚠️  [EMBED-CACHE] Failed to cache embedding: %v", err)
	}
}

// Close releases the Redis connection.
func (c *EmbeddingCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
