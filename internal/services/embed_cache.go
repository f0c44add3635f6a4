package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/henk-ai/fabric-backend/internal/logger"
)

// QueryEmbedCache memoizes query embeddings so repeated searches for the same
// phrasing skip the embedding round trip. The cache is best-effort: a nil
// cache and a cache miss behave identically.
type QueryEmbedCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewQueryEmbedCache connects to redis when REDIS_ADDR is set; otherwise it
// returns (nil, nil) and callers run uncached.
func NewQueryEmbedCache(log *logger.Logger) (*QueryEmbedCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Info("REDIS_ADDR not set, query embedding cache disabled")
		return nil, nil
	}

	ttl := time.Hour
	if v := strings.TrimSpace(os.Getenv("EMBED_CACHE_TTL_SECONDS")); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &QueryEmbedCache{
		log: log.With("service", "QueryEmbedCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func cacheKey(model, query string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + query))
	return "fabric:qembed:" + hex.EncodeToString(sum[:])
}

// Get returns the cached vector for a query, or nil on miss or error.
func (c *QueryEmbedCache) Get(ctx context.Context, model, query string) []float32 {
	if c == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, cacheKey(model, query)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Debug("Query embedding cache read failed", "error", err)
		}
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

// Put stores a query vector. Failures are logged and swallowed.
func (c *QueryEmbedCache) Put(ctx context.Context, model, query string, vec []float32) {
	if c == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(model, query), raw, c.ttl).Err(); err != nil {
		c.log.Debug("Query embedding cache write failed", "error", err)
	}
}

func (c *QueryEmbedCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
