package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider memoizes query embeddings. Recall and think often repeat
// the same query text within a session.
type CachedProvider struct {
	Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps p with a query cache bounded to maxBytes.
func NewCachedProvider(p Provider, maxBytes int64) (*CachedProvider, error) {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	// One vector costs 4 bytes per dimension; size counters for ~10x the
	// number of vectors that fit.
	perItem := int64(p.Dimension()) * 4
	if perItem <= 0 {
		perItem = 4 * 384
	}
	counters := 10 * (maxBytes / perItem)
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{Provider: p, cache: cache}, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// EmbedQuery returns a cached vector when one exists.
func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.Model(), text)
	if v, ok := c.cache.Get(key); ok {
		recordCacheLookup(ctx, true)
		return append([]float32(nil), v.([]float32)...), nil
	}
	recordCacheLookup(ctx, false)

	vec, err := c.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]float32(nil), vec...), int64(len(vec))*4)
	return vec, nil
}

// Wait blocks until pending cache writes are applied.
func (c *CachedProvider) Wait() { c.cache.Wait() }

// Close releases the cache and the wrapped provider.
func (c *CachedProvider) Close() error {
	c.cache.Close()
	return c.Provider.Close()
}
