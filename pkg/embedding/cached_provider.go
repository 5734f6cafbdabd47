package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CachedProvider memoizes embeddings by (model, dimension, text). The
// in-process cache is checked first, then Redis when configured. Cache
// failures degrade to a provider call; they are never returned.
type CachedProvider struct {
	inner Provider
	local *cache.Cache
	rdb   *redis.Client
	ttl   time.Duration

	// OnCacheError receives Redis failures; nil drops them.
	OnCacheError func(err error)
}

func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{
		inner: inner,
		local: cache.New(ttl, ttl/2),
		rdb:   rdb,
		ttl:   ttl,
	}
}

func (p *CachedProvider) Name() string   { return p.inner.Name() }
func (p *CachedProvider) Model() string  { return p.inner.Model() }
func (p *CachedProvider) Dimension() int { return p.inner.Dimension() }

func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", p.inner.Model(), p.inner.Dimension(), text)))
	return "devmemory:embedding:" + hex.EncodeToString(sum[:])
}

func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := p.key(text)

	if x, found := p.local.Get(key); found {
		return clone(x.([]float32)), nil
	}

	if p.rdb != nil {
		raw, err := p.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var values []float32
			if jsonErr := json.Unmarshal(raw, &values); jsonErr == nil {
				p.local.Set(key, values, cache.DefaultExpiration)
				return clone(values), nil
			}
		case err != redis.Nil:
			p.reportCacheError(err)
		}
	}

	values, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	p.local.Set(key, clone(values), cache.DefaultExpiration)
	if p.rdb != nil {
		if raw, err := json.Marshal(values); err == nil {
			if err := p.rdb.Set(ctx, key, raw, p.ttl).Err(); err != nil {
				p.reportCacheError(err)
			}
		}
	}
	return values, nil
}

func (p *CachedProvider) reportCacheError(err error) {
	if p.OnCacheError != nil {
		p.OnCacheError(err)
	}
}

func clone(values []float32) []float32 {
	return append([]float32(nil), values...)
}
