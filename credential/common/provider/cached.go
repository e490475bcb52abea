package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
)

var logger = log.New("did-resolver")

const (
	cacheKeyPrefix  = "fedtrust:did:"
	defaultCacheTTL = 5 * time.Minute
)

// CachedResolver keeps resolved documents in Redis in front of another resolver.
// Cache failures never fail a resolution.
type CachedResolver struct {
	next   Resolver
	client redis.UniversalClient
	ttl    time.Duration
}

// CachedOpt configures a CachedResolver.
type CachedOpt func(*CachedResolver)

// WithCacheTTL sets how long resolved documents stay cached.
func WithCacheTTL(ttl time.Duration) CachedOpt {
	return func(c *CachedResolver) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewCachedResolver wraps next with a Redis cache.
func NewCachedResolver(next Resolver, client redis.UniversalClient, opts ...CachedOpt) *CachedResolver {
	c := &CachedResolver{next: next, client: client, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *CachedResolver) Resolve(ctx context.Context, id string) (*did.Document, error) {
	key := cacheKeyPrefix + id

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var doc did.Document
		if err = json.Unmarshal(raw, &doc); err == nil {
			return &doc, nil
		}
		logger.Warnc(ctx, "Dropping corrupt cached DID document", logfields.WithDID(id), log.WithError(err))
	case !errors.Is(err, redis.Nil):
		logger.Warnc(ctx, "DID cache lookup failed", logfields.WithDID(id), log.WithError(err))
	}

	doc, err := c.next.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err = json.Marshal(doc); err == nil {
		if err = c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logger.Warnc(ctx, "DID cache store failed", logfields.WithDID(id), log.WithError(err))
		}
	}

	return doc, nil
}
