package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps short-lived account views in Redis. Mutation paths
// invalidate eagerly; the TTL only bounds staleness when an
// invalidation is lost.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("accounts:view:%s", id)
}

// Fetch loads a cached account or populates the cache via the loader.
func (c *Cache) Fetch(ctx context.Context, id uuid.UUID, loader func(context.Context) (Account, error)) (Account, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := cacheKey(id)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var account Account
		if jsonErr := json.Unmarshal(data, &account); jsonErr == nil {
			return account, nil
		}
		// Corrupt entry, fall through and repopulate.
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not break reads.
		return loader(ctx)
	}
	account, err := loader(ctx)
	if err != nil {
		return Account{}, err
	}
	if data, jsonErr := json.Marshal(account); jsonErr == nil {
		_ = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	return account, nil
}

// Invalidate drops the cached view after a mutation.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, cacheKey(id)).Err()
}
