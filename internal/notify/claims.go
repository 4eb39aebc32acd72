package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultClaimTTL bounds how long a sent email is remembered. It comfortably
// outlives outbox retries.
const DefaultClaimTTL = 72 * time.Hour

// Claims remembers which emails went out so a redelivered outbox entry does
// not email the same person twice. Claim reports false when the key was
// already taken.
type Claims interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisClaims shares claims between API replicas with SET NX.
type RedisClaims struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaims(client *redis.Client, ttl time.Duration) *RedisClaims {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisClaims{client: client, ttl: ttl}
}

func (c *RedisClaims) Claim(ctx context.Context, key string) (bool, error) {
	return c.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
}

func (c *RedisClaims) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// MemoryClaims keeps claims in process. Used when redis is not configured.
type MemoryClaims struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	keys map[string]time.Time
}

func NewMemoryClaims(ttl time.Duration) *MemoryClaims {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &MemoryClaims{ttl: ttl, now: time.Now, keys: make(map[string]time.Time)}
}

func (c *MemoryClaims) Claim(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, expires := range c.keys {
		if !now.Before(expires) {
			delete(c.keys, k)
		}
	}
	if _, taken := c.keys[key]; taken {
		return false, nil
	}
	c.keys[key] = now.Add(c.ttl)
	return true, nil
}

func (c *MemoryClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
	return nil
}

var (
	_ Claims = (*RedisClaims)(nil)
	_ Claims = (*MemoryClaims)(nil)
)
