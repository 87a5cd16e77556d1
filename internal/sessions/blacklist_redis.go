package sessions

import (
	"context"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/keyspace"
	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked token ids under blacklist:access:{jti}.
// A Blacklist with a nil client is a no-op.
type Blacklist struct {
	client redis.Cmdable
}

func NewBlacklist(client redis.Cmdable) *Blacklist {
	return &Blacklist{client: client}
}

// Revoke marks jti as revoked for ttl. Callers pass the token's remaining
// lifetime so the entry disappears together with the token.
func (b *Blacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if b == nil || b.client == nil || jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return b.client.Set(ctx, keyspace.Blacklist(jti), "1", ttl).Err()
}

// IsRevoked reports whether jti has been revoked.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if b == nil || b.client == nil {
		return false, nil
	}
	exists, err := b.client.Exists(ctx, keyspace.Blacklist(jti)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Claim atomically revokes jti and reports whether this call was the first
// to do so. Used to make single-use tokens single use.
func (b *Blacklist) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if b == nil || b.client == nil {
		return true, nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return b.client.SetNX(ctx, keyspace.Blacklist(jti), "1", ttl).Result()
}
