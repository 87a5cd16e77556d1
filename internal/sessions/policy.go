package sessions

import (
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/config"
)

// Policy holds the expiry arithmetic shared by the session and refresh-token
// stores.
type Policy struct {
	// TTLCeiling caps the TTL written when a session is created.
	TTLCeiling time.Duration
	// IdleTimeout is the sliding window extended by activity.
	IdleTimeout time.Duration
	// MaxLifetime is absolute from createdAt and is never extended.
	MaxLifetime time.Duration
	// ActivityThrottle is the minimum gap between two persisted touches.
	ActivityThrottle time.Duration
	// ClockSkew is how far in the future createdAt may lie before the
	// record is treated as tampered.
	ClockSkew time.Duration
}

// DefaultPolicy: 30-day ceiling and idle timeout, 90-day max lifetime,
// 5-minute write throttle, 60-second skew tolerance.
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Defaults().Session)
}

func PolicyFromConfig(c config.SessionConfig) Policy {
	return Policy{
		TTLCeiling:       c.TTLCeiling,
		IdleTimeout:      c.IdleTimeout,
		MaxLifetime:      c.MaxLifetime,
		ActivityThrottle: c.ActivityThrottle,
		ClockSkew:        c.ClockSkew,
	}
}

// Remaining is how much absolute lifetime a session created at createdAt has
// left at now. Zero or negative means it must not be kept.
func (p Policy) Remaining(createdAt, now time.Time) time.Duration {
	return p.MaxLifetime - now.Sub(createdAt)
}

// TTL is min(IdleTimeout, MaxLifetime - age).
func (p Policy) TTL(createdAt, now time.Time) time.Duration {
	ttl := p.Remaining(createdAt, now)
	if p.IdleTimeout < ttl {
		ttl = p.IdleTimeout
	}
	return ttl
}

// InitialTTL is the TTL of a freshly created session, additionally capped by
// TTLCeiling.
func (p Policy) InitialTTL(now time.Time) time.Duration {
	ttl := p.TTL(now, now)
	if p.TTLCeiling > 0 && p.TTLCeiling < ttl {
		ttl = p.TTLCeiling
	}
	return ttl
}

// InFuture reports whether createdAt lies beyond the skew tolerance.
func (p Policy) InFuture(createdAt, now time.Time) bool {
	return createdAt.Sub(now) > p.ClockSkew
}

// Exhausted reports whether the absolute lifetime is used up.
func (p Policy) Exhausted(createdAt, now time.Time) bool {
	return now.Sub(createdAt) >= p.MaxLifetime
}
