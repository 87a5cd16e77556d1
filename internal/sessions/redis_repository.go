package sessions

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/database"
	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/bazaar/bazaar/backend/identity/internal/keyspace"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/bazaar/bazaar/backend/identity/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store. The primary record lives under
// device_session:{userId}:{deviceId}; session:{sessionId} mirrors it with the
// same TTL so a session can be found by id alone.
type RedisStore struct {
	client redis.Cmdable
	policy Policy
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable, p Policy) *RedisStore {
	return &RedisStore{
		client: client,
		policy: p,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (r *RedisStore) WithClock(now func() time.Time) *RedisStore {
	r.now = now
	return r
}

func (r *RedisStore) Policy() Policy { return r.policy }

func (r *RedisStore) Store(ctx context.Context, userID, deviceID, sessionID string, info fingerprint.DeviceInfo, ip string) (*Session, error) {
	key := keyspace.DeviceSession(userID, deviceID)
	prev, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.SessionID != sessionID {
		if err := r.client.Del(ctx, keyspace.Session(prev.SessionID)).Err(); err != nil {
			return nil, fmt.Errorf("delete replaced session lookup: %w", err)
		}
	}

	now := r.now()
	s := &Session{
		UserID:       userID,
		DeviceID:     deviceID,
		SessionID:    sessionID,
		CreatedAt:    now,
		LastActivity: now,
		DeviceInfo:   info,
		IPAddress:    ip,
		IsActive:     true,
	}
	if err := r.write(ctx, s, r.policy.InitialTTL(now)); err != nil {
		return nil, err
	}
	logger.Debugw("session stored", "userId", userID, "deviceId", deviceID, "sessionId", sessionID)
	return s, nil
}

// Get returns the stored session or ErrNotFound. Corrupt records are deleted
// and reported as not found.
func (r *RedisStore) Get(ctx context.Context, userID, deviceID string) (*Session, error) {
	s, err := r.load(ctx, keyspace.DeviceSession(userID, deviceID))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Verify reports whether the device's session is active and carries
// sessionID. Sessions past their absolute lifetime or created beyond the skew
// tolerance in the future are deleted and fail verification.
func (r *RedisStore) Verify(ctx context.Context, userID, deviceID, sessionID string) (bool, error) {
	s, err := r.load(ctx, keyspace.DeviceSession(userID, deviceID))
	if err != nil || s == nil {
		return false, err
	}
	now := r.now()
	if r.policy.InFuture(s.CreatedAt, now) {
		logger.Warnw("session createdAt in the future", "userId", userID, "deviceId", deviceID, "createdAt", s.CreatedAt.Format(time.RFC3339))
		return false, r.remove(ctx, s)
	}
	if r.policy.Exhausted(s.CreatedAt, now) {
		logger.Infow("session reached max lifetime", "userId", userID, "deviceId", deviceID)
		return false, r.remove(ctx, s)
	}
	if !s.IsActive {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(s.SessionID), []byte(sessionID)) == 1, nil
}

// Touch records activity. Writes are throttled: within ActivityThrottle of
// the last persisted activity nothing is written and (false, nil) returned.
// Otherwise lastActivity moves to now and both keys get TTL
// min(IdleTimeout, MaxLifetime - age).
func (r *RedisStore) Touch(ctx context.Context, userID, deviceID string) (bool, error) {
	s, err := r.load(ctx, keyspace.DeviceSession(userID, deviceID))
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, ErrNotFound
	}
	now := r.now()
	if now.Sub(s.LastActivity) < r.policy.ActivityThrottle {
		metrics.SessionTouchTotal.WithLabelValues("throttled").Inc()
		return false, nil
	}
	if r.policy.InFuture(s.CreatedAt, now) {
		metrics.SessionTouchTotal.WithLabelValues("clock_skew").Inc()
		logger.Warnw("session createdAt in the future", "userId", userID, "deviceId", deviceID, "createdAt", s.CreatedAt.Format(time.RFC3339))
		if err := r.remove(ctx, s); err != nil {
			return false, err
		}
		return false, ErrClockSkew
	}
	ttl := r.policy.TTL(s.CreatedAt, now)
	if r.policy.Exhausted(s.CreatedAt, now) || ttl <= 0 {
		metrics.SessionTouchTotal.WithLabelValues("expired").Inc()
		if err := r.remove(ctx, s); err != nil {
			return false, err
		}
		return false, ErrExpired
	}
	s.LastActivity = now
	if err := r.write(ctx, s, ttl); err != nil {
		return false, err
	}
	metrics.SessionTouchTotal.WithLabelValues("written").Inc()
	return true, nil
}

// InvalidateOne deletes the session with the given id and its lookup. It is
// a no-op when the id is unknown.
func (r *RedisStore) InvalidateOne(ctx context.Context, sessionID string) error {
	lookupKey := keyspace.Session(sessionID)
	b, err := r.client.Get(ctx, lookupKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get session lookup: %w", err)
	}
	keys := []string{lookupKey}
	if l, err := decodeLookup(b); err != nil {
		logger.Warnw("deleting corrupt session lookup", "sessionId", sessionID, "error", err)
	} else {
		primary := keyspace.DeviceSession(l.UserID, l.DeviceID)
		s, err := r.load(ctx, primary)
		if err != nil {
			return err
		}
		// the device may already hold a newer session
		if s != nil && s.SessionID == sessionID {
			keys = append(keys, primary)
		}
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// InvalidateAll deletes every device session, refresh record and session
// lookup belonging to userID. Lookups that cannot be decoded are deleted as
// well. Returns the number of keys removed.
func (r *RedisStore) InvalidateAll(ctx context.Context, userID string) (int, error) {
	var keys []string
	for _, pattern := range []string{keyspace.DeviceSessionPattern(userID), keyspace.RefreshTokenPattern(userID)} {
		found, err := database.ScanKeys(ctx, r.client, pattern)
		if err != nil {
			return 0, err
		}
		keys = append(keys, found...)
	}

	lookups, err := database.ScanKeys(ctx, r.client, keyspace.SessionPattern())
	if err != nil {
		return 0, err
	}
	owned, err := r.ownedLookups(ctx, userID, lookups)
	if err != nil {
		return 0, err
	}
	keys = append(keys, owned...)

	n, err := database.DeleteKeys(ctx, r.client, keys)
	if err != nil {
		return n, err
	}
	logger.Infow("invalidated all sessions", "userId", userID, "keys", n)
	return n, nil
}

// ownedLookups filters lookup keys down to those pointing at userID, plus
// corrupt ones.
func (r *RedisStore) ownedLookups(ctx context.Context, userID string, keys []string) ([]string, error) {
	const batch = 200
	var out []string
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		vals, err := r.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("read session lookups: %w", err)
		}
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue // expired between SCAN and MGET
			}
			l, err := decodeLookup([]byte(raw))
			if err != nil || l.UserID == userID {
				out = append(out, keys[start+i])
			}
		}
	}
	return out, nil
}

func (r *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s, err := decodeSession(b)
	if err != nil {
		logger.Warnw("deleting corrupt session record", "key", key, "error", err)
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("delete corrupt session: %w", delErr)
		}
		return nil, nil
	}
	return s, nil
}

func (r *RedisStore) write(ctx context.Context, s *Session, ttl time.Duration) error {
	sb, err := json.Marshal(s)
	if err != nil {
		return err
	}
	lb, err := json.Marshal(lookup{UserID: s.UserID, DeviceID: s.DeviceID})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyspace.DeviceSession(s.UserID, s.DeviceID), sb, ttl)
		pipe.Set(ctx, keyspace.Session(s.SessionID), lb, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (r *RedisStore) remove(ctx context.Context, s *Session) error {
	err := r.client.Del(ctx, keyspace.DeviceSession(s.UserID, s.DeviceID), keyspace.Session(s.SessionID)).Err()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
