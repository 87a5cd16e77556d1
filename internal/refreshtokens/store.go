package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/database"
	"github.com/bazaar/bazaar/backend/identity/internal/keyspace"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no record exists for (user, jti).
	ErrNotFound = errors.New("refresh token not found")

	// ErrDeviceMismatch is returned when a record is presented from a device
	// other than the one it was issued to. Every session and refresh record of
	// the user has been invalidated by the time it is returned.
	ErrDeviceMismatch = errors.New("refresh token device mismatch")

	// ErrCorruptRecord is returned for unreadable records. The record has
	// been deleted.
	ErrCorruptRecord = errors.New("corrupt refresh token record")
)

// SessionSource is the part of the session store the refresh store depends on.
type SessionSource interface {
	Get(ctx context.Context, userID, deviceID string) (*sessions.Session, error)
	InvalidateAll(ctx context.Context, userID string) (int, error)
}

// RedisStore persists refresh token records.
type RedisStore struct {
	client   redis.Cmdable
	sessions SessionSource
	policy   sessions.Policy
	tokenTTL time.Duration
	now      func() time.Time
}

// NewRedisStore creates a refresh store. tokenTTL is the lifetime of a
// refresh token; record TTLs never exceed it nor the owning session's
// remaining absolute lifetime.
func NewRedisStore(client redis.Cmdable, src SessionSource, p sessions.Policy, tokenTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		sessions: src,
		policy:   p,
		tokenTTL: tokenTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (r *RedisStore) WithClock(now func() time.Time) *RedisStore {
	r.now = now
	return r
}

// Store persists the record for jti and removes every other record of the
// same device. It returns false without writing when the owning session has
// no lifetime left.
func (r *RedisStore) Store(ctx context.Context, userID, token, deviceID, sessionID, jti string) (bool, error) {
	now := r.now()
	createdAt := now
	s, err := r.sessions.Get(ctx, userID, deviceID)
	switch {
	case err == nil:
		createdAt = s.CreatedAt
	case errors.Is(err, sessions.ErrNotFound):
		logger.Warnw("storing refresh token without a session, assuming a fresh one", "userId", userID, "deviceId", deviceID)
	default:
		return false, err
	}

	ttl := r.policy.Remaining(createdAt, now)
	if r.tokenTTL < ttl {
		ttl = r.tokenTTL
	}
	if ttl <= 0 {
		logger.Warnw("refresh token not stored, session lifetime exhausted", "userId", userID, "deviceId", deviceID, "sessionAgeDays", int(now.Sub(createdAt).Hours()/24))
		return false, nil
	}

	if err := r.revokeDevice(ctx, userID, deviceID, jti); err != nil {
		return false, err
	}

	b, err := json.Marshal(Record{
		DeviceID:  deviceID,
		SessionID: sessionID,
		CreatedAt: now,
		TokenHash: HashToken(token),
	})
	if err != nil {
		return false, err
	}
	if err := r.client.Set(ctx, keyspace.RefreshToken(userID, jti), b, ttl).Err(); err != nil {
		return false, fmt.Errorf("write refresh token: %w", err)
	}
	return true, nil
}

// Get returns the record for (userID, jti).
func (r *RedisStore) Get(ctx context.Context, userID, jti string) (*Record, error) {
	key := keyspace.RefreshToken(userID, jti)
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	rec, err := decodeRecord(b)
	if err != nil {
		logger.Warnw("deleting corrupt refresh token record", "userId", userID, "jti", jti, "error", err)
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("delete corrupt refresh token: %w", delErr)
		}
		return nil, err
	}
	return rec, nil
}

// Verify checks that jti is live and bound to deviceID and returns the bound
// session id. A device mismatch invalidates everything the user holds.
func (r *RedisStore) Verify(ctx context.Context, userID, jti, deviceID string) (string, error) {
	rec, err := r.Get(ctx, userID, jti)
	if err != nil {
		return "", err
	}
	if rec.DeviceID != deviceID {
		logger.Warnw("refresh token presented from another device",
			"userId", userID, "boundDeviceId", rec.DeviceID, "presentedDeviceId", deviceID)
		if _, err := r.sessions.InvalidateAll(ctx, userID); err != nil {
			return "", fmt.Errorf("invalidate after device mismatch: %w", err)
		}
		return "", ErrDeviceMismatch
	}
	return rec.SessionID, nil
}

// Revoke deletes a single record.
func (r *RedisStore) Revoke(ctx context.Context, userID, jti string) error {
	if err := r.client.Del(ctx, keyspace.RefreshToken(userID, jti)).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// RevokeAll deletes every refresh record of userID.
func (r *RedisStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	keys, err := database.ScanKeys(ctx, r.client, keyspace.RefreshTokenPattern(userID))
	if err != nil {
		return 0, err
	}
	return database.DeleteKeys(ctx, r.client, keys)
}

// revokeDevice deletes the records of deviceID other than keepJTI.
// Unreadable records are dropped along the way.
func (r *RedisStore) revokeDevice(ctx context.Context, userID, deviceID, keepJTI string) error {
	keys, err := database.ScanKeys(ctx, r.client, keyspace.RefreshTokenPattern(userID))
	if err != nil || len(keys) == 0 {
		return err
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("read refresh tokens: %w", err)
	}
	var stale []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok || keyspace.JTIFromRefreshKey(keys[i]) == keepJTI {
			continue
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil || rec.DeviceID == deviceID {
			stale = append(stale, keys[i])
		}
	}
	_, err = database.DeleteKeys(ctx, r.client, stale)
	return err
}
