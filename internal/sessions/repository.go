package sessions

import (
	"context"
	"errors"

	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
)

var (
	// ErrNotFound is returned when no session exists for the (user, device).
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session reached its absolute lifetime or
	// its remaining TTL computed to zero. The record has been deleted.
	ErrExpired = errors.New("session expired")

	// ErrClockSkew is returned when createdAt lies beyond the skew tolerance
	// in the future (tampering or a broken clock). The record has been deleted.
	ErrClockSkew = errors.New("session created in the future")

	// ErrCorruptRecord is returned by the decoders for unreadable records.
	ErrCorruptRecord = errors.New("corrupt session record")
)

// Store provides device-session persistence operations
type Store interface {
	Store(ctx context.Context, userID, deviceID, sessionID string, info fingerprint.DeviceInfo, ip string) (*Session, error)
	Get(ctx context.Context, userID, deviceID string) (*Session, error)
	Verify(ctx context.Context, userID, deviceID, sessionID string) (bool, error)
	Touch(ctx context.Context, userID, deviceID string) (bool, error)
	InvalidateOne(ctx context.Context, sessionID string) error
	InvalidateAll(ctx context.Context, userID string) (int, error)
}

var _ Store = (*RedisStore)(nil)
