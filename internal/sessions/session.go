package sessions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/go-playground/validator/v10"
)

// Session is the server-side record binding a (user, device) pair to an
// activity window and an absolute expiry. Stored as JSON under
// device_session:{userId}:{deviceId}.
type Session struct {
	UserID       string                 `json:"userId" validate:"required"`
	DeviceID     string                 `json:"deviceId" validate:"required"`
	SessionID    string                 `json:"sessionId" validate:"required"`
	CreatedAt    time.Time              `json:"createdAt" validate:"required"`
	LastActivity time.Time              `json:"lastActivity" validate:"required"`
	DeviceInfo   fingerprint.DeviceInfo `json:"deviceInfo"`
	IPAddress    string                 `json:"ipAddress,omitempty"`
	IsActive     bool                   `json:"isActive"`
}

// Age is the time elapsed since creation.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// lookup is the secondary index value stored under session:{sessionId}.
type lookup struct {
	UserID   string `json:"userId" validate:"required"`
	DeviceID string `json:"deviceId" validate:"required"`
}

var validate = validator.New()

// decodeSession parses a stored session. Any parse or schema failure is
// reported as ErrCorruptRecord; callers treat the record as absent.
func decodeSession(b []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &s, nil
}

func decodeLookup(b []byte) (*lookup, error) {
	var l lookup
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := validate.Struct(&l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &l, nil
}
