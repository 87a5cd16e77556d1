package refreshtokens

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Record binds a refresh token id to the device and session it was issued
// for. Stored as JSON under refresh_token:{userId}:{jti}.
type Record struct {
	DeviceID  string    `json:"deviceId" validate:"required"`
	SessionID string    `json:"sessionId" validate:"required"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
	TokenHash string    `json:"tokenHash" validate:"omitempty,hexadecimal,len=64"`
}

var validate = validator.New()

func decodeRecord(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := validate.Struct(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &r, nil
}

// HashToken is the digest stored instead of the signed token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
