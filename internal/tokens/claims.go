package tokens

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates the three token kinds. It travels in the "type" claim.
type Type string

const (
	TypeAccess       Type = "access"
	TypeRefresh      Type = "refresh"
	TypeRegistration Type = "registration"
)

var (
	// ErrInvalidToken covers bad signatures, wrong algorithm, issuer or
	// audience, expiry and malformed payloads.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongType is returned when a valid token of one kind is presented
	// where another kind is required.
	ErrWrongType = errors.New("wrong token type")

	// ErrNoSecret is returned when minting without a configured secret.
	ErrNoSecret = errors.New("jwt secret not configured")
)

// Common carries the fields every token kind has.
type Common struct {
	UserID    string    `json:"sub" validate:"required"`
	JTI       string    `json:"jti" validate:"required"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp" validate:"required"`
}

// Claims is one of *AccessClaims, *RefreshClaims or *RegistrationClaims.
type Claims interface {
	Kind() Type
	Meta() Common
}

// AccessClaims authorises API calls for one session on one device.
type AccessClaims struct {
	Common
	UserType  string `json:"userType,omitempty"`
	SessionID string `json:"sessionId" validate:"required"`
	DeviceID  string `json:"deviceId" validate:"required"`
}

// RefreshClaims lets a device obtain new access tokens.
type RefreshClaims struct {
	Common
	UserType  string `json:"userType,omitempty"`
	SessionID string `json:"sessionId" validate:"required"`
	DeviceID  string `json:"deviceId" validate:"required"`
}

// RegistrationClaims authorise a single profile-completion call after phone
// verification.
type RegistrationClaims struct {
	Common
	Phone string `json:"phone" validate:"required"`
}

func (*AccessClaims) Kind() Type       { return TypeAccess }
func (*RefreshClaims) Kind() Type      { return TypeRefresh }
func (*RegistrationClaims) Kind() Type { return TypeRegistration }

func (c Common) Meta() Common { return c }

// wireClaims is the JWT payload shared by all kinds.
type wireClaims struct {
	jwt.RegisteredClaims
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
	UserType  string `json:"userType,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

var validate = validator.New()

// decode turns verified wire claims into the matching variant.
func decode(w *wireClaims) (Claims, error) {
	common := Common{UserID: w.Subject, JTI: w.ID}
	if w.IssuedAt != nil {
		common.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		common.ExpiresAt = w.ExpiresAt.Time
	}

	var c Claims
	switch w.Type {
	case TypeAccess:
		c = &AccessClaims{Common: common, UserType: w.UserType, SessionID: w.SessionID, DeviceID: w.DeviceID}
	case TypeRefresh:
		c = &RefreshClaims{Common: common, UserType: w.UserType, SessionID: w.SessionID, DeviceID: w.DeviceID}
	case TypeRegistration:
		c = &RegistrationClaims{Common: common, Phone: w.Phone}
	default:
		return nil, ErrWrongType
	}
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	return c, nil
}
