package auth

import (
	"errors"
)

var (
	// ErrInvalidToken: signature, type or expiry check failed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenNotFound: no live refresh record for the token, or the stores
	// could not be consulted.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrSessionNotFound: the session is gone, inactive or past its lifetime.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDeviceBindingViolation: a refresh record was presented from a device
	// other than its own. Every session of the user has been revoked.
	ErrDeviceBindingViolation = errors.New("device binding violation")
	// ErrClockSkew: the session was created in the future.
	ErrClockSkew = errors.New("session clock skew")
	// ErrCorruptRecord: a stored record could not be decoded and was dropped.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrInvalidTTL: a record would have been written with no lifetime left.
	ErrInvalidTTL = errors.New("no lifetime left")
	// ErrRegistrationUsed: the registration token was already consumed.
	ErrRegistrationUsed = errors.New("registration token already used")
)

// Messages returned to clients. Causes are never distinguished beyond these.
const (
	MsgInvalidRefreshToken = "Invalid refresh token"
	MsgSessionExpired      = "Session expired. Please login again."
	MsgInvalidToken        = "Invalid token"
)

// ClientMessage maps an error from this package to the message a client
// may see.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrClockSkew), errors.Is(err, ErrInvalidTTL):
		return MsgSessionExpired
	case errors.Is(err, ErrRegistrationUsed):
		return MsgInvalidToken
	default:
		return MsgInvalidRefreshToken
	}
}
