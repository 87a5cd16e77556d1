// Package keyspace is the single source of Redis key names for the identity
// service. Every entity type owns one prefix; the per-user patterns rely on
// the "<prefix><userId>:" ordering, so keys must only be built here.
package keyspace

import "strings"

const (
	DeviceSessionPrefix = "device_session:"
	SessionPrefix       = "session:"
	RefreshTokenPrefix  = "refresh_token:"
	BlacklistPrefix     = "blacklist:access:"
)

// DeviceSession is the primary session key: device_session:{userId}:{deviceId}.
func DeviceSession(userID, deviceID string) string {
	return DeviceSessionPrefix + userID + ":" + deviceID
}

// DeviceSessionPattern matches every device session of one user.
func DeviceSessionPattern(userID string) string {
	return DeviceSessionPrefix + escapeGlob(userID) + ":*"
}

// Session is the secondary lookup key: session:{sessionId}.
func Session(sessionID string) string {
	return SessionPrefix + sessionID
}

// SessionPattern matches every secondary lookup in the keyspace.
func SessionPattern() string {
	return SessionPrefix + "*"
}

// RefreshToken is the refresh-token metadata key: refresh_token:{userId}:{jti}.
func RefreshToken(userID, jti string) string {
	return RefreshTokenPrefix + userID + ":" + jti
}

// RefreshTokenPattern matches every refresh-token record of one user.
func RefreshTokenPattern(userID string) string {
	return RefreshTokenPrefix + escapeGlob(userID) + ":*"
}

// JTIFromRefreshKey returns the jti part of a refresh_token key.
func JTIFromRefreshKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Blacklist marks a revoked or consumed token id.
func Blacklist(jti string) string {
	return BlacklistPrefix + jti
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob keeps user-controlled ids from widening a SCAN/KEYS pattern.
func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
