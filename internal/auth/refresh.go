package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bazaar/bazaar/backend/identity/internal/audit"
	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/bazaar/bazaar/backend/identity/internal/refreshtokens"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/internal/tokens"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/bazaar/bazaar/backend/identity/pkg/metrics"
)

// Refresh exchanges a refresh token for a new access token. When the
// presenting device's fingerprint differs from the one the token is bound to,
// the session is migrated to the new fingerprint and a new refresh token is
// returned as well.
func (s *Service) Refresh(ctx context.Context, raw string, info fingerprint.DeviceInfo, ip string) (*Tokens, error) {
	claims, err := s.issuer.ParseRefresh(raw)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("invalid_token").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	current := fingerprint.Generate(info)
	var t *Tokens
	if current == claims.DeviceID {
		t, err = s.refreshSameDevice(ctx, claims)
	} else {
		t, err = s.migrate(ctx, claims, current, info, ip)
	}
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	if t.Migrated {
		metrics.RefreshTotal.WithLabelValues("migrated").Inc()
	} else {
		metrics.RefreshTotal.WithLabelValues("success").Inc()
	}
	return t, nil
}

func (s *Service) refreshSameDevice(ctx context.Context, claims *tokens.RefreshClaims) (*Tokens, error) {
	if err := s.checkLive(ctx, claims, claims.DeviceID); err != nil {
		return nil, err
	}

	if _, err := s.sessions.Touch(ctx, claims.UserID, claims.DeviceID); err != nil {
		return nil, s.sessionFailure(claims, err)
	}

	access, err := s.issuer.GenerateAccessToken(claims.UserID, claims.UserType, claims.SessionID, claims.DeviceID)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken: access.Token,
		ExpiresIn:   int(s.issuer.AccessTTL().Seconds()),
		SessionID:   claims.SessionID,
		DeviceID:    claims.DeviceID,
	}, nil
}

// migrate moves a live session to a new device fingerprint. The presented
// token must still be valid for the device it was issued to; a stale or
// revoked token cannot be used to open a session elsewhere.
func (s *Service) migrate(ctx context.Context, claims *tokens.RefreshClaims, newDeviceID string, info fingerprint.DeviceInfo, ip string) (*Tokens, error) {
	if err := s.checkLive(ctx, claims, claims.DeviceID); err != nil {
		return nil, err
	}

	old, err := s.sessions.Get(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		return nil, s.sessionFailure(claims, err)
	}
	now := s.now()
	changed := fingerprint.Changes(old.DeviceInfo, info)
	logger.Warnw("device fingerprint changed, migrating session",
		"userId", claims.UserID,
		"oldDeviceId", claims.DeviceID,
		"newDeviceId", newDeviceID,
		"changed", strings.Join(changed, ","),
		"oldSessionAgeDays", sessionAgeDays(old, now),
	)

	if err := s.sessions.InvalidateOne(ctx, claims.SessionID); err != nil {
		return nil, s.storeFailure(claims, err)
	}
	if err := s.refresh.Revoke(ctx, claims.UserID, claims.JTI); err != nil {
		return nil, s.storeFailure(claims, err)
	}

	t, err := s.startSession(ctx, claims.UserID, claims.UserType, newDeviceID, info, ip)
	if err != nil {
		if errors.Is(err, ErrInvalidTTL) {
			return nil, err
		}
		return nil, s.storeFailure(claims, err)
	}
	t.Migrated = true
	metrics.SessionMigrations.Inc()
	s.audit.Record(ctx, audit.Event{
		Type:      audit.SessionMigrated,
		UserID:    claims.UserID,
		DeviceID:  newDeviceID,
		SessionID: t.SessionID,
		IPAddress: ip,
		Details: map[string]string{
			"previousDeviceId":  claims.DeviceID,
			"previousSessionId": claims.SessionID,
			"changed":           strings.Join(changed, ","),
		},
	})
	return t, nil
}

// checkLive verifies the refresh record and the session the token names,
// both for deviceID.
func (s *Service) checkLive(ctx context.Context, claims *tokens.RefreshClaims, deviceID string) error {
	sessionID, err := s.refresh.Verify(ctx, claims.UserID, claims.JTI, deviceID)
	if err != nil {
		return s.refreshFailure(ctx, claims, deviceID, err)
	}
	if sessionID != claims.SessionID {
		logger.Warnw("refresh record bound to another session",
			"userId", claims.UserID, "deviceId", deviceID, "tokenSessionId", claims.SessionID, "recordSessionId", sessionID)
		return ErrTokenNotFound
	}

	ok, err := s.sessions.Verify(ctx, claims.UserID, deviceID, claims.SessionID)
	if err != nil {
		return s.storeFailure(claims, err)
	}
	if !ok {
		logger.Infow("refresh rejected, session not live", "userId", claims.UserID, "deviceId", deviceID)
		return ErrSessionNotFound
	}
	return nil
}

func (s *Service) refreshFailure(ctx context.Context, claims *tokens.RefreshClaims, deviceID string, err error) error {
	switch {
	case errors.Is(err, refreshtokens.ErrNotFound):
		logger.Infow("refresh token not found", "userId", claims.UserID, "deviceId", deviceID)
		return ErrTokenNotFound
	case errors.Is(err, refreshtokens.ErrCorruptRecord):
		return fmt.Errorf("%w: %w", ErrTokenNotFound, ErrCorruptRecord)
	case errors.Is(err, refreshtokens.ErrDeviceMismatch):
		metrics.DeviceBindingViolations.Inc()
		logger.Warnw("device binding violation, revoking all sessions", "userId", claims.UserID, "presentedDeviceId", deviceID)
		if _, rerr := s.revoker.RevokeUser(ctx, claims.UserID, claims.JTI, claims.ExpiresAt, TriggerDeviceBinding); rerr != nil {
			logger.Errorw("revocation after device binding violation failed", "userId", claims.UserID, "error", rerr)
		}
		return ErrDeviceBindingViolation
	default:
		return s.storeFailure(claims, err)
	}
}

func (s *Service) sessionFailure(claims *tokens.RefreshClaims, err error) error {
	switch {
	case errors.Is(err, sessions.ErrNotFound), errors.Is(err, sessions.ErrExpired):
		logger.Infow("session expired during refresh", "userId", claims.UserID, "deviceId", claims.DeviceID)
		return ErrSessionNotFound
	case errors.Is(err, sessions.ErrClockSkew):
		return ErrClockSkew
	default:
		return s.storeFailure(claims, err)
	}
}

// storeFailure logs an infrastructure error and fails closed.
func (s *Service) storeFailure(claims *tokens.RefreshClaims, err error) error {
	logger.Errorw("refresh store failure", "userId", claims.UserID, "deviceId", claims.DeviceID, "error", err)
	return fmt.Errorf("%w: %v", ErrTokenNotFound, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrDeviceBindingViolation):
		return "device_mismatch"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrClockSkew), errors.Is(err, ErrInvalidTTL):
		return "session_expired"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	default:
		return "error"
	}
}
