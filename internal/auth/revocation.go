package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/audit"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/internal/tokens"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/bazaar/bazaar/backend/identity/pkg/metrics"
)

// Revocation triggers, used as metric labels.
const (
	TriggerLogoutAll     = "logout_all"
	TriggerDeviceBinding = "device_binding_violation"
	TriggerAdmin         = "admin"
)

// Revoker tears down every session a user holds.
type Revoker struct {
	sessions  sessions.Store
	refresh   RefreshStore
	issuer    *tokens.Issuer
	blacklist Blacklist
	audit     audit.Recorder
	now       func() time.Time
}

func NewRevoker(s sessions.Store, r RefreshStore, issuer *tokens.Issuer, bl Blacklist, rec audit.Recorder) *Revoker {
	if rec == nil {
		rec = audit.NopRecorder{}
	}
	return &Revoker{sessions: s, refresh: r, issuer: issuer, blacklist: bl, audit: rec, now: time.Now}
}

// LogoutAll revokes every session of the bearer's user and blacklists the
// bearer's own token until it expires.
func (r *Revoker) LogoutAll(ctx context.Context, bearer string) (int, error) {
	claims, err := r.issuer.ParseAccess(bearer)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	n, err := r.RevokeUser(ctx, claims.UserID, claims.JTI, claims.ExpiresAt, TriggerLogoutAll)
	if err != nil {
		return n, err
	}
	logger.Infow("logged out of all devices", "userId", claims.UserID, "deviceId", claims.DeviceID, "keys", n)
	return n, nil
}

// RevokeUser deletes all sessions and refresh records of userID. When jti is
// set it is blacklisted until exp. Returns the number of keys removed.
func (r *Revoker) RevokeUser(ctx context.Context, userID, jti string, exp time.Time, trigger string) (int, error) {
	n, err := r.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("invalidate sessions: %w", err)
	}
	m, err := r.refresh.RevokeAll(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if jti != "" && r.blacklist != nil {
		if err := r.blacklist.Revoke(ctx, jti, exp.Sub(r.now())); err != nil {
			return n + m, fmt.Errorf("blacklist token: %w", err)
		}
	}
	metrics.RevocationsTotal.WithLabelValues(trigger).Inc()

	eventType := audit.LogoutAll
	if trigger == TriggerDeviceBinding {
		eventType = audit.DeviceBindingViolation
	}
	r.audit.Record(ctx, audit.Event{
		Type:    eventType,
		UserID:  userID,
		Details: map[string]string{"trigger": trigger, "keysRemoved": fmt.Sprint(n + m)},
	})
	return n + m, nil
}
