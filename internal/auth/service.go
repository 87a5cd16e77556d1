package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/audit"
	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/bazaar/bazaar/backend/identity/internal/models"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/internal/tokens"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
)

// RefreshStore is the refresh-token persistence the flows depend on.
type RefreshStore interface {
	Store(ctx context.Context, userID, token, deviceID, sessionID, jti string) (bool, error)
	Verify(ctx context.Context, userID, jti, deviceID string) (string, error)
	Revoke(ctx context.Context, userID, jti string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Blacklist records revoked and consumed token ids.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// UserDirectory resolves verified phone numbers to accounts.
type UserDirectory interface {
	EnsureByPhone(ctx context.Context, phone string) (*models.User, error)
}

// Deps wires a Service. Users and Audit may be nil.
type Deps struct {
	Sessions  sessions.Store
	Refresh   RefreshStore
	Issuer    *tokens.Issuer
	Blacklist Blacklist
	Users     UserDirectory
	Audit     audit.Recorder
}

// Service runs login, refresh and registration flows.
type Service struct {
	sessions  sessions.Store
	refresh   RefreshStore
	issuer    *tokens.Issuer
	blacklist Blacklist
	users     UserDirectory
	audit     audit.Recorder
	revoker   *Revoker
	now       func() time.Time
}

func NewService(d Deps) *Service {
	rec := d.Audit
	if rec == nil {
		rec = audit.NopRecorder{}
	}
	s := &Service{
		sessions:  d.Sessions,
		refresh:   d.Refresh,
		issuer:    d.Issuer,
		blacklist: d.Blacklist,
		users:     d.Users,
		audit:     rec,
		now:       time.Now,
	}
	s.revoker = NewRevoker(d.Sessions, d.Refresh, d.Issuer, d.Blacklist, rec)
	return s
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.revoker.now = now
	return s
}

// Revoker returns the revocation service sharing this Service's stores.
func (s *Service) Revoker() *Revoker { return s.revoker }

// Tokens is what a client receives after login, refresh or migration.
type Tokens struct {
	AccessToken  string
	RefreshToken string // empty on a same-device refresh
	ExpiresIn    int    // access token lifetime in seconds
	SessionID    string
	DeviceID     string
	Migrated     bool
}

// Login starts a session for userID on the device described by info and
// mints an access and refresh token bound to it.
func (s *Service) Login(ctx context.Context, userID, userType string, info fingerprint.DeviceInfo, ip string) (*Tokens, error) {
	deviceID := fingerprint.Generate(info)
	t, err := s.startSession(ctx, userID, userType, deviceID, info, ip)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Event{
		Type:      audit.SessionCreated,
		UserID:    userID,
		DeviceID:  deviceID,
		SessionID: t.SessionID,
		IPAddress: ip,
		Details:   map[string]string{"platform": info.Platform},
	})
	return t, nil
}

// startSession writes a new session for (userID, deviceID) and the refresh
// record of the tokens minted for it.
func (s *Service) startSession(ctx context.Context, userID, userType, deviceID string, info fingerprint.DeviceInfo, ip string) (*Tokens, error) {
	sessionID := fingerprint.NewSessionID()
	if _, err := s.sessions.Store(ctx, userID, deviceID, sessionID, info, ip); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	access, err := s.issuer.GenerateAccessToken(userID, userType, sessionID, deviceID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.GenerateRefreshToken(userID, userType, sessionID, deviceID)
	if err != nil {
		return nil, err
	}
	stored, err := s.refresh.Store(ctx, userID, refresh.Token, deviceID, sessionID, refresh.JTI)
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	if !stored {
		return nil, ErrInvalidTTL
	}
	return &Tokens{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresIn:    int(s.issuer.AccessTTL().Seconds()),
		SessionID:    sessionID,
		DeviceID:     deviceID,
	}, nil
}

// Verification is the outcome of a confirmed phone verification: either a
// registration token for an incomplete profile or a full token pair.
type Verification struct {
	User              *models.User
	RegistrationToken string
	ExpiresIn         int
	Tokens            *Tokens
}

// CompleteVerification is called once the phone's one-time code has been
// confirmed.
func (s *Service) CompleteVerification(ctx context.Context, phone string, info fingerprint.DeviceInfo, ip string) (*Verification, error) {
	if s.users == nil {
		return nil, errors.New("user directory not configured")
	}
	u, err := s.users.EnsureByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if !u.ProfileComplete {
		reg, err := s.issuer.GenerateRegistrationToken(u.ID, u.Phone)
		if err != nil {
			return nil, err
		}
		return &Verification{
			User:              u,
			RegistrationToken: reg.Token,
			ExpiresIn:         int(reg.ExpiresAt.Sub(s.now()).Seconds()),
		}, nil
	}
	t, err := s.Login(ctx, u.ID, u.UserType, info, ip)
	if err != nil {
		return nil, err
	}
	return &Verification{User: u, Tokens: t, ExpiresIn: t.ExpiresIn}, nil
}

// ConsumeRegistration validates a registration token and marks it used. A
// token authorises exactly one call.
func (s *Service) ConsumeRegistration(ctx context.Context, raw string) (*tokens.RegistrationClaims, error) {
	c, err := s.issuer.ParseRegistration(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	first, err := s.blacklist.Claim(ctx, c.JTI, c.ExpiresAt.Sub(s.now()))
	if err != nil {
		logger.Errorw("registration token claim failed", "userId", c.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTokenNotFound, err)
	}
	if !first {
		logger.Warnw("registration token replayed", "userId", c.UserID, "jti", c.JTI)
		return nil, ErrRegistrationUsed
	}
	return c, nil
}

// sessionAgeDays is used in security log lines.
func sessionAgeDays(s *sessions.Session, now time.Time) int {
	if s == nil {
		return -1
	}
	return int(s.Age(now).Hours() / 24)
}
