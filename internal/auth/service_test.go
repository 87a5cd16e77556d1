package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/bazaar/bazaar/backend/identity/internal/audit"
	"github.com/bazaar/bazaar/backend/identity/internal/config"
	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/bazaar/bazaar/backend/identity/internal/models"
	"github.com/bazaar/bazaar/backend/identity/internal/refreshtokens"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/internal/tokens"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Record(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureRecorder) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) EnsureByPhone(_ context.Context, phone string) (*models.User, error) {
	if u, ok := f.users[phone]; ok {
		return u, nil
	}
	u := &models.User{ID: "user-" + phone, Phone: phone, UserType: models.UserTypeBuyer}
	f.users[phone] = u
	return u, nil
}

type harness struct {
	m         *mr.Miniredis
	sessions  *sessions.RedisStore
	refresh   *refreshtokens.RedisStore
	blacklist *sessions.Blacklist
	issuer    *tokens.Issuer
	svc       *Service
	audit     *captureRecorder
	users     *fakeUsers
	now       time.Time
}

func (h *harness) clock() time.Time { return h.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Defaults()
	cfg.JWT.Secret = "auth-test-secret-32-bytes-xxxxxxxxxx"

	h := &harness{
		m:     m,
		now:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		audit: &captureRecorder{},
		users: &fakeUsers{users: map[string]*models.User{}},
	}
	p := sessions.PolicyFromConfig(cfg.Session)
	h.sessions = sessions.NewRedisStore(client, p).WithClock(h.clock)
	h.refresh = refreshtokens.NewRedisStore(client, h.sessions, p, cfg.JWT.RefreshTokenTTL).WithClock(h.clock)
	h.blacklist = sessions.NewBlacklist(client)
	h.issuer = tokens.NewIssuer(cfg).WithClock(h.clock)
	h.svc = NewService(Deps{
		Sessions:  h.sessions,
		Refresh:   h.refresh,
		Issuer:    h.issuer,
		Blacklist: h.blacklist,
		Users:     h.users,
		Audit:     h.audit,
	}).WithClock(h.clock)
	return h
}

func phone() fingerprint.DeviceInfo {
	return fingerprint.DeviceInfo{Platform: "android", DeviceModel: "Pixel 8", Timezone: "Asia/Kolkata", AppVersion: "3.1.0"}
}

func tablet() fingerprint.DeviceInfo {
	return fingerprint.DeviceInfo{Platform: "ios", DeviceModel: "iPad13,4", Timezone: "Asia/Kolkata"}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tk, err := h.svc.Login(ctx, "u1", "buyer", phone(), "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, tk.AccessToken)
	require.NotEmpty(t, tk.RefreshToken)
	require.Equal(t, 3600, tk.ExpiresIn)
	require.Equal(t, fingerprint.Generate(phone()), tk.DeviceID)

	ok, err := h.sessions.Verify(ctx, "u1", tk.DeviceID, tk.SessionID)
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := h.issuer.ParseRefresh(tk.RefreshToken)
	require.NoError(t, err)
	require.True(t, h.m.Exists("refresh_token:u1:"+rc.JTI))
	require.Equal(t, []string{audit.SessionCreated}, h.audit.types())
}

// Scenario A
func TestRefresh_SameDeviceReturnsAccessTokenOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "buyer", phone(), "")
	require.NoError(t, err)

	// app version and IP are not part of a native fingerprint
	info := phone()
	info.AppVersion = "3.2.0"
	h.now = h.now.Add(10 * time.Minute)
	tk, err := h.svc.Refresh(ctx, login.RefreshToken, info, "192.168.1.9")
	require.NoError(t, err)
	require.NotEmpty(t, tk.AccessToken)
	require.Empty(t, tk.RefreshToken)
	require.Equal(t, 3600, tk.ExpiresIn)
	require.False(t, tk.Migrated)

	ac, err := h.issuer.ParseAccess(tk.AccessToken)
	require.NoError(t, err)
	require.Equal(t, login.SessionID, ac.SessionID)
	require.Equal(t, "buyer", ac.UserType)

	s, err := h.sessions.Get(ctx, "u1", login.DeviceID)
	require.NoError(t, err)
	require.True(t, s.LastActivity.Equal(h.now))
}

func TestRefresh_TouchIsThrottled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)
	created := h.now

	h.now = h.now.Add(time.Minute)
	_, err = h.svc.Refresh(ctx, login.RefreshToken, phone(), "")
	require.NoError(t, err)
	h.now = h.now.Add(time.Minute)
	_, err = h.svc.Refresh(ctx, login.RefreshToken, phone(), "")
	require.NoError(t, err)

	s, err := h.sessions.Get(ctx, "u1", login.DeviceID)
	require.NoError(t, err)
	require.True(t, s.LastActivity.Equal(created))
}

// Scenario B
func TestRefresh_MigrationOnFingerprintChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "seller", phone(), "")
	require.NoError(t, err)

	h.now = h.now.Add(20 * day)
	upgraded := phone()
	upgraded.DeviceModel = "Pixel 9"
	tk, err := h.svc.Refresh(ctx, login.RefreshToken, upgraded, "")
	require.NoError(t, err)
	require.True(t, tk.Migrated)
	require.NotEmpty(t, tk.AccessToken)
	require.NotEmpty(t, tk.RefreshToken)
	require.Equal(t, 3600, tk.ExpiresIn)
	require.Equal(t, fingerprint.Generate(upgraded), tk.DeviceID)
	require.NotEqual(t, login.SessionID, tk.SessionID)

	// old session gone, new one live
	ok, err := h.sessions.Verify(ctx, "u1", login.DeviceID, login.SessionID)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = h.sessions.Verify(ctx, "u1", tk.DeviceID, tk.SessionID)
	require.NoError(t, err)
	require.True(t, ok)

	// the new session starts a fresh absolute lifetime
	s, err := h.sessions.Get(ctx, "u1", tk.DeviceID)
	require.NoError(t, err)
	require.WithinDuration(t, h.now, s.CreatedAt, time.Second)

	rc, err := h.issuer.ParseRefresh(tk.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, tk.DeviceID, rc.DeviceID)
	require.Equal(t, "seller", rc.UserType)

	// the old refresh token is dead from either fingerprint
	_, err = h.svc.Refresh(ctx, login.RefreshToken, upgraded, "")
	require.ErrorIs(t, err, ErrTokenNotFound)
	_, err = h.svc.Refresh(ctx, login.RefreshToken, phone(), "")
	require.ErrorIs(t, err, ErrTokenNotFound)

	// the new one works
	again, err := h.svc.Refresh(ctx, tk.RefreshToken, upgraded, "")
	require.NoError(t, err)
	require.Empty(t, again.RefreshToken)

	require.Contains(t, h.audit.types(), audit.SessionMigrated)
}

func TestRefresh_MigrationAfterLogoutAllFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)

	_, err = h.svc.Revoker().LogoutAll(ctx, login.AccessToken)
	require.NoError(t, err)

	_, err = h.svc.Refresh(ctx, login.RefreshToken, tablet(), "")
	require.ErrorIs(t, err, ErrTokenNotFound)
	keys := h.m.Keys()
	for _, k := range keys {
		require.NotContains(t, k, "device_session:u1:")
	}
}

// Scenario C
func TestLogoutAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)

	n, err := h.svc.Revoker().LogoutAll(ctx, login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, 3, n) // device session, lookup, refresh record

	_, err = h.svc.Refresh(ctx, login.RefreshToken, phone(), "")
	require.Error(t, err)
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(err))

	ac, err := h.issuer.ParseAccess(login.AccessToken)
	require.NoError(t, err)
	revoked, err := h.blacklist.IsRevoked(ctx, ac.JTI)
	require.NoError(t, err)
	require.True(t, revoked)
	require.Equal(t, time.Hour, h.m.TTL("blacklist:access:"+ac.JTI))

	require.Contains(t, h.audit.types(), audit.LogoutAll)
}

func TestLogoutAll_RejectsRefreshToken(t *testing.T) {
	h := newHarness(t)
	login, err := h.svc.Login(context.Background(), "u1", "", phone(), "")
	require.NoError(t, err)

	_, err = h.svc.Revoker().LogoutAll(context.Background(), login.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// Scenario D
func TestTwoDevicesLogoutAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)
	b, err := h.svc.Login(ctx, "u1", "", tablet(), "")
	require.NoError(t, err)
	require.NotEqual(t, a.DeviceID, b.DeviceID)

	for _, tk := range []*Tokens{a, b} {
		ok, err := h.sessions.Verify(ctx, "u1", tk.DeviceID, tk.SessionID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err = h.svc.Revoker().LogoutAll(ctx, a.AccessToken)
	require.NoError(t, err)

	_, err = h.svc.Refresh(ctx, a.RefreshToken, phone(), "")
	require.Error(t, err)
	_, err = h.svc.Refresh(ctx, b.RefreshToken, tablet(), "")
	require.Error(t, err)
}

func TestRefresh_DeviceBindingViolationRevokesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)
	b, err := h.svc.Login(ctx, "u1", "", tablet(), "")
	require.NoError(t, err)

	// rebind a's record to some other device
	rc, err := h.issuer.ParseRefresh(a.RefreshToken)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]interface{}{
		"deviceId":  "dev_00000000000000000000000000000000",
		"sessionId": a.SessionID,
		"createdAt": h.now,
	})
	require.NoError(t, err)
	require.NoError(t, h.m.Set("refresh_token:u1:"+rc.JTI, string(raw)))

	_, err = h.svc.Refresh(ctx, a.RefreshToken, phone(), "")
	require.ErrorIs(t, err, ErrDeviceBindingViolation)
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(err))

	// every other token of the user is dead too
	_, err = h.svc.Refresh(ctx, b.RefreshToken, tablet(), "")
	require.ErrorIs(t, err, ErrTokenNotFound)

	revoked, err := h.blacklist.IsRevoked(ctx, rc.JTI)
	require.NoError(t, err)
	require.True(t, revoked)
	require.Contains(t, h.audit.types(), audit.DeviceBindingViolation)
}

func TestRefresh_InvalidToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Refresh(ctx, "garbage", phone(), "")
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(err))

	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)
	_, err = h.svc.Refresh(ctx, login.AccessToken, phone(), "")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_SessionGoneButRecordLive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)

	require.NoError(t, h.sessions.InvalidateOne(ctx, login.SessionID))

	_, err = h.svc.Refresh(ctx, login.RefreshToken, phone(), "")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Equal(t, MsgSessionExpired, ClientMessage(err))
}

func TestRefresh_ExhaustedSessionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)

	// keep the session alive with activity well past the refresh token's own
	// lifetime, then present a fresh refresh token minted for the same session
	for i := 0; i < 4; i++ {
		h.now = h.now.Add(20 * day)
		_, err := h.sessions.Touch(ctx, "u1", login.DeviceID)
		require.NoError(t, err)
	}
	h.now = h.now.Add(11 * day) // 91 days
	late, err := h.issuer.GenerateRefreshToken("u1", "", login.SessionID, login.DeviceID)
	require.NoError(t, err)
	rc, _ := h.issuer.ParseRefresh(late.Token)
	raw, _ := json.Marshal(map[string]interface{}{"deviceId": login.DeviceID, "sessionId": login.SessionID, "createdAt": h.now})
	require.NoError(t, h.m.Set("refresh_token:u1:"+rc.JTI, string(raw)))

	_, err = h.svc.Refresh(ctx, late.Token, phone(), "")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.False(t, h.m.Exists("device_session:u1:"+login.DeviceID))
}

func TestRefresh_StoreFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	login, err := h.svc.Login(ctx, "u1", "", phone(), "")
	require.NoError(t, err)

	h.m.SetError("server unavailable")
	defer h.m.SetError("")

	_, err = h.svc.Refresh(ctx, login.RefreshToken, phone(), "")
	require.ErrorIs(t, err, ErrTokenNotFound)
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(err))
}

func TestCompleteVerification_IncompleteProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.svc.CompleteVerification(ctx, "+919800000000", phone(), "")
	require.NoError(t, err)
	require.Nil(t, v.Tokens)
	require.NotEmpty(t, v.RegistrationToken)
	require.Equal(t, 300, v.ExpiresIn)

	c, err := h.svc.ConsumeRegistration(ctx, v.RegistrationToken)
	require.NoError(t, err)
	require.Equal(t, "+919800000000", c.Phone)
	require.Equal(t, v.User.ID, c.UserID)

	_, err = h.svc.ConsumeRegistration(ctx, v.RegistrationToken)
	require.ErrorIs(t, err, ErrRegistrationUsed)

	// no session is created for an incomplete profile
	for _, k := range h.m.Keys() {
		require.NotContains(t, k, "device_session:")
	}
}

func TestCompleteVerification_CompleteProfile(t *testing.T) {
	h := newHarness(t)
	h.users.users["+15550100"] = &models.User{ID: "u-done", Phone: "+15550100", UserType: models.UserTypeSeller, ProfileComplete: true}

	v, err := h.svc.CompleteVerification(context.Background(), "+15550100", tablet(), "")
	require.NoError(t, err)
	require.NotNil(t, v.Tokens)
	require.Empty(t, v.RegistrationToken)

	ac, err := h.issuer.ParseAccess(v.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u-done", ac.UserID)
	require.Equal(t, models.UserTypeSeller, ac.UserType)
}

func TestConsumeRegistration_RejectsOtherTokens(t *testing.T) {
	h := newHarness(t)
	login, err := h.svc.Login(context.Background(), "u1", "", phone(), "")
	require.NoError(t, err)

	_, err = h.svc.ConsumeRegistration(context.Background(), login.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestClientMessage(t *testing.T) {
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(ErrTokenNotFound))
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(ErrDeviceBindingViolation))
	require.Equal(t, MsgInvalidRefreshToken, ClientMessage(errors.New("boom")))
	require.Equal(t, MsgSessionExpired, ClientMessage(ErrSessionNotFound))
	require.Equal(t, MsgSessionExpired, ClientMessage(ErrClockSkew))
}
