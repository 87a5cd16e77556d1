package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/config"
	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer mints and parses HS256 tokens.
type Issuer struct {
	secret          []byte
	issuer          string
	audience        string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	registrationTTL time.Duration
	now             func() time.Time
}

// Minted is a signed token plus the values callers need to store or return.
type Minted struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

func NewIssuer(cfg *config.Config) *Issuer {
	return &Issuer{
		secret:          []byte(cfg.JWT.Secret),
		issuer:          cfg.JWT.Issuer,
		audience:        cfg.JWT.Audience,
		accessTTL:       cfg.JWT.AccessTokenTTL,
		refreshTTL:      cfg.JWT.RefreshTokenTTL,
		registrationTTL: cfg.JWT.RegistrationTokenTTL,
		now:             time.Now,
	}
}

// WithClock replaces the time source for minting and expiry checks.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// GenerateAccessToken mints a short-lived token bound to a session and device.
func (i *Issuer) GenerateAccessToken(userID, userType, sessionID, deviceID string) (*Minted, error) {
	return i.sign(wireClaims{
		Type:      TypeAccess,
		SessionID: sessionID,
		DeviceID:  deviceID,
		UserType:  userType,
	}, userID, i.accessTTL)
}

// GenerateRefreshToken mints a long-lived token bound to a session and device.
func (i *Issuer) GenerateRefreshToken(userID, userType, sessionID, deviceID string) (*Minted, error) {
	return i.sign(wireClaims{
		Type:      TypeRefresh,
		SessionID: sessionID,
		DeviceID:  deviceID,
		UserType:  userType,
	}, userID, i.refreshTTL)
}

// GenerateRegistrationToken mints the token handed out after phone
// verification for users with an incomplete profile.
func (i *Issuer) GenerateRegistrationToken(userID, phone string) (*Minted, error) {
	return i.sign(wireClaims{Type: TypeRegistration, Phone: phone}, userID, i.registrationTTL)
}

func (i *Issuer) sign(c wireClaims, userID string, ttl time.Duration) (*Minted, error) {
	if len(i.secret) == 0 {
		return nil, ErrNoSecret
	}
	jti, err := fingerprint.NewTokenID()
	if err != nil {
		return nil, fmt.Errorf("token id: %w", err)
	}
	now := i.now()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Minted{Token: signed, JTI: jti, ExpiresAt: exp}, nil
}

// Parse verifies signature, algorithm, issuer, audience and expiry and
// decodes the payload into its variant.
func (i *Issuer) Parse(raw string) (Claims, error) {
	var w wireClaims
	_, err := jwt.ParseWithClaims(raw, &w, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	c, err := decode(&w)
	if err != nil {
		if errors.Is(err, ErrWrongType) {
			return nil, fmt.Errorf("%w: unknown type %q", ErrWrongType, w.Type)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return c, nil
}

func (i *Issuer) ParseAccess(raw string) (*AccessClaims, error) {
	c, err := i.Parse(raw)
	if err != nil {
		return nil, err
	}
	ac, ok := c.(*AccessClaims)
	if !ok {
		return nil, fmt.Errorf("%w: want access, got %s", ErrWrongType, c.Kind())
	}
	return ac, nil
}

func (i *Issuer) ParseRefresh(raw string) (*RefreshClaims, error) {
	c, err := i.Parse(raw)
	if err != nil {
		return nil, err
	}
	rc, ok := c.(*RefreshClaims)
	if !ok {
		return nil, fmt.Errorf("%w: want refresh, got %s", ErrWrongType, c.Kind())
	}
	return rc, nil
}

func (i *Issuer) ParseRegistration(raw string) (*RegistrationClaims, error) {
	c, err := i.Parse(raw)
	if err != nil {
		return nil, err
	}
	rc, ok := c.(*RegistrationClaims)
	if !ok {
		return nil, fmt.Errorf("%w: want registration, got %s", ErrWrongType, c.Kind())
	}
	return rc, nil
}
