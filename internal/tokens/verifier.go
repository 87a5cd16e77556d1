package tokens

import (
	"context"
	"encoding/json"

	"github.com/bazaar/bazaar/backend/identity/pkg/middleware"
)

// Verifier returns an adapter that lets the bearer middleware accept access
// tokens minted by this issuer.
func (i *Issuer) Verifier() middleware.Verifier {
	return accessVerifier{issuer: i}
}

type accessVerifier struct {
	issuer *Issuer
}

func (v accessVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	c, err := v.issuer.ParseAccess(raw)
	if err != nil {
		return nil, err
	}
	return verifiedToken{claims: c}, nil
}

type verifiedToken struct {
	claims *AccessClaims
}

// Claims copies the access claims into v through their JSON form.
func (t verifiedToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
