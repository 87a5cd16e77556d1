package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware verifies Bearer tokens with ver and rejects token ids found
// by revoked. revoked may be nil. Verified claims are stored under "claims".
func AuthMiddleware(ver Verifier, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			unauthorized(c, "Missing authorization header")
			return
		}
		raw, ok := BearerToken(auth)
		if !ok {
			unauthorized(c, "Invalid authorization header")
			return
		}

		tok, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Debugw("bearer token rejected", "error", err)
			unauthorized(c, "Invalid token")
			return
		}

		var claims map[string]interface{}
		if err := tok.Claims(&claims); err != nil {
			unauthorized(c, "Invalid token")
			return
		}

		if revoked != nil {
			jti, _ := claims["jti"].(string)
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), jti)
			if err != nil {
				logger.Errorw("revocation check failed", "error", err)
				unauthorized(c, "Invalid token")
				return
			}
			if isRevoked {
				unauthorized(c, "Token has been revoked")
				return
			}
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// ClaimString returns a string claim set by AuthMiddleware.
func ClaimString(c *gin.Context, name string) string {
	v, ok := c.Get("claims")
	if !ok {
		return ""
	}
	cm, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := cm[name].(string)
	return s
}
