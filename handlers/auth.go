package handlers

import (
	"errors"
	"net/http"

	"github.com/bazaar/bazaar/backend/identity/internal/auth"
	"github.com/bazaar/bazaar/backend/identity/internal/fingerprint"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/bazaar/bazaar/backend/identity/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves the token endpoints.
type AuthHandler struct {
	svc     *auth.Service
	revoker *auth.Revoker
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc, revoker: svc.Revoker()}
}

// Register routes under /auth. bearer guards logout; limiters run first on
// every route.
func (h *AuthHandler) Register(rg *gin.RouterGroup, bearer gin.HandlerFunc, limiters ...gin.HandlerFunc) {
	a := rg.Group("/auth", limiters...)
	a.POST("/refresh-token", h.RefreshToken)
	a.POST("/logout-all-devices", bearer, h.LogoutAllDevices)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

// RefreshToken exchanges a refresh token for a new access token. The refresh
// token is returned too when the session moved to a new device fingerprint.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "refreshToken is required")
		return
	}
	info, ip := fingerprint.FromRequest(c.Request)
	t, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken, info, ip)
	if err != nil {
		logger.Debugw("refresh rejected", "ip", ip, "error", err)
		fail(c, http.StatusUnauthorized, auth.ClientMessage(err))
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		Success:      true,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
	})
}

// LogoutAllDevices revokes every session of the bearer's user.
func (h *AuthHandler) LogoutAllDevices(c *gin.Context) {
	raw, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		fail(c, http.StatusUnauthorized, auth.MsgInvalidToken)
		return
	}
	if _, err := h.revoker.LogoutAll(c.Request.Context(), raw); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			fail(c, http.StatusUnauthorized, auth.MsgInvalidToken)
			return
		}
		logger.Errorw("logout all devices failed", "userId", middleware.ClaimString(c, "sub"), "error", err)
		fail(c, http.StatusInternalServerError, "Could not log out of all devices")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out from all devices"})
}
