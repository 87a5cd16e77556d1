package handlers

import (
	"context"
	"net/http"

	"github.com/bazaar/bazaar/backend/identity/internal/models"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/bazaar/bazaar/backend/identity/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// UserLookup is satisfied by users.Service.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Me returns the caller's account, or the verified claims when no user
// directory is configured. Must run behind AuthMiddleware.
func Me(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := c.Get("claims")
		if users != nil {
			u, err := users.GetByID(c.Request.Context(), middleware.ClaimString(c, "sub"))
			if err != nil {
				logger.Errorw("user lookup failed", "userId", middleware.ClaimString(c, "sub"), "error", err)
			} else if u != nil {
				c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "claims": claims})
	}
}
