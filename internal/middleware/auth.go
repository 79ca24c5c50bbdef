// Package middleware implements the gin HTTP middleware guarding the
// control-plane API, generalized from the teacher's multi-role
// middleware/rbac.go down to this system's single-operator-account model:
// there is exactly one account and one set of permissions, so there is
// nothing left to distinguish by role.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alarm-gateway/internal/auth"
	"alarm-gateway/pkg/response"
)

const contextUsernameKey = "username"

// RequireAuth parses a "Bearer <token>" Authorization header and verifies
// it against svc, aborting the request with 401 on any failure.
func RequireAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, "authorization header required")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			response.Error(c, http.StatusUnauthorized, "invalid authorization header format")
			c.Abort()
			return
		}
		username, err := svc.Verify(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(contextUsernameKey, username)
		c.Next()
	}
}
