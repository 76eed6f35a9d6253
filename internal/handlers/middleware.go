package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"verilotto/internal/auth"
	"verilotto/internal/models"
)

const callerKey = "caller"

// TokenVerifier resolves a bearer token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (models.Address, error)
}

// AuthMiddleware identifies the caller from the Authorization header and
// rejects the request with 401 when it cannot.
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortUnauthenticated(c, err)
			return
		}
		addr, err := h.tokens.Verify(token)
		if err != nil {
			logger.Warningf("rejected bearer token on %s %s: %v", c.Request.Method, c.FullPath(), err)
			abortUnauthenticated(c, auth.ErrInvalidToken)
			return
		}
		c.Set(callerKey, addr)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
		Code:    models.CodeUnauthorized,
		Message: err.Error(),
	})
}

// caller returns the identity set by AuthMiddleware, or "" when absent.
func caller(c *gin.Context) models.Address {
	if v, ok := c.Get(callerKey); ok {
		if addr, ok := v.(models.Address); ok {
			return addr
		}
	}
	return ""
}
