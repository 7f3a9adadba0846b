package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/pkg/crypto"
)

const sessionCacheTTL = time.Minute

// SessionChecker confirms the token carried in ctx with the backend.
type SessionChecker interface {
	Ping(ctx context.Context) (*backend.MessageResponse, error)
}

// SessionCache remembers recently confirmed tokens.
type SessionCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// RequireSession guards routes that sign transactions with service-held keys.
// Token claims are never trusted on their own here: the backend must accept
// the token before the request proceeds. Must run after RequireBearer.
func RequireSession(checker SessionChecker, cache SessionCache, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token := backend.TokenFromContext(ctx)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":       "UNAUTHORIZED",
				"message":    "authorization token required",
				"request_id": c.GetString("request_id"),
			})
			return
		}

		key := "session:" + crypto.SHA256Hex([]byte(token))
		var confirmed bool
		if cache != nil && cache.Get(ctx, key, &confirmed) == nil && confirmed {
			c.Next()
			return
		}

		if _, err := checker.Ping(ctx); err != nil {
			if apiErr, ok := backend.AsAPIError(err); ok && !apiErr.IsRetryable() {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code":       "INVALID_SESSION",
					"message":    "Session is not valid",
					"request_id": c.GetString("request_id"),
				})
				return
			}
			log.Warn("Session check unavailable", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":       "SERVICE_UNAVAILABLE",
				"message":    "Unable to verify session",
				"request_id": c.GetString("request_id"),
			})
			return
		}

		if cache != nil {
			if err := cache.Set(ctx, key, true, sessionCacheTTL); err != nil {
				log.Debug("Failed to cache session", zap.Error(err))
			}
		}
		c.Next()
	}
}
