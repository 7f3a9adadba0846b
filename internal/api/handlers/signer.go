package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignerGuard decides whether a user may spend from a service-held account.
type SignerGuard interface {
	CanSign(email, account string) bool
}

// requireSigner writes a 403 unless the caller owns account.
func requireSigner(c *gin.Context, guard SignerGuard, logger *zap.Logger, account string) bool {
	email := getUserEmail(c)
	if guard.CanSign(email, account) {
		return true
	}
	logger.Warn("Signing account not owned by caller",
		zap.String("request_id", getRequestID(c)),
		zap.String("email", email),
		zap.String("account", account))
	SendForbidden(c, "account does not belong to the authenticated user")
	return false
}
