package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// getUserEmail returns the caller's email taken from the bearer token, if any.
func getUserEmail(c *gin.Context) string {
	return c.GetString("user_email")
}

// parseChainID reads the :chainId path parameter, writing a 400 on failure.
func parseChainID(c *gin.Context) (int64, bool) {
	chainID, err := strconv.ParseInt(c.Param("chainId"), 10, 64)
	if err != nil || chainID <= 0 {
		SendBadRequest(c, ErrCodeInvalidChain, "chainId must be a positive integer")
		return 0, false
	}
	return chainID, true
}

// parseBoolParam parses a query parameter to bool with default value
func parseBoolParam(c *gin.Context, param string, defaultVal bool) bool {
	if val := c.Query(param); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

// bindJSON binds the request body, writing a 400 with the binding error on failure.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest, map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return true
}
