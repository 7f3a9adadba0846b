package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

// RPCForwarder relays raw JSON-RPC bodies to a network's node.
type RPCForwarder interface {
	ForwardRPC(ctx context.Context, chainID int64, body []byte) ([]byte, error)
}

// RPCHandlers proxies wallet JSON-RPC traffic so browsers never talk to the node directly.
type RPCHandlers struct {
	forwarder RPCForwarder
	logger    *zap.Logger
}

func NewRPCHandlers(forwarder RPCForwarder, logger *zap.Logger) *RPCHandlers {
	return &RPCHandlers{forwarder: forwarder, logger: logger}
}

// Proxy
// @Summary JSON-RPC proxy
// @Tags rpc
// @Accept json
// @Produce json
// @Param chainId path int true "Chain ID"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} entities.ProxyErrorResponse
// @Router /api/v1/rpc/{chainId} [post]
func (h *RPCHandlers) Proxy(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	resp, err := h.forwarder.ForwardRPC(c.Request.Context(), chainID, body)
	if err != nil {
		h.logger.Error("RPC proxy error",
			zap.Int64("chain_id", chainID),
			zap.String("request_id", getRequestID(c)),
			zap.Error(err))
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

func (h *RPCHandlers) fail(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, entities.ProxyErrorResponse{
		Error:     "Proxy request failed",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
}
