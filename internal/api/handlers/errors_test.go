package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"reconciliation", apperrors.ReconciliationError("invoice", "inv-1", "0x1", nil), http.StatusAccepted},
		{"validation", apperrors.ValidationError("amount", "must be positive"), http.StatusBadRequest},
		{"unresolved recipient", apperrors.UnresolvedRecipientError("@x"), http.StatusBadRequest},
		{"unsupported network", apperrors.UnsupportedNetworkError(7), http.StatusBadRequest},
		{"unauthorized", apperrors.UnauthorizedError("no"), http.StatusUnauthorized},
		{"not found", apperrors.NotFoundError("INVOICE"), http.StatusNotFound},
		{"conflict", apperrors.ConflictError("invoice", "paid"), http.StatusConflict},
		{"invalid state", apperrors.InvalidStateError("0x1", "claimed"), http.StatusConflict},
		{"insufficient funds", apperrors.InsufficientFundsError("1", "2", "KAIA"), http.StatusUnprocessableEntity},
		{"rejected", apperrors.SubmissionRejectedError("nonce too low", nil), http.StatusUnprocessableEntity},
		{"reverted", apperrors.ConfirmationError("0x1", "reverted"), http.StatusUnprocessableEntity},
		{"ledger read", apperrors.LedgerReadError(1001, errors.New("eof")), http.StatusServiceUnavailable},
		{"unavailable", apperrors.ServiceUnavailableError("backend", errors.New("eof")), http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("waiting: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"wrapped", fmt.Errorf("pay: %w", apperrors.NotFoundError("INVOICE")), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func errorRouter(send func(c *gin.Context)) *gin.Engine {
	r := gin.New()
	r.GET("/", send)
	return r
}

func TestSendDomainError_HidesInternals(t *testing.T) {
	r := errorRouter(func(c *gin.Context) {
		SendDomainError(c, zap.NewNop(), errors.New("pq: password authentication failed"))
	})

	w := doRequest(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, ErrCodeInternalError, resp.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestSendDomainError_Timeout(t *testing.T) {
	r := errorRouter(func(c *gin.Context) {
		SendDomainError(c, zap.NewNop(), context.DeadlineExceeded)
	})

	w := doRequest(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "TIMEOUT", decodeError(t, w).Code)
}

func TestSendBackendError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"not found", &backend.APIError{StatusCode: 404, Message: "Invoice not found"}, http.StatusNotFound, ErrCodeNotFound},
		{"unauthorized", &backend.APIError{StatusCode: 401, Message: "jwt expired"}, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"conflict", &backend.APIError{StatusCode: 409, Message: "exists"}, http.StatusConflict, ErrCodeConflict},
		{"bad request", &backend.APIError{StatusCode: 400, Message: "amount required"}, http.StatusBadRequest, ErrCodeBackendError},
		{"rate limited", &backend.APIError{StatusCode: 429}, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"server error", &backend.APIError{StatusCode: 500}, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"transport", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"domain", apperrors.ValidationError("email", "bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := errorRouter(func(c *gin.Context) { SendBackendError(c, zap.NewNop(), tt.err) })
			w := doRequest(r, http.MethodGet, "/", nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}
