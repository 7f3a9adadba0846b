package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeInvalidID          = "INVALID_ID"
	ErrCodeInvalidChain       = "INVALID_CHAIN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeProxyFailed        = "RPC_PROXY_FAILED"
	ErrCodeBackendError       = "BACKEND_ERROR"
)

const (
	MsgInvalidRequest     = "Invalid request payload"
	MsgUnauthorized       = "Authentication required"
	MsgInternalError      = "Internal server error"
	MsgServiceUnavailable = "Service temporarily unavailable"
)

// ErrorResponseBuilder provides a fluent interface for building error responses
type ErrorResponseBuilder struct {
	status  int
	code    string
	message string
	details map[string]interface{}
}

// NewError creates a new ErrorResponseBuilder
func NewError(status int, code string) *ErrorResponseBuilder {
	return &ErrorResponseBuilder{
		status: status,
		code:   code,
	}
}

func (e *ErrorResponseBuilder) Message(msg string) *ErrorResponseBuilder {
	e.message = msg
	return e
}

// Detail adds a single detail to the error response
func (e *ErrorResponseBuilder) Detail(key string, value interface{}) *ErrorResponseBuilder {
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
	return e
}

func (e *ErrorResponseBuilder) Details(details map[string]interface{}) *ErrorResponseBuilder {
	e.details = details
	return e
}

// Send writes the error response and stops the handler chain
func (e *ErrorResponseBuilder) Send(c *gin.Context) {
	c.AbortWithStatusJSON(e.status, entities.ErrorResponse{
		Code:    e.code,
		Message: e.message,
		Details: e.details,
	})
}

// SendBadRequest sends a 400 Bad Request error
func SendBadRequest(c *gin.Context, code, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	NewError(http.StatusBadRequest, code).Message(message).Details(det).Send(c)
}

// SendInvalidField sends an error for a specific invalid field
func SendInvalidField(c *gin.Context, field, message string) {
	NewError(http.StatusBadRequest, ErrCodeValidationError).Message(message).Detail("field", field).Send(c)
}

// SendUnauthorized sends a 401 Unauthorized error
func SendUnauthorized(c *gin.Context, message string) {
	NewError(http.StatusUnauthorized, ErrCodeUnauthorized).Message(message).Send(c)
}

// SendForbidden sends a 403 Forbidden error
func SendForbidden(c *gin.Context, message string) {
	NewError(http.StatusForbidden, ErrCodeForbidden).Message(message).Send(c)
}

func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendAccepted is used for actions whose on-chain outcome is still pending.
func SendAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

func SendNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// StatusFor maps a domain error to the HTTP status the API reports for it.
func StatusFor(err error) int {
	switch {
	case apperrors.IsReconciliation(err):
		// the payment went through; only the record is behind
		return http.StatusAccepted
	case apperrors.IsInvalidInput(err), apperrors.IsUnresolvedRecipient(err):
		return http.StatusBadRequest
	case apperrors.IsUnsupportedNetwork(err):
		return http.StatusBadRequest
	case apperrors.IsUnauthorized(err):
		return http.StatusUnauthorized
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsConflict(err), apperrors.IsInvalidState(err):
		return http.StatusConflict
	case apperrors.IsInsufficientFunds(err), apperrors.IsSubmissionRejected(err), apperrors.IsConfirmation(err):
		return http.StatusUnprocessableEntity
	case apperrors.IsLedgerRead(err), apperrors.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// SendDomainError writes err as {code, message, details}. Unexpected errors are
// logged and reported without internals.
func SendDomainError(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusFor(err)

	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		if status == http.StatusGatewayTimeout {
			NewError(status, "TIMEOUT").Message("The operation timed out").Send(c)
			return
		}
		logger.Error("Unhandled error",
			zap.String("request_id", getRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		NewError(http.StatusInternalServerError, ErrCodeInternalError).Message(MsgInternalError).Send(c)
		return
	}

	if status >= http.StatusInternalServerError || apperrors.IsReconciliation(err) {
		logger.Error("Request failed",
			zap.String("request_id", getRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.String("code", de.Code),
			zap.Error(err))
	}

	message := de.Message
	if status == http.StatusInternalServerError {
		message = MsgInternalError
	}
	_ = c.Error(err)
	NewError(status, de.Code).Message(message).Details(de.Details).Send(c)
}

// SendBackendError reports a failed pass-through call to the record backend.
// Client errors keep the backend's status and message; anything else is 503.
func SendBackendError(c *gin.Context, logger *zap.Logger, err error) {
	apiErr, ok := backend.AsAPIError(err)
	if !ok {
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			SendDomainError(c, logger, err)
			return
		}
		logger.Error("Backend request failed",
			zap.String("request_id", getRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		NewError(http.StatusServiceUnavailable, ErrCodeServiceUnavailable).Message(MsgServiceUnavailable).Send(c)
		return
	}
	if apiErr.IsRetryable() {
		logger.Warn("Backend unavailable",
			zap.String("request_id", getRequestID(c)),
			zap.Int("status", apiErr.StatusCode),
			zap.String("message", apiErr.Message))
		NewError(http.StatusServiceUnavailable, ErrCodeServiceUnavailable).Message(MsgServiceUnavailable).Send(c)
		return
	}
	code := ErrCodeBackendError
	switch {
	case apiErr.IsNotFound():
		code = ErrCodeNotFound
	case apiErr.IsUnauthorized():
		code = ErrCodeUnauthorized
	case apiErr.IsConflict():
		code = ErrCodeConflict
	}
	NewError(apiErr.StatusCode, code).Message(apiErr.Message).Send(c)
}
