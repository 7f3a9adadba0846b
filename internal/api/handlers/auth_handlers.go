package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

// AuthBackend is the backend's account API. The service never stores
// credentials; every call is forwarded.
type AuthBackend interface {
	Login(ctx context.Context, req *backend.LoginRequest) (*backend.LoginResponse, error)
	Register(ctx context.Context, req *backend.RegisterRequest) (*backend.MessageResponse, error)
	Ping(ctx context.Context) (*backend.MessageResponse, error)
	ForgotPassword(ctx context.Context, email string) (*backend.MessageResponse, error)
	ResetPassword(ctx context.Context, req *backend.ResetPasswordRequest) (*backend.MessageResponse, error)
}

// AuthHandlers forwards authentication calls to the backend
type AuthHandlers struct {
	backend AuthBackend
	logger  *zap.Logger
}

func NewAuthHandlers(backend AuthBackend, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{backend: backend, logger: logger}
}

// Login
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body backend.LoginRequest true "Credentials"
// @Success 200 {object} backend.LoginResponse
// @Failure 401 {object} entities.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandlers) Login(c *gin.Context) {
	var req backend.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.backend.Login(c.Request.Context(), &req)
	if err != nil {
		if apiErr, ok := backend.AsAPIError(err); ok && !apiErr.IsRetryable() {
			h.logger.Warn("Login rejected", zap.String("email", req.Email), zap.Int("status", apiErr.StatusCode))
			c.JSON(http.StatusUnauthorized, entities.ErrorResponse{
				Code:    "INVALID_CREDENTIALS",
				Message: "Invalid email or password",
			})
			return
		}
		SendBackendError(c, h.logger, err)
		return
	}
	SendSuccess(c, resp)
}

// Register
// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Param request body backend.RegisterRequest true "Account"
// @Success 201 {object} backend.MessageResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandlers) Register(c *gin.Context) {
	var req backend.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.backend.Register(c.Request.Context(), &req)
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendCreated(c, resp)
}

// Ping
// @Summary Check session
// @Tags auth
// @Produce json
// @Success 200 {object} backend.MessageResponse
// @Failure 401 {object} entities.ErrorResponse
// @Router /api/v1/auth/ping [get]
func (h *AuthHandlers) Ping(c *gin.Context) {
	resp, err := h.backend.Ping(c.Request.Context())
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendSuccess(c, resp)
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword
// @Summary Request a password reset code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body forgotPasswordRequest true "Email"
// @Success 200 {object} backend.MessageResponse
// @Router /api/v1/auth/forgot-password [post]
func (h *AuthHandlers) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.backend.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendSuccess(c, resp)
}

// ResetPassword
// @Summary Reset password with the emailed code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body backend.ResetPasswordRequest true "Reset"
// @Success 200 {object} backend.MessageResponse
// @Router /api/v1/auth/reset-password [post]
func (h *AuthHandlers) ResetPassword(c *gin.Context) {
	var req backend.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.backend.ResetPassword(c.Request.Context(), &req)
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendSuccess(c, resp)
}
