package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenRefreshSkew       = time.Minute
	defaultServiceTokenTTL = time.Hour
)

type tokenKey struct{}

// WithToken attaches the caller's backend session token to ctx. Requests made
// with that context act as the caller.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the caller token set by WithToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// bearer picks the caller token when present, else the service account token.
func (c *Client) bearer(ctx context.Context) (token string, service bool, err error) {
	if token := TokenFromContext(ctx); token != "" {
		return token, false, nil
	}
	if c.config.ServiceEmail == "" {
		return "", false, nil
	}
	token, err = c.serviceBearer(ctx)
	return token, true, err
}

func (c *Client) serviceBearer(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.serviceToken != "" && time.Now().Add(tokenRefreshSkew).Before(c.serviceExp) {
		return c.serviceToken, nil
	}

	var resp LoginResponse
	err := c.doRequestInternal(ctx, http.MethodPost, "/auth/login", &LoginRequest{
		Email:    c.config.ServiceEmail,
		Password: c.config.ServicePassword,
	}, &resp, requestOptions{public: true})
	if err != nil {
		return "", fmt.Errorf("service account login failed: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("service account login returned no token")
	}

	c.serviceToken = resp.Token
	c.serviceExp = tokenExpiry(resp.Token)
	c.logger.Info("Refreshed backend service token", "expires_at", c.serviceExp)
	return c.serviceToken, nil
}

func (c *Client) invalidateServiceToken() {
	c.tokenMu.Lock()
	c.serviceToken = ""
	c.serviceExp = time.Time{}
	c.tokenMu.Unlock()
}

// tokenExpiry reads the exp claim without verifying the signature; the backend
// verifies its own tokens.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(defaultServiceTokenTTL)
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", req, &resp, public()); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &resp, nil
}

// Register creates a backend user account.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/register", req, &resp, public()); err != nil {
		return nil, fmt.Errorf("register failed: %w", err)
	}
	return &resp, nil
}

// Ping checks the caller's session.
func (c *Client) Ping(ctx context.Context) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodGet, "/auth/ping", nil, &resp); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return &resp, nil
}

// ForgotPassword asks the backend to email a reset OTP.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	body := map[string]string{"email": email}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/forgotPassword", body, &resp, public()); err != nil {
		return nil, fmt.Errorf("forgot password failed: %w", err)
	}
	return &resp, nil
}

// ResetPassword sets a new password using the emailed OTP.
func (c *Client) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodPatch, "/auth/resetPassword/otp", req, &resp, public()); err != nil {
		return nil, fmt.Errorf("reset password failed: %w", err)
	}
	return &resp, nil
}
