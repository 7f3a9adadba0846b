package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/infrastructure/cache"
	"github.com/zynpay/zynpay_service/pkg/auth"
	"github.com/zynpay/zynpay_service/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, email string, expiresIn time.Duration) string {
	t.Helper()
	claims := auth.Claims{
		UserID: "user-1",
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func serve(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.168.1.1:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(router, http.MethodGet, "/", map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = serve(router, http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRateLimit_BlocksExcessRequests(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(3))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := serve(router, http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should be allowed", i+1)
	}

	w := serve(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.zynpay.io"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodOptions, "/", map[string]string{"Origin": "https://app.zynpay.io"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.zynpay.io", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	w = serve(router, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(logger.NewNop()))
	router.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRequireBearer(t *testing.T) {
	router := gin.New()
	router.Use(RequireBearer())
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"email": c.GetString("user_email"),
			"token": backend.TokenFromContext(c.Request.Context()),
		})
	})

	t.Run("missing token", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("expired token", func(t *testing.T) {
		tok := token(t, "alice@example.com", -time.Minute)
		w := serve(router, http.MethodGet, "/", map[string]string{"Authorization": "Bearer " + tok})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("valid token", func(t *testing.T) {
		tok := token(t, "Alice@Example.com", time.Hour)
		w := serve(router, http.MethodGet, "/", map[string]string{"Authorization": "Bearer " + tok})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"email":"alice@example.com"`)
		assert.Contains(t, w.Body.String(), tok)
	})
}

func TestBearerToken_Optional(t *testing.T) {
	router := gin.New()
	router.Use(BearerToken())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, backend.TokenFromContext(c.Request.Context()))
	})

	w := serve(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

type fakeSessions struct {
	err   error
	calls int
}

func (f *fakeSessions) Ping(ctx context.Context) (*backend.MessageResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &backend.MessageResponse{Status: "success"}, nil
}

func sessionRouter(checker SessionChecker, store SessionCache) *gin.Engine {
	router := gin.New()
	router.Use(RequireBearer(), RequireSession(checker, store, zap.NewNop()))
	router.POST("/send", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	return router
}

func TestRequireSession_ConfirmsOnceThenCaches(t *testing.T) {
	checker := &fakeSessions{}
	router := sessionRouter(checker, cache.NewMemoryClient())
	headers := map[string]string{"Authorization": "Bearer " + token(t, "alice@example.com", time.Hour)}

	for i := 0; i < 3; i++ {
		w := serve(router, http.MethodPost, "/send", headers)
		assert.Equal(t, http.StatusAccepted, w.Code)
	}
	assert.Equal(t, 1, checker.calls)
}

func TestRequireSession_RejectedByBackend(t *testing.T) {
	checker := &fakeSessions{err: &backend.APIError{StatusCode: http.StatusUnauthorized, Message: "jwt malformed"}}
	router := sessionRouter(checker, cache.NewMemoryClient())
	headers := map[string]string{"Authorization": "Bearer " + token(t, "mallory@example.com", time.Hour)}

	w := serve(router, http.MethodPost, "/send", headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SESSION")

	// rejections are not cached
	serve(router, http.MethodPost, "/send", headers)
	assert.Equal(t, 2, checker.calls)
}

func TestRequireSession_BackendDown(t *testing.T) {
	checker := &fakeSessions{err: errors.New("dial tcp: connection refused")}
	router := sessionRouter(checker, nil)
	headers := map[string]string{"Authorization": "Bearer " + token(t, "alice@example.com", time.Hour)}

	w := serve(router, http.MethodPost, "/send", headers)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
