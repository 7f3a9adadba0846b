package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/infrastructure/cache"
)

func newRouter(store Store, status int, calls *int32) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(store, zap.NewNop()))
	r.POST("/pay", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	r.GET("/pay", func(c *gin.Context) {
		atomic.AddInt32(calls, 1)
		c.Status(http.StatusOK)
	})
	return r
}

func do(r http.Handler, method, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/pay", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysCompletedResponse(t *testing.T) {
	var calls int32
	r := newRouter(cache.NewMemoryClient(), http.StatusCreated, &calls)

	first := do(r, http.MethodPost, "key-1", `{"amount":1}`)
	second := do(r, http.MethodPost, "key-1", `{"amount":1}`)

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestMiddleware_DifferentBodyIsRejected(t *testing.T) {
	var calls int32
	r := newRouter(cache.NewMemoryClient(), http.StatusOK, &calls)

	do(r, http.MethodPost, "key-1", `{"amount":1}`)
	w := do(r, http.MethodPost, "key-1", `{"amount":2}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(1), calls)
}

func TestMiddleware_InFlightKeyConflicts(t *testing.T) {
	var calls int32
	store := cache.NewMemoryClient()
	r := newRouter(store, http.StatusOK, &calls)

	key := StoreKey(http.MethodPost, "/pay", "key-1")
	ok, err := store.SetNX(t.Context(), key, &Record{RequestHash: HashRequest([]byte(`{}`))}, lockTTL)
	require.NoError(t, err)
	require.True(t, ok)

	w := do(r, http.MethodPost, "key-1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(0), calls)
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	var calls int32
	r := newRouter(cache.NewMemoryClient(), http.StatusBadGateway, &calls)

	do(r, http.MethodPost, "key-1", `{}`)
	do(r, http.MethodPost, "key-1", `{}`)
	assert.Equal(t, int32(2), calls)
}

func TestMiddleware_PassThrough(t *testing.T) {
	var calls int32
	r := newRouter(cache.NewMemoryClient(), http.StatusOK, &calls)

	do(r, http.MethodPost, "", `{}`)
	do(r, http.MethodPost, "", `{}`)
	do(r, http.MethodGet, "key-1", "")
	do(r, http.MethodGet, "key-1", "")
	assert.Equal(t, int32(4), calls)

	w := do(r, http.MethodPost, strings.Repeat("k", 300), `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
