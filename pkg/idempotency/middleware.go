package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/infrastructure/cache"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// MaxBodySize is the maximum request body size for idempotency (10MB)
	MaxBodySize = 10 << 20

	// DefaultTTL is how long a completed response is replayed
	DefaultTTL = 24 * time.Hour

	// lockTTL bounds how long an in-flight request holds its key
	lockTTL = 10 * time.Minute
)

// responseWriter wraps gin.ResponseWriter to capture response
type responseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Middleware replays the stored response for a repeated Idempotency-Key and
// rejects a key reused with a different body. A payment request retried by a
// client therefore submits at most one transaction.
func Middleware(store Store, logger *zap.Logger) gin.HandlerFunc {
	return MiddlewareWithTTL(store, DefaultTTL, logger)
}

// MiddlewareWithTTL is Middleware with a custom replay window.
func MiddlewareWithTTL(store Store, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(c *gin.Context) {
		// Only apply to state-changing methods
		if !isStateChanging(c.Request.Method) {
			c.Next()
			return
		}

		// Idempotency is optional; if not provided, proceed normally
		idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		if err := ValidateKey(idempotencyKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid idempotency key",
				"message":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		bodyBytes, err := ReadBody(c.Request.Body, MaxBodySize)
		if err != nil {
			logger.Error("Failed to read request body",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "Failed to read request body",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		// Restore body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		ctx := c.Request.Context()
		storeKey := StoreKey(c.Request.Method, c.FullPath(), idempotencyKey)
		requestHash := HashRequest(bodyBytes)

		var existing Record
		err = store.Get(ctx, storeKey, &existing)
		switch {
		case err == nil:
			replay(c, &existing, requestHash, idempotencyKey, logger)
			return
		case !errors.Is(err, cache.ErrCacheMiss):
			// On error, proceed with request (fail open)
			logger.Error("Failed to check idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.Next()
			return
		}

		acquired, err := store.SetNX(ctx, storeKey, &Record{RequestHash: requestHash}, lockTTL)
		if err != nil {
			logger.Error("Failed to lock idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			conflict(c, "A request with this idempotency key is already in progress")
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		// server errors release the key so the client can retry
		if writer.status >= http.StatusInternalServerError {
			if err := store.Del(ctx, storeKey); err != nil {
				logger.Warn("Failed to release idempotency key",
					zap.String("idempotency_key", idempotencyKey),
					zap.Error(err))
			}
			return
		}

		record := &Record{
			RequestHash: requestHash,
			Completed:   true,
			Status:      writer.status,
			Body:        writer.body.Bytes(),
			ContentType: writer.Header().Get("Content-Type"),
		}
		if err := store.Set(ctx, storeKey, record, ttl); err != nil {
			// Log error but don't fail the request
			logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
		}
	}
}

func replay(c *gin.Context, existing *Record, requestHash, idempotencyKey string, logger *zap.Logger) {
	if !existing.Completed {
		conflict(c, "A request with this idempotency key is already in progress")
		return
	}
	if existing.RequestHash != requestHash {
		logger.Warn("Idempotency key reused with a different request",
			zap.String("idempotency_key", idempotencyKey))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "Idempotency key conflict",
			"message":    "Idempotency key was already used with a different request body",
			"request_id": c.GetString("request_id"),
		})
		c.Abort()
		return
	}

	logger.Info("Returning cached response",
		zap.String("idempotency_key", idempotencyKey),
		zap.Int("status", existing.Status))

	contentType := existing.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(existing.Status, contentType, existing.Body)
	c.Abort()
}

func conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, gin.H{
		"error":      "Idempotency key conflict",
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
	c.Abort()
}

// RequireIdempotency creates middleware that requires idempotency key
func RequireIdempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isStateChanging(c.Request.Method) {
			c.Next()
			return
		}

		if c.GetHeader(HeaderIdempotencyKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "Idempotency key required",
				"message":    "This endpoint requires an Idempotency-Key header",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
