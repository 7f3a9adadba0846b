package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
	"unicode"
)

// Store is the key/value backend. cache.RedisClient satisfies it.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Record is what is kept per key. An incomplete record marks a request in flight.
type Record struct {
	RequestHash string `json:"request_hash"`
	Completed   bool   `json:"completed"`
	Status      int    `json:"status,omitempty"`
	Body        []byte `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ValidateKey accepts 1-255 printable ASCII characters.
func ValidateKey(key string) error {
	if len(key) == 0 || len(key) > 255 {
		return fmt.Errorf("idempotency key must be between 1 and 255 characters")
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return fmt.Errorf("idempotency key must contain only printable ASCII characters")
		}
	}
	return nil
}

// ReadBody reads at most limit bytes and fails if the body is larger.
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return data, nil
}

// HashRequest fingerprints a request body.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// StoreKey scopes a client key to one route.
func StoreKey(method, route, key string) string {
	sum := sha256.Sum256([]byte(method + " " + route + " " + key))
	return "idempotency:" + hex.EncodeToString(sum[:])
}
