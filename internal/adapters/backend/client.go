package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/zynpay/zynpay_service/pkg/logger"
	"github.com/zynpay/zynpay_service/pkg/retry"
)

// Config represents backend API configuration
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetries      int
	ServiceEmail    string
	ServicePassword string
}

// Client talks to the ZynPay REST backend that owns invoices, split bills,
// the address book and user accounts.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	retrier        *retry.Retrier
	logger         *logger.Logger

	tokenMu      sync.Mutex
	serviceToken string
	serviceExp   time.Time
}

// NewClient creates a new backend API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = 20
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	cbSettings := gobreaker.Settings{
		Name:        "BackendAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			apiErr, ok := AsAPIError(err)
			return ok && !apiErr.IsRetryable()
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("Backend circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	policy := retry.Policy{
		MaxRetries:    config.MaxRetries,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		Multiplier:    2,
		Jitter:        0.2,
		RetryableFunc: isRetryable,
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.RequestsPerSec),
		retrier:        retry.NewRetrier(policy, log.Zap()),
		logger:         log,
	}
}

// isRetryable retries 5xx, 429 and transport failures.
func isRetryable(err error) bool {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.IsRetryable()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(err, context.Canceled)
	}
	return retry.IsRetryable(err)
}

type requestOptions struct {
	idempotencyKey string
	public         bool
}

type requestOption func(*requestOptions)

// withIdempotencyKey marks a mutating request as safe to retry.
func withIdempotencyKey(key string) requestOption {
	return func(o *requestOptions) { o.idempotencyKey = key }
}

// public skips the Authorization header.
func public() requestOption {
	return func(o *requestOptions) { o.public = true }
}

// doRequest performs a backend call. Reads and requests carrying an
// idempotency key are retried on transport and 5xx failures; other writes are
// attempted once.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response interface{}, opts ...requestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	call := func() error {
		_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, c.doRequestInternal(ctx, method, endpoint, body, response, o)
		})
		return err
	}

	if method == http.MethodGet || o.idempotencyKey != "" {
		return c.retrier.Do(ctx, call)
	}
	return call()
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, body, response interface{}, o requestOptions) error {
	fullURL := c.config.BaseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if o.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", o.idempotencyKey)
	}

	usedServiceToken := false
	if !o.public {
		token, service, err := c.bearer(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		usedServiceToken = service
	}

	c.logger.Debug("Sending backend request", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if apiErr.IsUnauthorized() && usedServiceToken {
			c.invalidateServiceToken()
		}
		return apiErr
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
