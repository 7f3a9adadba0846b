package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, RequestsPerMinute: 6000}, zap.NewNop())
}

func TestClient_USDPrice(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/simple/price", r.URL.Path)
			assert.Equal(t, "kaia", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			w.Write([]byte(`{"kaia":{"usd":0.125}}`))
		}))
		defer server.Close()

		price, err := newTestClient(server.URL).USDPrice(context.Background(), "kaia")
		require.NoError(t, err)
		assert.Equal(t, "0.125", price.String())
	})

	t.Run("unknown symbol makes no request", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).USDPrice(context.Background(), "ZOLLPTT")
		assert.True(t, errors.Is(err, ErrUnknownSymbol))
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("missing price field", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).USDPrice(context.Background(), "ETH")
		assert.True(t, errors.Is(err, ErrPriceUnavailable))
	})

	t.Run("zero price rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ethereum":{"usd":0}}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).USDPrice(context.Background(), "ETH")
		assert.True(t, errors.Is(err, ErrPriceUnavailable))
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Throttled"}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).USDPrice(context.Background(), "ETH")
		var apiErr *ErrorResponse
		require.True(t, errors.As(err, &apiErr))
		assert.True(t, apiErr.IsRateLimited())
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"tether":{"usd":1.0002}}`))
		}))
		defer server.Close()

		price, err := newTestClient(server.URL).USDPrice(context.Background(), "USDT")
		require.NoError(t, err)
		assert.Equal(t, "1.0002", price.String())
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestCoinID(t *testing.T) {
	id, ok := CoinID("tBNB")
	assert.True(t, ok)
	assert.Equal(t, "binancecoin", id)

	id, ok = CoinID("USDC.e")
	assert.True(t, ok)
	assert.Equal(t, "usd-coin", id)

	_, ok = CoinID("NOPE")
	assert.False(t, ok)
}
