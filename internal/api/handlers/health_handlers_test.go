package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reachable(context.Context) error { return nil }
func unreachable(context.Context) error { return errors.New("connection refused") }

func healthRouter(checks ...HealthCheck) *gin.Engine {
	h := NewHealthHandler(checks, zap.NewNop(), "test")
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/health/live", h.Liveness)
	return r
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus HealthStatus
	}{
		{
			name:       "all healthy",
			checks:     []HealthCheck{{Name: "database", Critical: true, Check: reachable}, {Name: "cache", Check: reachable}},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "rpc down degrades",
			checks:     []HealthCheck{{Name: "database", Critical: true, Check: reachable}, {Name: "rpc:kaia-kairos", Check: unreachable}},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name:       "database down",
			checks:     []HealthCheck{{Name: "database", Critical: true, Check: unreachable}, {Name: "cache", Check: reachable}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(healthRouter(tt.checks...), http.MethodGet, "/health", nil)
			require.Equal(t, tt.wantCode, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "test", resp.Version)
			require.Len(t, resp.Checks, len(tt.checks))
			// sorted by name
			assert.LessOrEqual(t, resp.Checks[0].Name, resp.Checks[1].Name)
		})
	}
}

func TestLiveness(t *testing.T) {
	w := doRequest(healthRouter(HealthCheck{Name: "database", Critical: true, Check: unreachable}), http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakeForwarder struct {
	chainID int64
	body    []byte
	err     error
}

func (f *fakeForwarder) ForwardRPC(_ context.Context, chainID int64, body []byte) ([]byte, error) {
	f.chainID = chainID
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"jsonrpc":"2.0","id":1,"result":"0x3e9"}`), nil
}

func rpcRouter(forwarder RPCForwarder) *gin.Engine {
	h := NewRPCHandlers(forwarder, zap.NewNop())
	r := gin.New()
	r.POST("/rpc/:chainId", h.Proxy)
	return r
}

func TestRPCProxy(t *testing.T) {
	forwarder := &fakeForwarder{}
	w := doRequest(rpcRouter(forwarder), http.MethodPost, "/rpc/1001", gin.H{"jsonrpc": "2.0", "id": 1, "method": "eth_chainId"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1001), forwarder.chainID)
	assert.Contains(t, string(forwarder.body), "eth_chainId")
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"0x3e9"}`, w.Body.String())
}

func TestRPCProxy_ForwardFails(t *testing.T) {
	forwarder := &fakeForwarder{err: errors.New("node unreachable")}
	w := doRequest(rpcRouter(forwarder), http.MethodPost, "/rpc/1001", gin.H{"method": "eth_blockNumber"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Proxy request failed")
	assert.Contains(t, w.Body.String(), "node unreachable")
}

func TestRPCProxy_BadChain(t *testing.T) {
	w := doRequest(rpcRouter(&fakeForwarder{}), http.MethodPost, "/rpc/kaia", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
