package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxProxyResponse = 10 << 20

// ForwardRPC relays a raw JSON-RPC request body to the network's RPC endpoint
// and returns the upstream response body unchanged.
func (g *Gateway) ForwardRPC(ctx context.Context, chainID int64, body []byte) ([]byte, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}

	return read(c, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.network.RPCURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "ZynPay-Service/1.0")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("RPC responded with status: %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxProxyResponse))
	})
}
