package entities

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ProxyErrorResponse is returned when a JSON-RPC call cannot be forwarded.
type ProxyErrorResponse struct {
	Error     string    `json:"error"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentsResponse is the payment list for one account. Stale is set when the
// last refresh failed and Payments holds the previous successful view.
type PaymentsResponse struct {
	Account       string    `json:"account"`
	ChainID       int64     `json:"chainId"`
	Payments      []Payment `json:"payments"`
	Stale         bool      `json:"stale"`
	LastRefreshed time.Time `json:"lastRefreshed,omitempty"`
	Error         string    `json:"error,omitempty"`
}
