package coingecko

import "fmt"

// ErrorResponse represents a CoinGecko API error response
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("CoinGecko API error [%d]: %s", e.StatusCode, e.Message)
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

var (
	// ErrUnknownSymbol means there is no coin id mapping for the symbol.
	ErrUnknownSymbol = fmt.Errorf("no CoinGecko id for symbol")
	// ErrPriceUnavailable means the response lacked a usable USD price.
	ErrPriceUnavailable = fmt.Errorf("USD price missing from response")
)
