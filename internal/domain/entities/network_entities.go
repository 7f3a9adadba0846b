package entities

import (
	"fmt"
	"strings"
)

// NetworkDescriptor is the static configuration of one supported chain.
type NetworkDescriptor struct {
	ChainID         int64             `json:"chainId"`
	Name            string            `json:"name"`
	RPCURL          string            `json:"-"`
	ExplorerURL     string            `json:"explorerUrl"`
	NativeSymbol    string            `json:"nativeSymbol"`
	NativeDecimals  uint8             `json:"nativeDecimals"`
	PaymentContract string            `json:"paymentContract"`
	Tokens          []TokenDescriptor `json:"tokens"`
	ScanLookback    uint64            `json:"scanLookback"`
	GasLimit        uint64            `json:"gasLimit"`
	FeeMultiplier   int64             `json:"feeMultiplier"`
	EstimateGas     bool              `json:"estimateGas"`
	GasBuffer       float64           `json:"gasBuffer"`
}

// NativeToken describes the chain's native currency.
func (n *NetworkDescriptor) NativeToken() TokenDescriptor {
	return TokenDescriptor{
		Symbol:   n.NativeSymbol,
		Address:  NativeTokenAddress,
		Decimals: n.NativeDecimals,
	}
}

// TokenBySymbol looks up a token, the native symbol included.
func (n *NetworkDescriptor) TokenBySymbol(symbol string) (TokenDescriptor, bool) {
	if strings.EqualFold(symbol, n.NativeSymbol) {
		return n.NativeToken(), true
	}
	for _, t := range n.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return TokenDescriptor{}, false
}

// TokenByAddress looks up a token from the static table.
func (n *NetworkDescriptor) TokenByAddress(address string) (TokenDescriptor, bool) {
	if IsNativeAddress(address) {
		return n.NativeToken(), true
	}
	for _, t := range n.Tokens {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return TokenDescriptor{}, false
}

// IsNative reports whether the token is the chain's native currency, either by
// sentinel address or by symbol.
func (n *NetworkDescriptor) IsNative(t TokenDescriptor) bool {
	return IsNativeAddress(t.Address) || strings.EqualFold(t.Symbol, n.NativeSymbol)
}

// ExplorerTxURL links a transaction hash on the block explorer.
func (n *NetworkDescriptor) ExplorerTxURL(txHash string) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(n.ExplorerURL, "/"), txHash)
}
