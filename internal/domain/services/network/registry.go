// Package network holds the static per-chain data: RPC endpoints, the payment
// contract address and the token table.
package network

import (
	"sort"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/infrastructure/config"
)

// Registry resolves chain ids to network descriptors. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byChain map[int64]*entities.NetworkDescriptor
}

// NewRegistry builds a registry from already-validated descriptors.
func NewRegistry(networks ...entities.NetworkDescriptor) *Registry {
	r := &Registry{byChain: make(map[int64]*entities.NetworkDescriptor, len(networks))}
	for i := range networks {
		n := networks[i]
		r.byChain[n.ChainID] = &n
	}
	return r
}

// FromConfig converts the blockchain section of the config.
func FromConfig(cfg config.BlockchainConfig) *Registry {
	networks := make([]entities.NetworkDescriptor, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		tokens := make([]entities.TokenDescriptor, 0, len(n.Tokens))
		for _, t := range n.Tokens {
			tokens = append(tokens, entities.TokenDescriptor{
				Symbol:    t.Symbol,
				Address:   t.Address,
				Decimals:  t.Decimals,
				PriceFeed: t.PriceFeed,
			})
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })

		networks = append(networks, entities.NetworkDescriptor{
			ChainID:         n.ChainID,
			Name:            n.Name,
			RPCURL:          n.RPC,
			ExplorerURL:     n.Explorer,
			NativeSymbol:    n.NativeCurrency.Symbol,
			NativeDecimals:  n.NativeCurrency.Decimals,
			PaymentContract: n.PaymentContract,
			Tokens:          tokens,
			ScanLookback:    n.ScanLookback,
			GasLimit:        n.GasLimit,
			FeeMultiplier:   n.FeeMultiplier,
			EstimateGas:     n.EstimateGas,
			GasBuffer:       n.GasBuffer,
		})
	}
	return NewRegistry(networks...)
}

// Network returns the descriptor for chainID.
func (r *Registry) Network(chainID int64) (*entities.NetworkDescriptor, error) {
	n, ok := r.byChain[chainID]
	if !ok {
		return nil, apperrors.UnsupportedNetworkError(chainID)
	}
	return n, nil
}

// Networks lists every configured network ordered by chain id.
func (r *Registry) Networks() []*entities.NetworkDescriptor {
	out := make([]*entities.NetworkDescriptor, 0, len(r.byChain))
	for _, n := range r.byChain {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Token resolves a token symbol on chainID.
func (r *Registry) Token(chainID int64, symbol string) (entities.TokenDescriptor, error) {
	n, err := r.Network(chainID)
	if err != nil {
		return entities.TokenDescriptor{}, err
	}
	t, ok := n.TokenBySymbol(symbol)
	if !ok {
		return entities.TokenDescriptor{}, apperrors.NotFoundError("TOKEN").WithDetails(map[string]interface{}{
			"symbol":   symbol,
			"chain_id": chainID,
		})
	}
	return t, nil
}
