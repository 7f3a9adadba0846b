// Package evm is the go-ethereum backed gateway to the payment contract, ERC-20
// tokens and price feeds on every configured network.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

// backend is the slice of ethclient.Client the gateway uses.
type backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	Close()
}

var _ backend = (*ethclient.Client)(nil)

type chain struct {
	network  *entities.NetworkDescriptor
	backend  backend
	contract common.Address
	breaker  *gobreaker.CircuitBreaker
}

// Gateway multiplexes RPC access across networks by chain id.
type Gateway struct {
	chains     map[int64]*chain
	keys       *Keystore
	logger     *zap.Logger
	httpClient *http.Client

	// submissions from one account are serialised so nonces stay ordered
	accountMu sync.Mutex
	accounts  map[common.Address]*sync.Mutex
}

// NewGateway dials every network's RPC endpoint.
func NewGateway(ctx context.Context, networks []*entities.NetworkDescriptor, keys *Keystore, logger *zap.Logger) (*Gateway, error) {
	backends := make(map[int64]backend, len(networks))
	for _, n := range networks {
		client, err := ethclient.DialContext(ctx, n.RPCURL)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("failed to dial %s: %w", n.Name, err)
		}
		backends[n.ChainID] = client
		logger.Info("Connected to network RPC",
			zap.String("network", n.Name),
			zap.Int64("chain_id", n.ChainID))
	}
	return newGateway(networks, backends, keys, logger), nil
}

func newGateway(networks []*entities.NetworkDescriptor, backends map[int64]backend, keys *Keystore, logger *zap.Logger) *Gateway {
	g := &Gateway{
		chains:     make(map[int64]*chain, len(networks)),
		keys:       keys,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		accounts:   make(map[common.Address]*sync.Mutex),
	}
	for _, n := range networks {
		name := "rpc-" + strconv.FormatInt(n.ChainID, 10)
		g.chains[n.ChainID] = &chain{
			network:  n,
			backend:  backends[n.ChainID],
			contract: common.HexToAddress(n.PaymentContract),
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        name,
				MaxRequests: 5,
				Interval:    10 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Info("RPC circuit breaker state changed",
						zap.String("name", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			}),
		}
	}
	return g
}

// Close releases every RPC connection.
func (g *Gateway) Close() {
	for _, c := range g.chains {
		if c.backend != nil {
			c.backend.Close()
		}
	}
}

func (g *Gateway) chain(chainID int64) (*chain, error) {
	c, ok := g.chains[chainID]
	if !ok || c.backend == nil {
		return nil, apperrors.UnsupportedNetworkError(chainID)
	}
	return c, nil
}

// read runs a read-only RPC call behind the chain's circuit breaker.
func read[T any](c *chain, fn func() (T, error)) (T, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// BlockNumber returns the current head.
func (g *Gateway) BlockNumber(ctx context.Context, chainID int64) (uint64, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return 0, err
	}
	return read(c, func() (uint64, error) { return c.backend.BlockNumber(ctx) })
}

// HealthCheck fails when the network's RPC cannot report a head block.
func (g *Gateway) HealthCheck(ctx context.Context, chainID int64) error {
	if _, err := g.BlockNumber(ctx, chainID); err != nil {
		return apperrors.ServiceUnavailableError("blockchain network", err)
	}
	return nil
}

// BlockTime returns the timestamp of the block with the given hash.
func (g *Gateway) BlockTime(ctx context.Context, chainID int64, blockHash string) (time.Time, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return time.Time{}, err
	}
	header, err := read(c, func() (*types.Header, error) {
		return c.backend.HeaderByHash(ctx, common.HexToHash(blockHash))
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch block %s: %w", blockHash, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// NativeBalance returns the account's balance of the native currency.
func (g *Gateway) NativeBalance(ctx context.Context, chainID int64, account string) (*big.Int, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return nil, err
	}
	return read(c, func() (*big.Int, error) {
		return c.backend.BalanceAt(ctx, common.HexToAddress(account), nil)
	})
}

// TokenBalance returns balanceOf(account) on an ERC-20 token.
func (g *Gateway) TokenBalance(ctx context.Context, chainID int64, token, account string) (*big.Int, error) {
	out, err := g.callView(ctx, chainID, tokenABI, common.HexToAddress(token), "balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Allowance returns how much of token the payment contract may pull from owner.
func (g *Gateway) Allowance(ctx context.Context, chainID int64, token, owner string) (*big.Int, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return nil, err
	}
	out, err := g.callView(ctx, chainID, tokenABI, common.HexToAddress(token), "allowance", common.HexToAddress(owner), c.contract)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TokenMetadata reads symbol() and decimals() from an ERC-20 contract.
func (g *Gateway) TokenMetadata(ctx context.Context, chainID int64, token string) (string, uint8, error) {
	addr := common.HexToAddress(token)
	symOut, err := g.callView(ctx, chainID, tokenABI, addr, "symbol")
	if err != nil {
		return "", 0, err
	}
	decOut, err := g.callView(ctx, chainID, tokenABI, addr, "decimals")
	if err != nil {
		return "", 0, err
	}
	return symOut[0].(string), decOut[0].(uint8), nil
}

// LatestRoundData reads a Chainlink-style aggregator and returns the answer and
// the feed's decimals.
func (g *Gateway) LatestRoundData(ctx context.Context, chainID int64, feed string) (*big.Int, uint8, error) {
	addr := common.HexToAddress(feed)
	round, err := g.callView(ctx, chainID, priceFeedABI, addr, "latestRoundData")
	if err != nil {
		return nil, 0, err
	}
	decOut, err := g.callView(ctx, chainID, priceFeedABI, addr, "decimals")
	if err != nil {
		return nil, 0, err
	}
	return round[1].(*big.Int), decOut[0].(uint8), nil
}

// Receipt reports the state of a submitted transaction. A transaction the node
// has not mined yet is ReceiptPending with a nil error.
func (g *Gateway) Receipt(ctx context.Context, chainID int64, txHash string) (*entities.TxReceipt, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return nil, err
	}
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err == ethereum.NotFound {
		return &entities.TxReceipt{TxHash: txHash, Status: entities.ReceiptPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt %s: %w", txHash, err)
	}

	out := &entities.TxReceipt{TxHash: txHash, Status: entities.ReceiptSucceeded}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.Status = entities.ReceiptReverted
	}
	return out, nil
}

func (g *Gateway) callView(ctx context.Context, chainID int64, contractABI abiPacker, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := read(c, func() ([]byte, error) {
		return c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%s on %s failed: %w", method, to.Hex(), err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no data", method)
	}
	return out, nil
}

type abiPacker interface {
	Pack(name string, args ...interface{}) ([]byte, error)
	Unpack(name string, data []byte) ([]interface{}, error)
}
