package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

// SendNative calls sendETH(paymentId, to) with value attached.
func (g *Gateway) SendNative(ctx context.Context, chainID int64, from, paymentID, to string, value *big.Int) (string, error) {
	data, err := paymentContractABI.Pack("sendETH", common.HexToHash(paymentID), common.HexToAddress(to))
	if err != nil {
		return "", fmt.Errorf("failed to pack sendETH: %w", err)
	}
	return g.transactContract(ctx, chainID, from, data, value)
}

// SendToken calls sendERC20(paymentId, to, token, amount). The contract must
// already hold an allowance for amount.
func (g *Gateway) SendToken(ctx context.Context, chainID int64, from, paymentID, to, token string, amount *big.Int) (string, error) {
	data, err := paymentContractABI.Pack("sendERC20",
		common.HexToHash(paymentID), common.HexToAddress(to), common.HexToAddress(token), amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack sendERC20: %w", err)
	}
	return g.transactContract(ctx, chainID, from, data, nil)
}

// Claim calls claim(paymentId).
func (g *Gateway) Claim(ctx context.Context, chainID int64, from, paymentID string) (string, error) {
	data, err := paymentContractABI.Pack("claim", common.HexToHash(paymentID))
	if err != nil {
		return "", fmt.Errorf("failed to pack claim: %w", err)
	}
	return g.transactContract(ctx, chainID, from, data, nil)
}

// Reimburse calls reimburse(paymentId).
func (g *Gateway) Reimburse(ctx context.Context, chainID int64, from, paymentID string) (string, error) {
	data, err := paymentContractABI.Pack("reimburse", common.HexToHash(paymentID))
	if err != nil {
		return "", fmt.Errorf("failed to pack reimburse: %w", err)
	}
	return g.transactContract(ctx, chainID, from, data, nil)
}

// Approve grants the payment contract an allowance of amount on token.
func (g *Gateway) Approve(ctx context.Context, chainID int64, from, token string, amount *big.Int) (string, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return "", err
	}
	data, err := tokenABI.Pack("approve", c.contract, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve: %w", err)
	}
	return g.transact(ctx, c, from, common.HexToAddress(token), data, nil)
}

func (g *Gateway) transactContract(ctx context.Context, chainID int64, from string, data []byte, value *big.Int) (string, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return "", err
	}
	return g.transact(ctx, c, from, c.contract, data, value)
}

// transact signs and broadcasts a legacy transaction. Gas is the network's fixed
// ceiling unless estimation is enabled, and the gas price is the node's
// suggestion scaled by the fee multiplier.
func (g *Gateway) transact(ctx context.Context, c *chain, from string, to common.Address, data []byte, value *big.Int) (string, error) {
	sender := common.HexToAddress(from)
	key, ok := g.keys.Key(sender)
	if !ok {
		return "", apperrors.SubmissionRejectedError(fmt.Sprintf("no signer available for %s", sender.Hex()), nil)
	}
	if value == nil {
		value = new(big.Int)
	}

	mu := g.accountLock(sender)
	mu.Lock()
	defer mu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, sender)
	if err != nil {
		return "", apperrors.SubmissionRejectedError("failed to fetch nonce", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", apperrors.SubmissionRejectedError("failed to fetch gas price", err)
	}
	if c.network.FeeMultiplier > 1 {
		gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(c.network.FeeMultiplier))
	}

	gasLimit := g.gasLimit(ctx, c, ethereum.CallMsg{From: sender, To: &to, Value: value, Data: data})

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(c.network.ChainID)), key)
	if err != nil {
		return "", apperrors.SubmissionRejectedError("failed to sign transaction", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", apperrors.SubmissionRejectedError(RevertReason(err), err)
	}

	g.logger.Info("Transaction submitted",
		zap.Int64("chain_id", c.network.ChainID),
		zap.String("from", sender.Hex()),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("gas_limit", gasLimit),
		zap.String("gas_price", gasPrice.String()))

	return signed.Hash().Hex(), nil
}

func (g *Gateway) gasLimit(ctx context.Context, c *chain, msg ethereum.CallMsg) uint64 {
	ceiling := c.network.GasLimit
	if !c.network.EstimateGas {
		return ceiling
	}

	estimated, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		g.logger.Warn("Gas estimation failed, using ceiling",
			zap.Int64("chain_id", c.network.ChainID),
			zap.Error(err))
		return ceiling
	}

	buffered := uint64(float64(estimated) * c.network.GasBuffer)
	if buffered == 0 || (ceiling > 0 && buffered > ceiling) {
		return ceiling
	}
	return buffered
}

func (g *Gateway) accountLock(addr common.Address) *sync.Mutex {
	g.accountMu.Lock()
	defer g.accountMu.Unlock()
	mu, ok := g.accounts[addr]
	if !ok {
		mu = &sync.Mutex{}
		g.accounts[addr] = mu
	}
	return mu
}
