package evm

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var reasonStringPattern = regexp.MustCompile(`reverted with reason string '([^']+)'`)

// RevertReason extracts a human readable reason from a node error. It tries the
// ABI-encoded Error(string) payload, then the "reverted with reason string"
// message form, then "execution reverted: ...", and finally returns the raw message.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}

	msg := err.Error()
	if m := reasonStringPattern.FindStringSubmatch(msg); len(m) == 2 {
		return m[1]
	}
	if _, after, found := strings.Cut(msg, "execution reverted: "); found && after != "" {
		return after
	}
	return msg
}

// ReplayRevertReason re-executes a reverted transaction as a call at its block to
// recover the revert reason. An empty string means none could be recovered.
func (g *Gateway) ReplayRevertReason(ctx context.Context, chainID int64, txHash string) string {
	c, err := g.chain(chainID)
	if err != nil {
		return ""
	}
	hash := common.HexToHash(txHash)

	tx, _, err := c.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return ""
	}
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return ""
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}

	_, callErr := c.backend.CallContract(ctx, ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}, receipt.BlockNumber)
	if callErr == nil {
		return ""
	}
	return RevertReason(callErr)
}
