package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/infrastructure/config"
	"github.com/zynpay/zynpay_service/pkg/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeBackend struct {
	head        uint64
	logs        []types.Log
	lastQuery   ethereum.FilterQuery
	calls       map[string][]byte
	nonce       uint64
	gasPrice    *big.Int
	estimate    uint64
	estimateErr error
	sent        []*types.Transaction
	sendErr     error
	receipts    map[common.Hash]*types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		head:     10_000,
		calls:    make(map[string][]byte),
		gasPrice: big.NewInt(25_000_000_000),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func callKey(to common.Address, data []byte) string {
	return to.Hex() + ":" + hex.EncodeToString(data[:4])
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.head, nil }
func (f *fakeBackend) HeaderByHash(context.Context, common.Hash) (*types.Header, error) {
	return &types.Header{Time: 1_700_000_000}, nil
}
func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = q
	return f.logs, nil
}
func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	out, ok := f.calls[callKey(*msg.To, msg.Data)]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}
func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(5e18), nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
func (f *fakeBackend) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	return nil, false, ethereum.NotFound
}
func (f *fakeBackend) Close() {}

var kairos = &entities.NetworkDescriptor{
	ChainID:         1001,
	Name:            "Kaia Kairos Testnet",
	NativeSymbol:    "KAIA",
	NativeDecimals:  18,
	PaymentContract: "0x2dFD4c57D3281eE403Fd5061a1184d4c6AE5F3bc",
	GasLimit:        3_000_000,
	FeeMultiplier:   2,
	GasBuffer:       1.2,
}

func newTestGateway(t *testing.T, fb *fakeBackend, network *entities.NetworkDescriptor) (*Gateway, common.Address) {
	t.Helper()
	ks, err := NewKeystore(config.SignerConfig{PrivateKeys: []string{testKey}})
	require.NoError(t, err)
	key, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)
	g := newGateway([]*entities.NetworkDescriptor{network}, map[int64]backend{network.ChainID: fb}, ks, zap.NewNop())
	return g, ethcrypto.PubkeyToAddress(key.PublicKey)
}

func sentLog(t *testing.T, id common.Hash, from, to common.Address, amount *big.Int, token common.Address, block uint64) types.Log {
	t.Helper()
	ev := paymentContractABI.Events["PaymentSent"]
	data, err := ev.Inputs.NonIndexed().Pack(amount, token)
	require.NoError(t, err)
	return types.Log{
		Topics: []common.Hash{
			ev.ID, id,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		BlockHash:   common.HexToHash("0xb1"),
		TxHash:      common.HexToHash("0xf1"),
	}
}

func TestGateway_FilterPaymentEvents(t *testing.T) {
	fb := newFakeBackend()
	g, _ := newTestGateway(t, fb, kairos)

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	id := common.HexToHash("0xabcdef")
	fb.logs = []types.Log{sentLog(t, id, from, to, big.NewInt(1e18), common.Address{}, 9_000)}

	events, err := g.FilterPaymentEvents(context.Background(), 1001, entities.EventFilter{
		Kind:      entities.PaymentEventSent,
		From:      from.Hex(),
		FromBlock: 4_240,
		ToBlock:   10_000,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, id.Hex(), ev.PaymentID)
	assert.Equal(t, from.Hex(), ev.From)
	assert.Equal(t, to.Hex(), ev.To)
	assert.Equal(t, "1000000000000000000", ev.Amount.String())
	assert.True(t, entities.IsNativeAddress(ev.TokenAddress))

	// from filter lands in topic 2, to is left open
	require.Len(t, fb.lastQuery.Topics, 4)
	assert.Equal(t, paymentContractABI.Events["PaymentSent"].ID, fb.lastQuery.Topics[0][0])
	assert.Nil(t, fb.lastQuery.Topics[1])
	assert.Equal(t, common.BytesToHash(from.Bytes()), fb.lastQuery.Topics[2][0])
	assert.Nil(t, fb.lastQuery.Topics[3])
	assert.Equal(t, uint64(4_240), fb.lastQuery.FromBlock.Uint64())
}

func TestGateway_FilterClaimedEvents(t *testing.T) {
	fb := newFakeBackend()
	g, _ := newTestGateway(t, fb, kairos)

	ev := paymentContractABI.Events["PaymentClaimed"]
	by := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(42), common.HexToAddress("0x5e9456756afef83dddfa6416c8f96ff7c8aae8ce"))
	require.NoError(t, err)
	fb.logs = []types.Log{{
		Topics:      []common.Hash{ev.ID, common.HexToHash("0x01"), common.BytesToHash(by.Bytes())},
		Data:        data,
		BlockNumber: 9_500,
	}}

	events, err := g.FilterPaymentEvents(context.Background(), 1001, entities.EventFilter{Kind: entities.PaymentEventClaimed, ToBlock: 10_000})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, by.Hex(), events[0].By)
	assert.Len(t, fb.lastQuery.Topics, 1)
}

func TestGateway_FilterByPaymentID(t *testing.T) {
	fb := newFakeBackend()
	g, _ := newTestGateway(t, fb, kairos)

	id := common.HexToHash("0xabcdef")
	_, err := g.FilterPaymentEvents(context.Background(), 1001, entities.EventFilter{
		Kind:      entities.PaymentEventSent,
		PaymentID: id.Hex(),
		ToBlock:   10_000,
	})
	require.NoError(t, err)
	require.Len(t, fb.lastQuery.Topics, 2)
	assert.Equal(t, id, fb.lastQuery.Topics[1][0])

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	_, err = g.FilterPaymentEvents(context.Background(), 1001, entities.EventFilter{
		Kind:      entities.PaymentEventSent,
		PaymentID: id.Hex(),
		To:        to.Hex(),
		ToBlock:   10_000,
	})
	require.NoError(t, err)
	require.Len(t, fb.lastQuery.Topics, 4)
	assert.Equal(t, id, fb.lastQuery.Topics[1][0])
	assert.Nil(t, fb.lastQuery.Topics[2])
	assert.Equal(t, common.BytesToHash(to.Bytes()), fb.lastQuery.Topics[3][0])

	_, err = g.FilterPaymentEvents(context.Background(), 1001, entities.EventFilter{
		Kind:      entities.PaymentEventReimbursed,
		PaymentID: id.Hex(),
		ToBlock:   10_000,
	})
	require.NoError(t, err)
	require.Len(t, fb.lastQuery.Topics, 2)
	assert.Equal(t, paymentContractABI.Events["PaymentReimbursed"].ID, fb.lastQuery.Topics[0][0])
}

func TestGateway_TokenMetadataAndPriceFeed(t *testing.T) {
	fb := newFakeBackend()
	g, _ := newTestGateway(t, fb, kairos)

	token := common.HexToAddress("0x5e9456756afef83dddfa6416c8f96ff7c8aae8ce")
	symbolOut, err := tokenABI.Methods["symbol"].Outputs.Pack("USDT")
	require.NoError(t, err)
	decimalsOut, err := tokenABI.Methods["decimals"].Outputs.Pack(uint8(6))
	require.NoError(t, err)
	fb.calls[callKey(token, tokenABI.Methods["symbol"].ID)] = symbolOut
	fb.calls[callKey(token, tokenABI.Methods["decimals"].ID)] = decimalsOut

	symbol, decimals, err := g.TokenMetadata(context.Background(), 1001, token.Hex())
	require.NoError(t, err)
	assert.Equal(t, "USDT", symbol)
	assert.Equal(t, uint8(6), decimals)

	feed := common.HexToAddress("0x3333333333333333333333333333333333333333")
	roundOut, err := priceFeedABI.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(1), big.NewInt(250_000_000_000), big.NewInt(0), big.NewInt(0), big.NewInt(1))
	require.NoError(t, err)
	feedDecimals, err := priceFeedABI.Methods["decimals"].Outputs.Pack(uint8(8))
	require.NoError(t, err)
	fb.calls[callKey(feed, priceFeedABI.Methods["latestRoundData"].ID)] = roundOut
	fb.calls[callKey(feed, priceFeedABI.Methods["decimals"].ID)] = feedDecimals

	answer, dec, err := g.LatestRoundData(context.Background(), 1001, feed.Hex())
	require.NoError(t, err)
	assert.Equal(t, "250000000000", answer.String())
	assert.Equal(t, uint8(8), dec)
}

func TestGateway_SendNative(t *testing.T) {
	fb := newFakeBackend()
	g, account := newTestGateway(t, fb, kairos)

	to := "0x2222222222222222222222222222222222222222"
	id := "0x" + hex.EncodeToString(common.HexToHash("0x1234").Bytes())
	txHash, err := g.SendNative(context.Background(), 1001, account.Hex(), id, to, big.NewInt(1e18))
	require.NoError(t, err)
	require.Len(t, fb.sent, 1)

	tx := fb.sent[0]
	assert.Equal(t, tx.Hash().Hex(), txHash)
	assert.Equal(t, uint64(3_000_000), tx.Gas())
	assert.Equal(t, "50000000000", tx.GasPrice().String())
	assert.Equal(t, "1000000000000000000", tx.Value().String())
	assert.Equal(t, common.HexToAddress(kairos.PaymentContract), *tx.To())
	assert.Equal(t, paymentContractABI.Methods["sendETH"].ID, tx.Data()[:4])

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1001)), tx)
	require.NoError(t, err)
	assert.Equal(t, account, sender)
}

func TestGateway_GasEstimation(t *testing.T) {
	estimating := *kairos
	estimating.EstimateGas = true

	t.Run("buffered estimate", func(t *testing.T) {
		fb := newFakeBackend()
		fb.estimate = 100_000
		g, account := newTestGateway(t, fb, &estimating)
		_, err := g.Claim(context.Background(), 1001, account.Hex(), "0x01")
		require.NoError(t, err)
		assert.Equal(t, uint64(120_000), fb.sent[0].Gas())
	})

	t.Run("falls back to ceiling", func(t *testing.T) {
		fb := newFakeBackend()
		fb.estimateErr = errors.New("execution reverted")
		g, account := newTestGateway(t, fb, &estimating)
		_, err := g.Reimburse(context.Background(), 1001, account.Hex(), "0x01")
		require.NoError(t, err)
		assert.Equal(t, uint64(3_000_000), fb.sent[0].Gas())
	})
}

func TestGateway_SubmissionErrors(t *testing.T) {
	fb := newFakeBackend()
	g, account := newTestGateway(t, fb, kairos)

	_, err := g.Claim(context.Background(), 1001, "0x9999999999999999999999999999999999999999", "0x01")
	assert.True(t, apperrors.IsSubmissionRejected(err))

	fb.sendErr = errors.New("Error: VM Exception while processing transaction: reverted with reason string 'Not recipient'")
	_, err = g.Claim(context.Background(), 1001, account.Hex(), "0x01")
	require.Error(t, err)
	assert.True(t, apperrors.IsSubmissionRejected(err))
	assert.Equal(t, "Not recipient", err.Error())

	_, err = g.Claim(context.Background(), 56, account.Hex(), "0x01")
	assert.True(t, apperrors.IsUnsupportedNetwork(err))
}

func TestGateway_Receipt(t *testing.T) {
	fb := newFakeBackend()
	g, _ := newTestGateway(t, fb, kairos)

	pending, err := g.Receipt(context.Background(), 1001, "0xaa")
	require.NoError(t, err)
	assert.Equal(t, entities.ReceiptPending, pending.Status)

	fb.receipts[common.HexToHash("0xbb")] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(77)}
	reverted, err := g.Receipt(context.Background(), 1001, "0xbb")
	require.NoError(t, err)
	assert.Equal(t, entities.ReceiptReverted, reverted.Status)
	assert.Equal(t, uint64(77), reverted.BlockNumber)
}

type rpcDataErr struct {
	msg  string
	data interface{}
}

func (e rpcDataErr) Error() string          { return e.msg }
func (e rpcDataErr) ErrorData() interface{} { return e.data }

func TestRevertReason(t *testing.T) {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	encoded, err := abi.Arguments{{Type: stringType}}.Pack("Payment already claimed")
	require.NoError(t, err)
	payload := "0x08c379a0" + hex.EncodeToString(encoded)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"abi encoded data", rpcDataErr{msg: "execution reverted", data: payload}, "Payment already claimed"},
		{"hardhat message", errors.New("reverted with reason string 'Only sender can reimburse'"), "Only sender can reimburse"},
		{"geth message", errors.New("execution reverted: Not recipient"), "Not recipient"},
		{"raw", errors.New("insufficient funds for gas * price + value"), "insufficient funds for gas * price + value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RevertReason(tt.err))
		})
	}
}

func TestNewKeystore(t *testing.T) {
	_, err := NewKeystore(config.SignerConfig{PrivateKeys: []string{"not-hex"}})
	assert.Error(t, err)

	ks, err := NewKeystore(config.SignerConfig{PrivateKeys: []string{"0x" + testKey, " "}})
	require.NoError(t, err)
	assert.Len(t, ks.Accounts(), 1)

	sealed, err := crypto.Encrypt(testKey, "passphrase")
	require.NoError(t, err)
	ks, err = NewKeystore(config.SignerConfig{PrivateKeys: []string{sealed}, Encrypted: true, EncryptionKey: "passphrase"})
	require.NoError(t, err)
	assert.Len(t, ks.Accounts(), 1)

	_, err = NewKeystore(config.SignerConfig{PrivateKeys: []string{sealed}, Encrypted: true, EncryptionKey: "wrong"})
	assert.Error(t, err)
}

func TestKeystore_CanSign(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)
	owned := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	orphan := "0x2222222222222222222222222222222222222222"

	ks, err := NewKeystore(config.SignerConfig{
		PrivateKeys:   []string{testKey},
		AccountOwners: map[string]string{strings.ToLower(owned): "Carol@Example.com"},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		account string
		want    bool
	}{
		{"owner", "carol@example.com", owned, true},
		{"owner lower-case address", "carol@example.com", strings.ToLower(owned), true},
		{"someone else", "mallory@example.com", owned, false},
		{"no email", "", owned, false},
		{"no owner configured", "carol@example.com", orphan, false},
		{"not an address", "carol@example.com", "@carol", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ks.CanSign(tt.email, tt.account))
		})
	}

	_, err = NewKeystore(config.SignerConfig{AccountOwners: map[string]string{"carol": "carol@example.com"}})
	assert.Error(t, err)
}
