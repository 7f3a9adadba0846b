package settlement

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/network"
	"github.com/zynpay/zynpay_service/internal/domain/services/payment"
)

const (
	testChain = int64(1001)
	payer     = "0xAaAaaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"
	payee     = "0xBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb"
	usdtAddr  = "0x2222222222222222222222222222222222222222"
)

type fakeBackend struct {
	mu            sync.Mutex
	invoices      map[string]*entities.Invoice
	splits        map[string]*entities.SplitBill
	updateErrs    []error
	updateCalls   int
	recorded      map[string]string
	createdSplits []*backend.CreateSplitRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		invoices: map[string]*entities.Invoice{},
		splits:   map[string]*entities.SplitBill{},
		recorded: map[string]string{},
	}
}

func (f *fakeBackend) nextUpdateErr() error {
	f.updateCalls++
	if len(f.updateErrs) == 0 {
		return nil
	}
	err := f.updateErrs[0]
	f.updateErrs = f.updateErrs[1:]
	return err
}

func (f *fakeBackend) GetInvoice(ctx context.Context, id string) (*entities.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "Invoice not found"}
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeBackend) UpdateInvoiceStatus(ctx context.Context, id string, status entities.InvoicePaymentStatus, txHash string) (*entities.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextUpdateErr(); err != nil {
		return nil, err
	}
	if prev, ok := f.recorded[id]; ok && prev == txHash {
		return nil, &backend.APIError{StatusCode: http.StatusConflict, Message: "Invoice already paid with this transaction"}
	}
	f.recorded[id] = txHash
	inv := f.invoices[id]
	inv.PaymentStatus = status
	inv.TransactionHash = txHash
	cp := *inv
	return &cp, nil
}

func (f *fakeBackend) CreateSplit(ctx context.Context, req *backend.CreateSplitRequest) (*entities.SplitBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdSplits = append(f.createdSplits, req)
	return &entities.SplitBill{SplitID: "SPLIT-1", InvoiceID: req.InvoiceID, Status: entities.SplitActive}, nil
}

func (f *fakeBackend) GetSplitBySplitID(ctx context.Context, splitID string) (*entities.SplitBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[splitID]
	if !ok {
		return nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "Split bill not found"}
	}
	cp := *s
	cp.Participants = append([]entities.SplitParticipant(nil), s.Participants...)
	return &cp, nil
}

func (f *fakeBackend) UpdateParticipantPayment(ctx context.Context, splitID, email, txHash string) (*backend.SplitUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextUpdateErr(); err != nil {
		return nil, err
	}
	s := f.splits[splitID]
	p, _ := s.Participant(email)
	p.Status = entities.ParticipantPaid
	p.TransactionHash = txHash
	f.recorded[splitID+"|"+email] = txHash
	cp := *s
	return &backend.SplitUpdate{Split: &cp, AllPaid: s.AllPaid()}, nil
}

func (f *fakeBackend) ListParticipatingSplits(ctx context.Context) ([]entities.SplitBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.SplitBill, 0, len(f.splits))
	for _, s := range f.splits {
		out = append(out, *s)
	}
	return out, nil
}

type sent struct {
	method string
	to     string
	token  string
	amount *big.Int
}

type fakeLedger struct {
	mu        sync.Mutex
	sends     []sent
	allowance *big.Int
	receipt   entities.ReceiptStatus
}

func (l *fakeLedger) add(s sent) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends = append(l.sends, s)
	return fmt.Sprintf("0x%064x", len(l.sends)), nil
}

func (l *fakeLedger) HealthCheck(ctx context.Context, chainID int64) error { return nil }
func (l *fakeLedger) SendNative(ctx context.Context, chainID int64, from, paymentID, to string, value *big.Int) (string, error) {
	return l.add(sent{method: "sendETH", to: to, amount: value})
}
func (l *fakeLedger) SendToken(ctx context.Context, chainID int64, from, paymentID, to, token string, amount *big.Int) (string, error) {
	return l.add(sent{method: "sendERC20", to: to, token: token, amount: amount})
}
func (l *fakeLedger) Claim(ctx context.Context, chainID int64, from, paymentID string) (string, error) {
	return l.add(sent{method: "claim"})
}
func (l *fakeLedger) Reimburse(ctx context.Context, chainID int64, from, paymentID string) (string, error) {
	return l.add(sent{method: "reimburse"})
}
func (l *fakeLedger) Approve(ctx context.Context, chainID int64, from, token string, amount *big.Int) (string, error) {
	return l.add(sent{method: "approve", token: token, amount: amount})
}
func (l *fakeLedger) Allowance(ctx context.Context, chainID int64, token, owner string) (*big.Int, error) {
	if l.allowance == nil {
		return big.NewInt(0), nil
	}
	return l.allowance, nil
}
func (l *fakeLedger) Receipt(ctx context.Context, chainID int64, txHash string) (*entities.TxReceipt, error) {
	status := l.receipt
	if status == "" {
		status = entities.ReceiptSucceeded
	}
	return &entities.TxReceipt{TxHash: txHash, Status: status}, nil
}
func (l *fakeLedger) ReplayRevertReason(ctx context.Context, chainID int64, txHash string) string {
	return "Insufficient allowance"
}

func (l *fakeLedger) calls() []sent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sent(nil), l.sends...)
}

type notFound struct{}

func (notFound) FindPayment(ctx context.Context, account string, chainID int64, paymentID string) (*entities.Payment, error) {
	return nil, apperrors.NotFoundError("PAYMENT")
}

func (notFound) LookupPayment(ctx context.Context, chainID int64, paymentID string) (*entities.Payment, error) {
	return nil, apperrors.NotFoundError("PAYMENT")
}

type fixedRate decimal.Decimal

func (r fixedRate) GetExchangeRate(ctx context.Context, chainID int64, symbol string) (*entities.ExchangeRate, error) {
	return &entities.ExchangeRate{Symbol: symbol, ChainID: chainID, Rate: decimal.Decimal(r), Source: entities.RateSourceStaticFallback}, nil
}

type fixedBalance decimal.Decimal

func (b fixedBalance) Balance(ctx context.Context, account string, chainID int64, token string) (*entities.Balance, error) {
	return &entities.Balance{Account: account, ChainID: chainID, Amount: decimal.Decimal(b)}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []entities.Reconciliation
}

func (a *recordingAlerter) SendReconciliationAlert(ctx context.Context, rec *entities.Reconciliation, cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, *rec)
	return nil
}

type harness struct {
	coordinator *Coordinator
	backend     *fakeBackend
	ledger      *fakeLedger
	store       *MemoryReconciliationStore
	alerter     *recordingAlerter
}

func newHarness(t *testing.T, rate, balance string) *harness {
	t.Helper()
	registry := network.NewRegistry(entities.NetworkDescriptor{
		ChainID:        testChain,
		NativeSymbol:   "KAIA",
		NativeDecimals: 18,
		Tokens:         []entities.TokenDescriptor{{Symbol: "USDT", Address: usdtAddr, Decimals: 6}},
	})
	ledger := &fakeLedger{}
	executor := payment.NewExecutor(registry, ledger, notFound{}, payment.NewMemoryActionStore(), payment.Config{
		PollInterval:        2 * time.Millisecond,
		ConfirmationTimeout: time.Second,
	}, zap.NewNop())
	t.Cleanup(executor.Close)

	h := &harness{
		backend: newFakeBackend(),
		ledger:  ledger,
		store:   NewMemoryReconciliationStore(),
		alerter: &recordingAlerter{},
	}
	h.coordinator = NewCoordinator(registry, h.backend,
		fixedRate(decimal.RequireFromString(rate)),
		fixedBalance(decimal.RequireFromString(balance)),
		executor, ledger, h.store, h.alerter, Config{MaxAttempts: 3}, zap.NewNop())
	return h
}

func (h *harness) addInvoice(id, amount string) {
	h.backend.invoices[id] = &entities.Invoice{
		ID:            id,
		Amount:        decimal.RequireFromString(amount),
		WalletAddress: payee,
		PaymentStatus: entities.InvoicePending,
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPayInvoice_NativeAmountReachesLedger(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	h.addInvoice("inv-1", "100")

	result, err := h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-1", Account: payer, ChainID: testChain})
	require.NoError(t, err)

	assert.True(t, result.TokenAmount.Equal(decimal.RequireFromString("1.00")))
	assert.Equal(t, entities.ActionStateConfirmed, result.Action.State)
	assert.Equal(t, entities.ReconciliationReconciled, result.Reconciliation.State)
	assert.Equal(t, entities.InvoicePaid, result.Invoice.PaymentStatus)

	calls := h.ledger.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendETH", calls[0].method)
	assert.Equal(t, payee, calls[0].to)
	assert.Equal(t, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil).String(), calls[0].amount.String())

	assert.Equal(t, result.Action.TxHash, h.backend.recorded["inv-1"])
	assert.True(t, strings.HasPrefix(result.Action.Reference, "INV-inv-1-"))
}

func TestPayInvoice_TokenApprovesThenSends(t *testing.T) {
	h := newHarness(t, "1", "100")
	h.addInvoice("inv-2", "25.5")

	_, err := h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-2", Account: payer, ChainID: testChain, Token: "USDT"})
	require.NoError(t, err)

	calls := h.ledger.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "approve", calls[0].method)
	assert.Equal(t, "sendERC20", calls[1].method)
	assert.Equal(t, usdtAddr, calls[1].token)
	assert.Equal(t, "25500000", calls[1].amount.String())
}

func TestPayInvoice_RejectedBeforeSubmission(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		setup   func(h *harness)
		req     PayInvoiceRequest
		check   func(error) bool
	}{
		{
			name:    "insufficient funds",
			balance: "0.5",
			setup:   func(h *harness) { h.addInvoice("inv", "100") },
			req:     PayInvoiceRequest{InvoiceID: "inv", Account: payer, ChainID: testChain},
			check:   apperrors.IsInsufficientFunds,
		},
		{
			name:    "already paid",
			balance: "10",
			setup: func(h *harness) {
				h.addInvoice("inv", "100")
				h.backend.invoices["inv"].PaymentStatus = entities.InvoicePaid
			},
			req:   PayInvoiceRequest{InvoiceID: "inv", Account: payer, ChainID: testChain},
			check: apperrors.IsConflict,
		},
		{
			name:    "unknown invoice",
			balance: "10",
			setup:   func(h *harness) {},
			req:     PayInvoiceRequest{InvoiceID: "missing", Account: payer, ChainID: testChain},
			check:   apperrors.IsNotFound,
		},
		{
			name:    "unsupported network",
			balance: "10",
			setup:   func(h *harness) { h.addInvoice("inv", "100") },
			req:     PayInvoiceRequest{InvoiceID: "inv", Account: payer, ChainID: 1},
			check:   apperrors.IsUnsupportedNetwork,
		},
		{
			name:    "bad account",
			balance: "10",
			setup:   func(h *harness) { h.addInvoice("inv", "100") },
			req:     PayInvoiceRequest{InvoiceID: "inv", Account: "@me", ChainID: testChain},
			check:   apperrors.IsInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "0.01", tt.balance)
			tt.setup(h)

			_, err := h.coordinator.PayInvoice(testCtx(t), tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), err)
			assert.Empty(t, h.ledger.calls())
		})
	}
}

func TestPayInvoice_RevertFailsMarker(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	h.addInvoice("inv-1", "100")
	h.ledger.receipt = entities.ReceiptReverted

	_, err := h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-1", Account: payer, ChainID: testChain})
	assert.True(t, apperrors.IsConfirmation(err))
	assert.Equal(t, 0, h.backend.updateCalls)

	open, err := h.store.ListOpen(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPayInvoice_BackendFailureAfterConfirmation(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	h.addInvoice("inv-1", "100")
	h.backend.updateErrs = []error{&backend.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}}

	result, err := h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-1", Account: payer, ChainID: testChain})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, apperrors.IsReconciliation(err))

	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "PAID_BUT_UNRECONCILED", de.Code)
	assert.Equal(t, "inv-1", de.Details["record_id"])

	// the payment itself stands
	require.Len(t, h.ledger.calls(), 1)

	open, err := h.store.ListOpen(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	marker := open[0]
	assert.Equal(t, entities.ReconciliationPendingBackend, marker.State)
	assert.Equal(t, 1, marker.Attempts)
	require.Len(t, h.alerter.alerts, 1)

	rec, err := h.coordinator.RetryReconciliation(context.Background(), marker.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ReconciliationReconciled, rec.State)
	assert.Equal(t, marker.TxHash, h.backend.recorded["inv-1"])

	// a second retry is a no-op
	calls := h.backend.updateCalls
	_, err = h.coordinator.RetryReconciliation(context.Background(), marker.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, h.backend.updateCalls)
	require.Len(t, h.ledger.calls(), 1)
}

func TestPayInvoice_OpenMarkerBlocksSecondPayment(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	h.addInvoice("inv-1", "100")
	h.backend.updateErrs = []error{&backend.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}}

	_, err := h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-1", Account: payer, ChainID: testChain})
	require.True(t, apperrors.IsReconciliation(err), err)

	// backend still says pending, the marker is what stops the repeat
	_, err = h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-1", Account: payer, ChainID: testChain})
	require.True(t, apperrors.IsConflict(err), err)
	assert.Len(t, h.ledger.calls(), 1)

	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	open, err := h.store.ListOpen(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, open[0].ID.String(), de.Details["reconciliation_id"])
	assert.Equal(t, open[0].TxHash, de.Details["tx_hash"])

	// once reconciled the invoice is paid and the backend guard takes over
	_, err = h.coordinator.RetryReconciliation(context.Background(), open[0].ID)
	require.NoError(t, err)
	_, err = h.coordinator.PayInvoice(testCtx(t), PayInvoiceRequest{InvoiceID: "inv-1", Account: payer, ChainID: testChain})
	assert.True(t, apperrors.IsConflict(err))
	assert.Len(t, h.ledger.calls(), 1)
}

func TestPaySplitShare_OpenMarkerIsPerParticipant(t *testing.T) {
	h := newHarness(t, "1", "100")
	h.addSplit()
	h.backend.splits["SPLIT-PAY"].Participants[1].Status = entities.ParticipantPending
	h.backend.updateErrs = []error{&backend.APIError{StatusCode: http.StatusBadGateway, Message: "down"}}

	req := PaySplitShareRequest{SplitID: "SPLIT-PAY", ParticipantEmail: "bob@example.com", Account: payer, ChainID: testChain}
	_, err := h.coordinator.PaySplitShare(testCtx(t), req)
	require.True(t, apperrors.IsReconciliation(err), err)
	sends := len(h.ledger.calls())

	req.ParticipantEmail = "BOB@example.com"
	_, err = h.coordinator.PaySplitShare(testCtx(t), req)
	assert.True(t, apperrors.IsConflict(err))
	assert.Len(t, h.ledger.calls(), sends)

	req.ParticipantEmail = "eve@example.com"
	_, err = h.coordinator.PaySplitShare(testCtx(t), req)
	require.NoError(t, err)
	assert.Len(t, h.ledger.calls(), sends+1)
}

func TestMemoryReconciliationStore_OneOpenMarkerPerRecord(t *testing.T) {
	store := NewMemoryReconciliationStore()
	ctx := context.Background()

	first := entities.NewReconciliation(entities.ReconciliationSplitShare, "SPLIT-1", "bob@example.com", testChain, "0x1")
	require.NoError(t, store.Create(ctx, first))
	dup := entities.NewReconciliation(entities.ReconciliationSplitShare, "SPLIT-1", "Bob@Example.com", testChain, "0x2")
	assert.True(t, apperrors.IsConflict(store.Create(ctx, dup)))

	found, err := store.FindOpen(ctx, entities.ReconciliationSplitShare, "SPLIT-1", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	first.State = entities.ReconciliationReconciled
	require.NoError(t, store.Update(ctx, first))
	_, err = store.FindOpen(ctx, entities.ReconciliationSplitShare, "SPLIT-1", "bob@example.com")
	assert.True(t, apperrors.IsNotFound(err))
	require.NoError(t, store.Create(ctx, dup))
}

func TestRetryReconciliation_ConflictMeansRecorded(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	rec := entities.NewReconciliation(entities.ReconciliationInvoice, "inv-9", "", testChain, "0xabc")
	rec.State = entities.ReconciliationPendingBackend
	require.NoError(t, h.store.Create(context.Background(), rec))
	h.backend.updateErrs = []error{&backend.APIError{StatusCode: http.StatusConflict, Message: "already paid"}}

	got, err := h.coordinator.RetryReconciliation(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ReconciliationReconciled, got.State)
}

func TestRetryReconciliation_GivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	rec := entities.NewReconciliation(entities.ReconciliationInvoice, "inv-9", "", testChain, "0xabc")
	rec.State = entities.ReconciliationPendingBackend
	require.NoError(t, h.store.Create(context.Background(), rec))
	fail := &backend.APIError{StatusCode: http.StatusBadGateway, Message: "down"}
	h.backend.updateErrs = []error{fail, fail, fail}

	for i := 0; i < 3; i++ {
		_, err := h.coordinator.RetryReconciliation(context.Background(), rec.ID)
		assert.True(t, apperrors.IsReconciliation(err))
	}
	got, err := h.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ReconciliationFailed, got.State)
	assert.Equal(t, 3, got.Attempts)
	assert.Len(t, h.alerter.alerts, 2)
}

func TestResume_PendingConfirmation(t *testing.T) {
	h := newHarness(t, "0.01", "5")
	h.addInvoice("inv-1", "100")

	confirmed := entities.NewReconciliation(entities.ReconciliationInvoice, "inv-1", "", testChain, "0xaaa")
	require.NoError(t, h.store.Create(context.Background(), confirmed))
	require.NoError(t, h.coordinator.Resume(context.Background(), confirmed))
	assert.Equal(t, entities.ReconciliationReconciled, confirmed.State)
	assert.Equal(t, "0xaaa", h.backend.recorded["inv-1"])

	h.ledger.receipt = entities.ReceiptPending
	stale := entities.NewReconciliation(entities.ReconciliationInvoice, "inv-2", "", testChain, "0xbbb")
	stale.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, h.store.Create(context.Background(), stale))
	require.NoError(t, h.coordinator.Resume(context.Background(), stale))
	assert.Equal(t, entities.ReconciliationFailed, stale.State)

	fresh := entities.NewReconciliation(entities.ReconciliationInvoice, "inv-3", "", testChain, "0xccc")
	require.NoError(t, h.store.Create(context.Background(), fresh))
	require.NoError(t, h.coordinator.Resume(context.Background(), fresh))
	assert.Equal(t, entities.ReconciliationPendingConfirmation, fresh.State)
}

func (h *harness) addSplit() {
	h.backend.splits["SPLIT-PAY"] = &entities.SplitBill{
		SplitID:                "SPLIT-PAY",
		InitiatorWalletAddress: payee,
		Status:                 entities.SplitActive,
		Participants: []entities.SplitParticipant{
			{Nickname: "bob", Email: "bob@example.com", Amount: decimal.RequireFromString("30"), Status: entities.ParticipantPending},
			{Nickname: "eve", Email: "eve@example.com", Amount: decimal.RequireFromString("20"), Status: entities.ParticipantPaid},
		},
	}
}

func TestPaySplitShare(t *testing.T) {
	h := newHarness(t, "1", "100")
	h.addSplit()

	result, err := h.coordinator.PaySplitShare(testCtx(t), PaySplitShareRequest{
		SplitID:          "SPLIT-PAY",
		ParticipantEmail: "BOB@example.com",
		Account:          payer,
		ChainID:          testChain,
		Token:            "USDT",
	})
	require.NoError(t, err)

	assert.True(t, result.AllPaid)
	assert.Len(t, result.Splits, 1)
	assert.True(t, strings.HasPrefix(result.Action.Reference, "SPLIT-PAY-"))

	calls := h.ledger.calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "sendERC20", last.method)
	assert.Equal(t, payee, last.to)
	assert.Equal(t, "30000000", last.amount.String())
	assert.Equal(t, result.Action.TxHash, h.backend.recorded["SPLIT-PAY|bob@example.com"])
}

func TestPaySplitShare_AlreadyPaid(t *testing.T) {
	h := newHarness(t, "1", "100")
	h.addSplit()

	_, err := h.coordinator.PaySplitShare(testCtx(t), PaySplitShareRequest{
		SplitID:          "SPLIT-PAY",
		ParticipantEmail: "eve@example.com",
		Account:          payer,
		ChainID:          testChain,
	})
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, h.ledger.calls())

	_, err = h.coordinator.PaySplitShare(testCtx(t), PaySplitShareRequest{
		SplitID:          "SPLIT-PAY",
		ParticipantEmail: "nobody@example.com",
		Account:          payer,
		ChainID:          testChain,
	})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestExchangeRate_RoundTripWithinTokenPrecision(t *testing.T) {
	cases := []struct {
		rate     string
		decimals uint8
	}{
		{"0.0005", 18},
		{"0.001", 18},
		{"10", 18},
		{"1", 6},
		{"0.9998", 6},
		{"3.3333", 8},
	}
	amounts := []string{"0.01", "1", "19.99", "100", "1234.56"}

	for _, c := range cases {
		rate := &entities.ExchangeRate{Rate: decimal.RequireFromString(c.rate)}
		tolerance := decimal.New(1, -int32(c.decimals))
		for _, a := range amounts {
			usd := decimal.RequireFromString(a)
			tokens := rate.TokenAmount(usd, c.decimals)
			back := rate.USDValue(tokens)

			drift := back.Mul(rate.Rate).Sub(usd.Mul(rate.Rate)).Abs()
			assert.True(t, drift.LessThanOrEqual(tolerance),
				"rate %s decimals %d usd %s drifted %s", c.rate, c.decimals, a, drift)
		}
	}
}
