package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/payment"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) entities.ErrorResponse {
	t.Helper()
	var resp entities.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type fakeRates struct {
	rate *entities.ExchangeRate
	err  error
}

func (f *fakeRates) GetExchangeRate(_ context.Context, chainID int64, symbol string) (*entities.ExchangeRate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rate, nil
}

type fakeLedger struct {
	payments      []entities.Payment
	listErr       error
	refreshErr    error
	lastRefreshed time.Time
	refreshed     bool
}

func (f *fakeLedger) ListPayments(context.Context, string, int64) ([]entities.Payment, error) {
	return f.payments, f.listErr
}

func (f *fakeLedger) Refresh(context.Context, string, int64) ([]entities.Payment, error) {
	f.refreshed = true
	if f.refreshErr != nil {
		return f.payments, f.refreshErr
	}
	return f.payments, nil
}

func (f *fakeLedger) LastRefreshed(string, int64) time.Time { return f.lastRefreshed }

func (f *fakeLedger) Balance(_ context.Context, account string, chainID int64, token string) (*entities.Balance, error) {
	return &entities.Balance{Account: account, ChainID: chainID, Amount: decimal.RequireFromString("12.5")}, nil
}

type fakeExecutor struct {
	lastSend   payment.SendRequest
	lastAction payment.ActionRequest
	confirmErr error
	err        error
	actions    map[uuid.UUID]*entities.PaymentAction
}

func (f *fakeExecutor) handle(kind entities.ActionKind, account string, chainID int64) (*payment.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	action := entities.NewPaymentAction(kind, account, chainID)
	action.TxHash = "0xfeed"
	action.State = entities.ActionStateConfirmed
	if f.confirmErr != nil {
		action.State = entities.ActionStateFailed
	}
	return payment.ResolvedHandle(*action, f.confirmErr), nil
}

func (f *fakeExecutor) Send(_ context.Context, req payment.SendRequest) (*payment.Handle, error) {
	f.lastSend = req
	return f.handle(entities.ActionKindSend, req.Account, req.ChainID)
}

func (f *fakeExecutor) Claim(_ context.Context, req payment.ActionRequest) (*payment.Handle, error) {
	f.lastAction = req
	return f.handle(entities.ActionKindClaim, req.Account, req.ChainID)
}

func (f *fakeExecutor) Reimburse(_ context.Context, req payment.ActionRequest) (*payment.Handle, error) {
	f.lastAction = req
	return f.handle(entities.ActionKindReimburse, req.Account, req.ChainID)
}

func (f *fakeExecutor) Get(_ context.Context, id uuid.UUID) (*entities.PaymentAction, error) {
	if a, ok := f.actions[id]; ok {
		return a, nil
	}
	return nil, apperrors.NotFoundError("PAYMENT_ACTION")
}

func (f *fakeExecutor) List(_ context.Context, account string, chainID int64, limit int) ([]*entities.PaymentAction, error) {
	var out []*entities.PaymentAction
	for _, a := range f.actions {
		if a.Account == account && a.ChainID == chainID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeResolver struct {
	book map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, input string) (string, error) {
	if addr, ok := f.book[input]; ok {
		return addr, nil
	}
	if len(input) == 42 {
		return input, nil
	}
	return "", apperrors.UnresolvedRecipientError(input)
}

// fakeSigners maps an owner email to the accounts it may spend from.
type fakeSigners map[string][]string

func (f fakeSigners) CanSign(email, account string) bool {
	for _, a := range f[strings.ToLower(email)] {
		if strings.EqualFold(a, account) {
			return true
		}
	}
	return false
}

const caller = "carol@example.com"

func withCaller(email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if email != "" {
			c.Set("user_email", email)
		}
		c.Next()
	}
}

func newPaymentRouter(rates RateService, ledger LedgerReader, exec ActionExecutor) *gin.Engine {
	signers := fakeSigners{caller: {alice, bob}}
	h := NewPaymentHandlers(rates, ledger, exec, &fakeResolver{book: map[string]string{"@bob": bob}}, signers, zap.NewNop())
	r := gin.New()
	r.Use(withCaller(caller))
	r.GET("/rates/:chainId/:symbol", h.GetRate)
	r.GET("/payments/:chainId/:account", h.ListPayments)
	r.GET("/balances/:chainId/:account/:token", h.GetBalance)
	r.POST("/payments/send", h.Send)
	r.POST("/payments/claim", h.Claim)
	r.POST("/payments/reimburse", h.Reimburse)
	r.GET("/actions", h.ListActions)
	r.GET("/actions/:id", h.GetAction)
	return r
}

func TestGetRate(t *testing.T) {
	rates := &fakeRates{rate: &entities.ExchangeRate{
		Symbol: "KAIA", ChainID: 1001, Rate: decimal.NewFromInt(10), Source: entities.RateSourceStaticFallback,
	}}
	r := newPaymentRouter(rates, &fakeLedger{}, &fakeExecutor{})

	w := doRequest(r, http.MethodGet, "/rates/1001/KAIA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"KAIA"`)

	w = doRequest(r, http.MethodGet, "/rates/abc/KAIA", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidChain, decodeError(t, w).Code)
}

func TestGetRate_UnsupportedNetwork(t *testing.T) {
	r := newPaymentRouter(&fakeRates{err: apperrors.UnsupportedNetworkError(7)}, &fakeLedger{}, &fakeExecutor{})

	w := doRequest(r, http.MethodGet, "/rates/7/ETH", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPayments(t *testing.T) {
	ledger := &fakeLedger{payments: []entities.Payment{{PaymentID: "0x01", From: alice, To: bob}}}
	r := newPaymentRouter(&fakeRates{}, ledger, &fakeExecutor{})

	w := doRequest(r, http.MethodGet, "/payments/1001/"+alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp entities.PaymentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Payments, 1)
	assert.False(t, resp.Stale)
	assert.False(t, ledger.refreshed)
}

func TestListPayments_StaleAfterFailedRefresh(t *testing.T) {
	ledger := &fakeLedger{
		payments:      []entities.Payment{{PaymentID: "0x01"}},
		refreshErr:    apperrors.LedgerReadError(1001, errors.New("rpc timeout")),
		lastRefreshed: time.Now().Add(-time.Minute),
	}
	r := newPaymentRouter(&fakeRates{}, ledger, &fakeExecutor{})

	w := doRequest(r, http.MethodGet, "/payments/1001/"+alice+"?refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp entities.PaymentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, ledger.refreshed)
	assert.True(t, resp.Stale)
	assert.NotEmpty(t, resp.Error)
	assert.Len(t, resp.Payments, 1)
}

func TestListPayments_FirstScanFails(t *testing.T) {
	ledger := &fakeLedger{listErr: apperrors.LedgerReadError(1001, errors.New("rpc timeout"))}
	r := newPaymentRouter(&fakeRates{}, ledger, &fakeExecutor{})

	w := doRequest(r, http.MethodGet, "/payments/1001/"+alice, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetBalance(t *testing.T) {
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, &fakeExecutor{})

	w := doRequest(r, http.MethodGet, "/balances/1001/"+alice+"/KAIA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":"12.5"`)
}

func TestSend_ResolvesNickname(t *testing.T) {
	exec := &fakeExecutor{}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

	w := doRequest(r, http.MethodPost, "/payments/send", gin.H{
		"account":   alice,
		"chainId":   1001,
		"reference": "PAYROLL-2026-03",
		"recipient": "@bob",
		"amount":    "1.5",
	})

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, bob, exec.lastSend.Recipient)
	assert.True(t, decimal.RequireFromString("1.5").Equal(exec.lastSend.Amount))
	assert.Contains(t, w.Body.String(), `"transactionHash":"0xfeed"`)
}

func TestSend_UnknownNickname(t *testing.T) {
	exec := &fakeExecutor{}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

	w := doRequest(r, http.MethodPost, "/payments/send", gin.H{
		"account": alice, "chainId": 1001, "reference": "x", "recipient": "@nobody", "amount": "1",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, exec.lastSend.Account)
}

func TestSend_MissingFields(t *testing.T) {
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, &fakeExecutor{})

	w := doRequest(r, http.MethodPost, "/payments/send", gin.H{"account": alice})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidRequest, decodeError(t, w).Code)
}

func TestSend_WaitForConfirmation(t *testing.T) {
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, &fakeExecutor{})
	body := gin.H{"account": alice, "chainId": 1001, "reference": "x", "recipient": bob, "amount": "1"}

	w := doRequest(r, http.MethodPost, "/payments/send?wait=true", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"confirmed"`)
}

func TestSend_WaitReverted(t *testing.T) {
	exec := &fakeExecutor{confirmErr: apperrors.ConfirmationError("0xfeed", "transaction reverted")}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)
	body := gin.H{"account": alice, "chainId": 1001, "reference": "x", "recipient": bob, "amount": "1"}

	w := doRequest(r, http.MethodPost, "/payments/send?wait=true", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPaymentActions_AccountNotOwned(t *testing.T) {
	const stranger = "0x4444444444444444444444444444444444444444"
	tests := []struct {
		name string
		path string
		body gin.H
	}{
		{"send", "/payments/send", gin.H{"account": stranger, "chainId": 1001, "reference": "x", "recipient": bob, "amount": "1"}},
		{"claim", "/payments/claim", gin.H{"account": stranger, "chainId": 1001, "paymentId": "0x01"}},
		{"reimburse", "/payments/reimburse", gin.H{"account": stranger, "chainId": 1001, "paymentId": "0x01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

			w := doRequest(r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, ErrCodeForbidden, decodeError(t, w).Code)
			assert.Empty(t, exec.lastSend.Account)
			assert.Empty(t, exec.lastAction.Account)
		})
	}
}

func TestClaim_InvalidState(t *testing.T) {
	exec := &fakeExecutor{err: apperrors.InvalidStateError("0x01", "payment is already claimed")}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

	w := doRequest(r, http.MethodPost, "/payments/claim", gin.H{"account": bob, "chainId": 1001, "paymentId": "0x01"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReimburse(t *testing.T) {
	exec := &fakeExecutor{}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

	w := doRequest(r, http.MethodPost, "/payments/reimburse", gin.H{"account": alice, "chainId": 1001, "paymentId": "0x01"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "0x01", exec.lastAction.PaymentID)
	assert.Contains(t, w.Body.String(), `"kind":"reimburse"`)
}

func TestGetAction(t *testing.T) {
	action := entities.NewPaymentAction(entities.ActionKindSend, alice, 1001)
	exec := &fakeExecutor{actions: map[uuid.UUID]*entities.PaymentAction{action.ID: action}}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

	w := doRequest(r, http.MethodGet, "/actions/"+action.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/actions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/actions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidID, decodeError(t, w).Code)
}

func TestListActions(t *testing.T) {
	action := entities.NewPaymentAction(entities.ActionKindSend, alice, 1001)
	exec := &fakeExecutor{actions: map[uuid.UUID]*entities.PaymentAction{action.ID: action}}
	r := newPaymentRouter(&fakeRates{}, &fakeLedger{}, exec)

	w := doRequest(r, http.MethodGet, "/actions?account="+alice+"&chainId=1001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var actions []entities.PaymentAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actions))
	assert.Len(t, actions, 1)

	w = doRequest(r, http.MethodGet, "/actions?account="+bob+"&chainId=1001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = doRequest(r, http.MethodGet, "/actions?account="+alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/actions?account="+alice+"&chainId=1001&limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
