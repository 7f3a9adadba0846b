// Package settlement pays invoices and split-bill shares on-chain and records
// the outcome with the backend.
package settlement

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/network"
	"github.com/zynpay/zynpay_service/internal/domain/services/payment"
	"github.com/zynpay/zynpay_service/pkg/tracing"
)

const tracerName = "settlement.coordinator"

// Backend is the part of the backend record store settlement needs.
type Backend interface {
	GetInvoice(ctx context.Context, id string) (*entities.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status entities.InvoicePaymentStatus, txHash string) (*entities.Invoice, error)
	CreateSplit(ctx context.Context, req *backend.CreateSplitRequest) (*entities.SplitBill, error)
	GetSplitBySplitID(ctx context.Context, splitID string) (*entities.SplitBill, error)
	UpdateParticipantPayment(ctx context.Context, splitID, email, txHash string) (*backend.SplitUpdate, error)
	ListParticipatingSplits(ctx context.Context) ([]entities.SplitBill, error)
}

// RateResolver converts USD to token units.
type RateResolver interface {
	GetExchangeRate(ctx context.Context, chainID int64, symbol string) (*entities.ExchangeRate, error)
}

// BalanceReader reads the payer's holding before anything is submitted.
type BalanceReader interface {
	Balance(ctx context.Context, account string, chainID int64, token string) (*entities.Balance, error)
}

// Payments submits the approve and send transactions.
type Payments interface {
	Send(ctx context.Context, req payment.SendRequest) (*payment.Handle, error)
	EnsureAllowance(ctx context.Context, account string, chainID int64, token string, amount decimal.Decimal) error
}

// ReceiptSource lets the coordinator resume a marker whose watcher is gone.
type ReceiptSource interface {
	Receipt(ctx context.Context, chainID int64, txHash string) (*entities.TxReceipt, error)
}

// Alerter is told when a payment went through but the backend record did not.
type Alerter interface {
	SendReconciliationAlert(ctx context.Context, rec *entities.Reconciliation, cause error) error
}

// Config bounds the background reconciliation.
type Config struct {
	// MaxAttempts is how many backend updates are tried before a marker is
	// marked failed and left for support.
	MaxAttempts int
	// StaleAfter fails a pending_confirmation marker whose transaction never
	// appeared on chain.
	StaleAfter time.Duration
}

// PayInvoiceRequest pays one invoice from Account.
type PayInvoiceRequest struct {
	InvoiceID string `json:"invoiceId"`
	Account   string `json:"account" binding:"required"`
	ChainID   int64  `json:"chainId" binding:"required"`
	// Token is a symbol or address; empty pays in the native currency.
	Token string `json:"token"`
}

// PaySplitShareRequest pays one participant's share of a split bill.
type PaySplitShareRequest struct {
	SplitID          string `json:"splitId"`
	ParticipantEmail string `json:"participantEmail" binding:"required,email"`
	Account          string `json:"account" binding:"required"`
	ChainID          int64  `json:"chainId" binding:"required"`
	Token            string `json:"token"`
}

// Result describes a settled payment.
type Result struct {
	Action         entities.PaymentAction   `json:"action"`
	Rate           *entities.ExchangeRate   `json:"rate"`
	AmountUSD      decimal.Decimal          `json:"amountUsd"`
	TokenAmount    decimal.Decimal          `json:"tokenAmount"`
	Token          entities.TokenDescriptor `json:"token"`
	Reconciliation *entities.Reconciliation `json:"reconciliation"`
	Invoice        *entities.Invoice        `json:"invoice,omitempty"`
	Splits         []entities.SplitBill     `json:"splits,omitempty"`
	AllPaid        bool                     `json:"allPaid,omitempty"`
}

// Coordinator implements the Invoice/Split-Bill Settlement Coordinator.
type Coordinator struct {
	registry *network.Registry
	backend  Backend
	rates    RateResolver
	balances BalanceReader
	payments Payments
	receipts ReceiptSource
	store    ReconciliationStore
	alerter  Alerter
	config   Config
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator. alerter may be nil.
func NewCoordinator(
	registry *network.Registry,
	backend Backend,
	rates RateResolver,
	balances BalanceReader,
	payments Payments,
	receipts ReceiptSource,
	store ReconciliationStore,
	alerter Alerter,
	config Config,
	logger *zap.Logger,
) *Coordinator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 30 * time.Minute
	}
	return &Coordinator{
		registry: registry,
		backend:  backend,
		rates:    rates,
		balances: balances,
		payments: payments,
		receipts: receipts,
		store:    store,
		alerter:  alerter,
		config:   config,
		logger:   logger,
	}
}

// PayInvoice converts the invoice's USD amount at the current rate, pays it to
// the invoice wallet and marks the invoice paid.
func (c *Coordinator) PayInvoice(ctx context.Context, req PayInvoiceRequest) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "PayInvoice",
		attribute.String("invoice_id", req.InvoiceID),
		attribute.Int64("chain_id", req.ChainID))
	defer func() { tracing.EndSpan(span, err) }()

	if strings.TrimSpace(req.InvoiceID) == "" {
		return nil, apperrors.ValidationError("invoiceId", "invoice id is required")
	}
	if !payment.IsAddress(req.Account) {
		return nil, apperrors.ValidationError("account", "account must be a 0x-prefixed 20-byte address")
	}

	invoice, err := c.backend.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, backendError("INVOICE", err)
	}
	if !invoice.IsPayable() {
		return nil, apperrors.ConflictError("INVOICE", fmt.Sprintf("invoice is %s", invoice.PaymentStatus))
	}
	if !payment.IsAddress(invoice.WalletAddress) {
		return nil, apperrors.ValidationError("walletAddress", "invoice has no valid payout wallet")
	}

	reference := fmt.Sprintf("INV-%s-%d", invoice.ID, time.Now().UnixMilli())
	result, err = c.pay(ctx, payTarget{
		kind:      entities.ReconciliationInvoice,
		recordID:  invoice.ID,
		account:   req.Account,
		chainID:   req.ChainID,
		token:     req.Token,
		recipient: invoice.WalletAddress,
		amountUSD: invoice.Amount,
		reference: reference,
	})
	if err != nil {
		return nil, err
	}

	if result.Invoice == nil {
		invoice.PaymentStatus = entities.InvoicePaid
		invoice.TransactionHash = result.Action.TxHash
		result.Invoice = invoice
	}
	return result, nil
}

// PaySplitShare pays ParticipantEmail's share to the split initiator, records
// it and returns the caller's refreshed participating splits.
func (c *Coordinator) PaySplitShare(ctx context.Context, req PaySplitShareRequest) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "PaySplitShare",
		attribute.String("split_id", req.SplitID),
		attribute.Int64("chain_id", req.ChainID))
	defer func() { tracing.EndSpan(span, err) }()

	if strings.TrimSpace(req.SplitID) == "" {
		return nil, apperrors.ValidationError("splitId", "split id is required")
	}
	if strings.TrimSpace(req.ParticipantEmail) == "" {
		return nil, apperrors.ValidationError("participantEmail", "participant email is required")
	}
	if !payment.IsAddress(req.Account) {
		return nil, apperrors.ValidationError("account", "account must be a 0x-prefixed 20-byte address")
	}

	split, err := c.backend.GetSplitBySplitID(ctx, req.SplitID)
	if err != nil {
		return nil, backendError("SPLIT_BILL", err)
	}
	if split.Status != entities.SplitActive && split.Status != "" {
		return nil, apperrors.ConflictError("SPLIT_BILL", fmt.Sprintf("split bill is %s", split.Status))
	}
	participant, ok := split.Participant(req.ParticipantEmail)
	if !ok {
		return nil, apperrors.NotFoundError("PARTICIPANT")
	}
	if participant.Status == entities.ParticipantPaid {
		return nil, apperrors.ConflictError("SPLIT_SHARE", "this share has already been paid")
	}
	if !payment.IsAddress(split.InitiatorWalletAddress) {
		return nil, apperrors.ValidationError("initiatorWalletAddress", "split bill has no valid payout wallet")
	}

	reference := fmt.Sprintf("SPLIT-PAY-%d-%d", time.Now().UnixMilli(), rand.IntN(1000000))
	result, err = c.pay(ctx, payTarget{
		kind:        entities.ReconciliationSplitShare,
		recordID:    split.SplitID,
		participant: participant.Email,
		account:     req.Account,
		chainID:     req.ChainID,
		token:       req.Token,
		recipient:   split.InitiatorWalletAddress,
		amountUSD:   participant.Amount,
		reference:   reference,
	})
	if err != nil {
		return nil, err
	}

	splits, err := c.backend.ListParticipatingSplits(ctx)
	if err != nil {
		c.logger.Warn("Failed to refresh participating splits after payment",
			zap.String("split_id", split.SplitID),
			zap.Error(err))
		return result, nil
	}
	result.Splits = splits
	return result, nil
}

type payTarget struct {
	kind        entities.ReconciliationKind
	recordID    string
	participant string
	account     string
	chainID     int64
	token       string
	recipient   string
	amountUSD   decimal.Decimal
	reference   string
}

// pay runs rate → balance → allowance → send → confirm → backend update, in
// that order. The marker is written as soon as a transaction hash exists.
func (c *Coordinator) pay(ctx context.Context, t payTarget) (*Result, error) {
	if !t.amountUSD.IsPositive() {
		return nil, apperrors.ValidationError("amount", "amount to pay must be greater than zero")
	}
	if err := c.checkNoOpenMarker(ctx, t); err != nil {
		return nil, err
	}

	net, err := c.registry.Network(t.chainID)
	if err != nil {
		return nil, err
	}
	token, err := payment.ResolveToken(net, t.token)
	if err != nil {
		return nil, err
	}

	rate, err := c.rates.GetExchangeRate(ctx, t.chainID, token.Symbol)
	if err != nil {
		return nil, err
	}
	tokenAmount := rate.TokenAmount(t.amountUSD, token.Decimals)
	if !tokenAmount.IsPositive() {
		return nil, apperrors.ValidationError("amount", fmt.Sprintf("amount is below the smallest %s unit", token.Symbol))
	}

	balance, err := c.balances.Balance(ctx, t.account, t.chainID, token.Address)
	if err != nil {
		return nil, err
	}
	if balance.Amount.LessThan(tokenAmount) {
		return nil, apperrors.InsufficientFundsError(balance.Amount.String(), tokenAmount.String(), token.Symbol)
	}

	if !net.IsNative(token) {
		if err := c.payments.EnsureAllowance(ctx, t.account, t.chainID, token.Address, tokenAmount); err != nil {
			return nil, err
		}
	}

	handle, err := c.payments.Send(ctx, payment.SendRequest{
		Account:   t.account,
		ChainID:   t.chainID,
		Reference: t.reference,
		Recipient: t.recipient,
		Amount:    tokenAmount,
		Token:     token.Address,
	})
	if err != nil {
		return nil, err
	}

	rec := entities.NewReconciliation(t.kind, t.recordID, t.participant, t.chainID, handle.TxHash())
	if err := c.store.Create(ctx, rec); err != nil {
		// the transaction is already out, so keep going without a marker
		c.logger.Error("Failed to persist reconciliation marker",
			zap.String("kind", string(t.kind)),
			zap.String("record_id", t.recordID),
			zap.String("tx_hash", handle.TxHash()),
			zap.Error(err))
	}

	c.logger.Info("Settlement payment submitted",
		zap.String("kind", string(t.kind)),
		zap.String("record_id", t.recordID),
		zap.String("reference", t.reference),
		zap.String("token", token.Symbol),
		zap.String("token_amount", tokenAmount.String()),
		zap.String("tx_hash", handle.TxHash()))

	action, err := handle.Wait(ctx)
	if err != nil {
		if apperrors.IsConfirmation(err) {
			c.closeMarker(ctx, rec, entities.ReconciliationFailed, err)
		}
		// Otherwise the caller stopped waiting; the worker finishes the marker.
		return nil, err
	}

	result := &Result{
		Action:         *action,
		Rate:           rate,
		AmountUSD:      t.amountUSD,
		TokenAmount:    tokenAmount,
		Token:          token,
		Reconciliation: rec,
	}

	rec.State = entities.ReconciliationPendingBackend
	if err := c.reconcile(ctx, rec, result); err != nil {
		return nil, err
	}
	return result, nil
}

// checkNoOpenMarker refuses a payment while an earlier one for the same record
// is still waiting to confirm or to be recorded. The backend status alone
// stays pending until reconciliation lands.
func (c *Coordinator) checkNoOpenMarker(ctx context.Context, t payTarget) error {
	rec, err := c.store.FindOpen(ctx, t.kind, t.recordID, t.participant)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return apperrors.ServiceUnavailableError("reconciliation store", err)
	}
	return apperrors.ConflictError(string(t.kind), "a payment for this record is already in flight").
		WithDetails(map[string]interface{}{
			"reconciliation_id": rec.ID.String(),
			"state":             string(rec.State),
			"tx_hash":           rec.TxHash,
		})
}

func backendError(resource string, err error) error {
	if backend.IsNotFound(err) {
		return apperrors.NotFoundError(resource)
	}
	if apiErr, ok := backend.AsAPIError(err); ok && !apiErr.IsRetryable() {
		if apiErr.IsUnauthorized() {
			return apperrors.NewDomainError(apperrors.ErrUnauthorized, "UNAUTHORIZED", apiErr.Message)
		}
		return apperrors.ValidationError(strings.ToLower(resource), apiErr.Message)
	}
	return apperrors.ServiceUnavailableError("backend", err)
}
