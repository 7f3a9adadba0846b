// Package payment submits send, claim, reimburse and approve transactions to the
// payment contract and tracks each one to an on-chain outcome.
package payment

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/network"
	"github.com/zynpay/zynpay_service/pkg/metrics"
)

// Ledger is the write side of the payment contract plus what is needed to
// follow a transaction.
type Ledger interface {
	HealthCheck(ctx context.Context, chainID int64) error
	SendNative(ctx context.Context, chainID int64, from, paymentID, to string, value *big.Int) (string, error)
	SendToken(ctx context.Context, chainID int64, from, paymentID, to, token string, amount *big.Int) (string, error)
	Claim(ctx context.Context, chainID int64, from, paymentID string) (string, error)
	Reimburse(ctx context.Context, chainID int64, from, paymentID string) (string, error)
	Approve(ctx context.Context, chainID int64, from, token string, amount *big.Int) (string, error)
	Allowance(ctx context.Context, chainID int64, token, owner string) (*big.Int, error)
	Receipt(ctx context.Context, chainID int64, txHash string) (*entities.TxReceipt, error)
	ReplayRevertReason(ctx context.Context, chainID int64, txHash string) string
}

// PaymentFinder serves the pre-submission checks for claim and reimburse.
// FindPayment searches the account's own view; LookupPayment searches the
// whole scan window by id.
type PaymentFinder interface {
	FindPayment(ctx context.Context, account string, chainID int64, paymentID string) (*entities.Payment, error)
	LookupPayment(ctx context.Context, chainID int64, paymentID string) (*entities.Payment, error)
}

// ConfirmationListener is notified after an action confirms.
type ConfirmationListener interface {
	OnConfirmed(ctx context.Context, action *entities.PaymentAction)
}

// SendRequest asks for a new escrowed payment.
type SendRequest struct {
	Account   string          `json:"account" binding:"required"`
	ChainID   int64           `json:"chainId" binding:"required"`
	Reference string          `json:"reference" binding:"required"`
	Recipient string          `json:"recipient" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	// Token is a symbol or contract address. Empty means the native currency.
	Token string `json:"token"`
}

// ActionRequest identifies a payment to claim or reimburse.
type ActionRequest struct {
	Account   string `json:"account" binding:"required"`
	ChainID   int64  `json:"chainId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
}

// Config controls confirmation polling.
type Config struct {
	PollInterval        time.Duration
	ConfirmationTimeout time.Duration
}

// Executor implements the Payment Action Executor.
type Executor struct {
	registry  *network.Registry
	ledger    Ledger
	payments  PaymentFinder
	store     ActionStore
	listeners []ConfirmationListener
	config    Config
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor creates an executor. Confirmation watchers run until Close.
func NewExecutor(registry *network.Registry, ledger Ledger, payments PaymentFinder, store ActionStore, config Config, logger *zap.Logger) *Executor {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.ConfirmationTimeout <= 0 {
		config.ConfirmationTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		registry: registry,
		ledger:   ledger,
		payments: payments,
		store:    store,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddListener registers l for confirmed actions. Call before serving traffic.
func (e *Executor) AddListener(l ConfirmationListener) {
	e.listeners = append(e.listeners, l)
}

// Close stops every confirmation watcher and waits for them to exit.
func (e *Executor) Close() {
	e.cancel()
	e.wg.Wait()
}

// Send escrows Amount of Token for Recipient under a freshly derived payment id.
func (e *Executor) Send(ctx context.Context, req SendRequest) (*Handle, error) {
	if !IsAddress(req.Account) {
		return nil, apperrors.ValidationError("account", "account must be a 0x-prefixed 20-byte address")
	}
	if !IsAddress(req.Recipient) {
		return nil, apperrors.ValidationError("recipient", "recipient must be a 0x-prefixed 20-byte address")
	}
	if !req.Amount.IsPositive() {
		return nil, apperrors.ValidationError("amount", "amount must be greater than zero")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, apperrors.ValidationError("reference", "reference is required")
	}

	net, err := e.registry.Network(req.ChainID)
	if err != nil {
		return nil, err
	}
	token, err := ResolveToken(net, req.Token)
	if err != nil {
		return nil, err
	}
	units, err := ToBaseUnits(req.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.HealthCheck(ctx, req.ChainID); err != nil {
		return nil, err
	}

	action := entities.NewPaymentAction(entities.ActionKindSend, req.Account, req.ChainID)
	action.PaymentID = DerivePaymentID(req.Reference)
	action.Reference = req.Reference
	action.Recipient = req.Recipient
	action.Amount = req.Amount
	action.TokenAddress = token.Address

	native := net.IsNative(token)
	return e.submit(ctx, net, action, func(ctx context.Context) (string, error) {
		if native {
			return e.ledger.SendNative(ctx, req.ChainID, req.Account, action.PaymentID, req.Recipient, units)
		}
		return e.ledger.SendToken(ctx, req.ChainID, req.Account, action.PaymentID, req.Recipient, token.Address, units)
	})
}

// Claim releases an escrowed payment to its recipient. Only the recipient may
// claim, and only while the payment is SENT.
func (e *Executor) Claim(ctx context.Context, req ActionRequest) (*Handle, error) {
	return e.settle(ctx, entities.ActionKindClaim, req)
}

// Reimburse returns an unclaimed payment to its sender.
func (e *Executor) Reimburse(ctx context.Context, req ActionRequest) (*Handle, error) {
	return e.settle(ctx, entities.ActionKindReimburse, req)
}

func (e *Executor) settle(ctx context.Context, kind entities.ActionKind, req ActionRequest) (*Handle, error) {
	if !IsAddress(req.Account) {
		return nil, apperrors.ValidationError("account", "account must be a 0x-prefixed 20-byte address")
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		return nil, apperrors.ValidationError("paymentId", "payment id is required")
	}
	net, err := e.registry.Network(req.ChainID)
	if err != nil {
		return nil, err
	}
	paymentID := NormalizePaymentID(req.PaymentID)

	if err := e.checkSettlement(ctx, kind, req.Account, req.ChainID, paymentID); err != nil {
		return nil, err
	}

	if err := e.ledger.HealthCheck(ctx, req.ChainID); err != nil {
		return nil, err
	}

	action := entities.NewPaymentAction(kind, req.Account, req.ChainID)
	action.PaymentID = paymentID

	return e.submit(ctx, net, action, func(ctx context.Context) (string, error) {
		if kind == entities.ActionKindClaim {
			return e.ledger.Claim(ctx, req.ChainID, req.Account, paymentID)
		}
		return e.ledger.Reimburse(ctx, req.ChainID, req.Account, paymentID)
	})
}

// checkSettlement rejects claims by non-recipients, reimbursements by
// non-senders and anything already terminal. A payment outside the scan window
// is left to the contract to judge.
func (e *Executor) checkSettlement(ctx context.Context, kind entities.ActionKind, account string, chainID int64, paymentID string) error {
	p, err := e.payments.FindPayment(ctx, account, chainID, paymentID)
	if apperrors.IsNotFound(err) {
		// not in the caller's view, so either someone else's payment or too old
		p, err = e.payments.LookupPayment(ctx, chainID, paymentID)
	}
	if err != nil {
		if apperrors.IsNotFound(err) {
			e.logger.Info("Payment not in scan window, deferring to ledger",
				zap.String("payment_id", paymentID),
				zap.String("kind", string(kind)))
			return nil
		}
		return err
	}

	if p.Status != entities.PaymentStatusSent {
		return apperrors.InvalidStateError(paymentID, fmt.Sprintf("payment is already %s", p.Status))
	}
	switch kind {
	case entities.ActionKindClaim:
		if !p.IsRecipient(account) {
			return apperrors.InvalidStateError(paymentID, "only the recipient can claim this payment")
		}
	case entities.ActionKindReimburse:
		if !p.IsSender(account) {
			return apperrors.InvalidStateError(paymentID, "only the sender can reimburse this payment")
		}
	}
	return nil
}

// EnsureAllowance approves the payment contract for amount of token when the
// current allowance is short, and waits for the approval to confirm. Native
// currency needs no allowance.
func (e *Executor) EnsureAllowance(ctx context.Context, account string, chainID int64, token string, amount decimal.Decimal) error {
	net, err := e.registry.Network(chainID)
	if err != nil {
		return err
	}
	desc, err := ResolveToken(net, token)
	if err != nil {
		return err
	}
	if net.IsNative(desc) {
		return nil
	}
	units, err := ToBaseUnits(amount, desc.Decimals)
	if err != nil {
		return err
	}

	current, err := e.ledger.Allowance(ctx, chainID, desc.Address, account)
	if err != nil {
		return apperrors.ServiceUnavailableError("ledger", err)
	}
	if current.Cmp(units) >= 0 {
		return nil
	}

	action := entities.NewPaymentAction(entities.ActionKindApprove, account, chainID)
	action.Amount = amount
	action.TokenAddress = desc.Address

	handle, err := e.submit(ctx, net, action, func(ctx context.Context) (string, error) {
		return e.ledger.Approve(ctx, chainID, account, desc.Address, units)
	})
	if err != nil {
		return err
	}
	_, err = handle.Wait(ctx)
	return err
}

// List returns an account's recent actions on one network, newest first.
func (e *Executor) List(ctx context.Context, account string, chainID int64, limit int) ([]*entities.PaymentAction, error) {
	if !IsAddress(account) {
		return nil, apperrors.ValidationError("account", "account must be a 0x-prefixed 20-byte address")
	}
	net, err := e.registry.Network(chainID)
	if err != nil {
		return nil, err
	}
	actions, err := e.store.ListByAccount(ctx, account, chainID, limit)
	if err != nil {
		return nil, apperrors.InternalError("failed to list payment actions", err)
	}
	for _, a := range actions {
		if a.TxHash != "" {
			a.ExplorerURL = net.ExplorerTxURL(a.TxHash)
		}
	}
	return actions, nil
}

// Get returns a persisted action.
func (e *Executor) Get(ctx context.Context, id uuid.UUID) (*entities.PaymentAction, error) {
	action, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.TxHash != "" {
		if net, err := e.registry.Network(action.ChainID); err == nil {
			action.ExplorerURL = net.ExplorerTxURL(action.TxHash)
		}
	}
	return action, nil
}

// submit drives idle → submitting → awaiting_confirmation and hands the action
// to a watcher. A broadcast failure ends in failed with no handle.
func (e *Executor) submit(ctx context.Context, net *entities.NetworkDescriptor, action *entities.PaymentAction, broadcast func(context.Context) (string, error)) (*Handle, error) {
	if err := e.store.Create(ctx, action); err != nil {
		return nil, apperrors.InternalError("failed to record payment action", err)
	}
	e.transition(ctx, action, entities.ActionStateSubmitting, nil)

	txHash, err := broadcast(ctx)
	if err != nil {
		if !apperrors.IsSubmissionRejected(err) && !apperrors.IsUnsupportedNetwork(err) {
			err = apperrors.SubmissionRejectedError("transaction could not be submitted", err)
		}
		e.transition(ctx, action, entities.ActionStateFailed, err)
		e.logger.Warn("Payment action rejected",
			zap.String("action_id", action.ID.String()),
			zap.String("kind", string(action.Kind)),
			zap.Error(err))
		return nil, err
	}

	action.TxHash = txHash
	action.ExplorerURL = net.ExplorerTxURL(txHash)
	e.transition(ctx, action, entities.ActionStateAwaitingConfirmation, nil)

	e.logger.Info("Payment action submitted",
		zap.String("action_id", action.ID.String()),
		zap.String("kind", string(action.Kind)),
		zap.String("payment_id", action.PaymentID),
		zap.String("tx_hash", txHash))

	handle := newHandle(action)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watch(action, handle)
	}()
	return handle, nil
}

// watch polls the receipt on the executor's context, so a caller that stops
// waiting does not abandon a broadcast transaction.
func (e *Executor) watch(action *entities.PaymentAction, handle *Handle) {
	ctx, cancel := context.WithTimeout(e.ctx, e.config.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.ledger.Receipt(ctx, action.ChainID, action.TxHash)
		if err != nil {
			e.logger.Debug("Receipt lookup failed, will retry",
				zap.String("tx_hash", action.TxHash),
				zap.Error(err))
		} else {
			switch receipt.Status {
			case entities.ReceiptSucceeded:
				e.transition(ctx, action, entities.ActionStateConfirmed, nil)
				e.notify(action)
				handle.resolve(action, nil)
				return
			case entities.ReceiptReverted:
				reason := e.ledger.ReplayRevertReason(ctx, action.ChainID, action.TxHash)
				if reason == "" {
					reason = "transaction reverted"
				}
				cerr := apperrors.ConfirmationError(action.TxHash, reason)
				e.transition(ctx, action, entities.ActionStateFailed, cerr)
				handle.resolve(action, cerr)
				return
			}
		}

		select {
		case <-ctx.Done():
			if e.ctx.Err() != nil {
				// shutting down; the action stays awaiting_confirmation for the worker
				handle.resolve(action, e.ctx.Err())
				return
			}
			cerr := apperrors.ConfirmationError(action.TxHash, "timed out waiting for confirmation")
			e.transition(context.Background(), action, entities.ActionStateFailed, cerr)
			handle.resolve(action, cerr)
			return
		case <-ticker.C:
		}
	}
}

func (e *Executor) notify(action *entities.PaymentAction) {
	for _, l := range e.listeners {
		snapshot := *action
		l.OnConfirmed(e.ctx, &snapshot)
	}
}

func (e *Executor) transition(ctx context.Context, action *entities.PaymentAction, next entities.ActionState, cause error) {
	if !action.State.CanTransitionTo(next) {
		e.logger.Error("Illegal payment action transition",
			zap.String("action_id", action.ID.String()),
			zap.String("from", string(action.State)),
			zap.String("to", string(next)))
		return
	}
	action.State = next
	action.UpdatedAt = time.Now().UTC()
	if cause != nil {
		action.Error = cause.Error()
	}
	metrics.PaymentActionTransitions.WithLabelValues(string(action.Kind), string(next)).Inc()

	if err := e.store.Update(context.WithoutCancel(ctx), action); err != nil {
		e.logger.Error("Failed to persist payment action state",
			zap.String("action_id", action.ID.String()),
			zap.String("state", string(next)),
			zap.Error(err))
	}
}

// ToBaseUnits converts a token amount to the integer the contract expects,
// rejecting precision the token cannot represent.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, apperrors.ValidationError("amount", fmt.Sprintf("amount has more than %d decimal places", decimals))
	}
	return shifted.BigInt(), nil
}

// ResolveToken finds a token on net by symbol or address. Empty means the
// native currency.
func ResolveToken(net *entities.NetworkDescriptor, token string) (entities.TokenDescriptor, error) {
	if strings.TrimSpace(token) == "" {
		return net.NativeToken(), nil
	}
	if desc, ok := net.TokenBySymbol(token); ok {
		return desc, nil
	}
	if desc, ok := net.TokenByAddress(token); ok {
		return desc, nil
	}
	return entities.TokenDescriptor{}, apperrors.NotFoundError("TOKEN").WithDetails(map[string]interface{}{
		"token":    token,
		"chain_id": net.ChainID,
	})
}
