package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/payment"
)

// RateService resolves USD exchange rates.
type RateService interface {
	GetExchangeRate(ctx context.Context, chainID int64, symbol string) (*entities.ExchangeRate, error)
}

// LedgerReader serves payment lists and balances from the chain.
type LedgerReader interface {
	ListPayments(ctx context.Context, account string, chainID int64) ([]entities.Payment, error)
	Refresh(ctx context.Context, account string, chainID int64) ([]entities.Payment, error)
	LastRefreshed(account string, chainID int64) time.Time
	Balance(ctx context.Context, account string, chainID int64, token string) (*entities.Balance, error)
}

// ActionExecutor submits payment actions.
type ActionExecutor interface {
	Send(ctx context.Context, req payment.SendRequest) (*payment.Handle, error)
	Claim(ctx context.Context, req payment.ActionRequest) (*payment.Handle, error)
	Reimburse(ctx context.Context, req payment.ActionRequest) (*payment.Handle, error)
	Get(ctx context.Context, id uuid.UUID) (*entities.PaymentAction, error)
	List(ctx context.Context, account string, chainID int64, limit int) ([]*entities.PaymentAction, error)
}

// RecipientResolver turns "@nickname" or an address into an address.
type RecipientResolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// PaymentHandlers serves rates, payment lists, balances and payment actions.
type PaymentHandlers struct {
	rates      RateService
	ledger     LedgerReader
	executor   ActionExecutor
	recipients RecipientResolver
	signers    SignerGuard
	logger     *zap.Logger
}

func NewPaymentHandlers(rates RateService, ledger LedgerReader, executor ActionExecutor, recipients RecipientResolver, signers SignerGuard, logger *zap.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		rates:      rates,
		ledger:     ledger,
		executor:   executor,
		recipients: recipients,
		signers:    signers,
		logger:     logger,
	}
}

// GetRate returns how many token units one US dollar buys
// @Summary Exchange rate
// @Tags payments
// @Produce json
// @Param chainId path int true "Chain ID"
// @Param symbol path string true "Token symbol"
// @Success 200 {object} entities.ExchangeRate
// @Failure 400 {object} entities.ErrorResponse
// @Router /api/v1/rates/{chainId}/{symbol} [get]
func (h *PaymentHandlers) GetRate(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	rate, err := h.rates.GetExchangeRate(c.Request.Context(), chainID, c.Param("symbol"))
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, rate)
}

// ListPayments returns the payments an account sent or received
// @Summary Payment list
// @Description Served from the last scan; refresh=true rescans the chain. When a rescan fails the previous list is returned with stale=true.
// @Tags payments
// @Produce json
// @Param chainId path int true "Chain ID"
// @Param account path string true "Account address"
// @Param refresh query bool false "Rescan the event log"
// @Success 200 {object} entities.PaymentsResponse
// @Failure 503 {object} entities.ErrorResponse
// @Router /api/v1/payments/{chainId}/{account} [get]
func (h *PaymentHandlers) ListPayments(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	account := c.Param("account")
	ctx := c.Request.Context()

	var (
		payments []entities.Payment
		err      error
	)
	if parseBoolParam(c, "refresh", false) {
		payments, err = h.ledger.Refresh(ctx, account, chainID)
	} else {
		payments, err = h.ledger.ListPayments(ctx, account, chainID)
	}

	resp := entities.PaymentsResponse{
		Account:       account,
		ChainID:       chainID,
		Payments:      payments,
		LastRefreshed: h.ledger.LastRefreshed(account, chainID),
	}
	if err != nil {
		// a failed rescan still has the previous view to show
		if apperrors.IsLedgerRead(err) && !resp.LastRefreshed.IsZero() {
			resp.Stale = true
			resp.Error = err.Error()
			if resp.Payments == nil {
				resp.Payments = []entities.Payment{}
			}
			SendSuccess(c, resp)
			return
		}
		SendDomainError(c, h.logger, err)
		return
	}
	if resp.Payments == nil {
		resp.Payments = []entities.Payment{}
	}
	SendSuccess(c, resp)
}

// GetBalance returns an account's holding of one token
// @Summary Token balance
// @Tags payments
// @Produce json
// @Param chainId path int true "Chain ID"
// @Param account path string true "Account address"
// @Param token path string true "Token symbol or address"
// @Success 200 {object} entities.Balance
// @Router /api/v1/balances/{chainId}/{account}/{token} [get]
func (h *PaymentHandlers) GetBalance(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), c.Param("account"), chainID, c.Param("token"))
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, balance)
}

// Send escrows a new payment
// @Summary Send payment
// @Description Recipient may be an address or an address-book nickname ("@alice"). Returns once the transaction is broadcast; poll /actions/{id} or pass wait=true.
// @Tags payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param wait query bool false "Wait for confirmation"
// @Param request body payment.SendRequest true "Payment"
// @Success 202 {object} entities.PaymentAction
// @Success 200 {object} entities.PaymentAction
// @Failure 400 {object} entities.ErrorResponse
// @Failure 403 {object} entities.ErrorResponse
// @Failure 422 {object} entities.ErrorResponse
// @Router /api/v1/payments/send [post]
func (h *PaymentHandlers) Send(c *gin.Context) {
	var req payment.SendRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requireSigner(c, h.signers, h.logger, req.Account) {
		return
	}
	ctx := c.Request.Context()

	recipient, err := h.recipients.Resolve(ctx, req.Recipient)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	if !strings.EqualFold(recipient, req.Recipient) {
		h.logger.Debug("Recipient resolved",
			zap.String("input", req.Recipient),
			zap.String("address", recipient))
	}
	req.Recipient = recipient

	handle, err := h.executor.Send(ctx, req)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	h.respondWithHandle(c, handle)
}

// Claim collects a payment sent to the caller
// @Summary Claim payment
// @Tags payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body payment.ActionRequest true "Payment to claim"
// @Success 202 {object} entities.PaymentAction
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/payments/claim [post]
func (h *PaymentHandlers) Claim(c *gin.Context) {
	h.settle(c, h.executor.Claim)
}

// Reimburse returns an unclaimed payment to its sender
// @Summary Reimburse payment
// @Tags payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body payment.ActionRequest true "Payment to reimburse"
// @Success 202 {object} entities.PaymentAction
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/payments/reimburse [post]
func (h *PaymentHandlers) Reimburse(c *gin.Context) {
	h.settle(c, h.executor.Reimburse)
}

func (h *PaymentHandlers) settle(c *gin.Context, action func(context.Context, payment.ActionRequest) (*payment.Handle, error)) {
	var req payment.ActionRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requireSigner(c, h.signers, h.logger, req.Account) {
		return
	}
	handle, err := action(c.Request.Context(), req)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	h.respondWithHandle(c, handle)
}

func (h *PaymentHandlers) respondWithHandle(c *gin.Context, handle *payment.Handle) {
	if !parseBoolParam(c, "wait", false) {
		SendAccepted(c, handle.Action())
		return
	}
	action, err := handle.Wait(c.Request.Context())
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, action)
}

// GetAction returns a payment action record
// @Summary Payment action
// @Tags payments
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} entities.PaymentAction
// @Failure 404 {object} entities.ErrorResponse
// @Router /api/v1/actions/{id} [get]
func (h *PaymentHandlers) GetAction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "invalid action id")
		return
	}
	action, err := h.executor.Get(c.Request.Context(), id)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// ListActions returns an account's recent payment actions
// @Summary Payment actions by account
// @Tags payments
// @Produce json
// @Param account query string true "Account address"
// @Param chainId query int true "Chain ID"
// @Param limit query int false "Max actions" default(50)
// @Success 200 {array} entities.PaymentAction
// @Router /api/v1/actions [get]
func (h *PaymentHandlers) ListActions(c *gin.Context) {
	chainID, err := strconv.ParseInt(c.Query("chainId"), 10, 64)
	if err != nil || chainID <= 0 {
		SendBadRequest(c, ErrCodeInvalidChain, "chainId must be a positive integer")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 100 {
		SendInvalidField(c, "limit", "limit must be between 1 and 100")
		return
	}
	actions, err := h.executor.List(c.Request.Context(), c.Query("account"), chainID, limit)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	if actions == nil {
		actions = []*entities.PaymentAction{}
	}
	SendSuccess(c, actions)
}
