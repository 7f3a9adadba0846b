package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	"github.com/zynpay/zynpay_service/internal/domain/services/settlement"
)

// Settler pays invoices and split shares and tracks their reconciliation.
type Settler interface {
	PayInvoice(ctx context.Context, req settlement.PayInvoiceRequest) (*settlement.Result, error)
	PaySplitShare(ctx context.Context, req settlement.PaySplitShareRequest) (*settlement.Result, error)
	CreateSplit(ctx context.Context, req *backend.CreateSplitRequest) (*entities.SplitBill, error)
	ListOpen(ctx context.Context, limit int) ([]*entities.Reconciliation, error)
	RetryReconciliation(ctx context.Context, id uuid.UUID) (*entities.Reconciliation, error)
}

// RecordStore is the read side of the invoice and split-bill backend.
type RecordStore interface {
	CreateInvoice(ctx context.Context, inv *entities.NewInvoice) (*entities.Invoice, error)
	FetchInvoicesByEmail(ctx context.Context, email string) ([]entities.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*entities.Invoice, error)
	ListInitiatedSplits(ctx context.Context) ([]entities.SplitBill, error)
	ListParticipatingSplits(ctx context.Context) ([]entities.SplitBill, error)
	GetSplit(ctx context.Context, id string) (*entities.SplitBill, error)
	GetSplitBySplitID(ctx context.Context, splitID string) (*entities.SplitBill, error)
}

// SettlementHandlers serves invoices, split bills and reconciliation markers.
type SettlementHandlers struct {
	settler Settler
	records RecordStore
	signers SignerGuard
	logger  *zap.Logger
}

func NewSettlementHandlers(settler Settler, records RecordStore, signers SignerGuard, logger *zap.Logger) *SettlementHandlers {
	return &SettlementHandlers{settler: settler, records: records, signers: signers, logger: logger}
}

// ListInvoices returns invoices addressed to an email
// @Summary Invoices by client email
// @Description Defaults to the caller's email.
// @Tags invoices
// @Produce json
// @Param email query string false "Client email"
// @Success 200 {array} entities.Invoice
// @Router /api/v1/invoices [get]
func (h *SettlementHandlers) ListInvoices(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		email = getUserEmail(c)
	}
	if email == "" {
		SendInvalidField(c, "email", "email is required")
		return
	}
	invoices, err := h.records.FetchInvoicesByEmail(c.Request.Context(), email)
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	if invoices == nil {
		invoices = []entities.Invoice{}
	}
	SendSuccess(c, invoices)
}

// CreateInvoice
// @Summary Create invoice
// @Tags invoices
// @Accept json
// @Produce json
// @Param request body entities.NewInvoice true "Invoice"
// @Success 201 {object} entities.Invoice
// @Router /api/v1/invoices [post]
func (h *SettlementHandlers) CreateInvoice(c *gin.Context) {
	var req entities.NewInvoice
	if !bindJSON(c, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		SendInvalidField(c, "amount", "amount must be greater than zero")
		return
	}
	invoice, err := h.records.CreateInvoice(c.Request.Context(), &req)
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendCreated(c, invoice)
}

// GetInvoice
// @Summary Invoice by id
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} entities.Invoice
// @Router /api/v1/invoices/{id} [get]
func (h *SettlementHandlers) GetInvoice(c *gin.Context) {
	invoice, err := h.records.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendSuccess(c, invoice)
}

// PayInvoice pays an invoice on-chain and marks it paid
// @Summary Pay invoice
// @Description Converts the USD amount at the current rate, sends it to the invoice wallet and waits for confirmation. A 202 with code PAID_BUT_UNRECONCILED means the payment went through but the invoice record is not updated yet; do not pay again.
// @Tags invoices
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param id path string true "Invoice ID"
// @Param request body settlement.PayInvoiceRequest true "Payer"
// @Success 200 {object} settlement.Result
// @Success 202 {object} entities.ErrorResponse
// @Failure 403 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Failure 422 {object} entities.ErrorResponse
// @Router /api/v1/invoices/{id}/pay [post]
func (h *SettlementHandlers) PayInvoice(c *gin.Context) {
	var req settlement.PayInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requireSigner(c, h.signers, h.logger, req.Account) {
		return
	}
	req.InvoiceID = c.Param("id")

	result, err := h.settler.PayInvoice(c.Request.Context(), req)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, result)
}

// ListInitiatedSplits
// @Summary Split bills started by the caller
// @Tags splits
// @Produce json
// @Success 200 {array} entities.SplitBill
// @Router /api/v1/splits/initiated [get]
func (h *SettlementHandlers) ListInitiatedSplits(c *gin.Context) {
	h.listSplits(c, h.records.ListInitiatedSplits)
}

// ListParticipatingSplits
// @Summary Split bills the caller owes a share of
// @Tags splits
// @Produce json
// @Success 200 {array} entities.SplitBill
// @Router /api/v1/splits/participating [get]
func (h *SettlementHandlers) ListParticipatingSplits(c *gin.Context) {
	h.listSplits(c, h.records.ListParticipatingSplits)
}

func (h *SettlementHandlers) listSplits(c *gin.Context, list func(context.Context) ([]entities.SplitBill, error)) {
	splits, err := list(c.Request.Context())
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	if splits == nil {
		splits = []entities.SplitBill{}
	}
	SendSuccess(c, splits)
}

// GetSplit
// @Summary Split bill by split id
// @Description by=record looks the split up by its record id instead.
// @Tags splits
// @Produce json
// @Param splitId path string true "Split ID"
// @Param by query string false "split (default) or record"
// @Success 200 {object} entities.SplitBill
// @Router /api/v1/splits/{splitId} [get]
func (h *SettlementHandlers) GetSplit(c *gin.Context) {
	var (
		split *entities.SplitBill
		err   error
	)
	switch c.DefaultQuery("by", "split") {
	case "split":
		split, err = h.records.GetSplitBySplitID(c.Request.Context(), c.Param("splitId"))
	case "record":
		split, err = h.records.GetSplit(c.Request.Context(), c.Param("splitId"))
	default:
		SendInvalidField(c, "by", "by must be split or record")
		return
	}
	if err != nil {
		SendBackendError(c, h.logger, err)
		return
	}
	SendSuccess(c, split)
}

// CreateSplit divides an invoice between the caller and participants
// @Summary Create split bill
// @Description Shares may leave a remainder for the initiator but may not exceed the invoice amount.
// @Tags splits
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body backend.CreateSplitRequest true "Split"
// @Success 201 {object} entities.SplitBill
// @Failure 400 {object} entities.ErrorResponse
// @Router /api/v1/splits [post]
func (h *SettlementHandlers) CreateSplit(c *gin.Context) {
	var req backend.CreateSplitRequest
	if !bindJSON(c, &req) {
		return
	}
	split, err := h.settler.CreateSplit(c.Request.Context(), &req)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendCreated(c, split)
}

// EvenShare
// @Summary Equal share per head
// @Description Splits total between participants plus the initiator, rounded to cents.
// @Tags splits
// @Produce json
// @Param total query string true "Invoice total in USD"
// @Param participants query int true "Participant count, initiator excluded"
// @Success 200 {object} map[string]string
// @Router /api/v1/splits/even-share [get]
func (h *SettlementHandlers) EvenShare(c *gin.Context) {
	total, err := decimal.NewFromString(c.Query("total"))
	if err != nil || !total.IsPositive() {
		SendInvalidField(c, "total", "total must be a positive amount")
		return
	}
	n, err := strconv.Atoi(c.Query("participants"))
	if err != nil {
		SendInvalidField(c, "participants", "participants must be an integer")
		return
	}
	share, err := settlement.SplitEvenly(total, n)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	remainder := total.Round(2).Sub(share.Mul(decimal.NewFromInt(int64(n))))
	SendSuccess(c, gin.H{
		"share":     share.StringFixed(2),
		"remainder": remainder.StringFixed(2),
	})
}

// PaySplitShare pays the caller's share to the split initiator
// @Summary Pay split share
// @Description participantEmail defaults to the caller's email. A 202 with code PAID_BUT_UNRECONCILED means the payment went through but the split is not updated yet.
// @Tags splits
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param splitId path string true "Split ID"
// @Param request body settlement.PaySplitShareRequest true "Payer"
// @Success 200 {object} settlement.Result
// @Router /api/v1/splits/{splitId}/pay [post]
func (h *SettlementHandlers) PaySplitShare(c *gin.Context) {
	var req splitPaymentBody
	if !bindJSON(c, &req) {
		return
	}
	email := strings.TrimSpace(req.ParticipantEmail)
	if email == "" {
		email = getUserEmail(c)
	}
	if email == "" {
		SendInvalidField(c, "participantEmail", "participant email is required")
		return
	}
	if !requireSigner(c, h.signers, h.logger, req.Account) {
		return
	}

	result, err := h.settler.PaySplitShare(c.Request.Context(), settlement.PaySplitShareRequest{
		SplitID:          c.Param("splitId"),
		ParticipantEmail: email,
		Account:          req.Account,
		ChainID:          req.ChainID,
		Token:            req.Token,
	})
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, result)
}

// splitPaymentBody lets the caller's token supply the participant email.
type splitPaymentBody struct {
	ParticipantEmail string `json:"participantEmail" binding:"omitempty,email"`
	Account          string `json:"account" binding:"required"`
	ChainID          int64  `json:"chainId" binding:"required"`
	Token            string `json:"token"`
}

// ListReconciliations
// @Summary Payments confirmed on-chain but not yet recorded
// @Tags reconciliations
// @Produce json
// @Param limit query int false "Max markers" default(50)
// @Success 200 {array} entities.Reconciliation
// @Router /api/v1/reconciliations [get]
func (h *SettlementHandlers) ListReconciliations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		SendInvalidField(c, "limit", "limit must be between 1 and 500")
		return
	}
	markers, err := h.settler.ListOpen(c.Request.Context(), limit)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	if markers == nil {
		markers = []*entities.Reconciliation{}
	}
	SendSuccess(c, markers)
}

// RetryReconciliation
// @Summary Retry the backend update for a paid settlement
// @Tags reconciliations
// @Produce json
// @Param id path string true "Reconciliation ID"
// @Success 200 {object} entities.Reconciliation
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/reconciliations/{id}/retry [post]
func (h *SettlementHandlers) RetryReconciliation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "invalid reconciliation id")
		return
	}
	rec, err := h.settler.RetryReconciliation(c.Request.Context(), id)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, rec)
}
