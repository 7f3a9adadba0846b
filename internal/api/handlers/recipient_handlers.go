package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	"github.com/zynpay/zynpay_service/internal/domain/services/recipient"
)

// AddressBookService resolves recipients and manages saved contacts.
type AddressBookService interface {
	Resolve(ctx context.Context, input string) (string, error)
	List(ctx context.Context) ([]entities.AddressBookEntry, error)
	Search(ctx context.Context, query string) ([]entities.AddressBookEntry, error)
	Get(ctx context.Context, nickname string) (*entities.AddressBookEntry, error)
	Add(ctx context.Context, req *recipient.AddRequest) (*entities.AddressBookEntry, error)
	Update(ctx context.Context, nickname string, update *backend.AddressUpdate) (*entities.AddressBookEntry, error)
	Delete(ctx context.Context, nickname string) error
	AddFromInvoice(ctx context.Context, invoiceID string) (*entities.AddressBookEntry, error)
}

// RecipientHandlers handles recipient resolution and address book endpoints
type RecipientHandlers struct {
	service AddressBookService
	logger  *zap.Logger
}

// NewRecipientHandlers creates new recipient handlers
func NewRecipientHandlers(service AddressBookService, logger *zap.Logger) *RecipientHandlers {
	return &RecipientHandlers{service: service, logger: logger}
}

// Resolve returns the wallet address for an address or nickname
// @Summary Resolve recipient
// @Tags recipients
// @Produce json
// @Param input query string true "Address, nickname or @nickname"
// @Success 200 {object} map[string]string
// @Failure 400 {object} entities.ErrorResponse
// @Router /api/v1/recipients/resolve [get]
func (h *RecipientHandlers) Resolve(c *gin.Context) {
	input := c.Query("input")
	address, err := h.service.Resolve(c.Request.Context(), input)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, gin.H{
		"input":   input,
		"address": address,
		"direct":  recipient.IsDirectAddress(strings.TrimSpace(input)),
	})
}

// List returns the caller's contacts, filtered when query is given
// @Summary Address book
// @Tags address-book
// @Produce json
// @Param query query string false "Nickname search"
// @Success 200 {array} entities.AddressBookEntry
// @Router /api/v1/address-book [get]
func (h *RecipientHandlers) List(c *gin.Context) {
	var (
		entries []entities.AddressBookEntry
		err     error
	)
	if q := strings.TrimSpace(c.Query("query")); q != "" {
		entries, err = h.service.Search(c.Request.Context(), q)
	} else {
		entries, err = h.service.List(c.Request.Context())
	}
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []entities.AddressBookEntry{}
	}
	SendSuccess(c, entries)
}

// Get returns one contact
// @Summary Contact by nickname
// @Tags address-book
// @Produce json
// @Param nickname path string true "Nickname"
// @Success 200 {object} entities.AddressBookEntry
// @Failure 404 {object} entities.ErrorResponse
// @Router /api/v1/address-book/{nickname} [get]
func (h *RecipientHandlers) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("nickname"))
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, entry)
}

// Add saves a contact
// @Summary Add contact
// @Tags address-book
// @Accept json
// @Produce json
// @Param request body recipient.AddRequest true "Contact"
// @Success 201 {object} entities.AddressBookEntry
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/address-book [post]
func (h *RecipientHandlers) Add(c *gin.Context) {
	var req recipient.AddRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.service.Add(c.Request.Context(), &req)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendCreated(c, entry)
}

// Update changes a contact
// @Summary Update contact
// @Tags address-book
// @Accept json
// @Produce json
// @Param nickname path string true "Nickname"
// @Param request body backend.AddressUpdate true "Fields to change"
// @Success 200 {object} entities.AddressBookEntry
// @Router /api/v1/address-book/{nickname} [patch]
func (h *RecipientHandlers) Update(c *gin.Context) {
	var req backend.AddressUpdate
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.service.Update(c.Request.Context(), c.Param("nickname"), &req)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendSuccess(c, entry)
}

// Delete removes a contact
// @Summary Delete contact
// @Tags address-book
// @Param nickname path string true "Nickname"
// @Success 204
// @Router /api/v1/address-book/{nickname} [delete]
func (h *RecipientHandlers) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("nickname")); err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendNoContent(c)
}

type fromInvoiceRequest struct {
	InvoiceID string `json:"invoiceId" binding:"required"`
}

// AddFromInvoice saves an invoice's counterparty as a contact
// @Summary Add contact from invoice
// @Tags address-book
// @Accept json
// @Produce json
// @Param request body fromInvoiceRequest true "Invoice"
// @Success 201 {object} entities.AddressBookEntry
// @Router /api/v1/address-book/from-invoice [post]
func (h *RecipientHandlers) AddFromInvoice(c *gin.Context) {
	var req fromInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.service.AddFromInvoice(c.Request.Context(), req.InvoiceID)
	if err != nil {
		SendDomainError(c, h.logger, err)
		return
	}
	SendCreated(c, entry)
}
