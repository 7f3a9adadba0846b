package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	"github.com/zynpay/zynpay_service/pkg/crypto"
)

// CreateInvoice creates an invoice owned by the caller.
func (c *Client) CreateInvoice(ctx context.Context, inv *entities.NewInvoice) (*entities.Invoice, error) {
	payload := createInvoicePayload{
		ClientName:    inv.ClientName,
		ClientEmail:   inv.ClientEmail,
		DueDate:       inv.DueDate,
		Description:   inv.Description,
		Amount:        amount(inv.Amount),
		WalletAddress: inv.WalletAddress,
	}

	var resp envelope[entities.Invoice]
	if err := c.doRequest(ctx, http.MethodPost, "/invoices", payload, &resp); err != nil {
		return nil, fmt.Errorf("create invoice failed: %w", err)
	}
	c.logger.Info("Created invoice", "invoice_id", resp.Data.ID, "invoice_number", resp.Data.InvoiceNumber)
	return &resp.Data, nil
}

// FetchInvoicesByEmail lists invoices addressed to a client email.
func (c *Client) FetchInvoicesByEmail(ctx context.Context, email string) ([]entities.Invoice, error) {
	endpoint := "/invoices/client-invoices?email=" + url.QueryEscape(email)
	var resp envelope[[]entities.Invoice]
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch invoices failed: %w", err)
	}
	return resp.Data, nil
}

// GetInvoice retrieves an invoice by its id.
func (c *Client) GetInvoice(ctx context.Context, id string) (*entities.Invoice, error) {
	var resp envelope[entities.Invoice]
	if err := c.doRequest(ctx, http.MethodGet, "/invoices/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get invoice failed: %w", err)
	}
	return &resp.Data, nil
}

// UpdateInvoiceStatus records a payment outcome. The idempotency key is derived
// from the invoice and transaction so replays cannot double-record.
func (c *Client) UpdateInvoiceStatus(ctx context.Context, id string, status entities.InvoicePaymentStatus, txHash string) (*entities.Invoice, error) {
	payload := updateInvoiceStatusPayload{PaymentStatus: status, TransactionHash: txHash}
	key := crypto.SHA256Hex([]byte("invoice|" + id + "|" + txHash))

	var resp envelope[entities.Invoice]
	endpoint := "/invoices/" + url.PathEscape(id) + "/payment"
	if err := c.doRequest(ctx, http.MethodPatch, endpoint, payload, &resp, withIdempotencyKey(key)); err != nil {
		return nil, fmt.Errorf("update invoice status failed: %w", err)
	}
	c.logger.Info("Updated invoice status", "invoice_id", id, "status", status, "tx_hash", txHash)
	return &resp.Data, nil
}
