package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	"github.com/zynpay/zynpay_service/pkg/crypto"
)

// CreateSplit divides an invoice between the caller and address book contacts.
func (c *Client) CreateSplit(ctx context.Context, req *CreateSplitRequest) (*entities.SplitBill, error) {
	payload := createSplitPayload{
		InvoiceID:              req.InvoiceID,
		InitiatorWalletAddress: req.InitiatorWalletAddress,
		Participants:           make([]shareLine, 0, len(req.Participants)),
	}
	for _, p := range req.Participants {
		payload.Participants = append(payload.Participants, shareLine{Nickname: p.Nickname, Amount: amount(p.Amount)})
	}

	var resp envelope[entities.SplitBill]
	if err := c.doRequest(ctx, http.MethodPost, "/split-bill", payload, &resp); err != nil {
		return nil, fmt.Errorf("create split bill failed: %w", err)
	}
	c.logger.Info("Created split bill", "split_id", resp.Data.SplitID, "invoice_id", req.InvoiceID)
	return &resp.Data, nil
}

// ListInitiatedSplits returns split bills the caller started.
func (c *Client) ListInitiatedSplits(ctx context.Context) ([]entities.SplitBill, error) {
	var resp envelope[[]entities.SplitBill]
	if err := c.doRequest(ctx, http.MethodGet, "/split-bill/initiated", nil, &resp); err != nil {
		return nil, fmt.Errorf("list initiated splits failed: %w", err)
	}
	return resp.Data, nil
}

// ListParticipatingSplits returns split bills where the caller owes a share.
func (c *Client) ListParticipatingSplits(ctx context.Context) ([]entities.SplitBill, error) {
	var resp envelope[[]entities.SplitBill]
	if err := c.doRequest(ctx, http.MethodGet, "/split-bill/participating", nil, &resp); err != nil {
		return nil, fmt.Errorf("list participating splits failed: %w", err)
	}
	return resp.Data, nil
}

// GetSplit retrieves a split bill by its record id.
func (c *Client) GetSplit(ctx context.Context, id string) (*entities.SplitBill, error) {
	var resp envelope[entities.SplitBill]
	if err := c.doRequest(ctx, http.MethodGet, "/split-bill/id/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get split bill failed: %w", err)
	}
	return &resp.Data, nil
}

// GetSplitBySplitID retrieves a split bill by its public split id.
func (c *Client) GetSplitBySplitID(ctx context.Context, splitID string) (*entities.SplitBill, error) {
	var resp envelope[entities.SplitBill]
	if err := c.doRequest(ctx, http.MethodGet, "/split-bill/split-id/"+url.PathEscape(splitID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get split bill failed: %w", err)
	}
	return &resp.Data, nil
}

// UpdateParticipantPayment marks one participant's share paid by txHash.
func (c *Client) UpdateParticipantPayment(ctx context.Context, splitID, email, txHash string) (*SplitUpdate, error) {
	key := crypto.SHA256Hex([]byte("split_share|" + splitID + "|" + email + "|" + txHash))
	endpoint := fmt.Sprintf("/split-bill/%s/participant/%s", url.PathEscape(splitID), url.PathEscape(email))

	var resp envelope[entities.SplitBill]
	err := c.doRequest(ctx, http.MethodPatch, endpoint, participantPaymentPayload{TransactionHash: txHash}, &resp, withIdempotencyKey(key))
	if err != nil {
		return nil, fmt.Errorf("update participant payment failed: %w", err)
	}

	update := &SplitUpdate{Split: &resp.Data}
	if resp.AllPaid != nil {
		update.AllPaid = *resp.AllPaid
	} else {
		update.AllPaid = resp.Data.AllPaid()
	}
	c.logger.Info("Updated split participant payment",
		"split_id", splitID,
		"tx_hash", txHash,
		"all_paid", update.AllPaid)
	return update, nil
}
