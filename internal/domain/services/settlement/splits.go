package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/payment"
)

// Remainder is what the initiator keeps once every share is taken out of
// total, exact at cents. Shares are rounded to cents the way they are stored.
func Remainder(total decimal.Decimal, shares []entities.ShareRequest) decimal.Decimal {
	allocated := decimal.Zero
	for _, s := range shares {
		allocated = allocated.Add(s.Amount.Round(2))
	}
	return total.Round(2).Sub(allocated)
}

// SplitEvenly gives each of participants an equal share of total with the
// initiator counted as one more head.
func SplitEvenly(total decimal.Decimal, participants int) (decimal.Decimal, error) {
	if participants <= 0 {
		return decimal.Zero, apperrors.ValidationError("participants", "at least one participant is required")
	}
	return total.DivRound(decimal.NewFromInt(int64(participants+1)), 2), nil
}

// CreateSplit divides an invoice between the initiator and the named
// participants. Shares may leave a remainder for the initiator but may never
// exceed the invoice amount.
func (c *Coordinator) CreateSplit(ctx context.Context, req *backend.CreateSplitRequest) (*entities.SplitBill, error) {
	if strings.TrimSpace(req.InvoiceID) == "" {
		return nil, apperrors.ValidationError("invoiceId", "invoice id is required")
	}
	if !payment.IsAddress(req.InitiatorWalletAddress) {
		return nil, apperrors.ValidationError("initiatorWalletAddress", "initiator wallet must be a 0x-prefixed 20-byte address")
	}
	if len(req.Participants) == 0 {
		return nil, apperrors.ValidationError("participants", "at least one participant is required")
	}

	seen := make(map[string]struct{}, len(req.Participants))
	for i, share := range req.Participants {
		nick := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(share.Nickname), "@"))
		if nick == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("participants[%d].nickname", i), "nickname is required")
		}
		if _, dup := seen[nick]; dup {
			return nil, apperrors.ValidationError(fmt.Sprintf("participants[%d].nickname", i), "participant listed twice")
		}
		seen[nick] = struct{}{}
		if !share.Amount.Round(2).IsPositive() {
			return nil, apperrors.ValidationError(fmt.Sprintf("participants[%d].amount", i), "share must be at least 0.01")
		}
	}

	invoice, err := c.backend.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, backendError("INVOICE", err)
	}
	if !invoice.IsPayable() {
		return nil, apperrors.ConflictError("INVOICE", fmt.Sprintf("invoice is %s", invoice.PaymentStatus))
	}

	remainder := Remainder(invoice.Amount, req.Participants)
	if remainder.IsNegative() {
		return nil, apperrors.ValidationError("participants", "shares exceed the invoice amount").WithDetails(map[string]interface{}{
			"invoice_amount": invoice.Amount.StringFixed(2),
			"over_by":        remainder.Neg().StringFixed(2),
		})
	}

	// the backend stores what it is sent, so send the cent amounts the remainder was checked against
	rounded := *req
	rounded.Participants = make([]entities.ShareRequest, len(req.Participants))
	for i, share := range req.Participants {
		rounded.Participants[i] = entities.ShareRequest{Nickname: share.Nickname, Amount: share.Amount.Round(2)}
	}

	split, err := c.backend.CreateSplit(ctx, &rounded)
	if err != nil {
		return nil, backendError("SPLIT_BILL", err)
	}

	c.logger.Info("Split bill created",
		zap.String("split_id", split.SplitID),
		zap.String("invoice_id", req.InvoiceID),
		zap.Int("participants", len(req.Participants)),
		zap.String("initiator_remainder", remainder.StringFixed(2)))
	return split, nil
}
