package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/pkg/metrics"
)

// reconcile pushes the confirmed transaction to the backend record. Failure
// leaves the marker pending_backend and never touches the payment itself.
func (c *Coordinator) reconcile(ctx context.Context, rec *entities.Reconciliation, result *Result) error {
	rec.Attempts++
	err := c.updateBackend(ctx, rec, result)
	if err == nil || backend.IsConflict(err) {
		if err != nil {
			c.logger.Info("Backend already recorded this payment",
				zap.String("kind", string(rec.Kind)),
				zap.String("record_id", rec.RecordID),
				zap.String("tx_hash", rec.TxHash))
		}
		rec.LastError = ""
		c.closeMarker(ctx, rec, entities.ReconciliationReconciled, nil)
		return nil
	}

	metrics.ReconciliationOutcomes.WithLabelValues(string(rec.Kind), "backend_error").Inc()
	rec.LastError = err.Error()
	rec.State = entities.ReconciliationPendingBackend
	if rec.Attempts >= c.config.MaxAttempts {
		rec.State = entities.ReconciliationFailed
	}
	rec.UpdatedAt = time.Now().UTC()
	c.saveMarker(ctx, rec)

	c.logger.Error("Payment confirmed but backend record not updated",
		zap.String("reconciliation_id", rec.ID.String()),
		zap.String("kind", string(rec.Kind)),
		zap.String("record_id", rec.RecordID),
		zap.String("tx_hash", rec.TxHash),
		zap.Int("attempts", rec.Attempts),
		zap.Error(err))

	recErr := apperrors.ReconciliationError(string(rec.Kind), rec.RecordID, rec.TxHash, err).
		WithDetails(map[string]interface{}{"reconciliation_id": rec.ID.String()})
	if rec.Attempts == 1 || rec.State == entities.ReconciliationFailed {
		c.alert(ctx, rec, err)
	}
	return recErr
}

func (c *Coordinator) updateBackend(ctx context.Context, rec *entities.Reconciliation, result *Result) error {
	switch rec.Kind {
	case entities.ReconciliationInvoice:
		invoice, err := c.backend.UpdateInvoiceStatus(ctx, rec.RecordID, entities.InvoicePaid, rec.TxHash)
		if err != nil {
			return err
		}
		if result != nil {
			result.Invoice = invoice
		}
		return nil
	case entities.ReconciliationSplitShare:
		update, err := c.backend.UpdateParticipantPayment(ctx, rec.RecordID, rec.Participant, rec.TxHash)
		if err != nil {
			return err
		}
		if result != nil {
			result.AllPaid = update.AllPaid
		}
		if update.AllPaid {
			c.logger.Info("Split bill fully paid", zap.String("split_id", rec.RecordID))
		}
		return nil
	default:
		return fmt.Errorf("unknown reconciliation kind %q", rec.Kind)
	}
}

// RetryReconciliation re-runs the backend step for a pending_backend marker.
// The backend update is idempotent on (record, tx hash), so repeating it never
// records the payment twice.
func (c *Coordinator) RetryReconciliation(ctx context.Context, id uuid.UUID) (*entities.Reconciliation, error) {
	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.State {
	case entities.ReconciliationReconciled:
		return rec, nil
	case entities.ReconciliationPendingConfirmation:
		return nil, apperrors.ConflictError("RECONCILIATION", "payment is not confirmed yet")
	}
	if err := c.reconcile(ctx, rec, nil); err != nil {
		return rec, err
	}
	return rec, nil
}

// Resume moves one open marker forward without resubmitting anything: a
// pending_confirmation marker is checked against its receipt, and a
// pending_backend marker gets another backend attempt.
func (c *Coordinator) Resume(ctx context.Context, rec *entities.Reconciliation) error {
	switch rec.State {
	case entities.ReconciliationPendingBackend:
		return c.reconcile(ctx, rec, nil)
	case entities.ReconciliationPendingConfirmation:
		return c.resumeConfirmation(ctx, rec)
	default:
		return nil
	}
}

func (c *Coordinator) resumeConfirmation(ctx context.Context, rec *entities.Reconciliation) error {
	receipt, err := c.receipts.Receipt(ctx, rec.ChainID, rec.TxHash)
	if err != nil {
		return err
	}

	switch receipt.Status {
	case entities.ReceiptSucceeded:
		rec.State = entities.ReconciliationPendingBackend
		return c.reconcile(ctx, rec, nil)
	case entities.ReceiptReverted:
		c.closeMarker(ctx, rec, entities.ReconciliationFailed, apperrors.ConfirmationError(rec.TxHash, "transaction reverted"))
		return nil
	default:
		if time.Since(rec.CreatedAt) > c.config.StaleAfter {
			c.closeMarker(ctx, rec, entities.ReconciliationFailed, apperrors.ConfirmationError(rec.TxHash, "transaction was never mined"))
		}
		return nil
	}
}

// ListOpen returns markers that still need work.
func (c *Coordinator) ListOpen(ctx context.Context, limit int) ([]*entities.Reconciliation, error) {
	return c.store.ListOpen(ctx, limit)
}

func (c *Coordinator) closeMarker(ctx context.Context, rec *entities.Reconciliation, state entities.ReconciliationState, cause error) {
	rec.State = state
	rec.UpdatedAt = time.Now().UTC()
	if cause != nil {
		rec.LastError = cause.Error()
	}
	metrics.ReconciliationOutcomes.WithLabelValues(string(rec.Kind), string(state)).Inc()
	c.saveMarker(ctx, rec)
}

func (c *Coordinator) saveMarker(ctx context.Context, rec *entities.Reconciliation) {
	if err := c.store.Update(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Error("Failed to persist reconciliation marker",
			zap.String("reconciliation_id", rec.ID.String()),
			zap.String("state", string(rec.State)),
			zap.Error(err))
	}
}

func (c *Coordinator) alert(ctx context.Context, rec *entities.Reconciliation, cause error) {
	if c.alerter == nil {
		return
	}
	if err := c.alerter.SendReconciliationAlert(context.WithoutCancel(ctx), rec, cause); err != nil {
		c.logger.Warn("Failed to send reconciliation alert",
			zap.String("reconciliation_id", rec.ID.String()),
			zap.Error(err))
	}
}
