package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

const uniqueViolation = "23505"

// PaymentActionRepository persists the executor's action journal
type PaymentActionRepository struct {
	db *sqlx.DB
}

// NewPaymentActionRepository creates a new payment action repository
func NewPaymentActionRepository(db *sqlx.DB) *PaymentActionRepository {
	return &PaymentActionRepository{db: db}
}

// Create inserts a new action
func (r *PaymentActionRepository) Create(ctx context.Context, action *entities.PaymentAction) error {
	query := `
		INSERT INTO payment_actions (
			id, kind, account, chain_id, payment_id, reference, recipient,
			amount, token_address, tx_hash, state, error, created_at, updated_at
		) VALUES (
			:id, :kind, :account, :chain_id, :payment_id, :reference, :recipient,
			:amount, :token_address, :tx_hash, :state, :error, :created_at, :updated_at
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.ConflictError("payment action", "already exists")
		}
		return fmt.Errorf("create payment action: %w", err)
	}
	return nil
}

// Update writes the action's mutable fields. Terminal rows are never rewritten.
func (r *PaymentActionRepository) Update(ctx context.Context, action *entities.PaymentAction) error {
	query := `
		UPDATE payment_actions
		SET payment_id = :payment_id,
			tx_hash = :tx_hash,
			state = :state,
			error = :error,
			updated_at = :updated_at
		WHERE id = :id AND state NOT IN ('confirmed', 'failed')
	`

	result, err := r.db.NamedExecContext(ctx, query, action)
	if err != nil {
		return fmt.Errorf("update payment action: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment action: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFoundError("PAYMENT_ACTION").WithDetails(map[string]interface{}{
			"id":    action.ID.String(),
			"state": string(action.State),
		})
	}
	return nil
}

// GetByID retrieves an action by ID
func (r *PaymentActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentAction, error) {
	query := `
		SELECT id, kind, account, chain_id, payment_id, reference, recipient,
			amount, token_address, tx_hash, state, error, created_at, updated_at
		FROM payment_actions
		WHERE id = $1
	`

	var action entities.PaymentAction
	if err := r.db.GetContext(ctx, &action, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError("PAYMENT_ACTION")
		}
		return nil, fmt.Errorf("get payment action: %w", err)
	}
	return &action, nil
}

// ListByAccount returns an account's most recent actions on chainID
func (r *PaymentActionRepository) ListByAccount(ctx context.Context, account string, chainID int64, limit int) ([]*entities.PaymentAction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT id, kind, account, chain_id, payment_id, reference, recipient,
			amount, token_address, tx_hash, state, error, created_at, updated_at
		FROM payment_actions
		WHERE LOWER(account) = LOWER($1) AND chain_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	var actions []*entities.PaymentAction
	if err := r.db.SelectContext(ctx, &actions, query, account, chainID, limit); err != nil {
		return nil, fmt.Errorf("list payment actions: %w", err)
	}
	return actions, nil
}
