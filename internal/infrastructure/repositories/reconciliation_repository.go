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
	"github.com/zynpay/zynpay_service/internal/infrastructure/database"
)

const reconciliationColumns = `id, kind, record_id, participant, chain_id, tx_hash, state, attempts, last_error, created_at, updated_at`

// PostgresReconciliationRepository stores reconciliation markers in PostgreSQL
type PostgresReconciliationRepository struct {
	db *sqlx.DB
}

// NewPostgresReconciliationRepository creates a new PostgreSQL reconciliation repository
func NewPostgresReconciliationRepository(db *sqlx.DB) *PostgresReconciliationRepository {
	return &PostgresReconciliationRepository{db: db}
}

// Create inserts a marker. A second marker for the same transaction, or a
// second open marker for the same record, is a conflict.
func (r *PostgresReconciliationRepository) Create(ctx context.Context, rec *entities.Reconciliation) error {
	query := `
		INSERT INTO reconciliations (` + reconciliationColumns + `)
		VALUES (:id, :kind, :record_id, :participant, :chain_id, :tx_hash, :state, :attempts, :last_error, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.ConflictError("reconciliation", "a marker already exists for this transaction or record")
		}
		return fmt.Errorf("create reconciliation: %w", err)
	}
	return nil
}

// Update locks the row and writes the new state. A reconciled marker stays
// reconciled; the worker and a request can race on the same row.
func (r *PostgresReconciliationRepository) Update(ctx context.Context, rec *entities.Reconciliation) error {
	return database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var current entities.ReconciliationState
		err := tx.GetContext(ctx, &current, `SELECT state FROM reconciliations WHERE id = $1 FOR UPDATE`, rec.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.NotFoundError("RECONCILIATION")
			}
			return fmt.Errorf("lock reconciliation: %w", err)
		}
		if current == entities.ReconciliationReconciled && rec.State != entities.ReconciliationReconciled {
			return apperrors.ConflictError("reconciliation", "already reconciled")
		}

		query := `
			UPDATE reconciliations
			SET state = :state,
				attempts = :attempts,
				last_error = :last_error,
				updated_at = :updated_at
			WHERE id = :id
		`
		if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
			return fmt.Errorf("update reconciliation: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a marker by ID
func (r *PostgresReconciliationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Reconciliation, error) {
	var rec entities.Reconciliation
	query := `SELECT ` + reconciliationColumns + ` FROM reconciliations WHERE id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError("RECONCILIATION")
		}
		return nil, fmt.Errorf("get reconciliation: %w", err)
	}
	return &rec, nil
}

// ListOpen returns pending markers, least recently touched first
func (r *PostgresReconciliationRepository) ListOpen(ctx context.Context, limit int) ([]*entities.Reconciliation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + reconciliationColumns + `
		FROM reconciliations
		WHERE state IN ('pending_confirmation', 'pending_backend')
		ORDER BY updated_at ASC
		LIMIT $1
	`

	var recs []*entities.Reconciliation
	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("list open reconciliations: %w", err)
	}
	return recs, nil
}

// FindOpen returns the pending marker for one record, or NotFound
func (r *PostgresReconciliationRepository) FindOpen(ctx context.Context, kind entities.ReconciliationKind, recordID, participant string) (*entities.Reconciliation, error) {
	query := `
		SELECT ` + reconciliationColumns + `
		FROM reconciliations
		WHERE kind = $1 AND record_id = $2 AND LOWER(participant) = LOWER($3)
			AND state IN ('pending_confirmation', 'pending_backend')
		LIMIT 1
	`

	var rec entities.Reconciliation
	if err := r.db.GetContext(ctx, &rec, query, kind, recordID, participant); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError("RECONCILIATION")
		}
		return nil, fmt.Errorf("find open reconciliation: %w", err)
	}
	return &rec, nil
}
