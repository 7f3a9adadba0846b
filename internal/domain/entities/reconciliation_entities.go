package entities

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationKind names the backend record a payment settles.
type ReconciliationKind string

const (
	ReconciliationInvoice    ReconciliationKind = "invoice"
	ReconciliationSplitShare ReconciliationKind = "split_share"
)

// ReconciliationState tracks the backend update that follows a payment.
type ReconciliationState string

const (
	ReconciliationPendingConfirmation ReconciliationState = "pending_confirmation"
	ReconciliationPendingBackend      ReconciliationState = "pending_backend"
	ReconciliationReconciled          ReconciliationState = "reconciled"
	ReconciliationFailed              ReconciliationState = "failed"
)

// Reconciliation is the durable marker written once a settlement payment has a
// transaction hash. It outlives the request so a worker can finish the job.
type Reconciliation struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	Kind        ReconciliationKind  `json:"kind" db:"kind"`
	RecordID    string              `json:"recordId" db:"record_id"`
	Participant string              `json:"participant,omitempty" db:"participant"`
	ChainID     int64               `json:"chainId" db:"chain_id"`
	TxHash      string              `json:"transactionHash" db:"tx_hash"`
	State       ReconciliationState `json:"state" db:"state"`
	Attempts    int                 `json:"attempts" db:"attempts"`
	LastError   string              `json:"lastError,omitempty" db:"last_error"`
	CreatedAt   time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time           `json:"updatedAt" db:"updated_at"`
}

// NewReconciliation creates a marker awaiting confirmation of txHash.
func NewReconciliation(kind ReconciliationKind, recordID, participant string, chainID int64, txHash string) *Reconciliation {
	now := time.Now().UTC()
	return &Reconciliation{
		ID:          uuid.New(),
		Kind:        kind,
		RecordID:    recordID,
		Participant: participant,
		ChainID:     chainID,
		TxHash:      txHash,
		State:       ReconciliationPendingConfirmation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsOpen reports whether the worker still has something to do.
func (r *Reconciliation) IsOpen() bool {
	return r.State == ReconciliationPendingConfirmation || r.State == ReconciliationPendingBackend
}
