package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionKind is the ledger operation a PaymentAction performs.
type ActionKind string

const (
	ActionKindSend      ActionKind = "send"
	ActionKindClaim     ActionKind = "claim"
	ActionKindReimburse ActionKind = "reimburse"
	ActionKindApprove   ActionKind = "approve"
)

// ActionState tracks one submission from intent to on-chain outcome.
type ActionState string

const (
	ActionStateIdle                 ActionState = "idle"
	ActionStateSubmitting           ActionState = "submitting"
	ActionStateAwaitingConfirmation ActionState = "awaiting_confirmation"
	ActionStateConfirmed            ActionState = "confirmed"
	ActionStateFailed               ActionState = "failed"
)

var actionTransitions = map[ActionState][]ActionState{
	ActionStateIdle:                 {ActionStateSubmitting},
	ActionStateSubmitting:           {ActionStateAwaitingConfirmation, ActionStateFailed},
	ActionStateAwaitingConfirmation: {ActionStateConfirmed, ActionStateFailed},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ActionState) CanTransitionTo(next ActionState) bool {
	for _, allowed := range actionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the action has an outcome.
func (s ActionState) IsTerminal() bool {
	return s == ActionStateConfirmed || s == ActionStateFailed
}

// PaymentAction is the persisted record of a send, claim, reimburse or approve.
type PaymentAction struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Kind         ActionKind      `json:"kind" db:"kind"`
	Account      string          `json:"account" db:"account"`
	ChainID      int64           `json:"chainId" db:"chain_id"`
	PaymentID    string          `json:"paymentId" db:"payment_id"`
	Reference    string          `json:"reference,omitempty" db:"reference"`
	Recipient    string          `json:"recipient,omitempty" db:"recipient"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	TokenAddress string          `json:"tokenAddress,omitempty" db:"token_address"`
	TxHash       string          `json:"transactionHash,omitempty" db:"tx_hash"`
	State        ActionState     `json:"state" db:"state"`
	Error        string          `json:"error,omitempty" db:"error"`
	ExplorerURL  string          `json:"explorerUrl,omitempty" db:"-"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewPaymentAction returns an idle action.
func NewPaymentAction(kind ActionKind, account string, chainID int64) *PaymentAction {
	now := time.Now().UTC()
	return &PaymentAction{
		ID:        uuid.New(),
		Kind:      kind,
		Account:   account,
		ChainID:   chainID,
		Amount:    decimal.Zero,
		State:     ActionStateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
