package entities

import "math/big"

// PaymentEventKind names the three events the payment contract emits.
type PaymentEventKind string

const (
	PaymentEventSent       PaymentEventKind = "PaymentSent"
	PaymentEventClaimed    PaymentEventKind = "PaymentClaimed"
	PaymentEventReimbursed PaymentEventKind = "PaymentReimbursed"
)

// Status maps a terminal event to the payment status it produces.
func (k PaymentEventKind) Status() PaymentStatus {
	switch k {
	case PaymentEventClaimed:
		return PaymentStatusClaimed
	case PaymentEventReimbursed:
		return PaymentStatusReimbursed
	default:
		return PaymentStatusSent
	}
}

// PaymentEvent is one decoded contract log.
type PaymentEvent struct {
	Kind         PaymentEventKind
	PaymentID    string
	From         string // PaymentSent only
	To           string // PaymentSent only
	By           string // PaymentClaimed / PaymentReimbursed only
	Amount       *big.Int
	TokenAddress string
	BlockNumber  uint64
	BlockHash    string
	LogIndex     uint
	TxHash       string
}

// EventFilter selects one event stream over a block range. From and To only
// apply to PaymentSent. PaymentID narrows any stream to a single payment.
type EventFilter struct {
	Kind      PaymentEventKind
	PaymentID string
	From      string
	To        string
	FromBlock uint64
	ToBlock   uint64
}

// ReceiptStatus is the outcome of a mined transaction.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptSucceeded ReceiptStatus = "succeeded"
	ReceiptReverted  ReceiptStatus = "reverted"
)

// TxReceipt is the part of a transaction receipt the services care about.
type TxReceipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber uint64
}
