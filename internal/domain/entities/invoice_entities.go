package entities

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InvoicePaymentStatus mirrors the backend's invoice payment state.
type InvoicePaymentStatus string

const (
	InvoicePending   InvoicePaymentStatus = "pending"
	InvoicePaid      InvoicePaymentStatus = "paid"
	InvoiceCancelled InvoicePaymentStatus = "cancelled"
)

// Invoice is a USD-denominated bill payable on-chain to WalletAddress.
type Invoice struct {
	ID              string               `json:"_id"`
	InvoiceNumber   string               `json:"invoiceNumber"`
	CreatedBy       string               `json:"createdBy"`
	ClientName      string               `json:"clientName"`
	ClientEmail     string               `json:"clientEmail"`
	IssueDate       string               `json:"issueDate"`
	DueDate         string               `json:"dueDate"`
	Description     string               `json:"description"`
	Amount          decimal.Decimal      `json:"amount"`
	WalletAddress   string               `json:"walletAddress"`
	PaymentStatus   InvoicePaymentStatus `json:"paymentStatus"`
	TransactionHash string               `json:"transactionHash,omitempty"`
}

// IsPayable reports whether the invoice still expects a payment.
func (i *Invoice) IsPayable() bool {
	return i.PaymentStatus == InvoicePending || i.PaymentStatus == ""
}

// NewInvoice is the creation payload for an invoice.
type NewInvoice struct {
	ClientName    string          `json:"clientName" binding:"required"`
	ClientEmail   string          `json:"clientEmail" binding:"required,email"`
	DueDate       string          `json:"dueDate" binding:"required"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	WalletAddress string          `json:"walletAddress,omitempty"`
}

type SplitStatus string

const (
	SplitActive    SplitStatus = "active"
	SplitCompleted SplitStatus = "completed"
	SplitCancelled SplitStatus = "cancelled"
)

type ParticipantStatus string

const (
	ParticipantPending ParticipantStatus = "pending"
	ParticipantPaid    ParticipantStatus = "paid"
)

// SplitParticipant owes one share of a split bill.
type SplitParticipant struct {
	ID              string            `json:"_id,omitempty"`
	Nickname        string            `json:"nickname"`
	Email           string            `json:"email"`
	WalletAddress   string            `json:"walletAddress"`
	Amount          decimal.Decimal   `json:"amount"`
	Status          ParticipantStatus `json:"status"`
	PaymentDate     string            `json:"paymentDate,omitempty"`
	TransactionHash string            `json:"transactionHash,omitempty"`
}

// SplitBill divides an invoice between the initiator and participants.
type SplitBill struct {
	ID                     string             `json:"_id"`
	SplitID                string             `json:"splitId"`
	InvoiceID              string             `json:"invoiceId"`
	InvoiceNumber          string             `json:"invoiceNumber"`
	CreatedBy              string             `json:"createdBy"`
	InitiatorEmail         string             `json:"initiatorEmail"`
	InitiatorWalletAddress string             `json:"initiatorWalletAddress"`
	TotalAmount            decimal.Decimal    `json:"totalAmount"`
	DueDate                string             `json:"dueDate"`
	Participants           []SplitParticipant `json:"participants"`
	Status                 SplitStatus        `json:"status"`
	CompletedDate          string             `json:"completedDate,omitempty"`
	CreatedAt              string             `json:"createdAt,omitempty"`
	UpdatedAt              string             `json:"updatedAt,omitempty"`
}

// Participant finds a participant by email, case-insensitively.
func (s *SplitBill) Participant(email string) (*SplitParticipant, bool) {
	for i := range s.Participants {
		if strings.EqualFold(s.Participants[i].Email, email) {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// AllPaid reports whether every participant has paid their share.
func (s *SplitBill) AllPaid() bool {
	if len(s.Participants) == 0 {
		return false
	}
	for _, p := range s.Participants {
		if p.Status != ParticipantPaid {
			return false
		}
	}
	return true
}

// ShareRequest assigns an amount to an address book nickname.
type ShareRequest struct {
	Nickname string          `json:"nickname" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}
