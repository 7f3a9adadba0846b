package backend

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

// envelope is the {status, data, results} wrapper every backend response uses.
type envelope[T any] struct {
	Status  string `json:"status"`
	Data    T      `json:"data"`
	Results int    `json:"results,omitempty"`
	AllPaid *bool  `json:"allPaid,omitempty"`
}

// amount renders a USD value the way the backend stores it, a JSON number at cents precision.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type createInvoicePayload struct {
	ClientName    string      `json:"clientName"`
	ClientEmail   string      `json:"clientEmail"`
	DueDate       string      `json:"dueDate"`
	Description   string      `json:"description"`
	Amount        json.Number `json:"amount"`
	WalletAddress string      `json:"walletAddress,omitempty"`
}

type updateInvoiceStatusPayload struct {
	PaymentStatus   entities.InvoicePaymentStatus `json:"paymentStatus"`
	TransactionHash string                        `json:"transactionHash,omitempty"`
}

// CreateSplitRequest is the payload for creating a split bill.
type CreateSplitRequest struct {
	InvoiceID              string                  `json:"invoiceId" binding:"required"`
	InitiatorWalletAddress string                  `json:"initiatorWalletAddress" binding:"required"`
	Participants           []entities.ShareRequest `json:"participants" binding:"required,min=1,dive"`
}

type shareLine struct {
	Nickname string      `json:"nickname"`
	Amount   json.Number `json:"amount"`
}

type createSplitPayload struct {
	InvoiceID              string      `json:"invoiceId"`
	InitiatorWalletAddress string      `json:"initiatorWalletAddress"`
	Participants           []shareLine `json:"participants"`
}

type participantPaymentPayload struct {
	TransactionHash string `json:"transactionHash"`
}

// SplitUpdate is the backend's answer to a participant payment.
type SplitUpdate struct {
	Split   *entities.SplitBill
	AllPaid bool
}

// AddressUpdate changes an address book entry. Empty fields are left untouched.
type AddressUpdate struct {
	WalletAddress string `json:"walletAddress,omitempty"`
	NewNickname   string `json:"newNickname,omitempty"`
	Email         string `json:"email,omitempty"`
}

type addAddressPayload struct {
	Nickname      string `json:"nickname"`
	WalletAddress string `json:"walletAddress"`
	Email         string `json:"email,omitempty"`
}

type fromInvoicePayload struct {
	InvoiceID string `json:"invoiceId"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	AuthMode string `json:"authMode,omitempty"`
}

// LoginResponse carries the backend session token and user profile.
type LoginResponse struct {
	Status string          `json:"status,omitempty"`
	Token  string          `json:"token"`
	User   json.RawMessage `json:"user,omitempty"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Company  string `json:"company,omitempty"`
	AuthMode string `json:"authMode,omitempty"`
}

// ResetPasswordRequest completes an OTP password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// MessageResponse is the plain {status, message} acknowledgement.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
