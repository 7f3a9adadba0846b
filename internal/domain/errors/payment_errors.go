package errors

import (
	"errors"
	"fmt"
)

// Payment lifecycle errors
var (
	ErrUnresolvedRecipient = errors.New("recipient could not be resolved")
	ErrOracleExhausted     = errors.New("all price sources failed")
	ErrLedgerRead          = errors.New("ledger read failed")
	ErrInvalidState        = errors.New("invalid payment state for action")
	ErrSubmissionRejected  = errors.New("transaction submission rejected")
	ErrConfirmation        = errors.New("transaction failed on chain")
	ErrReconciliation      = errors.New("payment confirmed but record not updated")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnsupportedNetwork  = errors.New("unsupported network")
)

// UnresolvedRecipientError is returned when a nickname has no address book entry.
func UnresolvedRecipientError(input string) *DomainError {
	return &DomainError{
		Err:     ErrUnresolvedRecipient,
		Code:    "UNRESOLVED_RECIPIENT",
		Message: fmt.Sprintf("could not resolve recipient %q", input),
		Details: map[string]interface{}{
			"input": input,
		},
	}
}

// OracleExhaustedError is diagnostic only; the resolver falls back to static rates
// instead of surfacing it.
func OracleExhaustedError(symbol string, chainID int64) *DomainError {
	return &DomainError{
		Err:     ErrOracleExhausted,
		Code:    "ORACLE_EXHAUSTED",
		Message: fmt.Sprintf("no live price for %s on chain %d", symbol, chainID),
	}
}

// LedgerReadError wraps a failed event scan.
func LedgerReadError(chainID int64, err error) *DomainError {
	de := &DomainError{
		Err:       ErrLedgerRead,
		Code:      "LEDGER_READ_FAILED",
		Message:   "failed to read payment events",
		Retryable: true,
		Details: map[string]interface{}{
			"chain_id": chainID,
		},
	}
	if err != nil {
		de.Details["cause"] = err.Error()
	}
	return de
}

// InvalidStateError is returned when claim or reimburse is attempted by the wrong
// party or against a payment that already left SENT.
func InvalidStateError(paymentID, reason string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidState,
		Code:    "INVALID_PAYMENT_STATE",
		Message: reason,
		Details: map[string]interface{}{
			"payment_id": paymentID,
		},
	}
}

// SubmissionRejectedError covers signer refusal and node-side rejection before a
// transaction hash exists.
func SubmissionRejectedError(reason string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrSubmissionRejected,
		Code:    "SUBMISSION_REJECTED",
		Message: reason,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// ConfirmationError is returned when a submitted transaction reverts or never confirms.
func ConfirmationError(txHash, reason string) *DomainError {
	return &DomainError{
		Err:     ErrConfirmation,
		Code:    "CONFIRMATION_FAILED",
		Message: reason,
		Details: map[string]interface{}{
			"tx_hash": txHash,
		},
	}
}

// ReconciliationError means money moved but the backend record did not follow.
func ReconciliationError(recordKind, recordID, txHash string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrReconciliation,
		Code:      "PAID_BUT_UNRECONCILED",
		Message:   "Payment successful but record update failed. Please contact support.",
		Retryable: true,
		Details: map[string]interface{}{
			"record_kind": recordKind,
			"record_id":   recordID,
			"tx_hash":     txHash,
		},
	}
	if err != nil {
		de.Details["cause"] = err.Error()
	}
	return de
}

// InsufficientFundsError creates an insufficient funds error
func InsufficientFundsError(available, required, symbol string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: fmt.Sprintf("insufficient %s balance", symbol),
		Details: map[string]interface{}{
			"available": available,
			"required":  required,
		},
	}
}

// UnsupportedNetworkError is returned for chain ids missing from configuration.
func UnsupportedNetworkError(chainID int64) *DomainError {
	return &DomainError{
		Err:     ErrUnsupportedNetwork,
		Code:    "UNSUPPORTED_NETWORK",
		Message: fmt.Sprintf("chain %d is not configured", chainID),
	}
}

func IsUnresolvedRecipient(err error) bool { return errors.Is(err, ErrUnresolvedRecipient) }
func IsLedgerRead(err error) bool          { return errors.Is(err, ErrLedgerRead) }
func IsInvalidState(err error) bool        { return errors.Is(err, ErrInvalidState) }
func IsSubmissionRejected(err error) bool  { return errors.Is(err, ErrSubmissionRejected) }
func IsConfirmation(err error) bool        { return errors.Is(err, ErrConfirmation) }
func IsReconciliation(err error) bool      { return errors.Is(err, ErrReconciliation) }
func IsInsufficientFunds(err error) bool   { return errors.Is(err, ErrInsufficientFunds) }
func IsUnsupportedNetwork(err error) bool  { return errors.Is(err, ErrUnsupportedNetwork) }
