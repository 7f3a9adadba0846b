package recipient

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

var (
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	longAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	nicknamePattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

// AddressBook is the backend's nickname store.
type AddressBook interface {
	ListAddresses(ctx context.Context) ([]entities.AddressBookEntry, error)
	SearchAddresses(ctx context.Context, query string) ([]entities.AddressBookEntry, error)
	GetAddressByNickname(ctx context.Context, nickname string) (*entities.AddressBookEntry, error)
	AddAddress(ctx context.Context, nickname, walletAddress, email string) (*entities.AddressBookEntry, error)
	UpdateAddress(ctx context.Context, nickname string, update *backend.AddressUpdate) (*entities.AddressBookEntry, error)
	DeleteAddress(ctx context.Context, nickname string) error
	AddContactFromInvoice(ctx context.Context, invoiceID string) (*entities.AddressBookEntry, error)
}

// AddRequest represents a request to save a contact
type AddRequest struct {
	Nickname      string `json:"nickname" binding:"required"`
	WalletAddress string `json:"walletAddress" binding:"required"`
	Email         string `json:"email" binding:"omitempty,email"`
}

// Service resolves payment recipients and manages the address book
type Service struct {
	book   AddressBook
	logger *zap.Logger
}

// NewService creates a new recipient service
func NewService(book AddressBook, logger *zap.Logger) *Service {
	return &Service{book: book, logger: logger}
}

// IsDirectAddress reports whether input is already an address and needs no lookup.
func IsDirectAddress(input string) bool {
	return evmAddressPattern.MatchString(input) || longAddressPattern.MatchString(input)
}

// Resolve turns an address, nickname or @nickname into a wallet address.
// Addresses are returned unchanged without any network call.
func (s *Service) Resolve(ctx context.Context, input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if IsDirectAddress(trimmed) {
		return trimmed, nil
	}

	nickname := normalizeNickname(trimmed)
	if nickname == "" {
		return "", apperrors.UnresolvedRecipientError(input)
	}

	entry, err := s.book.GetAddressByNickname(ctx, nickname)
	if err != nil {
		if backend.IsNotFound(err) {
			return "", apperrors.UnresolvedRecipientError(input)
		}
		s.logger.Warn("Address book lookup failed",
			zap.String("nickname", nickname),
			zap.Error(err))
		return "", apperrors.ServiceUnavailableError("address book", err)
	}
	if entry == nil || strings.TrimSpace(entry.WalletAddress) == "" {
		return "", apperrors.UnresolvedRecipientError(input)
	}
	return entry.WalletAddress, nil
}

// List returns the caller's contacts
func (s *Service) List(ctx context.Context) ([]entities.AddressBookEntry, error) {
	entries, err := s.book.ListAddresses(ctx)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return entries, nil
}

// Search finds contacts by nickname
func (s *Service) Search(ctx context.Context, query string) ([]entities.AddressBookEntry, error) {
	query = normalizeNickname(query)
	if query == "" {
		return nil, apperrors.ValidationError("query", "search query is required")
	}
	entries, err := s.book.SearchAddresses(ctx, query)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return entries, nil
}

// Get returns a single contact
func (s *Service) Get(ctx context.Context, nickname string) (*entities.AddressBookEntry, error) {
	nickname = normalizeNickname(nickname)
	if nickname == "" {
		return nil, apperrors.ValidationError("nickname", "nickname is required")
	}
	entry, err := s.book.GetAddressByNickname(ctx, nickname)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return entry, nil
}

// Add saves a new contact
func (s *Service) Add(ctx context.Context, req *AddRequest) (*entities.AddressBookEntry, error) {
	nickname := normalizeNickname(req.Nickname)
	if err := validateNickname(nickname); err != nil {
		return nil, err
	}
	if err := validateAddress(req.WalletAddress); err != nil {
		return nil, err
	}

	entry, err := s.book.AddAddress(ctx, nickname, req.WalletAddress, strings.TrimSpace(req.Email))
	if err != nil {
		return nil, mapBackendError(err)
	}

	s.logger.Info("Contact added", zap.String("nickname", nickname))
	return entry, nil
}

// Update changes a contact's address, nickname or email
func (s *Service) Update(ctx context.Context, nickname string, update *backend.AddressUpdate) (*entities.AddressBookEntry, error) {
	nickname = normalizeNickname(nickname)
	if nickname == "" {
		return nil, apperrors.ValidationError("nickname", "nickname is required")
	}
	if update.WalletAddress != "" {
		if err := validateAddress(update.WalletAddress); err != nil {
			return nil, err
		}
	}
	if update.NewNickname != "" {
		update.NewNickname = normalizeNickname(update.NewNickname)
		if err := validateNickname(update.NewNickname); err != nil {
			return nil, err
		}
	}

	entry, err := s.book.UpdateAddress(ctx, nickname, update)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return entry, nil
}

// Delete removes a contact
func (s *Service) Delete(ctx context.Context, nickname string) error {
	nickname = normalizeNickname(nickname)
	if nickname == "" {
		return apperrors.ValidationError("nickname", "nickname is required")
	}
	if err := s.book.DeleteAddress(ctx, nickname); err != nil {
		return mapBackendError(err)
	}
	return nil
}

// AddFromInvoice saves an invoice's counterparty as a contact
func (s *Service) AddFromInvoice(ctx context.Context, invoiceID string) (*entities.AddressBookEntry, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, apperrors.ValidationError("invoiceId", "invoice id is required")
	}
	entry, err := s.book.AddContactFromInvoice(ctx, invoiceID)
	if err != nil {
		return nil, mapBackendError(err)
	}
	return entry, nil
}

func normalizeNickname(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

func validateNickname(nickname string) error {
	if !nicknamePattern.MatchString(nickname) {
		return apperrors.ValidationError("nickname", "nickname may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

// validateAddress validates blockchain address format
func validateAddress(address string) error {
	if !evmAddressPattern.MatchString(address) {
		return apperrors.ValidationError("walletAddress", "invalid EVM address format")
	}
	return nil
}

func mapBackendError(err error) error {
	apiErr, ok := backend.AsAPIError(err)
	if !ok {
		return apperrors.ServiceUnavailableError("address book", err)
	}
	switch {
	case apiErr.IsNotFound():
		return apperrors.NotFoundError("CONTACT")
	case apiErr.IsConflict():
		return apperrors.ConflictError("CONTACT", apiErr.Message)
	case apiErr.IsRetryable():
		return apperrors.ServiceUnavailableError("address book", err)
	default:
		return apperrors.ValidationError("addressBook", apiErr.Message)
	}
}
