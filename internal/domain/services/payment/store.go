package payment

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

// ActionStore persists payment actions.
type ActionStore interface {
	Create(ctx context.Context, action *entities.PaymentAction) error
	Update(ctx context.Context, action *entities.PaymentAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentAction, error)
	// ListByAccount returns the account's most recent actions first.
	ListByAccount(ctx context.Context, account string, chainID int64, limit int) ([]*entities.PaymentAction, error)
}

// MemoryActionStore keeps actions in process. Used when no database is configured and in tests.
type MemoryActionStore struct {
	mu      sync.RWMutex
	actions map[uuid.UUID]entities.PaymentAction
}

func NewMemoryActionStore() *MemoryActionStore {
	return &MemoryActionStore{actions: make(map[uuid.UUID]entities.PaymentAction)}
}

func (s *MemoryActionStore) Create(_ context.Context, action *entities.PaymentAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[action.ID]; ok {
		return apperrors.ConflictError("payment action", "already exists")
	}
	s.actions[action.ID] = *action
	return nil
}

func (s *MemoryActionStore) Update(_ context.Context, action *entities.PaymentAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[action.ID]; !ok {
		return apperrors.NotFoundError("PAYMENT_ACTION")
	}
	s.actions[action.ID] = *action
	return nil
}

func (s *MemoryActionStore) GetByID(_ context.Context, id uuid.UUID) (*entities.PaymentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, apperrors.NotFoundError("PAYMENT_ACTION")
	}
	return &a, nil
}

func (s *MemoryActionStore) ListByAccount(_ context.Context, account string, chainID int64, limit int) ([]*entities.PaymentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entities.PaymentAction
	for _, a := range s.actions {
		if a.ChainID == chainID && strings.EqualFold(a.Account, account) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
