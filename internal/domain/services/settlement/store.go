package settlement

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
)

// ReconciliationStore persists reconciliation markers.
type ReconciliationStore interface {
	Create(ctx context.Context, rec *entities.Reconciliation) error
	Update(ctx context.Context, rec *entities.Reconciliation) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Reconciliation, error)
	// ListOpen returns pending markers, least recently updated first.
	ListOpen(ctx context.Context, limit int) ([]*entities.Reconciliation, error)
	// FindOpen returns the pending marker for one invoice or split share, or
	// NotFound. At most one can be open at a time.
	FindOpen(ctx context.Context, kind entities.ReconciliationKind, recordID, participant string) (*entities.Reconciliation, error)
}

// MemoryReconciliationStore keeps markers in process. Markers do not survive a
// restart, so production wires the Postgres repository instead.
type MemoryReconciliationStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]entities.Reconciliation
}

func NewMemoryReconciliationStore() *MemoryReconciliationStore {
	return &MemoryReconciliationStore{records: make(map[uuid.UUID]entities.Reconciliation)}
}

func (s *MemoryReconciliationStore) Create(_ context.Context, rec *entities.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return apperrors.ConflictError("reconciliation", "already exists")
	}
	if rec.IsOpen() {
		if _, ok := s.findOpen(rec.Kind, rec.RecordID, rec.Participant); ok {
			return apperrors.ConflictError("reconciliation", "an open marker already exists for this record")
		}
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryReconciliationStore) Update(_ context.Context, rec *entities.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return apperrors.NotFoundError("RECONCILIATION")
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryReconciliationStore) GetByID(_ context.Context, id uuid.UUID) (*entities.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, apperrors.NotFoundError("RECONCILIATION")
	}
	return &rec, nil
}

func (s *MemoryReconciliationStore) ListOpen(_ context.Context, limit int) ([]*entities.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open := make([]*entities.Reconciliation, 0)
	for _, rec := range s.records {
		if rec.IsOpen() {
			r := rec
			open = append(open, &r)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].UpdatedAt.Before(open[j].UpdatedAt) })
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

func (s *MemoryReconciliationStore) FindOpen(_ context.Context, kind entities.ReconciliationKind, recordID, participant string) (*entities.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.findOpen(kind, recordID, participant)
	if !ok {
		return nil, apperrors.NotFoundError("RECONCILIATION")
	}
	return &rec, nil
}

func (s *MemoryReconciliationStore) findOpen(kind entities.ReconciliationKind, recordID, participant string) (entities.Reconciliation, bool) {
	for _, rec := range s.records {
		if rec.IsOpen() && rec.Kind == kind && rec.RecordID == recordID && strings.EqualFold(rec.Participant, participant) {
			return rec, true
		}
	}
	return entities.Reconciliation{}, false
}
