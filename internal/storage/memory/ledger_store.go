package memory

import (
	"context"
	"sync"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Ledger // keyed by run_id
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[string]*domain.Ledger),
	}
}

// InsertLedger stores a copy of the ledger. Returns ErrDuplicateKey if the run already has rows.
func (s *LedgerStore) InsertLedger(_ context.Context, runID string, lg *domain.Ledger) error {
	if runID == "" || lg == nil || lg.Len() == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}

	// Optional column names are not persisted, same as the column stores.
	s.data[runID] = cloneLedger(lg)
	return nil
}

// GetLedger returns a copy of the stored ledger. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetLedger(_ context.Context, runID string) (*domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lg, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneLedger(lg), nil
}

func cloneLedger(lg *domain.Ledger) *domain.Ledger {
	cp := &domain.Ledger{
		Rows: append([]domain.LedgerRow(nil), lg.Rows...),
	}
	if lg.HasLeadingNaN != nil {
		cp.HasLeadingNaN = append([]bool(nil), lg.HasLeadingNaN...)
	}
	if lg.Pause != nil {
		cp.Pause = append([]bool(nil), lg.Pause...)
	}
	return cp
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
