package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

type tradeKey struct {
	runID string
	seq   int
}

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[tradeKey]*domain.StoredTrade
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[tradeKey]*domain.StoredTrade),
	}
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(_ context.Context, trades []*domain.StoredTrade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[tradeKey]struct{}, len(trades))

	// First pass: check for duplicates (existing + intra-batch)
	for _, t := range trades {
		if t == nil || t.RunID == "" {
			return storage.ErrInvalidInput
		}
		k := tradeKey{t.RunID, t.Seq}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, t := range trades {
		tr := *t
		s.data[tradeKey{t.RunID, t.Seq}] = &tr
	}

	return nil
}

// GetByRunID retrieves the trades of a run ordered by seq ASC.
func (s *TradeStore) GetByRunID(_ context.Context, runID string) ([]*domain.StoredTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StoredTrade
	for k, t := range s.data {
		if k.runID == runID {
			tr := *t
			result = append(result, &tr)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
