package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

type barKey struct {
	symbol    string
	timeframe string
	timeMs    int64
}

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[barKey]*domain.OHLCV
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[barKey]*domain.OHLCV),
	}
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate.
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.OHLCV) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[barKey]struct{}, len(bars))

	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := barKey{b.Symbol, b.Timeframe, b.TimeMs}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, b := range bars {
		bar := *b
		s.data[barKey{b.Symbol, b.Timeframe, b.TimeMs}] = &bar
	}

	return nil
}

// GetBySymbol retrieves all bars for a symbol/timeframe ordered by time ASC.
func (s *BarStore) GetBySymbol(_ context.Context, symbol, timeframe string) ([]*domain.OHLCV, error) {
	return s.filter(symbol, timeframe, func(int64) bool { return true }), nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(_ context.Context, symbol, timeframe string, start, end int64) ([]*domain.OHLCV, error) {
	return s.filter(symbol, timeframe, func(ts int64) bool { return ts >= start && ts <= end }), nil
}

func (s *BarStore) filter(symbol, timeframe string, keep func(int64) bool) []*domain.OHLCV {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OHLCV
	for k, b := range s.data {
		if k.symbol == symbol && k.timeframe == timeframe && keep(k.timeMs) {
			bar := *b
			result = append(result, &bar)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimeMs < result[j].TimeMs
	})

	return result
}

var _ storage.BarStore = (*BarStore)(nil)
