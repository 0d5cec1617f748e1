package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

type aggregateKey struct {
	jobID  string
	metric string
}

// SweepAggregateStore is an in-memory implementation of storage.SweepAggregateStore.
type SweepAggregateStore struct {
	mu   sync.RWMutex
	data map[aggregateKey]*domain.SweepAggregate
}

// NewSweepAggregateStore creates a new in-memory sweep aggregate store.
func NewSweepAggregateStore() *SweepAggregateStore {
	return &SweepAggregateStore{
		data: make(map[aggregateKey]*domain.SweepAggregate),
	}
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *SweepAggregateStore) InsertBulk(_ context.Context, aggregates []*domain.SweepAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[aggregateKey]struct{}, len(aggregates))

	for _, a := range aggregates {
		if a == nil || a.JobID == "" || a.Metric == "" {
			return storage.ErrInvalidInput
		}
		k := aggregateKey{a.JobID, a.Metric}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, a := range aggregates {
		agg := *a
		s.data[aggregateKey{a.JobID, a.Metric}] = &agg
	}

	return nil
}

// GetByJob retrieves all aggregates of a job ordered by metric ASC.
func (s *SweepAggregateStore) GetByJob(_ context.Context, jobID string) ([]*domain.SweepAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SweepAggregate
	for k, a := range s.data {
		if k.jobID == jobID {
			agg := *a
			result = append(result, &agg)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Metric < result[j].Metric
	})

	return result, nil
}

var _ storage.SweepAggregateStore = (*SweepAggregateStore)(nil)
