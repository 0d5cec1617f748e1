package backtest

import (
	"context"
	"sync"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// Recorder is an Observer that keeps a copy of every row it receives.
type Recorder struct {
	mu   sync.Mutex
	rows []domain.LedgerRow
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{rows: make([]domain.LedgerRow, 0)}
}

// OnBar records the row.
func (r *Recorder) OnBar(_ context.Context, _ int, row *domain.LedgerRow) error {
	r.mu.Lock()
	r.rows = append(r.rows, *row)
	r.mu.Unlock()
	return nil
}

// Rows returns the recorded rows.
func (r *Recorder) Rows() []domain.LedgerRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LedgerRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, i int, row *domain.LedgerRow) error

// OnBar calls f.
func (f ObserverFunc) OnBar(ctx context.Context, i int, row *domain.LedgerRow) error {
	return f(ctx, i, row)
}

var (
	_ Observer = (*Recorder)(nil)
	_ Observer = ObserverFunc(nil)
)
