package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

func testLedger() *domain.Ledger {
	r0 := domain.NewLedgerRow()
	r0.Balance, r0.Equity, r0.PeakEquity = 10000, 10000, 10000
	r1 := domain.NewLedgerRow()
	r1.CurrentPosition = domain.CodeLongEntry
	r1.Balance, r1.Equity, r1.PeakEquity = 10000, 10000, 10000
	r1.SLPctPrice = 95
	return &domain.Ledger{
		Rows:          []domain.LedgerRow{r0, r1},
		Optional:      []string{domain.ColSLPctPrice},
		HasLeadingNaN: []bool{true, false},
	}
}

func TestLedgerStore_InsertAndGet(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()
	lg := testLedger()

	if err := store.InsertLedger(ctx, "run1", lg); err != nil {
		t.Fatalf("InsertLedger failed: %v", err)
	}

	got, err := store.GetLedger(ctx, "run1")
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", got.Len())
	}
	if got.Rows[1].SLPctPrice != 95 || !math.IsNaN(got.Rows[0].SLPctPrice) {
		t.Errorf("row values not preserved: %+v", got.Rows)
	}
	if got.Optional != nil {
		t.Errorf("optional columns should not be persisted, got %v", got.Optional)
	}
	if len(got.HasLeadingNaN) != 2 || !got.HasLeadingNaN[0] {
		t.Errorf("has_leading_nan not preserved: %v", got.HasLeadingNaN)
	}
	if got.Pause != nil {
		t.Errorf("pause should stay absent, got %v", got.Pause)
	}

	// Mutating the input after insert does not leak into the store.
	lg.Rows[1].SLPctPrice = 1
	again, _ := store.GetLedger(ctx, "run1")
	if again.Rows[1].SLPctPrice != 95 {
		t.Errorf("stored ledger aliased the input")
	}
}

func TestLedgerStore_Errors(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	if err := store.InsertLedger(ctx, "run1", &domain.Ledger{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if err := store.InsertLedger(ctx, "run1", testLedger()); err != nil {
		t.Fatalf("InsertLedger failed: %v", err)
	}
	if err := store.InsertLedger(ctx, "run1", testLedger()); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetLedger(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
