package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

func TestSweepAggregateStore_InsertAndGet(t *testing.T) {
	store := NewSweepAggregateStore()
	ctx := context.Background()

	aggs := []*domain.SweepAggregate{
		{JobID: "job1", Metric: domain.MetricTotalReturn, Runs: 4, BestRunID: "r2", BestValue: 0.3},
		{JobID: "job1", Metric: domain.MetricMaxDrawdown, Runs: 4, BestRunID: "r1", BestValue: 0.05},
		{JobID: "job2", Metric: domain.MetricTotalReturn, Runs: 1},
	}
	if err := store.InsertBulk(ctx, aggs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByJob(ctx, "job1")
	if err != nil {
		t.Fatalf("GetByJob failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 aggregates, got %d", len(got))
	}
	if got[0].Metric != domain.MetricMaxDrawdown || got[1].BestRunID != "r2" {
		t.Errorf("unexpected aggregates: %+v %+v", got[0], got[1])
	}

	err = store.InsertBulk(ctx, []*domain.SweepAggregate{{JobID: "job1", Metric: domain.MetricTotalReturn}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}
