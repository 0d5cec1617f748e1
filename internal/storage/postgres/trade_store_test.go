package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

func createTestTrade(runID string, seq int, side domain.Side) *domain.StoredTrade {
	return &domain.StoredTrade{
		RunID: runID,
		Seq:   seq,
		Trade: domain.Trade{
			Side:       side,
			EntryBar:   10 + seq*5,
			ExitBar:    12 + seq*5,
			EntryPrice: 100,
			ExitPrice:  95,
			ExitReason: domain.ExitReasonSL,
			InBar:      true,
			PnlPct:     -0.05 * side.Sign(),
			Fees:       1.5,
		},
	}
}

func TestTradeStore_InsertBulkAndGet(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	require.NoError(t, NewRunStore(pool).Insert(ctx, createTestRun("run-t", "", time.Now())))

	store := NewTradeStore(pool)
	trades := []*domain.StoredTrade{
		createTestTrade("run-t", 1, domain.Short),
		createTestTrade("run-t", 0, domain.Long),
	}
	require.NoError(t, store.InsertBulk(ctx, trades))

	got, err := store.GetByRunID(ctx, "run-t")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, domain.Long, got[0].Side)
	assert.Equal(t, domain.Short, got[1].Side)
	assert.Equal(t, *trades[1], *got[0])
	assert.InDelta(t, 0.05, got[1].PnlPct, 1e-12)
	assert.True(t, got[1].InBar)
}

func TestTradeStore_InsertBulkDuplicateRollsBack(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	require.NoError(t, NewRunStore(pool).Insert(ctx, createTestRun("run-d", "", time.Now())))

	store := NewTradeStore(pool)
	require.NoError(t, store.InsertBulk(ctx, []*domain.StoredTrade{createTestTrade("run-d", 0, domain.Long)}))

	err := store.InsertBulk(ctx, []*domain.StoredTrade{
		createTestTrade("run-d", 1, domain.Long),
		createTestTrade("run-d", 0, domain.Long),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-d")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
