package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

func testBars(symbol string, n int) []*domain.OHLCV {
	bars := make([]*domain.OHLCV, n)
	for i := range bars {
		px := 100 + float64(i)
		bars[i] = &domain.OHLCV{
			Symbol: symbol, Timeframe: "1m", TimeMs: int64(i) * 60000,
			Open: px, High: px + 1, Low: px - 1, Close: px + 0.5, Volume: 10,
		}
	}
	return bars
}

func TestBarStore_InsertBulkAndQuery(t *testing.T) {
	conn := setupTestDB(t)

	store := NewBarStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))
	require.NoError(t, store.InsertBulk(ctx, testBars("BTC", 5)))
	require.NoError(t, store.InsertBulk(ctx, testBars("ETH", 2)))

	got, err := store.GetBySymbol(ctx, "BTC", "1m")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, int64(0), got[0].TimeMs)
	assert.Equal(t, 104.5, got[4].Close)

	window, err := store.GetByTimeRange(ctx, "BTC", "1m", 60000, 180000)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, 101.0, window[0].Open)
}

func TestBarStore_InsertBulk_Duplicate(t *testing.T) {
	conn := setupTestDB(t)

	store := NewBarStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testBars("BTC", 2)))
	assert.ErrorIs(t, store.InsertBulk(ctx, testBars("BTC", 1)), storage.ErrDuplicateKey)

	dup := testBars("SOL", 1)
	assert.ErrorIs(t, store.InsertBulk(ctx, append(dup, dup[0])), storage.ErrDuplicateKey)
}
