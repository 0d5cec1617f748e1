package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrueRange(t *testing.T) {
	high := []float64{10, 12, 11}
	low := []float64{8, 9, 7}
	close := []float64{9, 11, 10}

	tr := TrueRange(high, low, close)

	require.Len(t, tr, 3)
	assert.Equal(t, 2.0, tr[0]) // high-low on the first bar
	assert.Equal(t, 3.0, tr[1]) // max(3, |12-9|, |9-9|)
	assert.Equal(t, 4.0, tr[2]) // max(4, |11-11|, |11-7|)
}

func TestRMA_SeedAndRecurrence(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5}

	out := RMA(src, 3)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, (2.0*2+4)/3, out[3], 1e-12)
	assert.InDelta(t, (out[3]*2+5)/3, out[4], 1e-12)
}

func TestRMA_ShortInput(t *testing.T) {
	out := RMA([]float64{1, 2}, 14)
	require.Len(t, out, 2)
	for _, v := range out {
		assert.True(t, math.IsNaN(v))
	}
}

func TestATR_FirstValidIndex(t *testing.T) {
	n := 30
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := range close {
		close[i] = 100 + float64(i%5)
		high[i] = close[i] + 1
		low[i] = close[i] - 1
	}

	atr := ATR(high, low, close, 14)

	for i := 0; i < 13; i++ {
		assert.True(t, math.IsNaN(atr[i]), "bar %d should be warm-up", i)
	}
	for i := 13; i < n; i++ {
		assert.False(t, math.IsNaN(atr[i]), "bar %d should be valid", i)
		assert.Greater(t, atr[i], 0.0)
	}
}

func TestSMA_WarmupIsNaN(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4}, 3)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 3.0, out[3], 1e-12)
}
