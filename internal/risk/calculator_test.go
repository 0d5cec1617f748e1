package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

type ohlc struct{ o, h, l, c float64 }

func frameOf(bars ...ohlc) *domain.Frame {
	n := len(bars)
	f := &domain.Frame{
		Open:       make([]float64, n),
		High:       make([]float64, n),
		Low:        make([]float64, n),
		Close:      make([]float64, n),
		EntryLong:  make([]bool, n),
		EntryShort: make([]bool, n),
		ExitLong:   make([]bool, n),
		ExitShort:  make([]bool, n),
	}
	for i, b := range bars {
		f.Open[i], f.High[i], f.Low[i], f.Close[i] = b.o, b.h, b.l, b.c
	}
	return f
}

func TestInit_PercentageLevels(t *testing.T) {
	f := frameOf(ohlc{100, 101, 99, 100}, ohlc{100, 102, 98, 101})
	p := domain.DefaultParams()
	p.SLPct = 0.1
	p.TPPct = 0.2

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))

	lv := c.Levels()
	assert.InDelta(t, 90.0, lv.SLPct, 1e-9)
	assert.InDelta(t, 120.0, lv.TPPct, 1e-9)
	assert.True(t, math.IsNaN(lv.SLATR))
	assert.True(t, math.IsNaN(lv.TSLPct))
	assert.Equal(t, domain.Long, c.Side())

	require.True(t, c.Init(domain.Short, 1, 100))
	lv = c.Levels()
	assert.InDelta(t, 110.0, lv.SLPct, 1e-9)
	assert.InDelta(t, 80.0, lv.TPPct, 1e-9)
}

func TestInit_ATRAnchors(t *testing.T) {
	f := frameOf(ohlc{100, 104, 95, 100}, ohlc{100, 101, 99, 100})
	atr := []float64{2, 2}
	p := domain.DefaultParams()
	p.SLATR = 2
	p.TPATR = 3
	p.SLAnchorMode = true
	p.TPAnchorMode = true

	c := New(p, f, atr)
	require.True(t, c.Init(domain.Long, 1, 100))
	lv := c.Levels()
	assert.InDelta(t, 91.0, lv.SLATR, 1e-9)  // low 95 - 2*2
	assert.InDelta(t, 110.0, lv.TPATR, 1e-9) // high 104 + 2*3

	p.SLAnchorMode = false
	c = New(p, f, atr)
	require.True(t, c.Init(domain.Long, 1, 100))
	assert.InDelta(t, 96.0, c.Levels().SLATR, 1e-9) // close 100 - 4
}

func TestInit_GapProtection(t *testing.T) {
	// signal bar close 100, ATR 1, sl_atr 2 -> stop 98; fill opens at 97
	f := frameOf(ohlc{100, 101, 99, 100}, ohlc{97, 98, 96, 97})
	p := domain.DefaultParams()
	p.SLATR = 2

	c := New(p, f, []float64{1, 1})
	assert.False(t, c.Init(domain.Long, 1, 97))
	assert.Equal(t, domain.Flat, c.Side())
}

func TestInit_NaNATRSkipsLevel(t *testing.T) {
	f := frameOf(ohlc{100, 101, 99, 100}, ohlc{100, 101, 99, 100})
	p := domain.DefaultParams()
	p.SLATR = 2

	c := New(p, f, []float64{math.NaN(), 1})
	require.True(t, c.Init(domain.Long, 1, 100))
	assert.True(t, math.IsNaN(c.Levels().SLATR))
	assert.True(t, math.IsNaN(c.Levels().StopLoss(domain.Long)))
}

func TestLevels_EffectiveTighter(t *testing.T) {
	lv := EmptyLevels()
	lv.SLPct, lv.SLATR = 90, 95
	lv.TPPct, lv.TPATR = 120, 110

	assert.Equal(t, 95.0, lv.StopLoss(domain.Long))
	assert.Equal(t, 110.0, lv.TakeProfit(domain.Long))
	assert.Equal(t, 90.0, lv.StopLoss(domain.Short))
	assert.Equal(t, 120.0, lv.TakeProfit(domain.Short))
}

func TestCheck_SLBeatsTPInBar(t *testing.T) {
	f := frameOf(ohlc{100, 100, 100, 100}, ohlc{100, 100, 100, 100}, ohlc{100, 125, 85, 100})
	p := domain.DefaultParams()
	p.SLPct, p.TPPct = 0.1, 0.2
	p.SLTriggerMode, p.TPTriggerMode = true, true
	p.SLExitInBar, p.TPExitInBar = true, true

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))
	c.Update(2)
	tr := c.Check(2)

	assert.True(t, tr.SL)
	assert.True(t, tr.TP)
	assert.True(t, tr.InBar)
	assert.Equal(t, domain.ExitReasonSL, tr.Reason)
	assert.InDelta(t, 90.0, tr.Price, 1e-9)
}

func TestCheck_InBarStopFillsAtTighterLevel(t *testing.T) {
	// percentage stop at 90, ATR stop at close 100 - 5 = 95; bar 2 breaches both
	f := frameOf(ohlc{100, 100, 100, 100}, ohlc{100, 100, 100, 100}, ohlc{100, 100, 85, 90})
	atr := []float64{5, 5, 5}
	p := domain.DefaultParams()
	p.SLPct, p.SLATR = 0.1, 1
	p.SLAnchorMode = false
	p.SLTriggerMode, p.SLExitInBar = true, true

	c := New(p, f, atr)
	require.True(t, c.Init(domain.Long, 1, 100))
	c.Update(2)
	tr := c.Check(2)

	assert.True(t, tr.SL)
	assert.True(t, tr.InBar)
	assert.Equal(t, domain.ExitReasonSL, tr.Reason)
	assert.InDelta(t, 95.0, tr.Price, 1e-9)

	f = frameOf(ohlc{100, 100, 100, 100}, ohlc{100, 100, 100, 100}, ohlc{100, 115, 100, 110})
	c = New(p, f, atr)
	require.True(t, c.Init(domain.Short, 1, 100))
	c.Update(2)
	tr = c.Check(2)

	assert.True(t, tr.SL)
	assert.True(t, tr.InBar)
	assert.InDelta(t, 105.0, tr.Price, 1e-9)
}

func TestCheck_TPInBarWhenSLNotEligible(t *testing.T) {
	f := frameOf(ohlc{100, 100, 100, 100}, ohlc{100, 100, 100, 100}, ohlc{100, 125, 85, 100})
	p := domain.DefaultParams()
	p.SLPct, p.TPPct = 0.1, 0.2
	p.SLTriggerMode, p.TPTriggerMode = true, true
	p.TPExitInBar = true

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))
	tr := c.Check(2)

	assert.True(t, tr.InBar)
	assert.Equal(t, domain.ExitReasonTP, tr.Reason)
	assert.InDelta(t, 120.0, tr.Price, 1e-9)
}

func TestCheck_CloseModeIsPending(t *testing.T) {
	f := frameOf(ohlc{100, 100, 100, 100}, ohlc{100, 100, 100, 100}, ohlc{100, 101, 80, 95})
	p := domain.DefaultParams()
	p.SLPct = 0.1

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))

	// low 80 breaches 90 but Close 95 does not
	assert.False(t, c.Check(2).Hit())

	p.SLTriggerMode = true
	c = New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))
	tr := c.Check(2)
	assert.True(t, tr.SL)
	assert.False(t, tr.InBar)
	assert.Equal(t, domain.ExitReasonSL, tr.Reason)
}

func TestCheck_ShortMirror(t *testing.T) {
	f := frameOf(ohlc{100, 100, 100, 100}, ohlc{100, 100, 100, 100}, ohlc{100, 111, 99, 100})
	p := domain.DefaultParams()
	p.SLPct = 0.1
	p.SLTriggerMode = true
	p.SLExitInBar = true

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Short, 1, 100))
	tr := c.Check(2)

	assert.True(t, tr.InBar)
	assert.InDelta(t, 110.0, tr.Price, 1e-9)
}

func TestUpdate_TrailingRatchet(t *testing.T) {
	f := frameOf(
		ohlc{100, 101, 99, 100},
		ohlc{100, 102, 99, 101},
		ohlc{101, 105, 100, 104},
		ohlc{104, 110, 103, 108},
		ohlc{108, 109, 101, 102},
		ohlc{102, 104, 100, 103},
	)
	p := domain.DefaultParams()
	p.TSLPct = 0.05
	p.TSLAnchorMode = true
	p.TSLATRTight = true

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))
	assert.InDelta(t, 101*0.95, c.Levels().TSLPct, 1e-9)

	prev := c.Levels().TSLPct
	for i := 2; i < f.Len(); i++ {
		c.Update(i)
		cur := c.Levels().TSLPct
		assert.GreaterOrEqual(t, cur, prev, "bar %d", i)
		prev = cur
	}
	assert.InDelta(t, 110*0.95, prev, 1e-9)
	assert.Equal(t, 110.0, c.Levels().Extremum)
}

func TestUpdate_NonTightLagsOneBar(t *testing.T) {
	f := frameOf(
		ohlc{100, 100, 100, 100},
		ohlc{100, 100, 100, 100},
		ohlc{100, 120, 100, 100},
		ohlc{100, 100, 100, 100},
	)
	p := domain.DefaultParams()
	p.TSLPct = 0.1
	p.TSLAnchorMode = true

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))

	c.Update(2)
	assert.Equal(t, 100.0, c.Levels().Extremum) // bar 1 high

	c.Update(3)
	assert.Equal(t, 120.0, c.Levels().Extremum) // bar 2 high, one bar late
	assert.InDelta(t, 108.0, c.Levels().TSLPct, 1e-9)
}

func TestUpdate_ATRTrailingShortRatchet(t *testing.T) {
	f := frameOf(
		ohlc{100, 101, 99, 100},
		ohlc{100, 101, 98, 99},
		ohlc{99, 100, 95, 96},
		ohlc{96, 99, 94, 98},
		ohlc{98, 99, 90, 91},
	)
	atr := []float64{2, 2, 3, 1, math.NaN()}
	p := domain.DefaultParams()
	p.TSLATR = 2
	p.TSLATRTight = true

	c := New(p, f, atr)
	require.True(t, c.Init(domain.Short, 1, 100))
	assert.InDelta(t, 104.0, c.Levels().TSLATR, 1e-9) // close 100 + 2*2

	prev := c.Levels().TSLATR
	for i := 2; i < f.Len(); i++ {
		c.Update(i)
		cur := c.Levels().TSLATR
		assert.LessOrEqual(t, cur, prev, "bar %d", i)
		prev = cur
	}
	// bar 3 tightens to 96+1*2; the NaN ATR on bar 4 carries it
	assert.InDelta(t, 98.0, prev, 1e-9)
}

func TestPSAR_InactiveWithoutHistory(t *testing.T) {
	f := frameOf(ohlc{100, 101, 99, 100}, ohlc{100, 101, 99, 100})
	p := domain.DefaultParams()
	p.TSLPSARAF0, p.TSLPSARAFStep, p.TSLPSARMaxAF = 0.02, 0.02, 0.2

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 1, 100))
	assert.True(t, math.IsNaN(c.Levels().PSAR))
}

func TestPSAR_TrailsLong(t *testing.T) {
	f := frameOf(
		ohlc{100, 101, 99, 100},
		ohlc{100, 102, 100, 101},
		ohlc{101, 104, 101, 103},
		ohlc{103, 106, 103, 105},
		ohlc{105, 108, 105, 107},
	)
	p := domain.DefaultParams()
	p.TSLPSARAF0, p.TSLPSARAFStep, p.TSLPSARMaxAF = 0.02, 0.02, 0.2
	p.TSLAnchorMode = true

	c := New(p, f, nil)
	require.True(t, c.Init(domain.Long, 2, 101))
	first := c.Levels().PSAR
	require.False(t, math.IsNaN(first))
	assert.Less(t, first, f.Open[2])

	c.Update(3)
	c.Update(4)
	assert.Greater(t, c.Levels().PSAR, first)
	assert.False(t, c.Check(4).Hit())
}
