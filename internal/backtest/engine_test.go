package backtest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/pipeline"
)

type bar struct{ o, h, l, c float64 }

func flatBar(px float64) bar { return bar{px, px, px, px} }

func frameOf(bars ...bar) *domain.Frame {
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

func mustRun(t *testing.T, f *domain.Frame, p domain.Params) *Result {
	t.Helper()
	res, err := NewEngine(Options{}).Run(context.Background(), f, p)
	require.NoError(t, err)
	require.Len(t, res.Ledger.Rows, f.Len())
	return res
}

func scenarioFrame(t *testing.T, bars int, seed int64, leadingNaN bool) *domain.Frame {
	t.Helper()
	cfg := pipeline.DefaultGeneratorConfig()
	cfg.Bars = bars
	cfg.Seed = seed
	ohlcv, err := pipeline.GenerateBars(cfg)
	require.NoError(t, err)
	f, err := pipeline.CrossoverFrame(ohlcv, pipeline.CrossoverConfig{Fast: 2, Slow: 3, LeadingNaN: leadingNaN})
	require.NoError(t, err)
	return f
}

func TestRun_SingleBar(t *testing.T) {
	f := frameOf(bar{100, 101, 99, 100})
	f.EntryLong[0] = true
	p := domain.DefaultParams()
	p.InitialCapital = 12345.0

	res := mustRun(t, f, p)

	row := res.Ledger.Rows[0]
	assert.Equal(t, 12345.0, row.Balance)
	assert.Equal(t, 12345.0, row.Equity)
	assert.Equal(t, 0.0, row.CurrentDrawdown)
	assert.Equal(t, domain.CodeFlat, row.CurrentPosition)
	assert.Equal(t, domain.NoPosition, row.FrameState)
}

func TestRun_TwoBars(t *testing.T) {
	f := frameOf(bar{100, 101, 99, 100}, bar{100, 120, 80, 90})
	f.EntryLong[0] = true
	f.EntryLong[1] = true
	p := domain.DefaultParams()
	p.FeeFixed = 1

	res := mustRun(t, f, p)

	for i, row := range res.Ledger.Rows {
		assert.Equal(t, p.InitialCapital, row.Balance, "bar %d", i)
		assert.Equal(t, p.InitialCapital, row.Equity, "bar %d", i)
		assert.Equal(t, 0.0, row.CurrentDrawdown, "bar %d", i)
		assert.Equal(t, 0.0, row.FeeCum, "bar %d", i)
	}
	// the decision on the last bar is reported but never filled
	assert.Equal(t, domain.CodeLongEntry, res.Ledger.Rows[1].CurrentPosition)
	assert.Empty(t, res.Trades)
}

func TestRun_LongRoundTrip(t *testing.T) {
	f := frameOf(
		flatBar(100),
		bar{100, 101, 99, 100},
		bar{100, 111, 99, 110},
		bar{110, 121, 109, 120},
		bar{121, 122, 120, 121},
		bar{121, 122, 120, 121},
	)
	f.EntryLong[1] = true
	f.ExitLong[3] = true

	res := mustRun(t, f, domain.DefaultParams())
	rows := res.Ledger.Rows

	assert.Equal(t, domain.CodeLongEntry, rows[1].CurrentPosition)

	assert.Equal(t, domain.HoldLong, rows[2].FrameState)
	assert.Equal(t, 100.0, rows[2].EntryLongPrice)
	assert.Equal(t, domain.CodeLongHold, rows[2].CurrentPosition)
	assert.Equal(t, 10000.0, rows[2].Equity) // previous bar was not a hold

	assert.Equal(t, domain.CodeLongExit, rows[3].CurrentPosition)
	assert.InDelta(t, 12000.0, rows[3].Equity, 1e-9)
	assert.Equal(t, 10000.0, rows[3].Balance)

	assert.Equal(t, domain.ExitLongSignal, rows[4].FrameState)
	assert.Equal(t, 100.0, rows[4].EntryLongPrice)
	assert.Equal(t, 121.0, rows[4].ExitLongPrice)
	assert.InDelta(t, 0.21, rows[4].TradePnlPct, 1e-12)
	assert.InDelta(t, 12100.0, rows[4].Balance, 1e-9)
	assert.Equal(t, rows[4].Balance, rows[4].Equity)
	assert.InDelta(t, 0.21, rows[4].TotalReturnPct, 1e-12)
	assert.Equal(t, domain.CodeFlat, rows[4].CurrentPosition)

	assert.Equal(t, domain.NoPosition, rows[5].FrameState)
	assert.True(t, math.IsNaN(rows[5].EntryLongPrice))
	assert.True(t, math.IsNaN(rows[5].TradePnlPct))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, domain.Long, tr.Side)
	assert.Equal(t, 2, tr.EntryBar)
	assert.Equal(t, 4, tr.ExitBar)
	assert.Equal(t, domain.ExitReasonSignal, tr.ExitReason)
	assert.False(t, tr.InBar)
}

func TestRun_Fees(t *testing.T) {
	f := frameOf(
		flatBar(100),
		bar{100, 101, 99, 100},
		bar{100, 111, 99, 110},
		bar{110, 121, 109, 120},
		bar{121, 122, 120, 121},
	)
	f.EntryLong[1] = true
	f.ExitLong[3] = true
	p := domain.DefaultParams()
	p.FeeFixed = 1
	p.FeePct = 0.001

	res := mustRun(t, f, p)
	rows := res.Ledger.Rows

	assert.InDelta(t, 11.0, rows[2].Fee, 1e-12)
	assert.InDelta(t, 9989.0, rows[2].Balance, 1e-9)

	value := 9989.0 * 1.21
	exitFee := 1 + value*0.001
	assert.InDelta(t, exitFee, rows[4].Fee, 1e-9)
	assert.InDelta(t, value-exitFee, rows[4].Balance, 1e-9)
	assert.InDelta(t, 11+exitFee, rows[4].FeeCum, 1e-9)

	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 11+exitFee, res.Trades[0].Fees, 1e-9)
}

func TestRun_Reversal(t *testing.T) {
	f := frameOf(
		flatBar(100),
		bar{100, 101, 99, 100},
		bar{100, 106, 99, 105},
		bar{105, 109, 104, 108},
		bar{110, 111, 99, 100},
		bar{100, 101, 98, 99},
	)
	f.EntryLong[1] = true
	f.EntryShort[3] = true

	res := mustRun(t, f, domain.DefaultParams())
	rows := res.Ledger.Rows

	assert.Equal(t, domain.CodeShortEntry, rows[3].CurrentPosition)
	assert.InDelta(t, 10800.0, rows[3].Equity, 1e-9)

	r4 := rows[4]
	assert.Equal(t, domain.ReversalLongToShort, r4.FrameState)
	assert.Equal(t, 100.0, r4.EntryLongPrice)
	assert.Equal(t, 110.0, r4.ExitLongPrice)
	assert.Equal(t, 110.0, r4.EntryShortPrice)
	assert.True(t, math.IsNaN(r4.ExitShortPrice))
	assert.InDelta(t, 0.1, r4.TradePnlPct, 1e-12)
	assert.InDelta(t, 11000.0, r4.Balance, 1e-9)
	assert.Equal(t, r4.Balance, r4.Equity)
	assert.Equal(t, domain.CodeShortHold, r4.CurrentPosition)

	r5 := rows[5]
	assert.Equal(t, domain.HoldShort, r5.FrameState)
	assert.InDelta(t, 12100.0, r5.Equity, 1e-9)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.ExitReasonReversal, res.Trades[0].ExitReason)
}

func inBarSLParams() domain.Params {
	p := domain.DefaultParams()
	p.SLPct = 0.05
	p.SLTriggerMode = true
	p.SLExitInBar = true
	return p
}

func TestRun_SameBarKill(t *testing.T) {
	f := frameOf(
		flatBar(100),
		bar{100, 101, 99, 100},
		bar{100, 101, 94, 96},
		bar{96, 97, 95, 96},
	)
	f.EntryLong[1] = true

	res := mustRun(t, f, inBarSLParams())
	r := res.Ledger.Rows[2]

	assert.Equal(t, domain.ExitLongRisk, r.FrameState)
	assert.Equal(t, int8(1), r.RiskInBarDir)
	assert.Equal(t, 100.0, r.EntryLongPrice)
	assert.InDelta(t, 95.0, r.ExitLongPrice, 1e-9)
	assert.InDelta(t, 95.0, r.SLPctPrice, 1e-9)
	assert.InDelta(t, -0.05, r.TradePnlPct, 1e-12)
	assert.InDelta(t, 9500.0, r.Balance, 1e-9)
	assert.Equal(t, r.Balance, r.Equity)
	assert.InDelta(t, 0.05, r.CurrentDrawdown, 1e-12)
	assert.Equal(t, domain.CodeLongRiskExit, r.CurrentPosition)

	assert.Equal(t, domain.NoPosition, res.Ledger.Rows[3].FrameState)
	assert.True(t, math.IsNaN(res.Ledger.Rows[3].SLPctPrice))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.True(t, tr.InBar)
	assert.Equal(t, 1, tr.HoldingBars())
	assert.Equal(t, domain.ExitReasonSL, tr.ExitReason)
}

func TestRun_ReversalThenKill(t *testing.T) {
	f := frameOf(
		flatBar(100),
		bar{100, 101, 99, 100},
		bar{100, 101, 99, 100},
		bar{100, 101, 99, 100},
		bar{100, 101, 94, 96},
		bar{96, 97, 95, 96},
	)
	f.EntryShort[1] = true
	f.EntryLong[3] = true

	res := mustRun(t, f, inBarSLParams())
	rows := res.Ledger.Rows

	assert.Equal(t, domain.HoldShort, rows[2].FrameState)
	assert.Equal(t, domain.CodeLongEntry, rows[3].CurrentPosition)

	r := rows[4]
	assert.Equal(t, domain.ReversalToLongThenExit, r.FrameState)
	assert.Equal(t, 100.0, r.EntryShortPrice)
	assert.Equal(t, 100.0, r.ExitShortPrice)
	assert.Equal(t, 100.0, r.EntryLongPrice)
	assert.InDelta(t, 95.0, r.ExitLongPrice, 1e-9)
	assert.InDelta(t, -0.05, r.TradePnlPct, 1e-12)
	assert.Equal(t, domain.CodeLongRiskExit, r.CurrentPosition)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, domain.Short, res.Trades[0].Side)
	assert.Equal(t, domain.ExitReasonReversal, res.Trades[0].ExitReason)
	assert.Equal(t, domain.Long, res.Trades[1].Side)
	assert.True(t, res.Trades[1].InBar)
}

func TestRun_PendingRiskExitFillsNextOpen(t *testing.T) {
	f := frameOf(
		flatBar(100),
		bar{100, 101, 99, 100},
		bar{100, 101, 94, 99},
		bar{97, 98, 96, 97},
	)
	f.EntryLong[1] = true
	p := domain.DefaultParams()
	p.SLPct = 0.05
	p.SLTriggerMode = true

	res := mustRun(t, f, p)
	rows := res.Ledger.Rows

	assert.Equal(t, domain.HoldLong, rows[2].FrameState)
	assert.Equal(t, domain.CodeLongRiskExit, rows[2].CurrentPosition)
	assert.Equal(t, 10000.0, rows[2].Equity)

	assert.Equal(t, domain.ExitLongRisk, rows[3].FrameState)
	assert.Equal(t, 97.0, rows[3].ExitLongPrice)
	assert.InDelta(t, 9700.0, rows[3].Balance, 1e-9)

	require.Len(t, res.Trades, 1)
	assert.False(t, res.Trades[0].InBar)
	assert.Equal(t, domain.ExitReasonSL, res.Trades[0].ExitReason)
}

func TestRun_ExitInBarWithoutTriggerModeRejected(t *testing.T) {
	f := scenarioFrame(t, 50, 1, false)
	p := domain.DefaultParams()
	p.SLPct = 0.02
	p.SLExitInBar = true

	rec := NewRecorder()
	res, err := NewEngine(Options{Observer: rec}).Run(context.Background(), f, p)

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
	var pe *domain.ParamError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "sl_exit_in_bar", pe.Param)
	assert.Contains(t, err.Error(), "sl_exit_in_bar")
	assert.Empty(t, rec.Rows(), "no bar may be simulated")
}

func TestRun_InvalidFrame(t *testing.T) {
	f := frameOf(flatBar(100), flatBar(101))
	f.ExitShort = nil

	_, err := NewEngine(Options{}).Run(context.Background(), f, domain.DefaultParams())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidData))
}

func TestRun_CanceledContext(t *testing.T) {
	f := scenarioFrame(t, 20, 1, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(Options{}).Run(ctx, f, domain.DefaultParams())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ObserverSeesEveryRow(t *testing.T) {
	f := scenarioFrame(t, 60, 3, false)
	rec := NewRecorder()

	res, err := NewEngine(Options{Observer: rec}).Run(context.Background(), f, domain.DefaultParams())
	require.NoError(t, err)

	rows := rec.Rows()
	require.Len(t, rows, 60)
	for i := range rows {
		assert.Equal(t, res.Ledger.Rows[i].Equity, rows[i].Equity)
	}
}

func TestRun_ObserverErrorAborts(t *testing.T) {
	f := scenarioFrame(t, 30, 3, false)
	boom := errors.New("boom")
	obs := ObserverFunc(func(_ context.Context, i int, _ *domain.LedgerRow) error {
		if i == 10 {
			return boom
		}
		return nil
	})

	res, err := NewEngine(Options{Observer: obs}).Run(context.Background(), f, domain.DefaultParams())

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}

func TestRun_ATRScenario(t *testing.T) {
	f := scenarioFrame(t, 120, 42, false)
	p := domain.DefaultParams()
	p.SLATR = 2.0
	p.ATRPeriod = 14

	res := mustRun(t, f, p)
	lg := res.Ledger

	require.True(t, lg.HasColumn(domain.ColATR))
	require.True(t, lg.HasColumn(domain.ColSLATRPrice))
	assert.False(t, lg.HasColumn(domain.ColSLPctPrice))

	atr, ok := lg.Float(domain.ColATR)
	require.True(t, ok)
	for i := 0; i < 13; i++ {
		assert.True(t, math.IsNaN(atr[i]), "bar %d", i)
	}
	for i := 13; i < len(atr); i++ {
		assert.False(t, math.IsNaN(atr[i]), "bar %d", i)
	}

	for i, row := range lg.Rows {
		if row.Equity == row.PeakEquity {
			assert.Equal(t, 0.0, row.CurrentDrawdown, "bar %d", i)
		}
	}

	// entries need a valid ATR on the signal bar
	for _, tr := range res.Trades {
		assert.GreaterOrEqual(t, tr.EntryBar, 14)
	}
	assertInvariants(t, res)
}

func TestRun_HasLeadingNaNPassthrough(t *testing.T) {
	f := scenarioFrame(t, 40, 7, true)

	res := mustRun(t, f, domain.DefaultParams())

	require.True(t, res.Ledger.HasColumn(domain.ColHasLeadingNaN))
	assert.Equal(t, f.HasLeadingNaN, res.Ledger.HasLeadingNaN)

	f = scenarioFrame(t, 40, 7, false)
	res = mustRun(t, f, domain.DefaultParams())

	assert.False(t, res.Ledger.HasColumn(domain.ColHasLeadingNaN))
	_, ok := res.Ledger.Float(domain.ColHasLeadingNaN)
	assert.False(t, ok)
}

func TestRun_DrawdownPause(t *testing.T) {
	f := scenarioFrame(t, 300, 11, false)
	p := domain.DefaultParams()
	p.FeePct = 0.001
	p.PauseDrawdown = 0.05

	res := mustRun(t, f, p)

	require.NotNil(t, res.Ledger.Pause)
	assert.True(t, res.Ledger.HasColumn(domain.ColPause))
	for i, row := range res.Ledger.Rows {
		if res.Ledger.Pause[i] {
			assert.NotEqual(t, domain.CodeLongEntry, row.CurrentPosition, "bar %d", i)
			assert.NotEqual(t, domain.CodeShortEntry, row.CurrentPosition, "bar %d", i)
		}
	}
	assertInvariants(t, res)
}

func TestRun_RandomizedInvariants(t *testing.T) {
	configs := []func(*domain.Params){
		func(p *domain.Params) {},
		func(p *domain.Params) {
			p.SLPct, p.TPPct = 0.02, 0.04
			p.SLTriggerMode, p.TPTriggerMode = true, true
			p.SLExitInBar, p.TPExitInBar = true, true
		},
		func(p *domain.Params) {
			p.SLATR, p.TPATR, p.TSLATR = 1.5, 3, 2
			p.SLAnchorMode, p.TPAnchorMode, p.TSLAnchorMode = true, true, true
			p.TSLATRTight = true
			p.TSLTriggerMode = true
		},
		func(p *domain.Params) {
			p.TSLPct = 0.03
			p.TSLPSARAF0, p.TSLPSARAFStep, p.TSLPSARMaxAF = 0.02, 0.02, 0.2
			p.FeeFixed, p.FeePct = 0.5, 0.0005
		},
		func(p *domain.Params) {
			p.SLPct, p.SLATR, p.TSLATR = 0.03, 2, 2.5
			p.SLTriggerMode, p.SLExitInBar = true, true
			p.FeePct = 0.002
			p.PauseDrawdown = 0.1
		},
	}

	for seed := int64(1); seed <= 6; seed++ {
		f := scenarioFrame(t, 400, seed, false)
		rng := rand.New(rand.NewSource(seed))
		for i := range f.EntryLong {
			f.EntryLong[i] = rng.Intn(8) == 0
			f.EntryShort[i] = rng.Intn(8) == 0
			f.ExitLong[i] = rng.Intn(10) == 0
			f.ExitShort[i] = rng.Intn(10) == 0
		}
		for ci, cfg := range configs {
			p := domain.DefaultParams()
			cfg(&p)
			res := mustRun(t, f, p)
			t.Logf("seed %d config %d: %d trades", seed, ci, len(res.Trades))
			assertInvariants(t, res)
		}
	}
}

func assertInvariants(t *testing.T, res *Result) {
	t.Helper()
	rows := res.Ledger.Rows
	exits := 0

	for i, row := range rows {
		assert.GreaterOrEqual(t, row.Balance, 0.0, "balance bar %d", i)
		assert.GreaterOrEqual(t, row.Equity, 0.0, "equity bar %d", i)
		assert.GreaterOrEqual(t, row.CurrentDrawdown, 0.0, "drawdown bar %d", i)
		if i > 0 {
			prev := rows[i-1]
			assert.GreaterOrEqual(t, row.PeakEquity, prev.PeakEquity, "peak bar %d", i)
			assert.GreaterOrEqual(t, row.FeeCum, prev.FeeCum, "fee_cum bar %d", i)
			if !prev.CurrentPosition.IsHold() {
				assert.InDelta(t, row.Balance, row.Equity, 1e-10, "balance==equity bar %d", i)
			}
		}
		if !math.IsNaN(row.ExitLongPrice) {
			exits++
		}
		if !math.IsNaN(row.ExitShortPrice) {
			exits++
		}
		hasExit := !math.IsNaN(row.ExitLongPrice) || !math.IsNaN(row.ExitShortPrice)
		assert.Equal(t, hasExit, !math.IsNaN(row.TradePnlPct), "trade_pnl_pct bar %d", i)
	}
	assert.Equal(t, len(res.Trades), exits)

	// trailing stops only ratchet while a trade is open
	for _, tr := range res.Trades {
		last := tr.ExitBar
		if !tr.InBar {
			last--
		}
		for i := tr.EntryBar + 1; i <= last; i++ {
			prev, cur := rows[i-1], rows[i]
			for _, pair := range [][2]float64{
				{prev.TSLPctPrice, cur.TSLPctPrice},
				{prev.TSLATRPrice, cur.TSLATRPrice},
				{prev.TSLPSARPrice, cur.TSLPSARPrice},
			} {
				if math.IsNaN(pair[0]) || math.IsNaN(pair[1]) {
					continue
				}
				if tr.Side == domain.Long {
					assert.GreaterOrEqual(t, pair[1], pair[0], "long trailing bar %d", i)
				} else {
					assert.LessOrEqual(t, pair[1], pair[0], "short trailing bar %d", i)
				}
			}
		}
	}
}
