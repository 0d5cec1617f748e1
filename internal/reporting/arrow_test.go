package reporting

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

func engineLedger(t *testing.T) *domain.Ledger {
	t.Helper()
	const n = 200
	f := &domain.Frame{
		Open:          make([]float64, n),
		High:          make([]float64, n),
		Low:           make([]float64, n),
		Close:         make([]float64, n),
		EntryLong:     make([]bool, n),
		EntryShort:    make([]bool, n),
		ExitLong:      make([]bool, n),
		ExitShort:     make([]bool, n),
		HasLeadingNaN: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		c := 100 + 10*math.Sin(float64(i)/7)
		o := 100 + 10*math.Sin(float64(i-1)/7)
		f.Open[i], f.Close[i] = o, c
		f.High[i] = math.Max(o, c) * 1.01
		f.Low[i] = math.Min(o, c) * 0.99
		f.EntryLong[i] = i%30 == 2
		f.EntryShort[i] = i%30 == 17
		f.HasLeadingNaN[i] = i < 5
	}
	p := domain.DefaultParams()
	p.SLPct = 0.02
	p.TPATR = 3
	p.PauseDrawdown = 0.2
	res, err := backtest.NewEngine(backtest.Options{}).Run(context.Background(), f, p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res.Ledger
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func TestLedgerArrow_RoundTrip(t *testing.T) {
	lg := engineLedger(t)

	var buf bytes.Buffer
	if err := WriteLedgerArrow(&buf, lg, "run-xyz"); err != nil {
		t.Fatalf("WriteLedgerArrow failed: %v", err)
	}

	got, runID, err := ReadLedgerArrow(&buf)
	if err != nil {
		t.Fatalf("ReadLedgerArrow failed: %v", err)
	}
	if runID != "run-xyz" {
		t.Errorf("runID = %q, want run-xyz", runID)
	}
	if got.Len() != lg.Len() {
		t.Fatalf("rows = %d, want %d", got.Len(), lg.Len())
	}

	wantCols, gotCols := lg.Columns(), got.Columns()
	if len(wantCols) != len(gotCols) {
		t.Fatalf("columns = %v, want %v", gotCols, wantCols)
	}
	for i := range wantCols {
		if wantCols[i] != gotCols[i] {
			t.Fatalf("column %d = %s, want %s", i, gotCols[i], wantCols[i])
		}
	}

	for _, name := range wantCols {
		want, _ := lg.Float(name)
		have, _ := got.Float(name)
		for i := range want {
			if !sameFloat(want[i], have[i]) {
				t.Fatalf("%s[%d] = %v, want %v", name, i, have[i], want[i])
			}
		}
	}
}

func TestReadLedgerArrow_Garbage(t *testing.T) {
	_, _, err := ReadLedgerArrow(bytes.NewReader([]byte("not arrow")))
	if err == nil {
		t.Fatal("expected error for garbage input")
	}
	if errors.Is(err, ErrArrowSchema) {
		t.Errorf("garbage should fail before schema validation, got %v", err)
	}
}
