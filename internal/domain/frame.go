package domain

import "math"

// Signals is the raw or cleaned signal quadruple of one bar.
type Signals struct {
	EntryLong  bool
	EntryShort bool
	ExitLong   bool
	ExitShort  bool
}

// Bar is a read-only view of one frame row.
type Bar struct {
	Index  int
	TimeMs int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Signals
}

// Frame is the aligned per-bar input table: prices, indicator columns and
// the four evaluated signal columns. A Frame is shared read-only between
// concurrent runs; derive modified copies with WithEntries.
type Frame struct {
	TimeMs []int64 // unix ms, optional (used for annualization)
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64 // optional

	Indicators map[string][]float64

	EntryLong  []bool
	EntryShort []bool
	ExitLong   []bool
	ExitShort  []bool

	// HasLeadingNaN is passed through to the ledger when non-nil.
	HasLeadingNaN []bool
}

// Len returns the number of bars.
func (f *Frame) Len() int {
	return len(f.Close)
}

// Bar returns the i-th row.
func (f *Frame) Bar(i int) Bar {
	b := Bar{
		Index: i,
		Open:  f.Open[i],
		High:  f.High[i],
		Low:   f.Low[i],
		Close: f.Close[i],
		Signals: Signals{
			EntryLong:  f.EntryLong[i],
			EntryShort: f.EntryShort[i],
			ExitLong:   f.ExitLong[i],
			ExitShort:  f.ExitShort[i],
		},
	}
	if f.TimeMs != nil {
		b.TimeMs = f.TimeMs[i]
	}
	return b
}

// SignalsAt returns the signal quadruple of bar i.
func (f *Frame) SignalsAt(i int) Signals {
	return Signals{
		EntryLong:  f.EntryLong[i],
		EntryShort: f.EntryShort[i],
		ExitLong:   f.ExitLong[i],
		ExitShort:  f.ExitShort[i],
	}
}

// WithSignals returns a shallow copy of f with the four signal columns replaced.
// Price and indicator slices are shared, never copied.
func (f *Frame) WithSignals(el, es, xl, xs []bool) *Frame {
	cp := *f
	cp.EntryLong = el
	cp.EntryShort = es
	cp.ExitLong = xl
	cp.ExitShort = xs
	return &cp
}

// Validate checks column presence and alignment.
func (f *Frame) Validate() error {
	n := len(f.Close)
	if n == 0 {
		return invalidData("close", "frame has no bars")
	}

	priceCols := []struct {
		name string
		col  []float64
	}{
		{"open", f.Open},
		{"high", f.High},
		{"low", f.Low},
		{"close", f.Close},
	}
	for _, c := range priceCols {
		if c.col == nil {
			return invalidData(c.name, "missing column")
		}
		if len(c.col) != n {
			return invalidData(c.name, "length %d does not match %d bars", len(c.col), n)
		}
		for i, v := range c.col {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return invalidData(c.name, "non-positive or non-finite price %v at bar %d", v, i)
			}
		}
	}

	signalCols := []struct {
		name string
		col  []bool
	}{
		{"entry_long", f.EntryLong},
		{"entry_short", f.EntryShort},
		{"exit_long", f.ExitLong},
		{"exit_short", f.ExitShort},
	}
	for _, c := range signalCols {
		if c.col == nil {
			return invalidData(c.name, "missing column")
		}
		if len(c.col) != n {
			return invalidData(c.name, "length %d does not match %d bars", len(c.col), n)
		}
	}

	if f.TimeMs != nil && len(f.TimeMs) != n {
		return invalidData("time", "length %d does not match %d bars", len(f.TimeMs), n)
	}
	if f.Volume != nil && len(f.Volume) != n {
		return invalidData("volume", "length %d does not match %d bars", len(f.Volume), n)
	}
	if f.HasLeadingNaN != nil && len(f.HasLeadingNaN) != n {
		return invalidData(ColHasLeadingNaN, "length %d does not match %d bars", len(f.HasLeadingNaN), n)
	}
	for name, col := range f.Indicators {
		if len(col) != n {
			return invalidData(name, "length %d does not match %d bars", len(col), n)
		}
	}

	return nil
}
