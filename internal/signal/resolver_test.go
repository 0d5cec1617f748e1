package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

func allQuadruples() []domain.Signals {
	out := make([]domain.Signals, 0, 16)
	for m := 0; m < 16; m++ {
		out = append(out, domain.Signals{
			EntryLong:  m&1 != 0,
			EntryShort: m&2 != 0,
			ExitLong:   m&4 != 0,
			ExitShort:  m&8 != 0,
		})
	}
	return out
}

func TestResolve_Rules(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Signals
		want domain.Signals
	}{
		{
			name: "R1 both entries cleared",
			in:   domain.Signals{EntryLong: true, EntryShort: true},
			want: domain.Signals{},
		},
		{
			name: "R2 exit wins over long entry",
			in:   domain.Signals{EntryLong: true, ExitLong: true},
			want: domain.Signals{ExitLong: true},
		},
		{
			name: "R3 exit wins over short entry",
			in:   domain.Signals{EntryShort: true, ExitShort: true},
			want: domain.Signals{ExitShort: true},
		},
		{
			name: "opposite exit leaves entry alone",
			in:   domain.Signals{EntryLong: true, ExitShort: true},
			want: domain.Signals{EntryLong: true, ExitShort: true},
		},
		{
			name: "R1 then exits survive",
			in:   domain.Signals{EntryLong: true, EntryShort: true, ExitLong: true, ExitShort: true},
			want: domain.Signals{ExitLong: true, ExitShort: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.in))
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	for _, s := range allQuadruples() {
		once := Resolve(s)
		assert.Equal(t, once, Resolve(once), "input %+v", s)
		assert.False(t, once.EntryLong && once.EntryShort)
		assert.False(t, once.EntryLong && once.ExitLong)
		assert.False(t, once.EntryShort && once.ExitShort)
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		sig  domain.Signals
		held domain.Side
		want domain.Decision
	}{
		{"flat long entry", domain.Signals{EntryLong: true}, domain.Flat, domain.EnterLong},
		{"flat short entry", domain.Signals{EntryShort: true}, domain.Flat, domain.EnterShort},
		{"flat exit is inert", domain.Signals{ExitLong: true}, domain.Flat, domain.NoOp},
		{"long exit", domain.Signals{ExitLong: true}, domain.Long, domain.ExitLong},
		{"long reversal", domain.Signals{EntryShort: true}, domain.Long, domain.ReverseToShort},
		{"reversal wins over exit", domain.Signals{EntryShort: true, ExitLong: true}, domain.Long, domain.ReverseToShort},
		{"long same-side entry ignored", domain.Signals{EntryLong: true}, domain.Long, domain.NoOp},
		{"short exit", domain.Signals{ExitShort: true}, domain.Short, domain.ExitShort},
		{"short reversal", domain.Signals{EntryLong: true}, domain.Short, domain.ReverseToLong},
		{"short ignores long exit", domain.Signals{ExitLong: true}, domain.Short, domain.NoOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.sig, tt.held))
		})
	}
}

func TestClean_ATRAndBlock(t *testing.T) {
	f := &domain.Frame{
		Open:       []float64{1, 1, 1, 1},
		High:       []float64{1, 1, 1, 1},
		Low:        []float64{1, 1, 1, 1},
		Close:      []float64{1, 1, 1, 1},
		EntryLong:  []bool{true, true, true, true},
		EntryShort: []bool{false, false, false, false},
		ExitLong:   []bool{false, false, false, true},
		ExitShort:  []bool{false, true, false, false},
	}
	nan := math.NaN()

	c := Clean(f, Options{
		ATR:   []float64{nan, 1, 1, 1},
		Block: []bool{false, false, true, false},
	})

	require.Len(t, c.EntryLong, 4)
	assert.Equal(t, []bool{false, true, false, false}, c.EntryLong)
	assert.Equal(t, []bool{false, true, false, false}, c.ExitShort)
	assert.Equal(t, []bool{false, false, false, true}, c.ExitLong)

	// input untouched
	assert.Equal(t, []bool{true, true, true, true}, f.EntryLong)
}
