package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccount_InitialSnapshot(t *testing.T) {
	a := NewAccount(12345, 0, 0)

	s := a.Mark(0, false)

	assert.Equal(t, 12345.0, s.Balance)
	assert.Equal(t, 12345.0, s.Equity)
	assert.Equal(t, 12345.0, s.Peak)
	assert.Equal(t, 0.0, s.Drawdown)
	assert.Equal(t, 0.0, s.TotalReturn)
}

func TestAccount_RoundTripWithFees(t *testing.T) {
	a := NewAccount(1000, 1, 0.001)

	entryFee := a.Open()
	assert.InDelta(t, 2.0, entryFee, 1e-12) // 1 + 1000*0.001
	assert.InDelta(t, 998.0, a.Balance(), 1e-12)

	exitFee := a.Close(0.10)
	// realized value 1097.8, fee 1 + 1.0978
	assert.InDelta(t, 2.0978, exitFee, 1e-12)
	assert.InDelta(t, 1097.8-2.0978, a.Balance(), 1e-9)
	assert.InDelta(t, entryFee+exitFee, a.FeeCum(), 1e-12)
}

func TestAccount_FeeCappedAtBalance(t *testing.T) {
	a := NewAccount(10, 50, 0)

	fee := a.Open()

	assert.Equal(t, 10.0, fee)
	assert.Equal(t, 0.0, a.Balance())
	assert.True(t, a.Exhausted())
}

func TestAccount_LossBeyondCapitalClampsToZero(t *testing.T) {
	a := NewAccount(100, 0, 0)
	a.Open()

	a.Close(-1.5) // short that lost 150%

	assert.Equal(t, 0.0, a.Balance())
	s := a.Mark(0, false)
	assert.Equal(t, 0.0, s.Equity)
	assert.Equal(t, 1.0, s.Drawdown)
}

func TestAccount_MarkCarriesUnrealized(t *testing.T) {
	a := NewAccount(100, 0, 0)
	a.Open()

	up := a.Mark(0.2, true)
	require.InDelta(t, 120.0, up.Equity, 1e-12)
	assert.Equal(t, 100.0, up.Balance)
	assert.InDelta(t, 120.0, up.Peak, 1e-12)
	assert.InDelta(t, 0.2, up.TotalReturn, 1e-12)

	down := a.Mark(-0.1, true)
	assert.InDelta(t, 90.0, down.Equity, 1e-12)
	assert.InDelta(t, 120.0, down.Peak, 1e-12)
	assert.InDelta(t, 0.25, down.Drawdown, 1e-12)

	flat := a.Mark(-0.1, false)
	assert.Equal(t, 100.0, flat.Equity)
}

func TestReturn(t *testing.T) {
	assert.InDelta(t, 0.1, Return(1, 100, 110), 1e-12)
	assert.InDelta(t, -0.1, Return(-1, 100, 110), 1e-12)
	assert.InDelta(t, 0.05, Return(-1, 100, 95), 1e-12)
}
