package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordRun(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordRun("ok", 0.02, 100)
	m.RecordRun("ok", 0.01, 50)
	m.RecordRun("error", 0.001, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.BarsProcessed))
}

func TestMetrics_RecordTrade(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordTrade("SL")
	m.RecordTrade("SL")
	m.RecordTrade("SIGNAL")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesRecorded.WithLabelValues("SL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesRecorded.WithLabelValues("SIGNAL")))
}

func TestMetrics_RecordDBWrite(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordDBWrite("ledger", "insert", 500, 0.1, nil)
	m.RecordDBWrite("ledger", "insert", 500, 0.1, errors.New("boom"))

	assert.Equal(t, 500.0, testutil.ToFloat64(m.RowsWritten.WithLabelValues("ledger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("ledger", "insert")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("test", prometheus.NewRegistry())
		NewMetrics("test", prometheus.NewRegistry())
	})
}
