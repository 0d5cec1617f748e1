package app

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/pipeline"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nAPP_TEST_A=one\nAPP_TEST_B=\"two\"\nnot a pair\nAPP_TEST_KEEP=file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("APP_TEST_KEEP", "env")
	t.Setenv("APP_TEST_A", "")
	os.Unsetenv("APP_TEST_A")
	t.Setenv("APP_TEST_B", "")
	os.Unsetenv("APP_TEST_B")

	LoadEnvFile(path)
	assert.Equal(t, "one", os.Getenv("APP_TEST_A"))
	assert.Equal(t, "two", os.Getenv("APP_TEST_B"))
	assert.Equal(t, "env", os.Getenv("APP_TEST_KEEP"))

	// Missing file is a no-op.
	LoadEnvFile(filepath.Join(dir, "missing"))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("APP_TEST_INT", "42")
	t.Setenv("APP_TEST_FLOAT", "0.25")
	t.Setenv("APP_TEST_BOOL", "true")
	t.Setenv("APP_TEST_BAD", "xyz")

	assert.Equal(t, 42, EnvInt("APP_TEST_INT", 1))
	assert.Equal(t, int64(42), EnvInt64("APP_TEST_INT", 1))
	assert.InDelta(t, 0.25, EnvFloat("APP_TEST_FLOAT", 1), 1e-12)
	assert.True(t, EnvBool("APP_TEST_BOOL", false))

	assert.Equal(t, 7, EnvInt("APP_TEST_BAD", 7))
	assert.InDelta(t, 1.5, EnvFloat("APP_TEST_BAD", 1.5), 1e-12)
	assert.False(t, EnvBool("APP_TEST_BAD", false))
	assert.Equal(t, "def", Env("APP_TEST_UNSET_KEY", "def"))
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, closeLog, err := NewLogger("test", LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("hello")
	// stderr may be a pipe or terminal here; syncing it must not fail.
	require.NoError(t, logger.Sync())
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"logger":"test"`)
}

func TestNewLogger_QuietFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.log")
	logger, closeLog, err := NewLogger("quiet", LogConfig{Quiet: true, File: path})
	require.NoError(t, err)

	logger.Warn("only in file", zap.Int("bars", 3))
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"only in file"`)
	assert.Contains(t, string(data), `"bars":3`)

	// Closing released the file handle.
	require.NoError(t, os.Remove(path))
}

func TestNewLogger_CloseWithoutFile(t *testing.T) {
	logger, closeLog, err := NewLogger("stderr", LogConfig{Level: "error"})
	require.NoError(t, err)
	logger.Info("dropped below level")
	assert.NoError(t, closeLog())
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, _, err := NewLogger("test", LogConfig{Level: "loud"})
	require.Error(t, err)
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	stores, cleanup, err := OpenStores(ctx, StoreConfig{UseMemory: true}, nil)
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, stores.Memory)
	assert.NotNil(t, stores.Runs)
	assert.NotNil(t, stores.Ledgers)

	_, _, err = OpenStores(ctx, StoreConfig{PostgresDSN: "postgres://x"}, nil)
	require.ErrorIs(t, err, ErrMissingDSN)
}

func TestLoadFrame_Synthetic(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultFrameConfig()
	cfg.Generator.Bars = 300
	cfg.Persist = true

	stores := NewMemoryStores()
	f, err := LoadFrame(ctx, cfg, stores.Bars)
	require.NoError(t, err)
	assert.Equal(t, 300, f.Len())
	require.NoError(t, f.Validate())

	// Bars persisted; a second load falls back to regeneration.
	again, err := LoadFrame(ctx, cfg, stores.Bars)
	require.NoError(t, err)
	assert.Equal(t, f.Close, again.Close)

	// Store source reads the persisted series back.
	cfg.Source = SourceStore
	stored, err := LoadFrame(ctx, cfg, stores.Bars)
	require.NoError(t, err)
	assert.Equal(t, f.Close, stored.Close)
	assert.Equal(t, f.EntryLong, stored.EntryLong)

	cfg.From = f.TimeMs[10]
	cfg.To = f.TimeMs[209]
	window, err := LoadFrame(ctx, cfg, stores.Bars)
	require.NoError(t, err)
	assert.Equal(t, 200, window.Len())
}

func TestLoadFrame_Errors(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultFrameConfig()

	cfg.Source = "ftp"
	_, err := LoadFrame(ctx, cfg, nil)
	require.ErrorIs(t, err, ErrUnknownSource)

	cfg.Source = SourceStore
	_, err = LoadFrame(ctx, cfg, NewMemoryStores().Bars)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegisterFrameFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := RegisterFrameFlags(fs)
	require.NoError(t, fs.Parse([]string{"-symbol", "ETHUSD", "-bars", "50", "-fast", "3", "-slow", "8"}))

	assert.Equal(t, "ETHUSD", cfg.Generator.Symbol)
	assert.Equal(t, 50, cfg.Generator.Bars)
	assert.Equal(t, pipeline.CrossoverConfig{Fast: 3, Slow: 8, LeadingNaN: true}, cfg.Crossover)
}

func TestParseGrid(t *testing.T) {
	p, err := ParseGrid("")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ParseGrid("0.02")
	require.NoError(t, err)
	assert.Equal(t, domain.NewParam(0.02), p)

	p, err = ParseGrid("0.01:0.03:0.01")
	require.NoError(t, err)
	assert.True(t, p.Optimize)
	assert.InDeltaSlice(t, []float64{0.01, 0.02, 0.03}, p.Grid(), 1e-12)

	for _, bad := range []string{"a", "1:2", "3:1:1", "1:2:0", "1:2:3:4"} {
		_, err := ParseGrid(bad)
		assert.ErrorIs(t, err, ErrBadGrid, bad)
	}
}

func TestGridFlags_ParamSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	base := RegisterParamFlags(fs)
	grid := RegisterGridFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-fee-pct", "0.001",
		"-tp-pct", "0.05",
		"-grid-sl-pct", "0.01:0.02:0.01",
		"-grid-tsl-atr", "1:3:1",
	}))

	set, err := grid.ParamSet(*base)
	require.NoError(t, err)
	runs := set.Expand()
	require.Len(t, runs, 6)
	for _, r := range runs {
		assert.InDelta(t, 0.001, r.FeePct, 1e-12)
		assert.InDelta(t, 0.05, r.TPPct, 1e-12)
		assert.Equal(t, 14, r.ATRPeriod)
	}
	assert.InDelta(t, 0.01, runs[0].SLPct, 1e-12)
	assert.InDelta(t, 1, runs[0].TSLATR, 1e-12)
	assert.InDelta(t, 0.02, runs[5].SLPct, 1e-12)
	assert.InDelta(t, 3, runs[5].TSLATR, 1e-12)
}

func TestLoadParamSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.json")
	body := `{"fee_pct":0.001,"sl_pct":{"value":0.01,"min":0.01,"max":0.03,"step":0.01,"optimize":true}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	set, err := LoadParamSet(path)
	require.NoError(t, err)
	assert.InDelta(t, 10000, set.InitialCapital, 1e-9)
	assert.Len(t, set.Expand(), 3)

	ppath := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(ppath, []byte(`{"sl_pct":0.02}`), 0o600))
	p, err := LoadParams(ppath)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, p.SLPct, 1e-12)
	assert.InDelta(t, 10000, p.InitialCapital, 1e-9)
}

func TestRunFrame(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultFrameConfig()
	cfg.Generator.Bars = 120
	cfg.Persist = true

	stores := NewMemoryStores()
	f, err := LoadFrame(ctx, cfg, stores.Bars)
	require.NoError(t, err)

	rec := &domain.RunRecord{
		RunID:      "r1",
		Symbol:     cfg.Generator.Symbol,
		Timeframe:  cfg.Generator.Timeframe,
		BarCount:   f.Len(),
		FirstBarMs: f.TimeMs[0],
		LastBarMs:  f.TimeMs[f.Len()-1],
	}
	rebuilt, err := RunFrame(ctx, stores.Bars, cfg.Crossover, rec)
	require.NoError(t, err)
	assert.Equal(t, f.Close, rebuilt.Close)
	assert.Equal(t, f.HasLeadingNaN, rebuilt.HasLeadingNaN)

	rec.BarCount = 500
	_, err = RunFrame(ctx, stores.Bars, cfg.Crossover, rec)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
