// Package main provides the backtest service:
// - HTTP API (continuous): runs, sweeps, ledgers, gates, websocket streaming
// - Sweep (scheduled, optional): re-runs a parameter grid over stored bars
// - Reporting (after each scheduled sweep): REPORT.md, CSVs, DECISION_GATE
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/api"
	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/decision"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/orchestrator"
	"github.com/hxse/pyo3-quant-sub000/internal/pipeline"
)

// Server holds all components of the service.
type Server struct {
	// Configuration
	storeCfg      *app.StoreConfig
	frameCfg      *app.FrameConfig
	grid          *domain.ParamSet
	outputDir     string
	sweepInterval time.Duration

	// Components
	stores  *app.Stores
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
	started time.Time

	// State
	mu            sync.Mutex
	lastSweepRun  time.Time
	lastReportRun time.Time
	lastJobID     string
	lastDecision  decision.Decision
	sweepRunning  bool

	// Stats
	sweepRuns  int
	reportRuns int
}

func main() {
	// Load .env file if exists
	app.LoadEnvFile(".env")

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", app.Env("HTTP_ADDR", ":8080"), "HTTP listen address")
	outputDir := flag.String("output-dir", app.Env("OUTPUT_DIR", "output"), "Output directory for reports")
	gridFile := flag.String("sweep-grid", app.Env("SWEEP_GRID", ""), "Parameter grid JSON for scheduled sweeps (empty disables them)")
	sweepInterval := flag.Duration("sweep-interval", app.EnvDuration("SWEEP_INTERVAL", 6*time.Hour), "Scheduled sweep interval")
	workers := flag.Int("workers", app.EnvInt("SWEEP_WORKERS", 0), "Concurrent runs per sweep (0 = GOMAXPROCS)")
	riskFree := flag.Float64("risk-free-rate", app.EnvFloat("RISK_FREE_RATE", 0), "Annual risk-free rate for Sharpe/Sortino")
	maxBars := flag.Int("max-bars", app.EnvInt("MAX_BARS", api.DefaultMaxBars), "Largest frame an API request may build")
	maxSweepRuns := flag.Int("max-sweep-runs", app.EnvInt("MAX_SWEEP_RUNS", api.DefaultMaxSweepRuns), "Largest grid an API request may run")
	storeCfg := app.RegisterStoreFlags(flag.CommandLine)
	frameCfg := app.RegisterFrameFlags(flag.CommandLine)
	logCfg := app.RegisterLogFlags(flag.CommandLine)

	flag.Parse()

	logger, closeLog, err := app.NewLogger("server", *logCfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = closeLog() }()

	var grid *domain.ParamSet
	if *gridFile != "" {
		set, err := app.LoadParamSet(*gridFile)
		if err != nil {
			logger.Fatal("load sweep grid", zap.Error(err))
		}
		grid = &set
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := app.OpenStores(ctx, *storeCfg, logger)
	if err != nil {
		logger.Fatal("failed to create stores", zap.Error(err))
	}
	defer cleanup()

	analysis := metrics.Options{RiskFreeRate: *riskFree}
	runner := backtest.NewRunner(backtest.RunnerOptions{
		Runs:     stores.Runs,
		Trades:   stores.Trades,
		Ledgers:  stores.Ledgers,
		Analysis: analysis,
		Logger:   logger,
	})
	orch := orchestrator.New(orchestrator.Options{
		Runner:              runner,
		BarStore:            stores.Bars,
		SweepAggregateStore: stores.Aggregates,
		Workers:             *workers,
		Logger:              logger,
	})

	server := &Server{
		storeCfg:      storeCfg,
		frameCfg:      frameCfg,
		grid:          grid,
		outputDir:     *outputDir,
		sweepInterval: *sweepInterval,
		stores:        stores,
		orch:          orch,
		logger:        logger,
		started:       time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer := api.New(api.Options{
		Stores:       stores,
		Runner:       runner,
		Orchestrator: orch,
		Analysis:     analysis,
		Logger:       logger,
		MaxBars:      *maxBars,
		MaxSweepRuns: *maxSweepRuns,
	})
	router := apiServer.Router()
	router.GET("/status", server.handleStatus)
	httpServer := &http.Server{Addr: *addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()

	// Run the scheduler until shutdown
	err = server.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown", zap.Error(serr))
	}
	shutdownCancel()

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// Run runs scheduled sweeps until ctx is done. Without a grid it only waits.
func (s *Server) Run(ctx context.Context) error {
	if s.grid == nil {
		s.logger.Info("scheduled sweeps disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	s.logger.Info("starting sweep scheduler", zap.Duration("interval", s.sweepInterval))

	s.runSweep(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// runSweep runs the configured grid and reports on the job.
func (s *Server) runSweep(ctx context.Context) {
	s.mu.Lock()
	if s.sweepRunning {
		s.mu.Unlock()
		s.logger.Info("sweep already running, skipping")
		return
	}
	s.sweepRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweepRunning = false
		s.lastSweepRun = time.Now()
		s.sweepRuns++
		s.mu.Unlock()
	}()

	frame, err := app.LoadFrame(ctx, *s.frameCfg, s.stores.Bars)
	if err != nil {
		s.logger.Error("scheduled sweep: load frame", zap.Error(err))
		return
	}
	res, err := s.orch.Sweep(ctx, orchestrator.SweepRequest{
		Symbol:    s.frameCfg.Generator.Symbol,
		Timeframe: s.frameCfg.Generator.Timeframe,
		Frame:     frame,
		Params:    s.grid.Expand(),
	})
	if err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
		return
	}
	if res.RunsCompleted == res.RunsCached {
		s.logger.Info("scheduled sweep found no new runs", zap.String("job_id", res.JobID))
		return
	}

	// Ensure output directory exists
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		s.logger.Error("failed to create output directory", zap.Error(err))
		return
	}

	p := pipeline.NewReportPipeline(pipeline.ReportStores{
		Runs:       s.stores.Runs,
		Trades:     s.stores.Trades,
		Ledgers:    s.stores.Ledgers,
		Aggregates: s.stores.Aggregates,
		Bars:       s.stores.Bars,
	}, decision.DefaultThresholds(), s.outputDir).
		WithIntegrityErrors(res.Errors).
		WithSufficiencyChecker(pipeline.DefaultSufficiencyConfig(), s.frameCfg.Crossover)
	if s.stores.Memory {
		p = p.WithDataSource("server")
	} else {
		p = p.WithDBSource(s.storeCfg.PostgresDSN, s.storeCfg.ClickhouseDSN)
	}

	outcome, err := p.RunJob(ctx, res.JobID)
	if err != nil {
		s.logger.Error("report generation error", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastJobID = res.JobID
	s.lastDecision = outcome.Decision
	s.lastReportRun = time.Now()
	s.reportRuns++
	s.mu.Unlock()

	s.logger.Info("reports generated",
		zap.String("job_id", res.JobID),
		zap.String("decision", string(outcome.Decision)),
		zap.String("output_dir", s.outputDir),
	)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Storage       string    `json:"storage"`
	SweepsEnabled bool      `json:"sweeps_enabled"`
	LastSweepRun  time.Time `json:"last_sweep_run,omitempty"`
	LastReportRun time.Time `json:"last_report_run,omitempty"`
	LastJobID     string    `json:"last_job_id,omitempty"`
	LastDecision  string    `json:"last_decision,omitempty"`
	SweepRuns     int       `json:"sweep_runs"`
	ReportRuns    int       `json:"report_runs"`
	SweepRunning  bool      `json:"sweep_running"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	storageName := "postgres+clickhouse"
	if s.stores.Memory {
		storageName = "memory"
	}
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		Storage:       storageName,
		SweepsEnabled: s.grid != nil,
		LastSweepRun:  s.lastSweepRun,
		LastReportRun: s.lastReportRun,
		LastJobID:     s.lastJobID,
		LastDecision:  string(s.lastDecision),
		SweepRuns:     s.sweepRuns,
		ReportRuns:    s.reportRuns,
		SweepRunning:  s.sweepRunning,
	})
}
