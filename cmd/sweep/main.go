// Package main runs a parameter sweep and, optionally, the report and
// deployment gate over its results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/decision"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/orchestrator"
	"github.com/hxse/pyo3-quant-sub000/internal/pipeline"
)

func main() {
	app.LoadEnvFile(".env")

	frameCfg := app.RegisterFrameFlags(flag.CommandLine)
	base := app.RegisterParamFlags(flag.CommandLine)
	grid := app.RegisterGridFlags(flag.CommandLine)
	storeCfg := app.RegisterStoreFlags(flag.CommandLine)
	logCfg := app.RegisterLogFlags(flag.CommandLine)

	gridFile := flag.String("grid", "", "Load the parameter grid from a JSON file (overrides grid flags)")
	workers := flag.Int("workers", app.EnvInt("SWEEP_WORKERS", 0), "Concurrent runs (0 = GOMAXPROCS)")
	failFast := flag.Bool("fail-fast", false, "Abort the job on the first failed run")
	riskFree := flag.Float64("risk-free-rate", app.EnvFloat("RISK_FREE_RATE", 0), "Annual risk-free rate for Sharpe/Sortino")
	maxRuns := flag.Int("max-runs", 100_000, "Refuse grids larger than this")

	// Reporting
	outputDir := flag.String("output-dir", "", "Write the job report and decision gate here")
	checkData := flag.Bool("check-data", true, "Run data sufficiency checks in the report (needs -persist-bars for synthetic data)")
	minBars := flag.Int("min-bars", pipeline.DefaultSufficiencyConfig().MinBars, "Sufficiency: minimum bar count")
	minDays := flag.Float64("min-days", pipeline.DefaultSufficiencyConfig().MinDays, "Sufficiency: minimum coverage in days")

	flag.Parse()

	logger, closeLog, err := app.NewLogger("sweep", *logCfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = closeLog() }()

	set, err := grid.ParamSet(*base)
	if *gridFile != "" {
		set, err = app.LoadParamSet(*gridFile)
	}
	if err != nil {
		logger.Fatal("parameter grid", zap.Error(err))
	}
	params := set.Expand()
	if len(params) > *maxRuns {
		logger.Fatal("grid too large", zap.Int("runs", len(params)), zap.Int("max_runs", *maxRuns))
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, cancelling sweep", zap.String("signal", sig.String()))
		cancel()
	}()

	stores, cleanup, err := app.OpenStores(ctx, *storeCfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer cleanup()

	frame, err := app.LoadFrame(ctx, *frameCfg, stores.Bars)
	if err != nil {
		logger.Fatal("load frame", zap.Error(err))
	}

	runner := backtest.NewRunner(backtest.RunnerOptions{
		Runs:     stores.Runs,
		Trades:   stores.Trades,
		Ledgers:  stores.Ledgers,
		Analysis: metrics.Options{RiskFreeRate: *riskFree},
		Logger:   logger,
	})
	orch := orchestrator.New(orchestrator.Options{
		Runner:              runner,
		BarStore:            stores.Bars,
		SweepAggregateStore: stores.Aggregates,
		Workers:             *workers,
		FailFast:            *failFast,
		Logger:              logger,
	})

	fmt.Println("=== Sweep ===")
	result, err := orch.Sweep(ctx, orchestrator.SweepRequest{
		Symbol:    frameCfg.Generator.Symbol,
		Timeframe: frameCfg.Generator.Timeframe,
		Frame:     frame,
		Params:    params,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sweep completed:\n")
	fmt.Printf("  Job ID: %s\n", result.JobID)
	fmt.Printf("  Runs: %d (%d cached)\n", result.RunsCompleted, result.RunsCached)
	fmt.Printf("  Aggregates: %d\n", result.AggregatesCreated)
	for _, a := range result.Aggregates {
		if a.Metric == domain.MetricTotalReturn {
			fmt.Printf("  Best run: %s (total_return %.4f, median %.4f)\n", a.BestRunID, a.BestValue, a.Median)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	if *outputDir == "" {
		return
	}

	fmt.Println("\n=== Report ===")
	p := pipeline.NewReportPipeline(pipeline.ReportStores{
		Runs:       stores.Runs,
		Trades:     stores.Trades,
		Ledgers:    stores.Ledgers,
		Aggregates: stores.Aggregates,
		Bars:       stores.Bars,
	}, decision.DefaultThresholds(), *outputDir).WithIntegrityErrors(result.Errors)
	if *checkData {
		cfg := pipeline.DefaultSufficiencyConfig()
		cfg.MinBars = *minBars
		cfg.MinDays = *minDays
		p = p.WithSufficiencyChecker(cfg, frameCfg.Crossover)
	}
	if stores.Memory {
		p = p.WithDataSource("fixtures")
	} else {
		p = p.WithDBSource(storeCfg.PostgresDSN, storeCfg.ClickhouseDSN)
	}

	outcome, err := p.RunJob(ctx, result.JobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Report error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Decision: %s\n", outcome.Decision)
	for _, f := range outcome.Files {
		fmt.Printf("  - %s\n", f)
	}
}
