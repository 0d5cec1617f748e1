package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/verification"
)

func main() {
	app.LoadEnvFile(".env")

	// Parse flags
	runID := flag.String("run-id", "", "Run ID to replay")
	jobID := flag.String("job-id", "", "Replay every run of this sweep job")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	riskFree := flag.Float64("risk-free-rate", app.EnvFloat("RISK_FREE_RATE", 0), "Annual risk-free rate the runs were stored with")
	frameCfg := app.RegisterFrameFlags(flag.CommandLine)
	params := app.RegisterParamFlags(flag.CommandLine)
	storeCfg := app.RegisterStoreFlags(flag.CommandLine)
	logCfg := app.RegisterLogFlags(flag.CommandLine)

	flag.Parse()

	logger, closeLog, err := app.NewLogger("replay", *logCfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = closeLog() }()

	// Validate required flags
	if *runID != "" && *jobID != "" {
		logger.Fatal("--run-id and --job-id are mutually exclusive")
	}
	if !storeCfg.UseMemory && *runID == "" && *jobID == "" {
		logger.Fatal("--run-id or --job-id is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	stores, cleanup, err := app.OpenStores(ctx, *storeCfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer cleanup()

	analysis := metrics.Options{RiskFreeRate: *riskFree}

	// In-memory stores start empty: store one run from the frame and
	// parameter flags, then replay it.
	if stores.Memory && *jobID == "" {
		cfg := *frameCfg
		cfg.Persist = true
		frame, err := app.LoadFrame(ctx, cfg, stores.Bars)
		if err != nil {
			logger.Fatal("load frame", zap.Error(err))
		}
		out, err := backtest.NewRunner(backtest.RunnerOptions{
			Runs:     stores.Runs,
			Trades:   stores.Trades,
			Ledgers:  stores.Ledgers,
			Analysis: analysis,
			Logger:   logger,
		}).Run(ctx, backtest.RunRequest{
			Symbol:    cfg.Generator.Symbol,
			Timeframe: cfg.Generator.Timeframe,
			Frame:     frame,
			Params:    *params,
		})
		if err != nil {
			logger.Fatal("demo run", zap.Error(err))
		}
		*runID = out.Record.RunID
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RunStore:    stores.Runs,
		TradeStore:  stores.Trades,
		LedgerStore: stores.Ledgers,
		Frames: verification.FrameSourceFunc(func(ctx context.Context, rec *domain.RunRecord) (*domain.Frame, error) {
			return app.RunFrame(ctx, stores.Bars, frameCfg.Crossover, rec)
		}),
		Analysis: analysis,
	})

	var report *verification.VerificationReport
	if *jobID != "" {
		logger.Info("replaying job", zap.String("job_id", *jobID))
		report, err = verifier.VerifyJob(ctx, *jobID)
	} else {
		logger.Info("replaying run", zap.String("run_id", *runID))
		var res *verification.VerificationResult
		res, err = verifier.VerifyRun(ctx, *runID)
		if res != nil {
			report = &verification.VerificationReport{TotalRuns: 1, Results: []verification.VerificationResult{*res}}
			if res.Match {
				report.MatchedRuns = 1
			} else {
				report.DivergentRuns = 1
			}
		}
	}
	if err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}

	// Output summary
	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		printReport(report)
	}
	if report.DivergentRuns > 0 {
		os.Exit(2)
	}
}

func printReport(r *verification.VerificationReport) {
	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Runs:              %d\n", r.TotalRuns)
	fmt.Printf("Matched:           %d\n", r.MatchedRuns)
	fmt.Printf("Divergent:         %d\n", r.DivergentRuns)
	for _, res := range r.Results {
		status := "OK"
		if !res.Match {
			status = "DIVERGED"
		}
		fmt.Printf("\n%s  %s\n", res.RunID, status)
		fmt.Printf("  Stored return:   %.6f\n", res.StoredTotalReturn)
		fmt.Printf("  Replayed return: %.6f\n", res.ReplayedTotalReturn)
		for i, d := range res.Divergences {
			if i == 10 {
				fmt.Printf("  ... %d more\n", len(res.Divergences)-i)
				break
			}
			fmt.Printf("  bar=%d %s: stored=%v replayed=%v\n", d.Bar, d.Field, d.Expected, d.Actual)
		}
	}
}
