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
	"time"

	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/reporting"
)

func main() {
	app.LoadEnvFile(".env")

	frameCfg := app.RegisterFrameFlags(flag.CommandLine)
	params := app.RegisterParamFlags(flag.CommandLine)
	storeCfg := app.RegisterStoreFlags(flag.CommandLine)
	logCfg := app.RegisterLogFlags(flag.CommandLine)

	paramsFile := flag.String("params", "", "Load run parameters from a JSON file (overrides parameter flags)")
	riskFree := flag.Float64("risk-free-rate", app.EnvFloat("RISK_FREE_RATE", 0), "Annual risk-free rate for Sharpe/Sortino")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	ledgerCSV := flag.String("ledger-csv", "", "Write the ledger to this CSV file")
	ledgerArrow := flag.String("ledger-arrow", "", "Write the ledger to this Arrow IPC file")
	tradesCSV := flag.String("trades-csv", "", "Write trades to this CSV file")

	flag.Parse()

	logger, closeLog, err := app.NewLogger("backtest", *logCfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = closeLog() }()

	if *paramsFile != "" {
		p, err := app.LoadParams(*paramsFile)
		if err != nil {
			logger.Fatal("load params", zap.Error(err))
		}
		*params = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	logger.Info("running backtest",
		zap.String("symbol", frameCfg.Generator.Symbol),
		zap.String("timeframe", frameCfg.Generator.Timeframe),
		zap.Int("bars", frame.Len()),
	)
	out, err := runner.Run(ctx, backtest.RunRequest{
		Symbol:    frameCfg.Generator.Symbol,
		Timeframe: frameCfg.Generator.Timeframe,
		Frame:     frame,
		Params:    *params,
	})
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	ledger, trades, err := loadOutputs(ctx, stores, out)
	if err != nil {
		logger.Fatal("load run outputs", zap.Error(err))
	}
	if err := writeFiles(ledger, trades, frame.TimeMs, out.Record.RunID, *ledgerCSV, *ledgerArrow, *tradesCSV); err != nil {
		logger.Fatal("write output files", zap.Error(err))
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(struct {
			*domain.RunRecord
			Cached bool
		}{out.Record, out.Cached}, "", "  ")
		fmt.Println(string(output))
	} else {
		printRun(out.Record, out.Cached, trades)
	}
}

// loadOutputs returns the run's ledger and trades, reading them back from
// the stores when the run was cached.
func loadOutputs(ctx context.Context, stores *app.Stores, out *backtest.RunOutput) (*domain.Ledger, []domain.Trade, error) {
	if out.Result != nil {
		return out.Result.Ledger, out.Result.Trades, nil
	}
	ledger, err := stores.Ledgers.GetLedger(ctx, out.Record.RunID)
	if err != nil {
		return nil, nil, err
	}
	stored, err := stores.Trades.GetByRunID(ctx, out.Record.RunID)
	if err != nil {
		return nil, nil, err
	}
	trades := make([]domain.Trade, len(stored))
	for i, t := range stored {
		trades[i] = t.Trade
	}
	return ledger, trades, nil
}

func writeFiles(lg *domain.Ledger, trades []domain.Trade, timeMs []int64, runID, ledgerCSV, ledgerArrow, tradesCSV string) error {
	write := func(path string, fn func(f *os.File) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		return f.Close()
	}

	if err := write(ledgerCSV, func(f *os.File) error { return reporting.WriteLedgerCSV(f, lg, timeMs) }); err != nil {
		return err
	}
	if err := write(ledgerArrow, func(f *os.File) error { return reporting.WriteLedgerArrow(f, lg, runID) }); err != nil {
		return err
	}
	return write(tradesCSV, func(f *os.File) error { return reporting.WriteTradesCSV(f, trades) })
}

// printRun outputs a human-readable run summary.
func printRun(rec *domain.RunRecord, cached bool, trades []domain.Trade) {
	p := rec.Performance
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", rec.RunID)
	fmt.Printf("Symbol:             %s %s\n", rec.Symbol, rec.Timeframe)
	fmt.Printf("Bars:               %d\n", rec.BarCount)
	if rec.FirstBarMs != 0 {
		fmt.Printf("Period:             %s .. %s\n",
			time.UnixMilli(rec.FirstBarMs).UTC().Format(time.RFC3339),
			time.UnixMilli(rec.LastBarMs).UTC().Format(time.RFC3339))
	}
	if cached {
		fmt.Println("Cached:             yes")
	}
	fmt.Println()

	fmt.Println("Performance:")
	fmt.Printf("  Final Equity:     %s\n", reporting.FormatMoney(reporting.FinalEquity(rec.Params.InitialCapital, p.TotalReturn)))
	fmt.Printf("  Total Return:     %s\n", reporting.FormatPct(p.TotalReturn))
	fmt.Printf("  Max Drawdown:     %s\n", reporting.FormatPct(p.MaxDrawdown))
	fmt.Printf("  Sharpe:           %.3f\n", p.SharpeRatio)
	fmt.Printf("  Sortino:          %.3f\n", p.SortinoRatio)
	fmt.Printf("  Calmar:           %.3f\n", p.CalmarRatio)
	fmt.Printf("  Max Safe Lev.:    %.2fx\n", p.MaxSafeLeverage)
	fmt.Println()

	fmt.Println("Trades:")
	fmt.Printf("  Count:            %d (%d wins, %d losses)\n", p.TotalTrades, p.Wins, p.Losses)
	fmt.Printf("  Win Rate:         %s\n", reporting.FormatPct(p.WinRate))
	fmt.Printf("  Profit/Loss:      %.3f\n", p.ProfitLossRatio)
	fmt.Printf("  Avg Holding:      %.1f bars\n", p.AvgHoldingDuration)

	byReason := map[string]int{}
	for _, t := range trades {
		byReason[t.ExitReason]++
	}
	for _, reason := range []string{
		domain.ExitReasonSignal, domain.ExitReasonReversal, domain.ExitReasonSL,
		domain.ExitReasonTP, domain.ExitReasonTSL, domain.ExitReasonPSAR,
	} {
		if n := byReason[reason]; n > 0 {
			fmt.Printf("  Exit %-8s      %d\n", reason+":", n)
		}
	}
}
