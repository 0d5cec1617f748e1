package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/decision"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/orchestrator"
	"github.com/hxse/pyo3-quant-sub000/internal/reporting"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// RunRequest is the body of POST /api/v1/runs and the first websocket
// message of /api/v1/stream.
type RunRequest struct {
	Frame  app.FrameConfig `json:"frame"`
	Params domain.Params   `json:"params"`
}

// SweepRequest is the body of POST /api/v1/sweeps.
type SweepRequest struct {
	Frame  app.FrameConfig `json:"frame"`
	Params domain.ParamSet `json:"params"`
}

// SweepView is the JSON form of a sweep job.
type SweepView struct {
	JobID             string                   `json:"job_id"`
	RunsCompleted     int                      `json:"runs_completed"`
	RunsCached        int                      `json:"runs_cached"`
	AggregatesCreated int                      `json:"aggregates_created"`
	BestRunID         string                   `json:"best_run_id,omitempty"`
	Runs              []RunView                `json:"runs"`
	Aggregates        []*domain.SweepAggregate `json:"aggregates"`
	Errors            []string                 `json:"errors,omitempty"`
}

func newRunRequest() RunRequest {
	return RunRequest{Frame: app.DefaultFrameConfig(), Params: domain.DefaultParams()}
}

// loadFrame builds the request frame. Synthetic frame errors are the
// caller's fault; store errors are not, except a missing series.
func (s *Server) loadFrame(ctx context.Context, cfg app.FrameConfig) (*domain.Frame, error) {
	if cfg.Source != app.SourceStore && cfg.Generator.Bars > s.maxBars {
		return nil, badRequest(fmt.Errorf("bars %d exceeds limit %d", cfg.Generator.Bars, s.maxBars))
	}
	f, err := app.LoadFrame(ctx, cfg, s.stores.Bars)
	if err != nil {
		if cfg.Source == app.SourceStore {
			return nil, err
		}
		return nil, badRequest(err)
	}
	return f, nil
}

func (s *Server) handleCreateRun(c *gin.Context) {
	req := newRunRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, badRequest(err))
		return
	}
	ctx := c.Request.Context()

	f, err := s.loadFrame(ctx, req.Frame)
	if err != nil {
		s.abort(c, err)
		return
	}
	out, err := s.runner.Run(ctx, backtest.RunRequest{
		Symbol:    req.Frame.Generator.Symbol,
		Timeframe: req.Frame.Generator.Timeframe,
		Frame:     f,
		Params:    req.Params,
	})
	if err != nil {
		s.abort(c, err)
		return
	}

	status := http.StatusCreated
	if out.Cached {
		status = http.StatusOK
	}
	c.JSON(status, runView(out.Record, out.Cached))
}

func (s *Server) handleGetRun(c *gin.Context) {
	rec, err := s.stores.Runs.GetByID(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, runView(rec, false))
}

func (s *Server) handleGetTrades(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("run_id")
	if _, err := s.stores.Runs.GetByID(ctx, runID); err != nil {
		s.abort(c, err)
		return
	}
	trades, err := s.stores.Trades.GetByRunID(ctx, runID)
	if err != nil {
		s.abort(c, err)
		return
	}
	views := make([]TradeView, len(trades))
	for i, t := range trades {
		views[i] = tradeView(t)
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "trades": views})
}

func (s *Server) handleGetLedger(c *gin.Context) {
	runID := c.Param("run_id")
	lg, err := s.stores.Ledgers.GetLedger(c.Request.Context(), runID)
	if err != nil {
		s.abort(c, err)
		return
	}

	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		c.JSON(http.StatusOK, gin.H{
			"run_id":  runID,
			"bars":    lg.Len(),
			"columns": lg.Columns(),
			"data":    ledgerColumns(lg),
		})
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := reporting.WriteLedgerCSV(c.Writer, lg, nil); err != nil {
			_ = c.Error(err)
		}
	case "arrow":
		c.Header("Content-Type", "application/vnd.apache.arrow.stream")
		c.Status(http.StatusOK)
		if err := reporting.WriteLedgerArrow(c.Writer, lg, runID); err != nil {
			_ = c.Error(err)
		}
	default:
		s.abort(c, badRequest(fmt.Errorf("unknown format %q", format)))
	}
}

func (s *Server) handleGetActions(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("run_id")
	rec, err := s.stores.Runs.GetByID(ctx, runID)
	if err != nil {
		s.abort(c, err)
		return
	}
	lg, err := s.stores.Ledgers.GetLedger(ctx, runID)
	if err != nil {
		s.abort(c, err)
		return
	}

	plans := decision.ResolveLedger(lg, decision.ActionOptions{
		Symbol:      rec.Symbol,
		SLExitInBar: rec.Params.SLExitInBar,
		TPExitInBar: rec.Params.TPExitInBar,
	})
	if c.Query("last") == "true" && len(plans) > 0 {
		plans = plans[len(plans)-1:]
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "plans": plans})
}

func (s *Server) handleGetGate(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("run_id")
	rec, err := s.stores.Runs.GetByID(ctx, runID)
	if err != nil {
		s.abort(c, err)
		return
	}
	var aggs []*domain.SweepAggregate
	if rec.JobID != "" {
		aggs, err = s.stores.Aggregates.GetByJob(ctx, rec.JobID)
		if err != nil {
			s.abort(c, err)
			return
		}
	}

	in, err := decision.BuildGateInput(rec, aggs)
	var res *decision.DecisionResult
	switch {
	case errors.Is(err, decision.ErrMissingReturnAggregate):
		res = &decision.DecisionResult{Decision: decision.DecisionInsufficientData}
		in = nil
	case err != nil:
		s.abort(c, err)
		return
	default:
		res = s.evaluator.Evaluate(*in)
	}

	if c.Query("format") == "markdown" && in != nil {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(decision.RenderMarkdown(*in, res)))
		return
	}
	c.JSON(http.StatusOK, gateView(runID, in, res))
}

func (s *Server) handleCreateSweep(c *gin.Context) {
	req := SweepRequest{Frame: app.DefaultFrameConfig(), Params: domain.ParamSet{
		InitialCapital: domain.DefaultParams().InitialCapital,
		ATRPeriod:      domain.DefaultParams().ATRPeriod,
	}}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, badRequest(err))
		return
	}
	params := req.Params.Expand()
	if len(params) > s.maxSweepRuns {
		s.abort(c, badRequest(fmt.Errorf("grid has %d runs, limit %d", len(params), s.maxSweepRuns)))
		return
	}
	ctx := c.Request.Context()

	f, err := s.loadFrame(ctx, req.Frame)
	if err != nil {
		s.abort(c, err)
		return
	}
	res, err := s.orch.Sweep(ctx, orchestrator.SweepRequest{
		Symbol:    req.Frame.Generator.Symbol,
		Timeframe: req.Frame.Generator.Timeframe,
		Frame:     f,
		Params:    params,
	})
	if err != nil {
		s.abort(c, err)
		return
	}

	view := SweepView{
		JobID:             res.JobID,
		RunsCompleted:     res.RunsCompleted,
		RunsCached:        res.RunsCached,
		AggregatesCreated: res.AggregatesCreated,
		Aggregates:        res.Aggregates,
		Errors:            res.Errors,
		Runs:              make([]RunView, 0, len(res.Runs)),
	}
	for _, out := range res.Runs {
		if out != nil {
			view.Runs = append(view.Runs, runView(out.Record, out.Cached))
		}
	}
	view.BestRunID = bestRunID(res.Aggregates)
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSweep(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")
	runs, err := s.stores.Runs.GetByJob(ctx, jobID)
	if err != nil {
		s.abort(c, err)
		return
	}
	if len(runs) == 0 {
		s.abort(c, fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound))
		return
	}
	aggs, err := s.stores.Aggregates.GetByJob(ctx, jobID)
	if err != nil {
		s.abort(c, err)
		return
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	view := SweepView{
		JobID:         jobID,
		RunsCompleted: len(runs),
		Aggregates:    aggs,
		BestRunID:     bestRunID(aggs),
		Runs:          make([]RunView, len(runs)),
	}
	for i, rec := range runs {
		view.Runs[i] = runView(rec, false)
	}
	c.JSON(http.StatusOK, view)
}

func bestRunID(aggs []*domain.SweepAggregate) string {
	for _, a := range aggs {
		if a.Metric == domain.MetricTotalReturn {
			return a.BestRunID
		}
	}
	return ""
}
