// Package api exposes runs, sweeps, ledgers and deployment gates over HTTP,
// and streams ledger rows of a live run over a websocket.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/decision"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/observability"
	"github.com/hxse/pyo3-quant-sub000/internal/orchestrator"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// Version is reported by /health.
const Version = "1.0.0"

// Request limits.
const (
	DefaultMaxBars      = 1_000_000
	DefaultMaxSweepRuns = 10_000
)

// Options configures a Server. Stores is required; Runner and Orchestrator
// are built from Stores when nil.
type Options struct {
	Stores       *app.Stores
	Runner       *backtest.Runner
	Orchestrator *orchestrator.Orchestrator
	Thresholds   *decision.Thresholds
	Analysis     metrics.Options
	Metrics      *observability.Metrics
	Logger       *zap.Logger

	MaxBars      int
	MaxSweepRuns int

	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	stores       *app.Stores
	runner       *backtest.Runner
	orch         *orchestrator.Orchestrator
	evaluator    *decision.Evaluator
	analysis     metrics.Options
	metrics      *observability.Metrics
	logger       *zap.Logger
	maxBars      int
	maxSweepRuns int
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	started      time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		stores:       opts.Stores,
		runner:       opts.Runner,
		orch:         opts.Orchestrator,
		analysis:     opts.Analysis,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		maxBars:      opts.MaxBars,
		maxSweepRuns: opts.MaxSweepRuns,
		writeTimeout: opts.WriteTimeout,
		started:      time.Now(),
	}
	if s.metrics == nil {
		s.metrics = observability.DefaultMetrics
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxBars <= 0 {
		s.maxBars = DefaultMaxBars
	}
	if s.maxSweepRuns <= 0 {
		s.maxSweepRuns = DefaultMaxSweepRuns
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	th := decision.DefaultThresholds()
	if opts.Thresholds != nil {
		th = *opts.Thresholds
	}
	s.evaluator = decision.NewEvaluator(th)

	if s.runner == nil {
		s.runner = backtest.NewRunner(backtest.RunnerOptions{
			Runs:     s.stores.Runs,
			Trades:   s.stores.Trades,
			Ledgers:  s.stores.Ledgers,
			Analysis: s.analysis,
			Metrics:  s.metrics,
			Logger:   s.logger,
		})
	}
	if s.orch == nil {
		s.orch = orchestrator.New(orchestrator.Options{
			Runner:              s.runner,
			BarStore:            s.stores.Bars,
			SweepAggregateStore: s.stores.Aggregates,
			Metrics:             s.metrics,
			Logger:              s.logger,
		})
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/runs", s.handleCreateRun)
		api.GET("/runs/:run_id", s.handleGetRun)
		api.GET("/runs/:run_id/trades", s.handleGetTrades)
		api.GET("/runs/:run_id/ledger", s.handleGetLedger)
		api.GET("/runs/:run_id/actions", s.handleGetActions)
		api.GET("/runs/:run_id/gate", s.handleGetGate)

		api.POST("/sweeps", s.handleCreateSweep)
		api.GET("/sweeps/:job_id", s.handleGetSweep)

		api.GET("/stream", s.handleStream)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"version":        Version,
		"storage":        s.storageName(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) storageName() string {
	if s.stores.Memory {
		return "memory"
	}
	return "postgres+clickhouse"
}

// abort writes a JSON error with a status derived from err.
func (s *Server) abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, domain.ErrInvalidData),
		errors.Is(err, app.ErrUnknownSource),
		errors.Is(err, app.ErrBadGrid):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
