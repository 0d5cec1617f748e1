package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/idhash"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
)

// Stream message types.
const (
	MsgBar     = "bar"
	MsgSummary = "summary"
	MsgError   = "error"
)

// StreamRequest is the first message a stream client sends. Every is the
// bar stride between streamed rows; rows with a trade exit are always sent.
type StreamRequest struct {
	RunRequest
	Every int `json:"every,omitempty"`
}

// StreamMessage is one server-to-client message.
type StreamMessage struct {
	Type        string              `json:"type"`
	Row         *RowView            `json:"row,omitempty"`
	RunID       string              `json:"run_id,omitempty"`
	Bars        int                 `json:"bars,omitempty"`
	Trades      []TradeView         `json:"trades,omitempty"`
	Performance *domain.Performance `json:"performance,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// handleStream runs one backtest per connection and streams its ledger as
// the engine produces it. Streamed runs are not persisted.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.metrics.StreamClients.Inc()
	defer s.metrics.StreamClients.Dec()

	req := StreamRequest{RunRequest: newRunRequest()}
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	if err := conn.ReadJSON(&req); err != nil {
		s.sendError(conn, badRequest(err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// The client closing the socket cancels the run.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	if err := s.stream(ctx, conn, req); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.sendError(conn, err)
		}
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.writeTimeout))
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, req StreamRequest) error {
	f, err := s.loadFrame(ctx, req.Frame)
	if err != nil {
		return err
	}
	runID, err := idhash.ComputeRunID(idhash.FrameFingerprint(f), req.Params)
	if err != nil {
		return err
	}
	every := req.Every
	if every <= 0 {
		every = 1
	}

	last := f.Len() - 1
	engine := backtest.NewEngine(backtest.Options{
		Observer: backtest.ObserverFunc(func(_ context.Context, i int, row *domain.LedgerRow) error {
			if i%every != 0 && i != last && !nullableSet(row.TradePnlPct) {
				return nil
			}
			v := rowView(i, row)
			return s.send(conn, StreamMessage{Type: MsgBar, Row: &v})
		}),
	})

	res, err := engine.Run(ctx, f, req.Params)
	if err != nil {
		return err
	}
	perf := metrics.Analyze(res.Ledger, f.TimeMs, s.analysis)
	trades := make([]TradeView, len(res.Trades))
	for i := range res.Trades {
		trades[i] = tradeView(&domain.StoredTrade{RunID: runID, Seq: i, Trade: res.Trades[i]})
	}
	return s.send(conn, StreamMessage{
		Type:        MsgSummary,
		RunID:       runID,
		Bars:        f.Len(),
		Trades:      trades,
		Performance: &perf,
	})
}

func nullableSet(v float64) bool {
	return nullable(v) != nil
}

func (s *Server) send(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) sendError(conn *websocket.Conn, err error) {
	if werr := s.send(conn, StreamMessage{Type: MsgError, Error: err.Error()}); werr != nil {
		s.logger.Debug("stream error not delivered", zap.Error(werr))
	}
}
