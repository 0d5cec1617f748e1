package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxse/pyo3-quant-sub000/internal/app"
	"github.com/hxse/pyo3-quant-sub000/internal/observability"
	"github.com/hxse/pyo3-quant-sub000/internal/reporting"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := New(Options{
		Stores:  app.NewMemoryStores(),
		Metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
	})
	return s, s.Router()
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const runBody = `{"frame":{"generator":{"bars":300}},"params":{"sl_pct":0.02,"tp_pct":0.05}}`

func TestHealth(t *testing.T) {
	_, r := newTestServer(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["storage"])
}

func TestRunLifecycle(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/v1/runs", runBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := decode[RunView](t, w)
	require.NotEmpty(t, run.RunID)
	assert.False(t, run.Cached)
	assert.Equal(t, 300, run.BarCount)
	assert.Equal(t, "SYNTH", run.Symbol)
	assert.InDelta(t, 0.02, run.Params.SLPct, 1e-12)
	assert.InDelta(t, 10000, run.Params.InitialCapital, 1e-9)

	// Same frame and params hit the stored run.
	w = do(t, r, http.MethodPost, "/api/v1/runs", runBody)
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[RunView](t, w)
	assert.Equal(t, run.RunID, again.RunID)
	assert.True(t, again.Cached)

	base := "/api/v1/runs/" + run.RunID
	w = do(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, run.Performance, decode[RunView](t, w).Performance)

	w = do(t, r, http.MethodGet, base+"/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	trades := decode[struct {
		Trades []TradeView `json:"trades"`
	}](t, w)
	assert.Len(t, trades.Trades, run.TradeCount)

	w = do(t, r, http.MethodGet, base+"/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ledger := decode[struct {
		Bars    int                   `json:"bars"`
		Columns []string              `json:"columns"`
		Data    map[string][]*float64 `json:"data"`
	}](t, w)
	assert.Equal(t, 300, ledger.Bars)
	assert.Contains(t, ledger.Columns, "sl_pct_price")
	require.Len(t, ledger.Data["equity"], 300)
	assert.NotNil(t, ledger.Data["equity"][0])

	w = do(t, r, http.MethodGet, base+"/ledger?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 301)
	assert.True(t, strings.HasPrefix(lines[0], "bar,current_position,"))

	w = do(t, r, http.MethodGet, base+"/ledger?format=arrow", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lg, id, err := reporting.ReadLedgerArrow(w.Body)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, id)
	assert.Equal(t, 300, lg.Len())

	w = do(t, r, http.MethodGet, base+"/ledger?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, base+"/actions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	actions := decode[struct {
		Plans []json.RawMessage `json:"plans"`
	}](t, w)
	assert.Len(t, actions.Plans, 300)

	w = do(t, r, http.MethodGet, base+"/actions?last=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	last := decode[struct {
		Plans []struct {
			Bar int `json:"bar"`
		} `json:"plans"`
	}](t, w)
	require.Len(t, last.Plans, 1)
	assert.Equal(t, 299, last.Plans[0].Bar)

	w = do(t, r, http.MethodGet, base+"/gate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	gate := decode[GateView](t, w)
	assert.Contains(t, []string{"GO", "NO-GO"}, gate.Decision)
	assert.False(t, gate.HasSweep)
	assert.NotEmpty(t, gate.GOCriteria)

	w = do(t, r, http.MethodGet, base+"/gate?format=markdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "## Decision: "+gate.Decision)
}

func TestRun_Errors(t *testing.T) {
	_, r := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"frame":`, http.StatusBadRequest},
		{"negative stop", `{"params":{"sl_pct":-1}}`, http.StatusBadRequest},
		{"bad timeframe", `{"frame":{"generator":{"timeframe":"7x"}}}`, http.StatusBadRequest},
		{"unknown source", `{"frame":{"source":"ftp"}}`, http.StatusBadRequest},
		{"too many bars", `{"frame":{"generator":{"bars":2000000}}}`, http.StatusBadRequest},
		{"empty store", `{"frame":{"source":"store"}}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/runs", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	w := do(t, r, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/runs/missing/ledger", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/sweeps/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSweep(t *testing.T) {
	_, r := newTestServer(t)

	body := `{"frame":{"generator":{"bars":300}},"params":{"sl_pct":{"value":0.01,"min":0.01,"max":0.03,"step":0.01,"optimize":true}}}`
	w := do(t, r, http.MethodPost, "/api/v1/sweeps", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sweep := decode[SweepView](t, w)
	require.NotEmpty(t, sweep.JobID)
	assert.Equal(t, 3, sweep.RunsCompleted)
	assert.Len(t, sweep.Runs, 3)
	assert.NotZero(t, sweep.AggregatesCreated)
	require.NotEmpty(t, sweep.BestRunID)

	w = do(t, r, http.MethodGet, "/api/v1/sweeps/"+sweep.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[SweepView](t, w)
	assert.Len(t, stored.Runs, 3)
	assert.Equal(t, sweep.BestRunID, stored.BestRunID)

	w = do(t, r, http.MethodGet, "/api/v1/runs/"+sweep.BestRunID+"/gate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	gate := decode[GateView](t, w)
	assert.True(t, gate.HasSweep)
	assert.Contains(t, []string{"GO", "NO-GO"}, gate.Decision)

	big := `{"params":{"sl_pct":{"min":0.0001,"max":0.2,"step":0.00001,"optimize":true}}}`
	w = do(t, r, http.MethodPost, "/api/v1/sweeps", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func streamURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
}

func TestStream(t *testing.T) {
	_, r := newTestServer(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	req := StreamRequest{RunRequest: newRunRequest(), Every: 50}
	req.Frame.Generator.Bars = 300
	req.Params.SLPct = 0.02
	req.Params.TPPct = 0.05

	var bars []int
	summary, err := NewStreamClient(streamURL(srv), nil).Run(context.Background(), req, func(row RowView) error {
		bars = append(bars, row.Bar)
		return nil
	})
	require.NoError(t, err)

	require.NotEmpty(t, bars)
	assert.Equal(t, 0, bars[0])
	assert.Equal(t, 299, bars[len(bars)-1])
	assert.Contains(t, bars, 50)
	assert.Equal(t, 300, summary.Bars)
	require.NotNil(t, summary.Performance)

	// Streamed runs share their ID with the persisted run.
	w := do(t, r, http.MethodPost, "/api/v1/runs", runBody)
	require.Equal(t, http.StatusCreated, w.Code)
	run := decode[RunView](t, w)
	assert.Equal(t, run.RunID, summary.RunID)
	assert.Len(t, summary.Trades, run.TradeCount)
	assert.Equal(t, run.Performance.TotalReturn, summary.Performance.TotalReturn)
}

func TestStream_BadRequest(t *testing.T) {
	_, r := newTestServer(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	req := StreamRequest{RunRequest: newRunRequest()}
	req.Params.FeePct = -1
	_, err := NewStreamClient(streamURL(srv), nil).Run(context.Background(), req, nil)
	require.ErrorIs(t, err, ErrStreamFailed)
	assert.Contains(t, err.Error(), "fee_pct")
}

func TestStream_RawProtocol(t *testing.T) {
	_, r := newTestServer(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"frame":`)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Error, "bad request")
}

func TestStream_ClientAbort(t *testing.T) {
	_, r := newTestServer(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	stop := errors.New("stop")
	req := StreamRequest{RunRequest: newRunRequest()}
	seen := 0
	_, err := NewStreamClient(streamURL(srv), nil).Run(context.Background(), req, func(RowView) error {
		seen++
		if seen == 5 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 5, seen)
}
