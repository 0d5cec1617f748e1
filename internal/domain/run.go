package domain

import "time"

// RunRecord is the persisted summary of one completed backtest run.
type RunRecord struct {
	RunID       string // deterministic hash of frame fingerprint + params
	Symbol      string
	Timeframe   string
	JobID       string // sweep job, empty for single runs
	Params      Params
	BarCount    int
	TradeCount  int
	FirstBarMs  int64
	LastBarMs   int64
	Performance Performance
	CreatedAt   time.Time
}

// StoredTrade is a Trade attributed to a run.
type StoredTrade struct {
	RunID string
	Seq   int // order of the trade within the run
	Trade
}

// OHLCV is one persisted input bar.
type OHLCV struct {
	Symbol    string
	Timeframe string
	TimeMs    int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
