package domain

// Performance metric names.
const (
	MetricTotalReturn         = "total_return"
	MetricMaxDrawdown         = "max_drawdown"
	MetricMaxDrawdownDuration = "max_drawdown_duration"
	MetricSharpeRatio         = "sharpe_ratio"
	MetricSortinoRatio        = "sortino_ratio"
	MetricCalmarRatio         = "calmar_ratio"
	MetricSharpeRatioRaw      = "sharpe_ratio_raw"
	MetricSortinoRatioRaw     = "sortino_ratio_raw"
	MetricCalmarRatioRaw      = "calmar_ratio_raw"
	MetricTotalTrades         = "total_trades"
	MetricAvgDailyTrades      = "avg_daily_trades"
	MetricWinRate             = "win_rate"
	MetricProfitLossRatio     = "profit_loss_ratio"
	MetricAvgHoldingDuration  = "avg_holding_duration"
	MetricMaxHoldingDuration  = "max_holding_duration"
	MetricAvgEmptyDuration    = "avg_empty_duration"
	MetricMaxEmptyDuration    = "max_empty_duration"
	MetricMaxSafeLeverage     = "max_safe_leverage"
	MetricAnnualizationFactor = "annualization_factor"
	MetricHasLeadingNaNCount  = "has_leading_nan_count"
)

// Performance holds the summary statistics of one run.
// Durations are in bars.
type Performance struct {
	TotalReturn         float64 `json:"total_return"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration float64 `json:"max_drawdown_duration"`

	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	CalmarRatio     float64 `json:"calmar_ratio"`
	SharpeRatioRaw  float64 `json:"sharpe_ratio_raw"`
	SortinoRatioRaw float64 `json:"sortino_ratio_raw"`
	CalmarRatioRaw  float64 `json:"calmar_ratio_raw"`

	TotalTrades     int     `json:"total_trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	AvgDailyTrades  float64 `json:"avg_daily_trades"`
	WinRate         float64 `json:"win_rate"`
	ProfitLossRatio float64 `json:"profit_loss_ratio"`

	AvgHoldingDuration float64 `json:"avg_holding_duration"`
	MaxHoldingDuration float64 `json:"max_holding_duration"`
	AvgEmptyDuration   float64 `json:"avg_empty_duration"`
	MaxEmptyDuration   float64 `json:"max_empty_duration"`

	MaxSafeLeverage     float64 `json:"max_safe_leverage"`
	AnnualizationFactor float64 `json:"annualization_factor"`
	HasLeadingNaNCount  int     `json:"has_leading_nan_count"`
}

// AsMap returns the metrics keyed by metric name.
func (p Performance) AsMap() map[string]float64 {
	return map[string]float64{
		MetricTotalReturn:         p.TotalReturn,
		MetricMaxDrawdown:         p.MaxDrawdown,
		MetricMaxDrawdownDuration: p.MaxDrawdownDuration,
		MetricSharpeRatio:         p.SharpeRatio,
		MetricSortinoRatio:        p.SortinoRatio,
		MetricCalmarRatio:         p.CalmarRatio,
		MetricSharpeRatioRaw:      p.SharpeRatioRaw,
		MetricSortinoRatioRaw:     p.SortinoRatioRaw,
		MetricCalmarRatioRaw:      p.CalmarRatioRaw,
		MetricTotalTrades:         float64(p.TotalTrades),
		MetricAvgDailyTrades:      p.AvgDailyTrades,
		MetricWinRate:             p.WinRate,
		MetricProfitLossRatio:     p.ProfitLossRatio,
		MetricAvgHoldingDuration:  p.AvgHoldingDuration,
		MetricMaxHoldingDuration:  p.MaxHoldingDuration,
		MetricAvgEmptyDuration:    p.AvgEmptyDuration,
		MetricMaxEmptyDuration:    p.MaxEmptyDuration,
		MetricMaxSafeLeverage:     p.MaxSafeLeverage,
		MetricAnnualizationFactor: p.AnnualizationFactor,
		MetricHasLeadingNaNCount:  float64(p.HasLeadingNaNCount),
	}
}

// Metric returns a single metric by name.
func (p Performance) Metric(name string) (float64, bool) {
	v, ok := p.AsMap()[name]
	return v, ok
}

// MetricNames lists every metric in report order.
var MetricNames = []string{
	MetricTotalReturn,
	MetricMaxDrawdown,
	MetricMaxDrawdownDuration,
	MetricSharpeRatio,
	MetricSortinoRatio,
	MetricCalmarRatio,
	MetricSharpeRatioRaw,
	MetricSortinoRatioRaw,
	MetricCalmarRatioRaw,
	MetricTotalTrades,
	MetricAvgDailyTrades,
	MetricWinRate,
	MetricProfitLossRatio,
	MetricAvgHoldingDuration,
	MetricMaxHoldingDuration,
	MetricAvgEmptyDuration,
	MetricMaxEmptyDuration,
	MetricMaxSafeLeverage,
	MetricAnnualizationFactor,
	MetricHasLeadingNaNCount,
}

// LowerIsBetter reports whether smaller values of the metric rank higher.
func LowerIsBetter(metric string) bool {
	switch metric {
	case MetricMaxDrawdown, MetricMaxDrawdownDuration:
		return true
	}
	return false
}
