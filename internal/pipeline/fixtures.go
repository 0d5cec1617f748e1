package pipeline

import (
	"context"
	"fmt"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// LoadFixtures populates barStore with the synthetic series described by cfg
// and returns the generated bars.
func LoadFixtures(ctx context.Context, barStore storage.BarStore, cfg GeneratorConfig) ([]domain.OHLCV, error) {
	bars, err := GenerateBars(cfg)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	ptrs := make([]*domain.OHLCV, len(bars))
	for i := range bars {
		ptrs[i] = &bars[i]
	}
	if err := barStore.InsertBulk(ctx, ptrs); err != nil {
		return nil, fmt.Errorf("insert %d fixture bars: %w", len(bars), err)
	}
	return bars, nil
}
