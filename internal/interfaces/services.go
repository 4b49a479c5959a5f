package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/frontier/internal/models"
)

// SimulationService runs Monte Carlo portfolio searches over provider data
type SimulationService interface {
	// Simulate fetches history for the requested tickers and reports the
	// minimum-volatility and maximum-Sharpe portfolios.
	Simulate(ctx context.Context, req models.SimulationRequest) (*models.SimulationResponse, error)

	// SimulateChart runs the same search and renders the trial cloud as PNG
	SimulateChart(ctx context.Context, req models.SimulationRequest) ([]byte, error)

	// GetStockHistory returns closes from one year before start (now when zero)
	// up to today.
	GetStockHistory(ctx context.Context, ticker string, start time.Time) (*models.PriceHistory, error)

	// GetStockChart renders closes over a period as a PNG line chart
	GetStockChart(ctx context.Context, ticker string, period string) ([]byte, error)
}
