package models

// SimulationRequest is the body accepted by the simulate endpoints.
// Zero values mean "use the configured default".
type SimulationRequest struct {
	Tickers       []string `json:"tickers"`
	Period        string   `json:"period,omitempty"`
	NumPortfolios int      `json:"num_portfolios,omitempty"`
	Seed          uint64   `json:"seed,omitempty"`
	Workers       int      `json:"workers,omitempty"`
	Scheme        string   `json:"scheme,omitempty"`
}

// PortfolioSummary describes one selected allocation. Weights are keyed by ticker.
type PortfolioSummary struct {
	Weights    map[string]float64 `json:"weights"`
	Return     float64            `json:"return"`
	Volatility float64            `json:"volatility"`
	Sharpe     float64            `json:"sharpe"`
	Trial      int                `json:"trial"`
}

// DataQuality reports input problems that were tolerated rather than rejected
type DataQuality struct {
	NonPositivePrices map[string]int `json:"non_positive_prices,omitempty"`
	Observations      int            `json:"observations"`
}

// HasAnomalies reports whether any price was skipped as non-positive
func (d *DataQuality) HasAnomalies() bool {
	return len(d.NonPositivePrices) > 0
}

// SimulationResponse is the JSON result of a simulation. The camel-cased keys
// match the response shape existing front ends already consume.
type SimulationResponse struct {
	ID                 string           `json:"id"`
	NumPortfolios      int              `json:"numPortfolios"`
	Tickers            []string         `json:"tickers"`
	Period             string           `json:"period"`
	MinVolPortfolio    PortfolioSummary `json:"MinVolPortfolio"`
	MaxSharpePortfolio PortfolioSummary `json:"MaxSharpePortfolio"`
	DataQuality        DataQuality      `json:"data_quality"`
	Seed               uint64           `json:"seed"`
	Workers            int              `json:"workers"`
	Scheme             string           `json:"scheme"`
	ElapsedMS          int64            `json:"elapsed_ms"`
}
