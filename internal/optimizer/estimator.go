// Package optimizer estimates annualized return statistics from price
// history and searches random allocations for efficient portfolios.
//
// Both stages are pure functions of their inputs. The estimator bundles the
// asset order, mean vector and covariance matrix into a single immutable
// Estimate so that index alignment between them cannot drift.
package optimizer

import (
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TradingDays is the number of trading days used to annualize daily
// statistics. Means are scaled linearly, not compounded.
const TradingDays = 252

// Series is the chronological (oldest first) closing price history of one asset.
type Series struct {
	Asset  string
	Prices []float64
}

// Estimate holds annualized return statistics for an ordered asset universe.
// Row i of every vector and matrix refers to Assets()[i].
type Estimate struct {
	assets       []string
	dailyMean    []float64
	mean         *mat.VecDense
	cov          *mat.SymDense
	observations int
	anomalies    []int
}

// DailyReturns converts a price series into simple daily returns. The result
// has len(prices)-1 entries. A return that follows a non-positive price is
// defined as 0; the number of such substitutions is returned as anomalies.
func DailyReturns(prices []float64) (returns []float64, anomalies int) {
	if len(prices) < 2 {
		return []float64{}, 0
	}
	returns = make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			anomalies++
			continue
		}
		returns[i-1] = (prices[i] - prev) / prev
	}
	return returns, anomalies
}

// NewEstimateFromMap runs NewEstimate over a ticker-keyed map. Keys are sorted so the
// resulting asset order is deterministic.
func NewEstimateFromMap(prices map[string][]float64) (*Estimate, error) {
	series := make([]Series, 0, len(prices))
	for _, asset := range slices.Sorted(maps.Keys(prices)) {
		series = append(series, Series{Asset: asset, Prices: prices[asset]})
	}
	return NewEstimate(series)
}

// NewEstimate computes the annualized mean vector and sample covariance matrix
// for the given assets. The order of series fixes the asset universe order.
//
// Return series of unequal length are right-aligned: only the most recent
// minLength returns of each asset are used.
func NewEstimate(series []Series) (*Estimate, error) {
	if len(series) == 0 {
		return nil, ErrEmptyUniverse
	}

	n := len(series)
	assets := make([]string, n)
	seen := make(map[string]struct{}, n)
	returns := make([][]float64, n)
	anomalies := make([]int, n)
	minLength := -1

	for i, s := range series {
		if s.Asset == "" {
			return nil, fmt.Errorf("%w: asset %d has an empty identifier", ErrInvalidInput, i)
		}
		if _, dup := seen[s.Asset]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %q", ErrInvalidInput, s.Asset)
		}
		seen[s.Asset] = struct{}{}
		assets[i] = s.Asset

		returns[i], anomalies[i] = DailyReturns(s.Prices)
		if minLength < 0 || len(returns[i]) < minLength {
			minLength = len(returns[i])
		}
	}

	if minLength < 2 {
		return nil, fmt.Errorf("%w: %d aligned daily returns, need at least 2", ErrInsufficientHistory, minLength)
	}

	// Keep the tail of each series.
	columns := make([][]float64, n)
	for i, r := range returns {
		columns[i] = r[len(r)-minLength:]
	}

	dailyMean := make([]float64, n)
	annualMean := make([]float64, n)
	for i, col := range columns {
		dailyMean[i] = stat.Mean(col, nil)
		annualMean[i] = dailyMean[i] * TradingDays
	}

	// Sample (n-1) covariance over the upper triangle; SymDense mirrors it.
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(columns[i], columns[j], nil)*TradingDays)
		}
	}

	return &Estimate{
		assets:       assets,
		dailyMean:    dailyMean,
		mean:         mat.NewVecDense(n, annualMean),
		cov:          cov,
		observations: minLength,
		anomalies:    anomalies,
	}, nil
}

// Len returns the number of assets.
func (e *Estimate) Len() int { return len(e.assets) }

// Assets returns the asset universe in index order.
func (e *Estimate) Assets() []string { return slices.Clone(e.assets) }

// Mean returns the annualized expected return per asset.
func (e *Estimate) Mean() []float64 {
	out := make([]float64, e.mean.Len())
	for i := range out {
		out[i] = e.mean.AtVec(i)
	}
	return out
}

// DailyMean returns the per-asset arithmetic mean of aligned daily returns.
func (e *Estimate) DailyMean() []float64 { return slices.Clone(e.dailyMean) }

// Covariance returns a copy of the annualized covariance matrix.
func (e *Estimate) Covariance() *mat.SymDense {
	out := mat.NewSymDense(e.cov.SymmetricDim(), nil)
	out.CopySym(e.cov)
	return out
}

// CovarianceAt returns the annualized covariance between assets i and j.
func (e *Estimate) CovarianceAt(i, j int) float64 { return e.cov.At(i, j) }

// Observations returns the number of aligned daily returns used per asset.
func (e *Estimate) Observations() int { return e.observations }

// Anomalies returns, per asset, how many returns were substituted with 0
// because the preceding price was non-positive. Assets without anomalies are
// omitted.
func (e *Estimate) Anomalies() map[string]int {
	out := make(map[string]int)
	for i, count := range e.anomalies {
		if count > 0 {
			out[e.assets[i]] = count
		}
	}
	return out
}

// TotalAnomalies returns the sum of Anomalies.
func (e *Estimate) TotalAnomalies() int {
	total := 0
	for _, count := range e.anomalies {
		total += count
	}
	return total
}
