// Package simulation runs Monte Carlo efficient-portfolio searches over
// provider price histories.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/frontier/internal/common"
	"github.com/bobmcallan/frontier/internal/interfaces"
	"github.com/bobmcallan/frontier/internal/models"
	"github.com/bobmcallan/frontier/internal/optimizer"
)

// ErrNoTickers is returned when a request names no usable tickers
var ErrNoTickers = fmt.Errorf("%w: no tickers provided or invalid format", optimizer.ErrInvalidInput)

// TickerError ties a fetch failure to the ticker that caused it
type TickerError struct {
	Ticker string
	Err    error
}

func (e *TickerError) Error() string {
	return fmt.Sprintf("ticker %s: %v", e.Ticker, e.Err)
}

func (e *TickerError) Unwrap() error {
	return e.Err
}

// cachedHistory is a fetched history and when it was fetched
type cachedHistory struct {
	history   *models.PriceHistory
	fetchedAt time.Time
}

// Service implements interfaces.SimulationService
type Service struct {
	client         interfaces.PriceClient
	cfg            common.SimulationConfig
	maxConcurrency int
	cacheTTL       time.Duration
	fetchTimeout   time.Duration
	logger         *common.Logger
	now            func() time.Time // injectable clock for testing

	fetches singleflight.Group
	mu      sync.RWMutex
	cache   map[string]cachedHistory
}

var _ interfaces.SimulationService = (*Service)(nil)

// NewService creates a simulation service over a price provider
func NewService(client interfaces.PriceClient, cfg common.SimulationConfig, clients common.ClientsConfig, logger *common.Logger) *Service {
	concurrency := clients.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		client:         client,
		cfg:            cfg,
		maxConcurrency: concurrency,
		cacheTTL:       clients.GetCacheTTL(),
		fetchTimeout:   providerTimeout(clients),
		logger:         logger,
		now:            time.Now,
		cache:          make(map[string]cachedHistory),
	}
}

// providerTimeout bounds a shared fetch, which no single caller's context owns.
func providerTimeout(clients common.ClientsConfig) time.Duration {
	if clients.Provider == "eodhd" {
		return clients.EODHD.GetTimeout()
	}
	return clients.Yahoo.GetTimeout()
}

// run holds everything one simulation produced
type run struct {
	id       string
	tickers  []string
	period   string
	estimate *optimizer.Estimate
	result   *optimizer.Result
	elapsed  time.Duration
}

// Simulate implements interfaces.SimulationService
func (s *Service) Simulate(ctx context.Context, req models.SimulationRequest) (*models.SimulationResponse, error) {
	r, err := s.simulate(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return r.response(), nil
}

// SimulateChart implements interfaces.SimulationService
func (s *Service) SimulateChart(ctx context.Context, req models.SimulationRequest) ([]byte, error) {
	r, err := s.simulate(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return RenderFrontierChart(r.result, s.cfg.MaxChartPoints)
}

// GetStockHistory implements interfaces.SimulationService. A provider with no
// bars yields an empty price list rather than an error.
func (s *Service) GetStockHistory(ctx context.Context, ticker string, start time.Time) (*models.PriceHistory, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrNoTickers
	}
	if start.IsZero() {
		start = s.now()
	}
	from := start.AddDate(-1, 0, 0)

	history, err := s.fetch(ctx, ticker, from, s.now())
	if errors.Is(err, interfaces.ErrNoData) {
		return &models.PriceHistory{Ticker: ticker, Prices: []models.PriceBar{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

// GetStockChart implements interfaces.SimulationService
func (s *Service) GetStockChart(ctx context.Context, ticker string, period string) ([]byte, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrNoTickers
	}
	if period == "" {
		period = s.cfg.DefaultPeriod
	}
	from, to, err := PeriodRange(period, s.now())
	if err != nil {
		return nil, err
	}

	history, err := s.fetch(ctx, ticker, from, to)
	if err != nil {
		return nil, &TickerError{Ticker: ticker, Err: err}
	}
	return RenderHistoryChart(history, period)
}

func (s *Service) simulate(ctx context.Context, req models.SimulationRequest, keepTrials bool) (*run, error) {
	tickers := NormalizeTickers(req.Tickers)
	if len(tickers) == 0 {
		return nil, ErrNoTickers
	}
	if s.cfg.MaxTickers > 0 && len(tickers) > s.cfg.MaxTickers {
		return nil, fmt.Errorf("%w: %d tickers exceeds limit of %d", optimizer.ErrInvalidInput, len(tickers), s.cfg.MaxTickers)
	}

	samples := req.NumPortfolios
	if samples == 0 {
		samples = s.cfg.DefaultPortfolios
	}
	if samples < 0 {
		return nil, fmt.Errorf("%w: got %d", optimizer.ErrInvalidSampleCount, samples)
	}
	if s.cfg.MaxPortfolios > 0 && samples > s.cfg.MaxPortfolios {
		return nil, fmt.Errorf("%w: num_portfolios %d exceeds limit of %d", optimizer.ErrInvalidInput, samples, s.cfg.MaxPortfolios)
	}

	schemeName := req.Scheme
	if schemeName == "" {
		schemeName = s.cfg.Scheme
	}
	scheme, err := optimizer.ParseScheme(schemeName)
	if err != nil {
		return nil, err
	}

	period := req.Period
	if period == "" {
		period = s.cfg.DefaultPeriod
	}
	from, to, err := PeriodRange(period, s.now())
	if err != nil {
		return nil, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = s.cfg.GetWorkers()
	}
	if limit := s.cfg.GetMaxWorkers(); workers > limit {
		return nil, fmt.Errorf("%w: workers %d exceeds limit of %d", optimizer.ErrInvalidInput, workers, limit)
	}
	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	id := uuid.New().String()
	start := time.Now()

	histories, err := s.fetchAll(ctx, tickers, from, to)
	if err != nil {
		return nil, err
	}
	fetched := time.Since(start)

	series := make([]optimizer.Series, len(tickers))
	for i, h := range histories {
		series[i] = optimizer.Series{Asset: tickers[i], Prices: h.Closes()}
	}

	est, err := optimizer.NewEstimate(series)
	if err != nil {
		return nil, err
	}
	if est.TotalAnomalies() > 0 {
		s.logger.Warn().Str("id", id).Int("anomalies", est.TotalAnomalies()).
			Msg("Non-positive prices in history, affected returns set to 0")
	}

	result, err := optimizer.Sample(ctx, est, optimizer.SampleOptions{
		Samples:    samples,
		Seed:       seed,
		Workers:    workers,
		Scheme:     scheme,
		KeepTrials: keepTrials,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.logger.Info().
		Str("id", id).
		Strs("tickers", tickers).
		Str("period", period).
		Int("portfolios", samples).
		Int("workers", result.Workers).
		Uint64("seed", seed).
		Int("observations", est.Observations()).
		Dur("fetch", fetched).
		Dur("elapsed", elapsed).
		Msg("Simulation complete")

	return &run{
		id:       id,
		tickers:  tickers,
		period:   period,
		estimate: est,
		result:   result,
		elapsed:  elapsed,
	}, nil
}

// fetchAll retrieves histories for all tickers in order, bounded by
// maxConcurrency. The first failure cancels the rest.
func (s *Service) fetchAll(ctx context.Context, tickers []string, from, to time.Time) ([]*models.PriceHistory, error) {
	out := make([]*models.PriceHistory, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			h, err := s.fetch(gctx, ticker, from, to)
			if err != nil {
				return &TickerError{Ticker: ticker, Err: err}
			}
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch returns a cached history when fresh, otherwise fetches it once no
// matter how many callers ask concurrently. The shared request runs detached
// from the caller that started it, bounded by the provider timeout, so one
// caller going away does not fail the others. Each caller still returns as
// soon as its own ctx is done. Returned histories are shared and must not be
// modified.
func (s *Service) fetch(ctx context.Context, ticker string, from, to time.Time) (*models.PriceHistory, error) {
	key := ticker + "|" + from.Format("2006-01-02") + "|" + to.Format("2006-01-02")

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && common.IsFreshAt(entry.fetchedAt, s.now(), s.cacheTTL) {
		return entry.history, nil
	}

	flight := s.fetches.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		h, err := s.client.GetHistory(fctx, ticker, from, to)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = cachedHistory{history: h, fetchedAt: s.now()}
		s.mu.Unlock()
		return h, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			s.logger.Warn().Str("ticker", ticker).Str("provider", s.client.Name()).Err(res.Err).Msg("Price history fetch failed")
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug().Str("ticker", ticker).Msg("Price history fetch shared")
		}
		return res.Val.(*models.PriceHistory), nil
	}
}

// NormalizeTickers trims and upper-cases tickers, dropping blanks and
// duplicates while keeping first-seen order.
func NormalizeTickers(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (r *run) response() *models.SimulationResponse {
	resp := NewResponse(r.estimate, r.result)
	resp.ID = r.id
	resp.Tickers = r.tickers
	resp.Period = r.period
	resp.ElapsedMS = r.elapsed.Milliseconds()
	return resp
}

// NewResponse builds the API response shape from an estimate and its sample
// result. Callers fill in request metadata (id, period, timing).
func NewResponse(est *optimizer.Estimate, result *optimizer.Result) *models.SimulationResponse {
	quality := models.DataQuality{Observations: est.Observations()}
	if anomalies := est.Anomalies(); len(anomalies) > 0 {
		quality.NonPositivePrices = anomalies
	}
	return &models.SimulationResponse{
		NumPortfolios:      result.Samples,
		Tickers:            result.Assets,
		MinVolPortfolio:    summary(result.MinVolatility),
		MaxSharpePortfolio: summary(result.MaxRatio),
		DataQuality:        quality,
		Seed:               result.Seed,
		Workers:            result.Workers,
		Scheme:             string(result.Scheme),
	}
}

func summary(p optimizer.Portfolio) models.PortfolioSummary {
	return models.PortfolioSummary{
		Weights:    p.Weights,
		Return:     p.Return,
		Volatility: p.Volatility,
		Sharpe:     p.Ratio,
		Trial:      p.Trial,
	}
}
