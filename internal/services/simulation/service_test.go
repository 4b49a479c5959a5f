package simulation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/frontier/internal/common"
	"github.com/bobmcallan/frontier/internal/interfaces"
	"github.com/bobmcallan/frontier/internal/models"
	"github.com/bobmcallan/frontier/internal/optimizer"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

// fakeClient serves canned closes per ticker
type fakeClient struct {
	mu     sync.Mutex
	prices map[string][]float64
	calls  map[string]int
	delay  time.Duration
	err    error
	from   time.Time
	to     time.Time
}

func newFakeClient(prices map[string][]float64) *fakeClient {
	return &fakeClient{prices: prices, calls: make(map[string]int)}
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) GetHistory(ctx context.Context, ticker string, from, to time.Time) (*models.PriceHistory, error) {
	f.mu.Lock()
	f.calls[ticker]++
	f.from, f.to = from, to
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	closes, ok := f.prices[ticker]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ticker, interfaces.ErrNoData)
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &models.PriceHistory{Ticker: ticker}
	for i, c := range closes {
		h.Prices = append(h.Prices, models.PriceBar{Date: day.AddDate(0, 0, i), Close: c})
	}
	return h, nil
}

func (f *fakeClient) callCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ticker]
}

var samplePrices = map[string][]float64{
	"AAA": {100, 101, 99, 102, 104, 103, 105, 107, 106, 108},
	"BBB": {50, 49, 51, 50, 52, 51, 50, 53, 54, 53},
	"CCC": {20, 20.2, 20.1, 20.4, 20.3, 20.6, 20.5, 20.8, 20.9, 21},
}

func newTestService(client interfaces.PriceClient) *Service {
	cfg := common.NewDefaultConfig()
	cfg.Simulation.DefaultPortfolios = 2000
	cfg.Simulation.MaxPortfolios = 10000
	cfg.Simulation.MaxTickers = 5
	cfg.Simulation.Workers = 2
	cfg.Simulation.MaxWorkers = 4
	svc := NewService(client, cfg.Simulation, cfg.Clients, common.NewSilentLogger())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestSimulate_ResponseShape(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	resp, err := svc.Simulate(context.Background(), models.SimulationRequest{
		Tickers: []string{"bbb", " AAA ", "BBB", "CCC"},
		Seed:    42,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, []string{"BBB", "AAA", "CCC"}, resp.Tickers, "request order, deduped")
	assert.Equal(t, 2000, resp.NumPortfolios)
	assert.Equal(t, "1y", resp.Period)
	assert.Equal(t, uint64(42), resp.Seed)
	assert.Equal(t, 2, resp.Workers)
	assert.Equal(t, "uniform", resp.Scheme)
	assert.Equal(t, 9, resp.DataQuality.Observations)
	assert.False(t, resp.DataQuality.HasAnomalies())

	for _, p := range []models.PortfolioSummary{resp.MinVolPortfolio, resp.MaxSharpePortfolio} {
		sum := 0.0
		for _, w := range p.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
		assert.Len(t, p.Weights, 3)
	}
	assert.LessOrEqual(t, resp.MinVolPortfolio.Volatility, resp.MaxSharpePortfolio.Volatility)
	assert.GreaterOrEqual(t, resp.MaxSharpePortfolio.Sharpe, resp.MinVolPortfolio.Sharpe)
}

func TestSimulate_SeededRunsMatch(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))
	req := models.SimulationRequest{Tickers: []string{"AAA", "BBB"}, Seed: 7, NumPortfolios: 3000, Workers: 3}

	first, err := svc.Simulate(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Simulate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.MinVolPortfolio, second.MinVolPortfolio)
	assert.Equal(t, first.MaxSharpePortfolio, second.MaxSharpePortfolio)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSimulate_ZeroSeedIsRandomised(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))
	resp, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: []string{"AAA"}, NumPortfolios: 10})
	require.NoError(t, err)
	assert.NotZero(t, resp.Seed)
}

func TestSimulate_NoTickers(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	for _, tickers := range [][]string{nil, {}, {"", "  "}} {
		_, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: tickers})
		assert.ErrorIs(t, err, ErrNoTickers)
		assert.ErrorIs(t, err, optimizer.ErrInvalidInput)
	}
}

func TestSimulate_UnknownTicker(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	_, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: []string{"AAA", "ZZZ"}})
	require.Error(t, err)

	var tickerErr *TickerError
	require.True(t, errors.As(err, &tickerErr))
	assert.Equal(t, "ZZZ", tickerErr.Ticker)
	assert.ErrorIs(t, err, interfaces.ErrNoData)
}

func TestSimulate_Limits(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))
	ctx := context.Background()

	_, err := svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"A", "B", "C", "D", "E", "F"}})
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput, "too many tickers")

	_, err = svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"AAA"}, NumPortfolios: 10001})
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput, "too many portfolios")

	_, err = svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"AAA"}, NumPortfolios: -5})
	assert.ErrorIs(t, err, optimizer.ErrInvalidSampleCount)

	_, err = svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"AAA"}, Period: "forever"})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"AAA"}, Scheme: "sobol"})
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput)
}

func TestSimulate_WorkerCeiling(t *testing.T) {
	client := newFakeClient(samplePrices)
	svc := newTestService(client)
	ctx := context.Background()

	resp, err := svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"AAA", "BBB"}, NumPortfolios: 10000, Workers: 1 << 30})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput)
	assert.Zero(t, client.callCount("AAA"), "rejected before any fetch")

	resp, err = svc.Simulate(ctx, models.SimulationRequest{Tickers: []string{"AAA", "BBB"}, NumPortfolios: 10000, Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Workers)
}

func TestSimulate_InsufficientHistory(t *testing.T) {
	svc := newTestService(newFakeClient(map[string][]float64{
		"NEW": {10, 11},
		"OLD": {5, 6, 7, 8},
	}))

	_, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: []string{"OLD", "NEW"}})
	assert.ErrorIs(t, err, optimizer.ErrInsufficientHistory)
}

func TestSimulate_ReportsAnomalies(t *testing.T) {
	svc := newTestService(newFakeClient(map[string][]float64{
		"BAD":  {10, 0, 5, 6, 7},
		"GOOD": {10, 11, 12, 11, 13},
	}))

	resp, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: []string{"BAD", "GOOD"}, Seed: 1})
	require.NoError(t, err)
	assert.True(t, resp.DataQuality.HasAnomalies())
	assert.Equal(t, map[string]int{"BAD": 1}, resp.DataQuality.NonPositivePrices)
}

func TestSimulate_PeriodSetsRange(t *testing.T) {
	client := newFakeClient(samplePrices)
	svc := newTestService(client)

	_, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: []string{"AAA"}, Period: "6mo", Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), client.from)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), client.to)
}

func TestFetch_CachesHistory(t *testing.T) {
	client := newFakeClient(samplePrices)
	svc := newTestService(client)
	req := models.SimulationRequest{Tickers: []string{"AAA", "BBB"}, Seed: 3, NumPortfolios: 10}

	for i := 0; i < 3; i++ {
		_, err := svc.Simulate(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, client.callCount("AAA"))
	assert.Equal(t, 1, client.callCount("BBB"))

	// Past the TTL the history is fetched again
	svc.cacheTTL = 0
	_, err := svc.Simulate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount("AAA"))
}

func TestFetch_ConcurrentCallersShareOneRequest(t *testing.T) {
	client := newFakeClient(samplePrices)
	client.delay = 50 * time.Millisecond
	svc := newTestService(client)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GetStockHistory(context.Background(), "AAA", time.Time{}); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, client.callCount("AAA"))
}

func TestFetch_CancelledLeaderDoesNotFailFollower(t *testing.T) {
	client := newFakeClient(samplePrices)
	client.delay = 100 * time.Millisecond
	svc := newTestService(client)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.GetStockHistory(leaderCtx, "AAA", time.Time{})
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return client.callCount("AAA") == 1 }, time.Second, time.Millisecond)

	followerDone := make(chan *models.PriceHistory, 1)
	go func() {
		h, err := svc.GetStockHistory(context.Background(), "AAA", time.Time{})
		assert.NoError(t, err)
		followerDone <- h
	}()
	cancelLeader()

	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	h := <-followerDone
	require.NotNil(t, h)
	assert.Equal(t, len(samplePrices["AAA"]), h.Len())
	assert.Equal(t, 1, client.callCount("AAA"))
}

func TestFetch_ProviderErrorPropagates(t *testing.T) {
	client := newFakeClient(samplePrices)
	client.err = errors.New("provider down")
	svc := newTestService(client)

	_, err := svc.Simulate(context.Background(), models.SimulationRequest{Tickers: []string{"AAA"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrNoData)
	assert.Contains(t, err.Error(), "provider down")
}

func TestGetStockHistory_OneYearBeforeStart(t *testing.T) {
	client := newFakeClient(samplePrices)
	svc := newTestService(client)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	h, err := svc.GetStockHistory(context.Background(), "aaa", start)
	require.NoError(t, err)

	assert.Equal(t, "AAA", h.Ticker)
	assert.Len(t, h.Prices, 10)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), client.from)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), client.to)
}

func TestGetStockHistory_UnknownTickerIsEmpty(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	h, err := svc.GetStockHistory(context.Background(), "ZZZ", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "ZZZ", h.Ticker)
	assert.NotNil(t, h.Prices)
	assert.Empty(t, h.Prices)
}

func TestGetStockChart_ReturnsPNG(t *testing.T) {
	client := newFakeClient(samplePrices)
	svc := newTestService(client)

	png, err := svc.GetStockChart(context.Background(), " aaa ", "6mo")
	require.NoError(t, err)
	require.Greater(t, len(png), 4)
	assert.Equal(t, pngMagic, png[:4])
	assert.Equal(t, time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), client.from)
}

func TestGetStockChart_Errors(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	_, err := svc.GetStockChart(context.Background(), "ZZZ", "1y")
	var te *TickerError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ZZZ", te.Ticker)
	assert.ErrorIs(t, err, interfaces.ErrNoData)

	_, err = svc.GetStockChart(context.Background(), "AAA", "forever")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.GetStockChart(context.Background(), "  ", "1y")
	assert.ErrorIs(t, err, ErrNoTickers)
}

func TestRenderHistoryChart_TooFewPrices(t *testing.T) {
	_, err := RenderHistoryChart(&models.PriceHistory{Ticker: "A", Prices: []models.PriceBar{{Close: 1}}}, "1y")
	assert.Error(t, err)
	_, err = RenderHistoryChart(nil, "1y")
	assert.Error(t, err)
}

func TestSimulateChart_ReturnsPNG(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	png, err := svc.SimulateChart(context.Background(), models.SimulationRequest{
		Tickers:       []string{"AAA", "BBB", "CCC"},
		NumPortfolios: 500,
		Seed:          9,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderFrontierChart_SingleAsset(t *testing.T) {
	est, err := optimizer.NewEstimate([]optimizer.Series{{Asset: "ONLY", Prices: []float64{10, 10.5, 10.2, 10.8}}})
	require.NoError(t, err)
	res, err := optimizer.Sample(context.Background(), est, optimizer.SampleOptions{Samples: 20, Seed: 1, KeepTrials: true})
	require.NoError(t, err)

	png, err := RenderFrontierChart(res, 100)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderFrontierChart_NoTrials(t *testing.T) {
	_, err := RenderFrontierChart(nil, 10)
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput)
	_, err = RenderFrontierChart(&optimizer.Result{}, 10)
	assert.ErrorIs(t, err, optimizer.ErrInvalidInput)
}

func TestSimulateChart_SinglePortfolio(t *testing.T) {
	svc := newTestService(newFakeClient(samplePrices))

	png, err := svc.SimulateChart(context.Background(), models.SimulationRequest{
		Tickers:       []string{"AAA", "BBB"},
		NumPortfolios: 1,
		Seed:          1,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestDownsample(t *testing.T) {
	trials := make([]optimizer.Trial, 10)
	for i := range trials {
		trials[i].Index = i
	}

	assert.Len(t, downsample(trials, 0), 10)
	assert.Len(t, downsample(trials, 20), 10)

	got := downsample(trials, 3)
	assert.LessOrEqual(t, len(got), 3)
	assert.Equal(t, 0, got[0].Index)
}

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{" msft", "AAPL", "", "msft", "aapl ", "GOOG"})
	assert.Equal(t, []string{"MSFT", "AAPL", "GOOG"}, got)
	assert.Empty(t, NormalizeTickers(nil))
}
