package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/frontier/internal/app"
	"github.com/bobmcallan/frontier/internal/common"
	"github.com/bobmcallan/frontier/internal/models"
	"github.com/bobmcallan/frontier/internal/optimizer"
	"github.com/bobmcallan/frontier/internal/services/simulation"
)

type simulateCmd struct {
	prices  string
	tickers string
	period  string
	samples int
	seed    uint64
	workers int
	scheme  string
	asJSON  bool
	chart   string
}

func (*simulateCmd) Name() string     { return "simulate" }
func (*simulateCmd) Synopsis() string { return "find the minimum-volatility and maximum-Sharpe portfolios" }
func (*simulateCmd) Usage() string {
	return `simulate [-prices file.json | -tickers AAPL,MSFT] [-n samples] [-seed n] [-chart out.png]:
  Sample random long-only portfolios and report the two extremes.
  -prices reads a JSON object of ticker -> closing prices (oldest first)
  and runs offline; otherwise -tickers are fetched from the configured provider.
`
}

func (c *simulateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.prices, "prices", "", "JSON file mapping ticker to closing prices, oldest first")
	f.StringVar(&c.tickers, "tickers", "", "comma-separated tickers to fetch from the provider")
	f.StringVar(&c.period, "period", "", "lookback period for fetched tickers, e.g. 6mo, 1y, 5y")
	f.IntVar(&c.samples, "n", optimizer.DefaultSamples, "number of random portfolios")
	f.Uint64Var(&c.seed, "seed", 0, "random seed (0 picks one and prints it)")
	f.IntVar(&c.workers, "workers", 0, "parallel samplers (0 = number of CPUs)")
	f.StringVar(&c.scheme, "scheme", string(optimizer.SchemeUniform), "weight scheme: uniform or dirichlet")
	f.BoolVar(&c.asJSON, "json", false, "print the result as JSON")
	f.StringVar(&c.chart, "chart", "", "write a PNG scatter of the sampled portfolios to this path")
}

func (c *simulateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.prices == "" && c.tickers == "" {
		fmt.Fprintln(os.Stderr, "simulate: one of -prices or -tickers is required")
		return subcommands.ExitUsageError
	}
	if c.seed == 0 {
		c.seed = rand.Uint64()
	}

	var (
		resp  *models.SimulationResponse
		chart []byte
		err   error
	)
	if c.prices != "" {
		resp, chart, err = c.runLocal(ctx)
	} else {
		resp, chart, err = c.runLive(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.chart != "" {
		if err := os.WriteFile(c.chart, chart, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "simulate: write chart: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	if err := c.write(os.Stdout, resp); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// localConfig reads the simulation settings a live run would use, so an
// offline run with the same seed and -workers 0 picks the same worker count.
// A missing or invalid file falls back to the defaults.
func localConfig() common.SimulationConfig {
	cfg, err := common.LoadConfig(app.ResolveConfigPath(*configPath))
	if err != nil {
		return common.NewDefaultConfig().Simulation
	}
	return cfg.Simulation
}

func (c *simulateCmd) options(sim common.SimulationConfig) optimizer.SampleOptions {
	workers := c.workers
	if workers <= 0 {
		workers = sim.GetWorkers()
	}
	return optimizer.SampleOptions{
		Samples:    c.samples,
		Seed:       c.seed,
		Workers:    workers,
		Scheme:     optimizer.Scheme(c.scheme),
		KeepTrials: c.chart != "",
	}
}

// runLocal estimates from a price file without touching the network
func (c *simulateCmd) runLocal(ctx context.Context) (*models.SimulationResponse, []byte, error) {
	prices, err := readPrices(c.prices)
	if err != nil {
		return nil, nil, err
	}
	est, err := optimizer.NewEstimateFromMap(prices)
	if err != nil {
		return nil, nil, err
	}

	sim := localConfig()
	start := time.Now()
	result, err := optimizer.Sample(ctx, est, c.options(sim))
	if err != nil {
		return nil, nil, err
	}
	resp := simulation.NewResponse(est, result)
	resp.ElapsedMS = time.Since(start).Milliseconds()

	var chart []byte
	if c.chart != "" {
		if chart, err = simulation.RenderFrontierChart(result, sim.MaxChartPoints); err != nil {
			return nil, nil, err
		}
	}
	return resp, chart, nil
}

// runLive fetches the tickers through the configured provider. The chart,
// when requested, reruns the same seeded search so both outputs agree.
func (c *simulateCmd) runLive(ctx context.Context) (*models.SimulationResponse, []byte, error) {
	a, err := app.NewApp(*configPath)
	if err != nil {
		return nil, nil, err
	}

	req := models.SimulationRequest{
		Tickers:       strings.Split(c.tickers, ","),
		Period:        c.period,
		NumPortfolios: c.samples,
		Seed:          c.seed,
		Workers:       c.workers,
		Scheme:        c.scheme,
	}
	resp, err := a.SimulationService.Simulate(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var chart []byte
	if c.chart != "" {
		if chart, err = a.SimulationService.SimulateChart(ctx, req); err != nil {
			return nil, nil, err
		}
	}
	return resp, chart, nil
}

func (c *simulateCmd) write(w io.Writer, resp *models.SimulationResponse) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return writeSummary(w, resp)
}

// readPrices loads a {"TICKER": [closes...]} document
func readPrices(path string) (map[string][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}
	var prices map[string][]float64
	if err := json.Unmarshal(data, &prices); err != nil {
		return nil, fmt.Errorf("parse prices %s: %w", path, err)
	}
	return prices, nil
}
