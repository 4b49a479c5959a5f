package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/frontier/internal/app"
)

type historyCmd struct {
	ticker string
	start  string
	asJSON bool
	chart  string
	period string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print daily closes for one ticker" }
func (*historyCmd) Usage() string {
	return `history -ticker AAPL [-start 2024-01-02] [-json] [-chart out.png -period 1y]:
  Print closes from one year before -start (default today) up to today.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "ticker", "", "ticker symbol")
	f.StringVar(&c.start, "start", "", "reference date, YYYY-MM-DD")
	f.BoolVar(&c.asJSON, "json", false, "print the history as JSON")
	f.StringVar(&c.chart, "chart", "", "write a PNG line chart to this path instead of printing")
	f.StringVar(&c.period, "period", "", "chart lookback period, e.g. 6mo, 1y")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.ticker == "" {
		fmt.Fprintln(os.Stderr, "history: -ticker is required")
		return subcommands.ExitUsageError
	}

	var start time.Time
	if c.start != "" {
		t, err := time.Parse("2006-01-02", c.start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "history: invalid -start %q, want YYYY-MM-DD\n", c.start)
			return subcommands.ExitUsageError
		}
		start = t
	}

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.chart != "" {
		png, err := a.SimulationService.GetStockChart(ctx, c.ticker, c.period)
		if err == nil {
			err = os.WriteFile(c.chart, png, 0o644)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "history: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	h, err := a.SimulationService.GetStockHistory(ctx, c.ticker, start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(h)
	} else {
		err = writeHistory(os.Stdout, h)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
