package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/frontier/internal/models"
)

// percent renders a fraction as a percentage with two decimals, e.g. 0.1234 -> "12.34%".
// decimal avoids binary artefacts like 12.339999% in printed weights.
func percent(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

// ratio renders a dimensionless ratio with three decimals
func ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(3)
}

// writeSummary prints both selected portfolios as aligned tables. Weights
// follow the ticker order of the response.
func writeSummary(w io.Writer, resp *models.SimulationResponse) error {
	fmt.Fprintf(w, "Portfolios sampled: %s  (seed %d, workers %d, scheme %s)\n",
		humanize.Comma(int64(resp.NumPortfolios)), resp.Seed, resp.Workers, resp.Scheme)
	fmt.Fprintf(w, "Observations:       %s daily returns\n", humanize.Comma(int64(resp.DataQuality.Observations)))
	if resp.ElapsedMS > 0 {
		fmt.Fprintf(w, "Elapsed:            %s\n", time.Duration(resp.ElapsedMS)*time.Millisecond)
	}
	if resp.DataQuality.HasAnomalies() {
		names := make([]string, 0, len(resp.DataQuality.NonPositivePrices))
		for t, n := range resp.DataQuality.NonPositivePrices {
			names = append(names, fmt.Sprintf("%s=%d", t, n))
		}
		slices.Sort(names)
		fmt.Fprintf(w, "Non-positive prices: %s (returns set to 0)\n", strings.Join(names, ", "))
	}

	for _, section := range []struct {
		title string
		p     models.PortfolioSummary
	}{
		{"Minimum volatility", resp.MinVolPortfolio},
		{"Maximum Sharpe ratio", resp.MaxSharpePortfolio},
	} {
		fmt.Fprintf(w, "\n%s (trial %d)\n", section.title, section.p.Trial)
		fmt.Fprintf(w, "  Return %s  Volatility %s  Sharpe %s\n",
			percent(section.p.Return), percent(section.p.Volatility), ratio(section.p.Sharpe))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, ticker := range resp.Tickers {
			fmt.Fprintf(tw, "  %s\t%s\t\n", ticker, percent(section.p.Weights[ticker]))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// writeHistory prints a price history as date/close rows
func writeHistory(w io.Writer, h *models.PriceHistory) error {
	fmt.Fprintf(w, "%s: %d closes\n", h.Ticker, h.Len())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tClose")
	for _, bar := range h.Prices {
		fmt.Fprintf(tw, "%s\t%s\n", bar.Date.Format("2006-01-02"), decimal.NewFromFloat(bar.Close).StringFixed(2))
	}
	return tw.Flush()
}
