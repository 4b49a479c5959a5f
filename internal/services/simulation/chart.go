package simulation

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	charts "github.com/vicanso/go-charts/v2"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/frontier/internal/models"
	"github.com/bobmcallan/frontier/internal/optimizer"
)

// RenderFrontierChart renders the sampled trials as a PNG scatter of
// volatility (x) against return (y), with the minimum-volatility and
// maximum-Sharpe portfolios highlighted. At most maxPoints trials are drawn.
// A single trial is drawn as one point; paddedRange keeps the axes non-empty.
func RenderFrontierChart(result *optimizer.Result, maxPoints int) ([]byte, error) {
	if result == nil || len(result.Trials) == 0 {
		return nil, fmt.Errorf("%w: no trials to chart", optimizer.ErrInvalidInput)
	}

	trials := downsample(result.Trials, maxPoints)
	xs := make([]float64, len(trials))
	ys := make([]float64, len(trials))
	for i, t := range trials {
		xs[i] = t.Volatility
		ys[i] = t.Return
	}

	cloud := chart.ContinuousSeries{
		Name: "Portfolios",
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    1.5,
			DotColor:    drawing.ColorFromHex("9ca3af").WithAlpha(160), // gray-400
		},
		XValues: xs,
		YValues: ys,
	}

	minVol := chart.ContinuousSeries{
		Name: "Min Volatility",
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    6,
			DotColor:    drawing.ColorFromHex("2563eb"), // blue-600
		},
		XValues: []float64{result.MinVolatility.Volatility},
		YValues: []float64{result.MinVolatility.Return},
	}

	maxSharpe := chart.ContinuousSeries{
		Name: "Max Sharpe",
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    6,
			DotColor:    drawing.ColorFromHex("dc2626"), // red-600
		},
		XValues: []float64{result.MaxRatio.Volatility},
		YValues: []float64{result.MaxRatio.Return},
	}

	percent := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.1f%%", f*100)
		}
		return ""
	}

	graph := chart.Chart{
		Title:  "Efficient Frontier (" + strings.Join(result.Assets, ", ") + ")",
		Width:  900,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:           "Volatility",
			Range:          paddedRange(xs),
			ValueFormatter: percent,
		},
		YAxis: chart.YAxis{
			Name:           "Return",
			Range:          paddedRange(ys),
			ValueFormatter: percent,
		},
		Series: []chart.Series{cloud, minVol, maxSharpe},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

// downsample keeps every k-th trial so at most maxPoints remain. maxPoints <= 0
// keeps everything.
func downsample(trials []optimizer.Trial, maxPoints int) []optimizer.Trial {
	if maxPoints <= 0 || len(trials) <= maxPoints {
		return trials
	}
	stride := (len(trials) + maxPoints - 1) / maxPoints
	out := make([]optimizer.Trial, 0, maxPoints)
	for i := 0; i < len(trials); i += stride {
		out = append(out, trials[i])
	}
	return out
}

// paddedRange spans vals with 5% headroom. go-chart refuses a zero-width range,
// which a single-asset universe would otherwise produce.
func paddedRange(vals []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.05, 0.01)
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// RenderHistoryChart renders a PNG line chart of closing prices
func RenderHistoryChart(history *models.PriceHistory, period string) ([]byte, error) {
	if history == nil || history.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 prices to chart")
	}

	closes := history.Closes()
	labels := make([]string, len(closes))
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i, bar := range history.Prices {
		labels[i] = bar.Date.Format("2006-01-02")
		yMin = math.Min(yMin, bar.Close)
		yMax = math.Max(yMax, bar.Close)
	}
	pad := math.Max((yMax-yMin)*0.05, yMax*0.002)
	yMin = math.Max(yMin-pad, 0)
	yMax += pad

	split := 12
	if len(closes) < 130 { // roughly six months of sessions
		split = 10
	}

	painter, err := charts.LineRender([][]float64{closes},
		charts.TitleTextOptionFunc(history.Ticker+" • "+strings.ToUpper(period)),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: split}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return painter.Bytes()
}
