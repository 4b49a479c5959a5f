package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DefaultSamples is the conventional sample count for callers that do not
// specify one.
const DefaultSamples = 10000

// cancelCheckInterval is how many trials a worker runs between context checks.
const cancelCheckInterval = 1024

// Scheme selects how random weight vectors are drawn.
type Scheme string

const (
	// SchemeUniform draws independent U[0,1) values and normalizes them by
	// their sum. The resulting distribution over the simplex is not uniform.
	SchemeUniform Scheme = "uniform"

	// SchemeDirichlet draws independent Exp(1) values and normalizes them,
	// which is uniform over the simplex (Dirichlet(1,...,1)).
	SchemeDirichlet Scheme = "dirichlet"
)

// ParseScheme resolves a scheme name. An empty name selects SchemeUniform.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case "", SchemeUniform:
		return SchemeUniform, nil
	case SchemeDirichlet:
		return SchemeDirichlet, nil
	default:
		return "", fmt.Errorf("%w: unknown weight scheme %q", ErrInvalidInput, name)
	}
}

// SampleOptions configures a sampling run.
//
// Seeding contract: trials are split into Workers contiguous blocks of global
// trial indices, and worker k draws from its own PCG generator seeded with
// (Seed, k). Identical inputs, Seed and Workers give bit-identical results;
// changing Workers changes which weight vectors are drawn.
type SampleOptions struct {
	Samples    int
	Seed       uint64
	Workers    int
	Scheme     Scheme
	KeepTrials bool
}

// Trial is one evaluated random allocation.
type Trial struct {
	Index      int
	Weights    []float64
	Return     float64
	Volatility float64
	Ratio      float64
}

// Portfolio is a selected allocation keyed by asset identifier.
type Portfolio struct {
	Weights    map[string]float64
	Return     float64
	Volatility float64
	Ratio      float64
	Trial      int
}

// Result is the outcome of a sampling run.
type Result struct {
	Assets        []string
	Samples       int
	Seed          uint64
	Workers       int
	Scheme        Scheme
	MinVolatility Portfolio
	MaxRatio      Portfolio

	// Trials holds every evaluated allocation in trial order when
	// SampleOptions.KeepTrials is set.
	Trials []Trial
}

// Evaluate scores a weight vector against an estimate. Weights must be
// index-aligned with est.Assets().
func Evaluate(est *Estimate, weights []float64) (ret, vol, ratio float64) {
	w := mat.NewVecDense(len(weights), weights)
	ret = mat.Dot(w, est.mean)
	variance := mat.Inner(w, est.cov, w)
	if variance < 0 {
		// Round-off on a near-singular matrix.
		variance = 0
	}
	vol = math.Sqrt(variance)
	if vol > 0 {
		ratio = ret / vol
	}
	return ret, vol, ratio
}

// Sample evaluates opts.Samples random allocations and selects the
// minimum-volatility and maximum-ratio portfolios. Ties go to the lowest
// trial index.
func Sample(ctx context.Context, est *Estimate, opts SampleOptions) (*Result, error) {
	if est == nil || est.Len() == 0 {
		return nil, ErrEmptyUniverse
	}
	if opts.Samples <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleCount, opts.Samples)
	}
	scheme, err := ParseScheme(string(opts.Scheme))
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > opts.Samples {
		workers = opts.Samples
	}

	var trials []Trial
	if opts.KeepTrials {
		trials = make([]Trial, opts.Samples)
	}

	chunk := (opts.Samples + workers - 1) / workers
	// Rounding the chunk up can leave trailing workers with nothing to do.
	workers = (opts.Samples + chunk - 1) / chunk
	picks := make([]selection, workers)

	g, gctx := errgroup.WithContext(ctx)
	for k := 0; k < workers; k++ {
		start := k * chunk
		end := min(start+chunk, opts.Samples)
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(k)))
		g.Go(func() error {
			return runTrials(gctx, est, rng, scheme, start, end, &picks[k], trials)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var final selection
	for i := range picks {
		final.merge(&picks[i])
	}

	assets := est.Assets()
	return &Result{
		Assets:        assets,
		Samples:       opts.Samples,
		Seed:          opts.Seed,
		Workers:       workers,
		Scheme:        scheme,
		MinVolatility: final.minVol.portfolio(assets),
		MaxRatio:      final.maxRatio.portfolio(assets),
		Trials:        trials,
	}, nil
}

// runTrials evaluates trials [start, end) and folds them into sel.
func runTrials(ctx context.Context, est *Estimate, rng *rand.Rand, scheme Scheme, start, end int, sel *selection, trials []Trial) error {
	weights := make([]float64, est.Len())
	for i := start; i < end; i++ {
		if (i-start)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		drawWeights(rng, scheme, weights)
		ret, vol, ratio := Evaluate(est, weights)
		t := Trial{Index: i, Weights: weights, Return: ret, Volatility: vol, Ratio: ratio}

		if trials != nil {
			t.Weights = append([]float64(nil), weights...)
			trials[i] = t
		}
		sel.offer(t)
	}
	return nil
}

// drawWeights fills w with a random allocation summing to 1. An all-zero
// draw is redrawn.
func drawWeights(rng *rand.Rand, scheme Scheme, w []float64) {
	for {
		var sum float64
		for i := range w {
			if scheme == SchemeDirichlet {
				w[i] = rng.ExpFloat64()
			} else {
				w[i] = rng.Float64()
			}
			sum += w[i]
		}
		if sum > 0 {
			for i := range w {
				w[i] /= sum
			}
			return
		}
	}
}

// candidate is a selected trial. The weights slice is owned.
type candidate struct {
	Trial
	ok bool
}

func (c candidate) portfolio(assets []string) Portfolio {
	weights := make(map[string]float64, len(assets))
	for i, asset := range assets {
		weights[asset] = c.Weights[i]
	}
	return Portfolio{
		Weights:    weights,
		Return:     c.Return,
		Volatility: c.Volatility,
		Ratio:      c.Ratio,
		Trial:      c.Index,
	}
}

// selection folds trials under the total orders (volatility asc, index asc)
// and (ratio desc, index asc).
type selection struct {
	minVol   candidate
	maxRatio candidate
}

func lowerVolatility(a, b *Trial) bool {
	if a.Volatility != b.Volatility {
		return a.Volatility < b.Volatility
	}
	return a.Index < b.Index
}

func higherRatio(a, b *Trial) bool {
	if a.Ratio != b.Ratio {
		return a.Ratio > b.Ratio
	}
	return a.Index < b.Index
}

// offer considers t for both selections. t.Weights may be reused by the
// caller, so accepted weights are copied.
func (s *selection) offer(t Trial) {
	if !s.minVol.ok || lowerVolatility(&t, &s.minVol.Trial) {
		s.minVol = candidate{Trial: t, ok: true}
		s.minVol.Weights = append(s.minVol.Weights[:0:0], t.Weights...)
	}
	if !s.maxRatio.ok || higherRatio(&t, &s.maxRatio.Trial) {
		s.maxRatio = candidate{Trial: t, ok: true}
		s.maxRatio.Weights = append(s.maxRatio.Weights[:0:0], t.Weights...)
	}
}

// merge folds another worker's selection into s.
func (s *selection) merge(o *selection) {
	if o.minVol.ok && (!s.minVol.ok || lowerVolatility(&o.minVol.Trial, &s.minVol.Trial)) {
		s.minVol = o.minVol
	}
	if o.maxRatio.ok && (!s.maxRatio.ok || higherRatio(&o.maxRatio.Trial, &s.maxRatio.Trial)) {
		s.maxRatio = o.maxRatio
	}
}
