package density

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Source supplies the reference vectors of a collection and answers batch
// nearest-neighbour queries against them.
type Source interface {
	// Name identifies the collection in log messages.
	Name() string
	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)
	// Embeddings lists every stored vector, in a stable order.
	Embeddings(ctx context.Context) ([][]float32, error)
	// NearestDistances returns k ascending distances per query. A query that
	// is stored in the collection is its own first neighbour at distance 0.
	NearestDistances(ctx context.Context, queries [][]float32, k int) ([][]float64, error)
}

// Estimator holds a fitted cumulative histogram of mean neighbour distances.
type Estimator struct {
	cumulative   []float64
	edges        []float64
	neighborhood int
	logger       *slog.Logger
}

// New fits an Estimator over every vector of src. Each vector's own entry is
// dropped from its neighbour list, so src must hold more vectors than the
// neighbourhood; otherwise New returns an *InsufficientDataError without
// querying neighbours.
func New(ctx context.Context, src Source, opts ...Option) (*Estimator, error) {
	o := newOptions(opts)
	if o.neighborhood < 1 {
		return nil, fmt.Errorf("%w: neighborhood must be positive, got %d", ErrConfiguration, o.neighborhood)
	}
	if o.bins < 1 {
		return nil, fmt.Errorf("%w: bins must be positive, got %d", ErrConfiguration, o.bins)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: source is nil", ErrConfiguration)
	}
	name := src.Name()
	o.logger.InfoContext(ctx, fmt.Sprintf("creating density estimator for collection %s, this may take some time", name),
		"collection", name,
		"neighborhood", o.neighborhood,
		"bins", o.bins,
	)

	count, err := src.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("density: counting collection %q: %w", name, err)
	}
	if count <= o.neighborhood {
		return nil, &InsufficientDataError{Count: count, Neighborhood: o.neighborhood}
	}
	embeddings, err := src.Embeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("density: listing collection %q: %w", name, err)
	}
	if len(embeddings) <= o.neighborhood {
		return nil, &InsufficientDataError{Count: len(embeddings), Neighborhood: o.neighborhood}
	}

	// One extra neighbour per row: the first is the vector itself.
	width := o.neighborhood + 1
	rows, err := src.NearestDistances(ctx, embeddings, width)
	if err != nil {
		return nil, fmt.Errorf("density: querying neighbors of collection %q: %w", name, err)
	}
	if len(rows) != len(embeddings) {
		return nil, &ShapeError{Row: -1, Reason: fmt.Sprintf("got %d neighbor rows for %d embeddings", len(rows), len(embeddings))}
	}
	means := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, &ShapeError{Row: i, Reason: fmt.Sprintf("want %d neighbor distances, got %d", width, len(row))}
		}
		means[i] = stat.Mean(row[1:], nil)
		if math.IsNaN(means[i]) || math.IsInf(means[i], 0) {
			return nil, &ShapeError{Row: i, Reason: "non-finite distance"}
		}
	}

	cumulative, edges, err := cumulativeHistogram(means, o.bins)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		cumulative:   cumulative,
		edges:        edges,
		neighborhood: o.neighborhood,
		logger:       o.logger,
	}, nil
}

// cumulativeHistogram bins values into n equal-width bins over their range,
// the last bin closed on the right, and returns the running sum of the
// per-bin densities count/(len(values)*width) with the n+1 bin edges.
// A zero-width range is widened by 0.5 on both sides. A range too narrow to
// hold n distinct bins at float64 precision is a configuration error.
func cumulativeHistogram(values []float64, n int) (cumulative, edges []float64, err error) {
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges = floats.Span(make([]float64, n+1), lo, hi)
	edges[n] = hi
	for i := 1; i <= n; i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, nil, fmt.Errorf("%w: mean distances span [%g, %g], too narrow for %d bins", ErrConfiguration, lo, hi, n)
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	dividers := append([]float64(nil), edges...)
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	total := float64(len(values))
	for i := range counts {
		counts[i] /= total * (edges[i+1] - edges[i])
	}
	return floats.CumSum(make([]float64, n), counts), edges, nil
}

// Evaluate scores each row of neighbour distances by the cumulative density
// of the bin holding the row's mean distance. Rows must be non-empty and of
// equal length. An empty batch yields an empty result. Rows shorter than the
// fitted neighbourhood are scored anyway, with one warning per call.
func (e *Estimator) Evaluate(rows [][]float64) ([]float64, error) {
	return e.EvaluateContext(context.Background(), rows)
}

// EvaluateContext is Evaluate with ctx passed to the logger.
func (e *Estimator) EvaluateContext(ctx context.Context, rows [][]float64) ([]float64, error) {
	scores := make([]float64, len(rows))
	if len(rows) == 0 {
		return scores, nil
	}
	width := len(rows[0])
	for i, row := range rows {
		switch {
		case len(row) == 0:
			return nil, &ShapeError{Row: i, Reason: "no distances"}
		case len(row) != width:
			return nil, &ShapeError{Row: i, Reason: fmt.Sprintf("has %d distances, row 0 has %d", len(row), width)}
		}
		for _, d := range row {
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return nil, &ShapeError{Row: i, Reason: "non-finite distance"}
			}
		}
	}
	if width < e.neighborhood {
		e.logger.WarnContext(ctx, fmt.Sprintf("the number of neighbors (%d) is less than the estimator neighborhood (%d), density results may be inaccurate", width, e.neighborhood),
			"neighbors", width,
			"neighborhood", e.neighborhood,
		)
	}
	for i, row := range rows {
		scores[i] = e.cumulative[e.bin(stat.Mean(row, nil))]
	}
	return scores, nil
}

// bin digitizes mean against the right-open bins (count of edges <= mean,
// minus one). Means outside the fitted range clamp to the first or last bin,
// so the maximum fitted mean lands in the last bin as it did when fitting.
func (e *Estimator) bin(mean float64) int {
	i := sort.Search(len(e.edges), func(j int) bool { return e.edges[j] > mean }) - 1
	if i < 0 {
		return 0
	}
	if last := len(e.cumulative) - 1; i > last {
		return last
	}
	return i
}

// Neighborhood returns the fitted neighbourhood size.
func (e *Estimator) Neighborhood() int { return e.neighborhood }

// Bins returns the number of histogram bins.
func (e *Estimator) Bins() int { return len(e.cumulative) }

// Cumulative returns a copy of the per-bin cumulative density values.
func (e *Estimator) Cumulative() []float64 { return append([]float64(nil), e.cumulative...) }

// BinEdges returns a copy of the Bins()+1 histogram edges.
func (e *Estimator) BinEdges() []float64 { return append([]float64(nil), e.edges...) }
