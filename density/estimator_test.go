package density

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySource answers neighbour queries by exact L2 scan.
type memorySource struct {
	vectors  [][]float32
	queried  int
	countErr error
	rows     [][]float64
}

func (m *memorySource) Name() string { return "memory" }

func (m *memorySource) Count(context.Context) (int, error) { return len(m.vectors), m.countErr }

func (m *memorySource) Embeddings(context.Context) ([][]float32, error) { return m.vectors, nil }

func (m *memorySource) NearestDistances(_ context.Context, queries [][]float32, k int) ([][]float64, error) {
	m.queried++
	if m.rows != nil {
		return m.rows, nil
	}
	out := make([][]float64, len(queries))
	for i, q := range queries {
		dists := make([]float64, len(m.vectors))
		for j, v := range m.vectors {
			var sum float64
			for n := range v {
				d := float64(q[n]) - float64(v[n])
				sum += d * d
			}
			dists[j] = math.Sqrt(sum)
		}
		sort.Float64s(dists)
		if k < len(dists) {
			dists = dists[:k]
		}
		out[i] = dists
	}
	return out, nil
}

func linePoints(n int) *memorySource {
	src := &memorySource{}
	for i := 0; i < n; i++ {
		src.vectors = append(src.vectors, []float32{float32(i)})
	}
	return src
}

type logRecord struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func captureLogger() (*slog.Logger, func() []logRecord) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewJSONHandler(&syncWriter{w: &buf, mu: &mu}, nil))
	return logger, func() []logRecord {
		mu.Lock()
		defer mu.Unlock()
		var records []logRecord
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if line == "" {
				continue
			}
			var r logRecord
			if err := json.Unmarshal([]byte(line), &r); err == nil {
				records = append(records, r)
			}
		}
		return records
	}
}

type syncWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func levels(records []logRecord, level string) []logRecord {
	var out []logRecord
	for _, r := range records {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

func TestNew_EvenlySpacedLine(t *testing.T) {
	logger, records := captureLogger()
	src := linePoints(12)
	est, err := New(context.Background(), src, WithNeighborhood(5), WithBins(4), WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, 5, est.Neighborhood())
	assert.Equal(t, 4, est.Bins())
	assert.InDeltaSlice(t, []float64{1.8, 2.1, 2.4, 2.7, 3.0}, est.BinEdges(), 1e-9)
	// Means: 1.8 for eight interior points, 2.2 for two, 3.0 for both ends.
	assert.InDeltaSlice(t, []float64{8 / 3.6, 10 / 3.6, 10 / 3.6, 12 / 3.6}, est.Cumulative(), 1e-9)

	cumulative := est.Cumulative()
	assert.Greater(t, cumulative[len(cumulative)-1], cumulative[0])
	assert.Equal(t, 1, src.queried)

	infos := levels(records(), "INFO")
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Msg, "memory")
}

func TestNew_InsufficientData(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		src := linePoints(n)
		_, err := New(context.Background(), src, WithNeighborhood(5), WithLogger(slog.New(slog.DiscardHandler)))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)

		var insufficient *InsufficientDataError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, n, insufficient.Count)
		assert.Equal(t, 5, insufficient.Neighborhood)
		assert.Contains(t, err.Error(), "5")
		assert.Zero(t, src.queried, "no neighbor query expected")
	}

	_, err := New(context.Background(), linePoints(6), WithNeighborhood(5), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
}

func TestNew_InvalidOptions(t *testing.T) {
	discard := WithLogger(slog.New(slog.DiscardHandler))
	_, err := New(context.Background(), linePoints(12), WithNeighborhood(0), discard)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = New(context.Background(), linePoints(12), WithBins(0), discard)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = New(context.Background(), nil, discard)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_Defaults(t *testing.T) {
	est, err := New(context.Background(), linePoints(30), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	assert.Equal(t, DefaultNeighborhood, est.Neighborhood())
	assert.Equal(t, DefaultBins, est.Bins())
	assert.Len(t, est.BinEdges(), DefaultBins+1)
}

func TestNew_SourceFailures(t *testing.T) {
	discard := WithLogger(slog.New(slog.DiscardHandler))

	src := linePoints(12)
	src.countErr = errors.New("boom")
	_, err := New(context.Background(), src, WithNeighborhood(3), discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	src = linePoints(12)
	src.rows = [][]float64{{0, 1}}
	_, err = New(context.Background(), src, WithNeighborhood(3), discard)
	assert.ErrorIs(t, err, ErrShape)

	src = linePoints(4)
	src.rows = [][]float64{{0, 1, 2}, {0, 1, 2}, {0, 1}, {0, 1, 2}}
	_, err = New(context.Background(), src, WithNeighborhood(2), discard)
	var shape *ShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, 2, shape.Row)
}

func TestNew_ConstantDistances(t *testing.T) {
	src := &memorySource{}
	for i := 0; i < 6; i++ {
		src.vectors = append(src.vectors, []float32{1, 1})
	}
	est, err := New(context.Background(), src, WithNeighborhood(2), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	edges := est.BinEdges()
	assert.InDelta(t, -0.5, edges[0], 1e-12)
	assert.InDelta(t, 0.5, edges[len(edges)-1], 1e-12)
	cumulative := est.Cumulative()
	assert.InDelta(t, 100, cumulative[len(cumulative)-1], 1e-6)

	scores, err := est.Evaluate([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 100, scores[0], 1e-6)
}

func TestNew_RangeTooNarrowForBins(t *testing.T) {
	next := math.Nextafter(1, 2)
	testCases := []struct {
		name string
		rows [][]float64
		bins int
	}{
		{name: "few ulps apart", rows: [][]float64{{0, 1}, {0, 1}, {0, next}, {0, next}}, bins: 100},
		{name: "constant beyond half-unit precision", rows: [][]float64{{0, 1e17}, {0, 1e17}, {0, 1e17}, {0, 1e17}}, bins: 4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := linePoints(4)
			src.rows = tc.rows
			est, err := New(context.Background(), src, WithNeighborhood(1), WithBins(tc.bins), WithLogger(slog.New(slog.DiscardHandler)))
			require.ErrorIs(t, err, ErrConfiguration)
			assert.Nil(t, est)
			assert.Contains(t, err.Error(), "too narrow")
		})
	}

	// The same near-constant distances fit once the bins are wide enough.
	src := linePoints(4)
	src.rows = [][]float64{{0, 1}, {0, 1}, {0, next}, {0, next}}
	est, err := New(context.Background(), src, WithNeighborhood(1), WithBins(1), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	for _, v := range est.Cumulative() {
		assert.False(t, math.IsNaN(v))
	}
	data, err := est.MarshalBinary()
	require.NoError(t, err)
	_, err = Decode(data)
	require.NoError(t, err)
}

func TestNew_RandomShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		k := 1 + rng.Intn(6)
		n := k + 1 + rng.Intn(40)
		bins := 1 + rng.Intn(30)
		src := &memorySource{}
		for i := 0; i < n; i++ {
			src.vectors = append(src.vectors, []float32{rng.Float32(), rng.Float32()})
		}
		est, err := New(context.Background(), src, WithNeighborhood(k), WithBins(bins), WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)
		require.Len(t, est.Cumulative(), bins)
		require.Len(t, est.BinEdges(), bins+1)

		cumulative := est.Cumulative()
		for i := 1; i < len(cumulative); i++ {
			assert.GreaterOrEqual(t, cumulative[i], cumulative[i-1])
		}
		edges := est.BinEdges()
		for i := 1; i < len(edges); i++ {
			assert.Greater(t, edges[i], edges[i-1])
		}
	}
}

func fitLine(t *testing.T, k, bins int, logger *slog.Logger) *Estimator {
	t.Helper()
	est, err := New(context.Background(), linePoints(12), WithNeighborhood(k), WithBins(bins), WithLogger(logger))
	require.NoError(t, err)
	return est
}

func TestEvaluate(t *testing.T) {
	logger, records := captureLogger()
	est := fitLine(t, 5, 4, logger)
	cumulative := est.Cumulative()

	testCases := []struct {
		name   string
		rows   [][]float64
		expect []float64
	}{
		{name: "below range clamps to first bin", rows: [][]float64{{0.1, 0.2, 0.15, 0.12, 0.18}}, expect: []float64{cumulative[0]}},
		{name: "lowest edge", rows: [][]float64{{1.8, 1.8, 1.8, 1.8, 1.8}}, expect: []float64{cumulative[0]}},
		{name: "second bin", rows: [][]float64{{2.2, 2.2, 2.2, 2.2, 2.2}}, expect: []float64{cumulative[1]}},
		{name: "highest edge maps to last bin", rows: [][]float64{{3, 3, 3, 3, 3}}, expect: []float64{cumulative[3]}},
		{name: "above range clamps to last bin", rows: [][]float64{{100, 100, 100, 100, 100}}, expect: []float64{cumulative[3]}},
		{
			name:   "order preserved",
			rows:   [][]float64{{3, 3, 3, 3, 3}, {0, 0, 0, 0, 0}, {2.5, 2.5, 2.5, 2.5, 2.5}},
			expect: []float64{cumulative[3], cumulative[0], cumulative[2]},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := est.Evaluate(tc.rows)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tc.expect, got, 1e-12)
		})
	}
	assert.Empty(t, levels(records(), "WARN"))
}

func TestEvaluate_ReducedNeighborhoodWarnsOnce(t *testing.T) {
	logger, records := captureLogger()
	est := fitLine(t, 10, 100, logger)

	scores, err := est.Evaluate([][]float64{{0.5, 0.7}})
	require.NoError(t, err)
	require.Len(t, scores, 1)

	warns := levels(records(), "WARN")
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Msg, "(2)")
	assert.Contains(t, warns[0].Msg, "(10)")

	scores, err = est.Evaluate([][]float64{{0.5, 0.7}, {1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Len(t, scores, 3)
	assert.Len(t, levels(records(), "WARN"), 2)
}

type requestKey struct{}

// contextHandler records the request value carried by each logged context.
type contextHandler struct {
	slog.Handler
	mu   sync.Mutex
	seen []any
}

func (h *contextHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	h.seen = append(h.seen, ctx.Value(requestKey{}))
	h.mu.Unlock()
	return h.Handler.Handle(ctx, r)
}

func TestEvaluateContext_LogsWithCallerContext(t *testing.T) {
	handler := &contextHandler{Handler: slog.DiscardHandler}
	ctx := context.WithValue(context.Background(), requestKey{}, "req-7")
	est, err := New(ctx, linePoints(12), WithNeighborhood(5), WithBins(4), WithLogger(slog.New(handler)))
	require.NoError(t, err)

	scores, err := est.EvaluateContext(ctx, [][]float64{{1, 2}})
	require.NoError(t, err)
	require.Len(t, scores, 1)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.seen, 2)
	assert.Equal(t, "req-7", handler.seen[0])
	assert.Equal(t, "req-7", handler.seen[1])
}

func TestEvaluate_EmptyBatch(t *testing.T) {
	est := fitLine(t, 5, 4, slog.New(slog.DiscardHandler))
	for _, rows := range [][][]float64{nil, {}} {
		scores, err := est.Evaluate(rows)
		require.NoError(t, err)
		assert.NotNil(t, scores)
		assert.Empty(t, scores)
	}
}

func TestEvaluate_ShapeErrors(t *testing.T) {
	est := fitLine(t, 5, 4, slog.New(slog.DiscardHandler))
	testCases := []struct {
		name string
		rows [][]float64
		row  int
	}{
		{name: "empty row", rows: [][]float64{{}}, row: 0},
		{name: "ragged", rows: [][]float64{{1, 2, 3}, {1, 2}}, row: 1},
		{name: "nan", rows: [][]float64{{1, 2}, {1, math.NaN()}}, row: 1},
		{name: "inf", rows: [][]float64{{math.Inf(1)}}, row: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			scores, err := est.Evaluate(tc.rows)
			require.Error(t, err)
			assert.Nil(t, scores)
			assert.ErrorIs(t, err, ErrShape)
			var shape *ShapeError
			require.True(t, errors.As(err, &shape))
			assert.Equal(t, tc.row, shape.Row)
		})
	}
}

func TestEvaluate_IdempotentAndConcurrent(t *testing.T) {
	est := fitLine(t, 5, 8, slog.New(slog.DiscardHandler))
	rows := [][]float64{{1, 2, 3, 4, 5}, {2, 2, 2, 2, 2}, {0.3, 9, 1, 1, 1}}
	first, err := est.Evaluate(rows)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := est.Evaluate(rows)
			assert.NoError(t, err)
			assert.Equal(t, first, got)
		}()
	}
	wg.Wait()
}

func TestAccessorsReturnCopies(t *testing.T) {
	est := fitLine(t, 5, 4, slog.New(slog.DiscardHandler))
	c := est.Cumulative()
	c[0] = -1
	e := est.BinEdges()
	e[0] = -1
	assert.NotEqual(t, -1.0, est.Cumulative()[0])
	assert.NotEqual(t, -1.0, est.BinEdges()[0])
}
