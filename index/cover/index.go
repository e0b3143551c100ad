package cover

import (
	"errors"

	"github.com/viant/vecdensity/index"
	"github.com/viant/vecdensity/index/bruteforce"
	"github.com/viant/vecdensity/internal/cover/tree"
)

// Option configures an Index.
type Option func(*Index)

// WithBase sets the cover-tree base; values <= 1 keep the default.
func WithBase(base float32) Option {
	return func(i *Index) {
		if base > 1 {
			i.base = base
		}
	}
}

// WithDistance sets the distance metric.
func WithDistance(metric index.Metric) Option {
	return func(i *Index) { i.metric = metric }
}

// Index implements a kNN index on a cover tree.
type Index struct {
	base   float32
	metric index.Metric
	ids    []string
	vecs   [][]float32
	dim    int
	tree   *tree.Tree[string]
}

// New creates an empty cover index.
func New(opts ...Option) *Index {
	i := &Index{base: 1.3, metric: index.MetricL2}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Index) distance() tree.DistanceFunction {
	if i.metric == index.MetricCosine {
		return tree.DistanceFunctionCosine
	}
	return tree.DistanceFunctionEuclidean
}

// Build inserts every vector into a fresh tree.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return errors.New("cover: ids/vectors length mismatch")
	}
	i.ids = append([]string(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.tree = tree.NewTree[string](i.base, i.distance())
	if len(vectors) == 0 {
		i.dim = 0
		return nil
	}
	i.dim = len(vectors[0])
	for j, v := range vectors {
		if len(v) != i.dim {
			return errors.New("cover: inconsistent dims")
		}
		i.tree.Insert(ids[j], tree.NewPoint(v...))
	}
	return nil
}

// Query returns up to k ids ordered by ascending distance.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	if i.tree == nil || i.dim == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, errors.New("cover: query dim mismatch")
	}
	found := i.tree.KNearestNeighbors(tree.NewPoint(query...), k)
	ids := make([]string, len(found))
	dists := make([]float64, len(found))
	for n, nb := range found {
		ids[n] = i.tree.Value(nb.Point)
		dists[n] = float64(nb.Distance)
	}
	return ids, dists, nil
}

// MarshalBinary uses the brute-force format for persistence.
func (i *Index) MarshalBinary() ([]byte, error) {
	return bruteforce.Encode(i.metric, i.ids, i.vecs)
}

// UnmarshalBinary loads the brute-force format and rebuilds the tree.
func (i *Index) UnmarshalBinary(data []byte) error {
	metric, ids, vecs, err := bruteforce.Decode(data)
	if err != nil {
		return err
	}
	i.metric = metric
	if i.base <= 1 {
		i.base = 1.3
	}
	return i.Build(ids, vecs)
}

var _ index.Index = (*Index)(nil)
