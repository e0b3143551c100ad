package bruteforce

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vecdensity/index"
)

// Index is a brute-force vector index. The zero value uses L2 distance.
type Index struct {
	metric index.Metric
	ids    []string
	vecs   [][]float32
	dim    int
	mags   []float64
}

// New creates an empty index for the given metric.
func New(metric index.Metric) *Index {
	return &Index{metric: metric}
}

// Metric returns the distance metric of the index.
func (i *Index) Metric() index.Metric {
	if i.metric == "" {
		return index.MetricL2
	}
	return i.metric
}

// Build loads ids and vectors and precomputes magnitudes.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("bruteforce: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		i.ids, i.vecs, i.mags, i.dim = nil, nil, nil, 0
		return nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return fmt.Errorf("bruteforce: inconsistent vector dims %d vs %d", len(vectors[j]), dim)
		}
	}
	mags := make([]float64, len(vectors))
	for j := range vectors {
		mags[j] = magnitude(vectors[j])
	}
	i.ids = append([]string(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = dim
	i.mags = mags
	return nil
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int { return len(i.vecs) }

// Query returns the k nearest vectors by ascending distance. Equal distances
// keep insertion order, so a stored vector queried against the index comes
// back as its own first neighbour.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	if i.dim == 0 || len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("bruteforce: query dim %d != index dim %d", len(query), i.dim)
	}
	type scored struct {
		idx  int
		dist float64
	}
	qm := magnitude(query)
	scoreds := make([]scored, len(i.vecs))
	for j := range i.vecs {
		scoreds[j] = scored{idx: j, dist: i.distance(query, qm, j)}
	}
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].dist < scoreds[b].dist })
	if k <= 0 || k > len(scoreds) {
		k = len(scoreds)
	}
	outIDs := make([]string, k)
	outDists := make([]float64, k)
	for n := 0; n < k; n++ {
		outIDs[n] = i.ids[scoreds[n].idx]
		outDists[n] = scoreds[n].dist
	}
	return outIDs, outDists, nil
}

func (i *Index) distance(query []float32, qm float64, j int) float64 {
	if i.Metric() == index.MetricCosine {
		// Zero vectors coincide with each other and are orthogonal to the
		// rest, so a stored zero vector stays its own nearest neighbour.
		if qm == 0 && i.mags[j] == 0 {
			return 0
		}
		if qm == 0 || i.mags[j] == 0 {
			return 1
		}
		s := dot(query, i.vecs[j]) / (qm * i.mags[j])
		if math.IsNaN(s) {
			return 1
		}
		return 1 - s
	}
	var sum float64
	for n := range query {
		d := float64(query[n]) - float64(i.vecs[j][n])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MarshalBinary stores the index using Encode.
func (i *Index) MarshalBinary() ([]byte, error) {
	return Encode(i.Metric(), i.ids, i.vecs)
}

// UnmarshalBinary restores the index from bytes produced by MarshalBinary.
func (i *Index) UnmarshalBinary(data []byte) error {
	metric, ids, vecs, err := Decode(data)
	if err != nil {
		return err
	}
	i.metric = metric
	return i.Build(ids, vecs)
}

var metricCodes = []index.Metric{index.MetricL2, index.MetricCosine}

// Encode stores: metric(uint32), dim(uint32), n(uint32), then for each item:
// idLen(uint32), id bytes, vec(float32[dim]).
func Encode(metric index.Metric, ids []string, vecs [][]float32) ([]byte, error) {
	code := -1
	for c, m := range metricCodes {
		if m == metric {
			code = c
		}
	}
	if code < 0 {
		return nil, fmt.Errorf("bruteforce: unsupported metric %q", metric)
	}
	if len(ids) != len(vecs) {
		return nil, fmt.Errorf("bruteforce: ids and vectors length mismatch: %d != %d", len(ids), len(vecs))
	}
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	size := 12
	for _, id := range ids {
		size += 4 + len(id) + 4*dim
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(code))
	out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(ids)))
	for idx, id := range ids {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(id)))
		out = append(out, id...)
		for _, v := range vecs[idx] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (index.Metric, []string, [][]float32, error) {
	if len(data) < 12 {
		return "", nil, nil, errors.New("bruteforce: invalid data")
	}
	off := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(data[off : off+4]); off += 4; return v }
	code := int(getU32())
	if code >= len(metricCodes) {
		return "", nil, nil, fmt.Errorf("bruteforce: unknown metric code %d", code)
	}
	dim := int(getU32())
	n := int(getU32())
	if n > (len(data)-off)/4 {
		return "", nil, nil, fmt.Errorf("bruteforce: %d entries exceed %d bytes of data", n, len(data))
	}
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for idx := 0; idx < n; idx++ {
		if off+4 > len(data) {
			return "", nil, nil, errors.New("bruteforce: truncated")
		}
		idlen := int(getU32())
		if off+idlen > len(data) {
			return "", nil, nil, errors.New("bruteforce: truncated id")
		}
		ids[idx] = string(data[off : off+idlen])
		off += idlen
		if off+4*dim > len(data) {
			return "", nil, nil, errors.New("bruteforce: truncated vec")
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(getU32())
		}
		vecs[idx] = vec
	}
	return metricCodes[code], ids, vecs, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }

var _ index.Index = (*Index)(nil)
