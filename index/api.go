package index

import (
	"fmt"
	"strings"
)

// Metric names a distance function. Smaller distances mean nearer vectors.
type Metric string

const (
	// MetricL2 is the Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricCosine is the cosine distance, 1 - cosine similarity.
	MetricCosine Metric = "cosine"
)

// ParseMetric resolves a metric name. An empty name selects MetricL2.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "l2", "euclidean":
		return MetricL2, nil
	case "cos", "cosine":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("index: unsupported metric %q", name)
	}
}

// Index defines a generic vector index with basic lifecycle methods.
type Index interface {
	// Build constructs the index from the given ids and vectors.
	// ids and vectors must have the same length; vectors must share one dimension.
	Build(ids []string, vectors [][]float32) error

	// Query runs a kNN search against the index with the provided query vector
	// and returns up to k matches as parallel slices of ids and distances,
	// ordered by ascending distance. When k <= 0 all vectors are returned.
	// Query must be safe for concurrent use once Build has returned.
	Query(query []float32, k int) (ids []string, distances []float64, err error)

	// MarshalBinary serializes the index into a byte slice.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary reconstructs the index from a serialized byte slice.
	UnmarshalBinary(data []byte) error
}
