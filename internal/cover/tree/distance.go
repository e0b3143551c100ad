package tree

import (
	"math"

	"github.com/viant/vec/search"
)

// DistanceFunction enumerates supported distance metrics for the cover tree.
type DistanceFunction string

const (
	DistanceFunctionCosine    DistanceFunction = "cosine"
	DistanceFunctionEuclidean DistanceFunction = "euclidean"
)

// DistanceFunc computes the distance between two points.
type DistanceFunc func(p1, p2 *Point) float32

// Function resolves the callable distance implementation, or nil when the
// name is unknown.
func (d DistanceFunction) Function() DistanceFunc {
	switch d {
	case DistanceFunctionCosine:
		return CosineDistance
	case DistanceFunctionEuclidean:
		return EuclideanDistance
	default:
		return nil
	}
}

// CosineDistance returns the cosine distance (1 - cosine similarity). Two
// zero-magnitude points are at distance 0; a zero-magnitude point is at
// distance 1 from any other point.
func CosineDistance(p1, p2 *Point) float32 {
	m1, m2 := p1.magnitude(), p2.magnitude()
	if m1 == 0 && m2 == 0 {
		return 0
	}
	if m1 == 0 || m2 == 0 {
		return 1
	}
	return search.Float32s(p1.Vector).CosineDistanceWithMagnitude(p2.Vector, m1, m2)
}

// EuclideanDistance returns the Euclidean distance between two points.
func EuclideanDistance(p1, p2 *Point) float32 {
	return search.Float32s(p1.Vector).EuclideanDistance(p2.Vector)
}

// chordDistance is the Euclidean distance between the unit vectors of p1 and
// p2. It obeys the triangle inequality, which cosine distance does not, and
// equals sqrt(2*CosineDistance), zero-magnitude points included.
func chordDistance(p1, p2 *Point) float32 {
	m1, m2 := p1.magnitude(), p2.magnitude()
	if m1 == 0 && m2 == 0 {
		return 0
	}
	if m1 == 0 || m2 == 0 {
		return math.Sqrt2
	}
	var sum float64
	for i := range p1.Vector {
		d := float64(p1.Vector[i]/m1) - float64(p2.Vector[i]/m2)
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// searchFunctions returns the metric the tree is organised by and the
// conversion from it back to the distance reported to callers.
func (d DistanceFunction) searchFunctions() (DistanceFunc, func(float32) float32) {
	if d == DistanceFunctionCosine {
		return chordDistance, func(c float32) float32 { return c * c / 2 }
	}
	return d.Function(), func(e float32) float32 { return e }
}
