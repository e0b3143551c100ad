package tree

import "github.com/viant/vec/search"

// Point represents a vector in the cover tree.
type Point struct {
	index     int32
	Magnitude float32
	Vector    []float32
}

// NewPoint constructs a point for the given vector.
func NewPoint(vector ...float32) *Point {
	return &Point{index: -1, Vector: vector}
}

// Index returns the insertion ordinal of the point, or -1 when the point was
// never inserted.
func (p *Point) Index() int32 {
	if p == nil {
		return -1
	}
	return p.index
}

func (p *Point) magnitude() float32 {
	if p.Magnitude == 0 && len(p.Vector) > 0 {
		return search.Float32s(p.Vector).Magnitude()
	}
	return p.Magnitude
}
