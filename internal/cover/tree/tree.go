package tree

// This implementation is adapted from github.com/viant/gds/tree/cover.

import (
	"container/heap"
	"math"
	"sort"
	"sync"
)

// Tree represents a cover tree for cosine/euclidean kNN queries. Inserts are
// serialized; searches only take a read lock and may run concurrently.
type Tree[T any] struct {
	mu           sync.RWMutex
	root         *node
	base         float32
	distanceName DistanceFunction
	distanceFunc DistanceFunc
	report       func(float32) float32
	values       []T
	points       []*Point
}

// NewTree constructs a cover tree with the provided base and distance metric.
// A base <= 1 falls back to 1.3; an unknown metric falls back to cosine.
func NewTree[T any](base float32, distanceFn DistanceFunction) *Tree[T] {
	if base <= 1 {
		base = 1.3
	}
	if distanceFn.Function() == nil {
		distanceFn = DistanceFunctionCosine
	}
	fn, report := distanceFn.searchFunctions()
	return &Tree[T]{
		base:         base,
		distanceName: distanceFn,
		distanceFunc: fn,
		report:       report,
	}
}

// Distance returns the metric the tree was built with.
func (t *Tree[T]) Distance() DistanceFunction { return t.distanceName }

// Len returns the number of stored points.
func (t *Tree[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Insert adds a new value/vector pair to the tree and returns its index.
func (t *Tree[T]) Insert(value T, point *Point) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	point.index = int32(len(t.values))
	t.values = append(t.values, value)
	t.points = append(t.points, point)
	if point.Magnitude == 0 {
		point.Magnitude = point.magnitude()
	}
	if t.root == nil {
		t.root = &node{point: point}
		return point.index
	}
	t.insert(point)
	return point.index
}

func (t *Tree[T]) insert(point *Point) {
	current := t.root
	level := current.level
	var path []*node
	for {
		scale := t.scale(level)
		distance := t.distanceFunc(point, current.point)
		if distance >= scale {
			if current == t.root {
				t.promote(point, distance)
				return
			}
			// Outside the cover of this subtree: attach to the parent.
			parent := path[len(path)-1]
			t.attach(parent, point, level, path)
			return
		}
		path = append(path, current)
		var next *node
		for _, child := range current.children {
			if t.distanceFunc(point, child.point) < t.scale(level-1) {
				next = child
				break
			}
		}
		if next == nil {
			t.attach(current, point, level-1, path)
			return
		}
		current = next
		level--
	}
}

// promote makes point the new root above the current tree.
func (t *Tree[T]) promote(point *Point, distance float32) {
	old := t.root
	level := old.level + 1
	for t.scale(level) <= distance {
		level++
	}
	t.root = &node{
		level:    level,
		point:    point,
		children: []*node{old},
		radius:   distance + old.radius,
	}
}

func (t *Tree[T]) attach(parent *node, point *Point, level int32, path []*node) {
	parent.children = append(parent.children, &node{level: level, point: point})
	for _, n := range path {
		if d := t.distanceFunc(n.point, point); d > n.radius {
			n.radius = d
		}
	}
}

func (t *Tree[T]) scale(level int32) float32 {
	return float32(math.Pow(float64(t.base), float64(level)))
}

// Value returns the stored value for the given point.
func (t *Tree[T]) Value(point *Point) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	if point == nil || point.index < 0 || int(point.index) >= len(t.values) {
		return zero
	}
	return t.values[point.index]
}

// KNearestNeighbors runs a depth-first kNN search and returns up to k
// neighbours ordered by ascending distance, ties by insertion order.
// When k <= 0 every stored point is returned.
func (t *Tree[T]) KNearestNeighbors(point *Point, k int) []*Neighbor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return nil
	}
	if k <= 0 || k > len(t.points) {
		k = len(t.points)
	}
	query := *point
	query.index = math.MaxInt32
	if query.Magnitude == 0 {
		query.Magnitude = query.magnitude()
	}
	h := &neighbors{}
	t.search(t.root, &query, k, h)
	result := make([]*Neighbor, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		n := heap.Pop(h).(Neighbor)
		n.Distance = t.report(n.Distance)
		result[i] = &n
	}
	return result
}

func (t *Tree[T]) search(n *node, query *Point, k int, h *neighbors) {
	t.offer(h, k, Neighbor{Point: n.point, Distance: t.distanceFunc(query, n.point)})
	if len(n.children) == 0 {
		return
	}
	type childDist struct {
		child *node
		dist  float32
	}
	cds := make([]childDist, len(n.children))
	for i, child := range n.children {
		cds[i] = childDist{child: child, dist: t.distanceFunc(query, child.point)}
	}
	sort.Slice(cds, func(i, j int) bool { return cds[i].dist < cds[j].dist })
	for _, cd := range cds {
		if h.Len() == k && cd.dist-cd.child.radius > (*h)[0].Distance {
			continue
		}
		t.search(cd.child, query, k, h)
	}
}

func (t *Tree[T]) offer(h *neighbors, k int, candidate Neighbor) {
	if h.Len() < k {
		heap.Push(h, candidate)
		return
	}
	worst := (*h)[0]
	if candidate.Distance < worst.Distance ||
		(candidate.Distance == worst.Distance && candidate.Point.index < worst.Point.index) {
		(*h)[0] = candidate
		heap.Fix(h, 0)
	}
}
