package tree

// node is a cover-tree node. radius is an upper bound on the distance from
// point to any point stored below it.
type node struct {
	level    int32
	point    *Point
	children []*node
	radius   float32
}
