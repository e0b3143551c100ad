// Package cover provides a cover-tree kNN index. It persists using the
// brute-force binary layout and rebuilds the tree on load.
package cover
