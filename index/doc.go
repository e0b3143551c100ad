// Package index defines a minimal abstraction for vector indexes that can be
// built from embeddings, queried for the k nearest neighbours by distance, and
// serialized for persistence. Implementations in this module include an exact
// brute-force scan and a cover tree.
package index
