// Package bruteforce provides an exact vector index that answers kNN queries
// by scanning all vectors and ranking them by L2 or cosine distance. It
// defines the compact binary format used to persist indexes in the
// vector_storage table.
package bruteforce
