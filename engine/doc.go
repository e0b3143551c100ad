// Package engine opens modernc.org/sqlite connections for this module and
// registers the vector SQL scalar functions (vec_l2, vec_cosine and
// vec_cosine_distance) before the first connection is created, so every
// connection handed out by database/sql can order rows by distance.
package engine
