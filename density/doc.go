// Package density estimates how densely populated the neighbourhood of a
// query is, relative to the vectors already stored in a collection.
//
// New fits a histogram of mean k-nearest-neighbour distances over every
// stored vector and keeps the running sum of its per-bin density values.
// Evaluate maps the neighbour distances of new queries onto that running
// sum. The scores are cumulative densities, not probabilities: they grow
// with the mean distance and are not bounded by 1.
//
//	est, err := density.New(ctx, store.Collection("docs"), density.WithNeighborhood(10))
//	if err != nil {
//		return err
//	}
//	scores, err := est.Evaluate(rows)
//
// A fitted Estimator is immutable and safe for concurrent use.
package density
