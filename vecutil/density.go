package vecutil

import (
	"context"
	"fmt"

	"github.com/viant/vecdensity/density"
	"github.com/viant/vecdensity/vector"
)

// ArtifactDensity is the vector_storage kind holding a fitted estimator.
const ArtifactDensity = "density"

// FitCollection fits a density estimator over the collection and persists it
// as the collection's density artifact.
func FitCollection(ctx context.Context, collection *vector.Collection, opts ...density.Option) (*density.Estimator, error) {
	est, err := density.New(ctx, collection, opts...)
	if err != nil {
		return nil, err
	}
	data, err := est.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := collection.PutArtifact(ctx, ArtifactDensity, data); err != nil {
		return nil, fmt.Errorf("vecutil: persisting estimator for %q: %w", collection.Name(), err)
	}
	return est, nil
}

// LoadEstimator restores the persisted estimator of the collection. The
// error wraps vector.ErrArtifactNotFound when the collection was never fit.
func LoadEstimator(ctx context.Context, collection *vector.Collection, opts ...density.Option) (*density.Estimator, error) {
	data, err := collection.Artifact(ctx, ArtifactDensity)
	if err != nil {
		return nil, err
	}
	return density.Decode(data, opts...)
}

// ScoreEmbeddings looks up the est.Neighborhood() nearest neighbours of each
// query in src and evaluates their distances against est. Queries are not
// expected to be members of src, so no self-distance is dropped.
func ScoreEmbeddings(ctx context.Context, src density.Source, est *density.Estimator, queries [][]float32) ([]float64, error) {
	if len(queries) == 0 {
		return []float64{}, nil
	}
	rows, err := src.NearestDistances(ctx, queries, est.Neighborhood())
	if err != nil {
		return nil, err
	}
	return est.EvaluateContext(ctx, rows)
}
