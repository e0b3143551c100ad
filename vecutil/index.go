package vecutil

import (
	"context"
	"fmt"

	"github.com/viant/vecdensity/density"
	"github.com/viant/vecdensity/vector"
)

// Index is a text-level view of one collection: it embeds documents and
// queries with the caller's EmbedFunc.
type Index struct {
	Store      *vector.SQLiteStore
	Collection string
	Embed      EmbedFunc
}

// NewIndex constructs an Index over a collection of store.
func NewIndex(store *vector.SQLiteStore, collection string, embed EmbedFunc) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("vecutil: store is nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil")
	}
	return &Index{Store: store, Collection: collection, Embed: embed}, nil
}

// UpsertDocumentsText upserts documents, computing embeddings from Content.
func (ix *Index) UpsertDocumentsText(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	vdocs, err := toVectorDocuments(ctx, ix.Embed, docs)
	if err != nil {
		return err
	}
	_, err = ix.Store.AddDocuments(ctx, ix.Collection, vdocs)
	return err
}

// DeleteDocuments removes documents with the given ids.
func (ix *Index) DeleteDocuments(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := ix.Store.Remove(ctx, ix.Collection, id); err != nil {
			return err
		}
	}
	return nil
}

// QueryText returns up to k documents nearest to the query text.
func (ix *Index) QueryText(ctx context.Context, query string, k int) ([]Match, error) {
	qVec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, err := ix.Store.SimilaritySearch(ctx, ix.Collection, qVec, k)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(docs))
	for _, d := range docs {
		dist, err := vector.Distance(ix.Store.Metric(), qVec, d.Embedding)
		if err != nil {
			return nil, err
		}
		out = append(out, Match{ID: d.ID, Distance: dist, Content: d.Content, Meta: d.Metadata})
	}
	return out, nil
}

// DensityText scores how densely populated the neighbourhood of each query
// text is, using the collection's persisted estimator.
func (ix *Index) DensityText(ctx context.Context, queries []string, opts ...density.Option) ([]float64, error) {
	collection := ix.Store.Collection(ix.Collection)
	est, err := LoadEstimator(ctx, collection, opts...)
	if err != nil {
		return nil, err
	}
	vecs, err := EmbedAll(ctx, ix.Embed, queries)
	if err != nil {
		return nil, err
	}
	return ScoreEmbeddings(ctx, collection, est, vecs)
}
