package vector

import "context"

// Collection is a SQLiteStore scoped to a single collection. It satisfies the
// reference-source contract of the density estimator.
type Collection struct {
	store *SQLiteStore
	name  string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Count returns the number of embeddings in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx, c.name)
}

// Embeddings lists the collection's embeddings in insertion order.
func (c *Collection) Embeddings(ctx context.Context) ([][]float32, error) {
	return c.store.Embeddings(ctx, c.name)
}

// NearestDistances returns k ascending neighbour distances per query.
func (c *Collection) NearestDistances(ctx context.Context, queries [][]float32, k int) ([][]float64, error) {
	return c.store.NearestDistances(ctx, c.name, queries, k)
}

// AddDocuments upserts documents into the collection.
func (c *Collection) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	return c.store.AddDocuments(ctx, c.name, docs)
}

// PutArtifact stores a derived blob for the collection.
func (c *Collection) PutArtifact(ctx context.Context, kind string, blob []byte) error {
	return c.store.PutArtifact(ctx, c.name, kind, blob)
}

// Artifact loads a derived blob of the collection.
func (c *Collection) Artifact(ctx context.Context, kind string) ([]byte, error) {
	return c.store.Artifact(ctx, c.name, kind)
}
