package vector

import (
	"context"
)

// Document represents a logical document stored in the vector store.
type Document struct {
	// ID is the identifier of the document, unique within a collection.
	ID string

	// Content holds the main text/body of the document.
	Content string

	// Metadata is an opaque JSON or structured payload associated with the
	// document, stored as a raw string.
	Metadata string

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// Store defines the application-level vector store API. Every operation is
// scoped to a named collection.
type Store interface {
	// AddDocuments upserts documents into the collection and returns their IDs.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// SimilaritySearch returns up to k documents ordered by ascending distance
	// to queryEmbedding.
	SimilaritySearch(ctx context.Context, collection string, queryEmbedding []float32, k int) ([]Document, error)

	// Remove deletes the document with the given ID from the collection.
	Remove(ctx context.Context, collection, id string) error

	// Count returns the number of documents with an embedding.
	Count(ctx context.Context, collection string) (int, error)

	// Embeddings lists every stored embedding in insertion order.
	Embeddings(ctx context.Context, collection string) ([][]float32, error)

	// NearestDistances returns, for each query, the distances to its k
	// nearest stored embeddings in ascending order. A query that is itself
	// stored has its own entry, distance 0, first.
	NearestDistances(ctx context.Context, collection string, queries [][]float32, k int) ([][]float64, error)
}
