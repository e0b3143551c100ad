package vecutil

import (
	"context"
	"fmt"

	"github.com/viant/vecdensity/vector"
)

// EmbedFunc converts free-form text into an embedding.
//
// Implementations can call any embedding provider (OpenAI, local model,
// other cloud APIs, etc.) as long as they return a slice of float32 values.
// The store and the density estimator remain embedding-agnostic and only
// depend on the numeric vectors.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// EmbedAll embeds every text in order.
func EmbedAll(ctx context.Context, embed EmbedFunc, texts []string) ([][]float32, error) {
	if embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("vecutil: embedding text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Document is a text document whose embedding is computed on upsert.
type Document struct {
	ID      string
	Content string
	Meta    string
}

// Match represents a single similarity search hit.
type Match struct {
	ID       string
	Distance float64
	Content  string
	Meta     string
}

func toVectorDocuments(ctx context.Context, embed EmbedFunc, docs []Document) ([]vector.Document, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := EmbedAll(ctx, embed, texts)
	if err != nil {
		return nil, err
	}
	out := make([]vector.Document, len(docs))
	for i, d := range docs {
		out[i] = vector.Document{ID: d.ID, Content: d.Content, Metadata: d.Meta, Embedding: vecs[i]}
	}
	return out, nil
}
