package vector

import (
	"context"
	"database/sql"
)

const docsSchema = `
CREATE TABLE IF NOT EXISTS docs (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    content    TEXT,
    meta       TEXT,
    embedding  BLOB,
    PRIMARY KEY(collection, id)
);
`

// vector_storage keeps derived blobs per collection, keyed by kind
// (e.g. "index" for a persisted kNN index, "density" for a fitted estimator).
// codec 1 marks a zstd-compressed blob.
const storageSchema = `
CREATE TABLE IF NOT EXISTS vector_storage (
    collection TEXT NOT NULL,
    kind       TEXT NOT NULL,
    blob       BLOB NOT NULL,
    codec      INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(collection, kind)
);
`

// EnsureSchema creates the docs and vector_storage tables in the provided
// database if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{docsSchema, storageSchema} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
