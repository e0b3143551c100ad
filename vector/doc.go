// Package vector defines the SQLite-backed vector store used by this project.
// It includes:
//   - Document model and Store interface
//   - SQLiteStore: durable, collection-scoped storage of documents
//   - Batch nearest-neighbour distances over a persisted kNN index
//   - Artifact storage for derived blobs such as fitted density estimators
//   - Schema helpers, embedding encoding (BLOB) and distance functions
package vector
