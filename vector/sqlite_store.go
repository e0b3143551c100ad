package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/viant/vecdensity/index"
	"github.com/viant/vecdensity/index/bruteforce"
	"github.com/viant/vecdensity/index/cover"
	"golang.org/x/sync/errgroup"
)

// ArtifactIndex is the vector_storage kind holding a persisted kNN index.
const ArtifactIndex = "index"

// ErrArtifactNotFound is returned by Artifact when no blob is stored.
var ErrArtifactNotFound = errors.New("vector: artifact not found")

const (
	IndexAuto  = "auto"
	IndexBrute = "brute"
	IndexCover = "cover"

	autoCoverMinDocs            = 4000
	autoCoverMinDim             = 64
	autoCoverMinDensity float64 = 16

	// DefaultIndexCacheSize bounds the number of collection indexes kept in memory.
	DefaultIndexCacheSize = 64
)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithMetric sets the distance metric used for search. Defaults to L2.
func WithMetric(metric index.Metric) Option {
	return func(s *SQLiteStore) { s.metric = metric }
}

// WithIndexKind selects "brute", "cover" or "auto" (default).
func WithIndexKind(kind string) Option {
	return func(s *SQLiteStore) { s.indexKind = kind }
}

// WithParallelism bounds the number of concurrent queries in
// NearestDistances. Values <= 0 use GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(s *SQLiteStore) { s.parallelism = n }
}

// WithIndexCacheSize bounds how many collection indexes stay in memory;
// the least recently used is dropped first. Values <= 0 keep the default.
func WithIndexCacheSize(n int) Option {
	return func(s *SQLiteStore) { s.cacheSize = n }
}

// WithCompressionThreshold sets the artifact size from which blobs are
// stored zstd-compressed. Values <= 0 disable compression.
func WithCompressionThreshold(n int) Option {
	return func(s *SQLiteStore) { s.compressAt = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logger }
}

// SQLiteStore implements Store on a SQLite database. Embeddings live in the
// docs table; kNN queries run against an index built from them, persisted in
// vector_storage and cached in memory until the collection changes.
type SQLiteStore struct {
	db          *sql.DB
	metric      index.Metric
	indexKind   string
	parallelism int
	cacheSize   int
	compressAt  int
	logger      *slog.Logger

	indexes *lru.Cache[string, index.Index]
}

// NewSQLiteStore creates a new SQLite-backed Store. It ensures the schema
// exists in the provided database.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vector: db is nil")
	}
	s := &SQLiteStore{
		db:         db,
		metric:     index.MetricL2,
		indexKind:  IndexAuto,
		cacheSize:  DefaultIndexCacheSize,
		compressAt: DefaultCompressionThreshold,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	switch s.indexKind {
	case IndexAuto, IndexBrute, IndexCover:
	default:
		return nil, fmt.Errorf("vector: unsupported index kind %q", s.indexKind)
	}
	if s.parallelism <= 0 {
		s.parallelism = runtime.GOMAXPROCS(0)
	}
	if s.cacheSize <= 0 {
		s.cacheSize = DefaultIndexCacheSize
	}
	cache, err := lru.New[string, index.Index](s.cacheSize)
	if err != nil {
		return nil, err
	}
	s.indexes = cache
	if err := EnsureSchema(context.Background(), db); err != nil {
		return nil, err
	}
	return s, nil
}

// Metric returns the distance metric of the store.
func (s *SQLiteStore) Metric() index.Metric { return s.metric }

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// AddDocuments upserts documents into the collection. Every document needs a
// non-empty ID; embeddings must share the collection's dimension.
func (s *SQLiteStore) AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO docs(collection, id, content, meta, embedding) VALUES(?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET
  content = excluded.content,
  meta = excluded.meta,
  embedding = excluded.embedding`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("vector: Document.ID must be set")
		}
		if len(d.Embedding) > 0 {
			if dim == 0 {
				dim = len(d.Embedding)
			} else if len(d.Embedding) != dim {
				return nil, fmt.Errorf("vector: document %q has dimension %d, collection %q uses %d", d.ID, len(d.Embedding), collection, dim)
			}
		}
		emb, err := EncodeEmbedding(d.Embedding)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, collection, d.ID, d.Content, d.Metadata, emb); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}
	if err := invalidateIndex(ctx, tx, collection); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.forget(collection)
	return ids, nil
}

func (s *SQLiteStore) dimension(ctx context.Context, collection string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT length(embedding) FROM docs WHERE collection = ? AND length(embedding) > 0 LIMIT 1`, collection).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(n.Int64) / 4, nil
}

// SimilaritySearch returns up to k documents ordered by ascending distance,
// computed in SQL with the engine vector functions. Under the cosine metric a
// zero-magnitude embedding makes the query fail.
func (s *SQLiteStore) SimilaritySearch(ctx context.Context, collection string, queryEmbedding []float32, k int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	qBlob, err := EncodeEmbedding(queryEmbedding)
	if err != nil {
		return nil, err
	}
	if qBlob == nil {
		return nil, fmt.Errorf("vector: SimilaritySearch called with empty embedding")
	}
	query := fmt.Sprintf(`SELECT id, content, meta, embedding FROM docs
WHERE collection = ? AND length(embedding) > 0
ORDER BY %s(embedding, ?) ASC, rowid LIMIT ?`, sqlDistanceFunction(s.metric))
	rows, err := s.db.QueryContext(ctx, query, collection, qBlob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var content, meta sql.NullString
		var emb []byte
		if err := rows.Scan(&d.ID, &content, &meta, &emb); err != nil {
			return nil, err
		}
		d.Content, d.Metadata = content.String, meta.String
		if d.Embedding, err = DecodeEmbedding(emb); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove deletes a document by ID from the collection.
func (s *SQLiteStore) Remove(ctx context.Context, collection, id string) error {
	if id == "" {
		return fmt.Errorf("vector: Remove called with empty id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return err
	}
	if err := invalidateIndex(ctx, tx, collection); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.forget(collection)
	return nil
}

// Count returns the number of documents in the collection with an embedding.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs WHERE collection = ? AND length(embedding) > 0`, collection).Scan(&n)
	return n, err
}

// Embeddings lists the collection's embeddings in insertion order.
func (s *SQLiteStore) Embeddings(ctx context.Context, collection string) ([][]float32, error) {
	_, vecs, err := s.load(ctx, collection)
	return vecs, err
}

func (s *SQLiteStore) load(ctx context.Context, collection string) ([]string, [][]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM docs WHERE collection = ? AND length(embedding) > 0 ORDER BY rowid`, collection)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var emb []byte
		if err := rows.Scan(&id, &emb); err != nil {
			return nil, nil, err
		}
		v, err := DecodeEmbedding(emb)
		if err != nil {
			return nil, nil, fmt.Errorf("vector: document %q: %w", id, err)
		}
		ids = append(ids, id)
		vecs = append(vecs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return ids, vecs, nil
}

// NearestDistances answers a batch of kNN queries against the collection.
// Each result row holds up to k distances in ascending order; a row is
// shorter than k only when the collection holds fewer than k embeddings.
func (s *SQLiteStore) NearestDistances(ctx context.Context, collection string, queries [][]float32, k int) ([][]float64, error) {
	if k <= 0 {
		return nil, fmt.Errorf("vector: NearestDistances requires k > 0, got %d", k)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	out := make([][]float64, len(queries))
	if len(queries) == 0 {
		return out, nil
	}
	idx, err := s.index(ctx, collection)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, dists, err := idx.Query(queries[i], k)
			if err != nil {
				return fmt.Errorf("vector: query %d: %w", i, err)
			}
			out[i] = dists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reindex rebuilds and persists the kNN index for the collection and returns
// the number of indexed embeddings.
func (s *SQLiteStore) Reindex(ctx context.Context, collection string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	idx, n, err := s.build(ctx, collection)
	if err != nil {
		return 0, err
	}
	s.indexes.Add(collection, idx)
	return n, nil
}

func (s *SQLiteStore) index(ctx context.Context, collection string) (index.Index, error) {
	if idx, ok := s.indexes.Get(collection); ok {
		return idx, nil
	}
	idx, err := s.restore(ctx, collection)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		if idx, _, err = s.build(ctx, collection); err != nil {
			return nil, err
		}
	}
	s.indexes.Add(collection, idx)
	return idx, nil
}

// restore loads the persisted index, or returns nil when there is none or it
// was built for another metric.
func (s *SQLiteStore) restore(ctx context.Context, collection string) (index.Index, error) {
	data, err := s.Artifact(ctx, collection, ArtifactIndex)
	if errors.Is(err, ErrArtifactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metric, ids, vecs, err := bruteforce.Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable persisted index", "collection", collection, "error", err)
		return nil, nil
	}
	if metric != s.metric {
		return nil, nil
	}
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	idx := s.newIndex(len(vecs), dim)
	if err := idx.Build(ids, vecs); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteStore) build(ctx context.Context, collection string) (index.Index, int, error) {
	ids, vecs, err := s.load(ctx, collection)
	if err != nil {
		return nil, 0, err
	}
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	idx := s.newIndex(len(vecs), dim)
	if err := idx.Build(ids, vecs); err != nil {
		return nil, 0, err
	}
	data, err := idx.MarshalBinary()
	if err != nil {
		return nil, 0, err
	}
	if err := s.PutArtifact(ctx, collection, ArtifactIndex, data); err != nil {
		return nil, 0, err
	}
	s.logger.DebugContext(ctx, "index built", "collection", collection, "count", len(ids), "dimension", dim, "metric", string(s.metric))
	return idx, len(ids), nil
}

func (s *SQLiteStore) newIndex(docCount, dim int) index.Index {
	if s.resolveIndexKind(docCount, dim) == IndexCover {
		return cover.New(cover.WithDistance(s.metric))
	}
	return bruteforce.New(s.metric)
}

func (s *SQLiteStore) resolveIndexKind(docCount, dim int) string {
	if s.indexKind != IndexAuto {
		return s.indexKind
	}
	if docCount >= autoCoverMinDocs && dim >= autoCoverMinDim {
		if float64(docCount)/float64(dim) >= autoCoverMinDensity {
			return IndexCover
		}
	}
	return IndexBrute
}

func (s *SQLiteStore) forget(collection string) {
	s.indexes.Remove(collection)
}

func invalidateIndex(ctx context.Context, tx *sql.Tx, collection string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM vector_storage WHERE collection = ? AND kind = ?`, collection, ArtifactIndex)
	return err
}

// PutArtifact stores blob under (collection, kind), replacing any previous one.
func (s *SQLiteStore) PutArtifact(ctx context.Context, collection, kind string, blob []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if blob == nil {
		blob = []byte{}
	}
	stored, codec, err := compressBlob(blob, s.compressAt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO vector_storage(collection, kind, blob, codec, updated_at) VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)`, collection, kind, stored, codec)
	return err
}

// Artifact loads the blob stored under (collection, kind).
func (s *SQLiteStore) Artifact(ctx context.Context, collection, kind string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var blob []byte
	var codec int
	err := s.db.QueryRowContext(ctx, `SELECT blob, codec FROM vector_storage WHERE collection = ? AND kind = ?`, collection, kind).Scan(&blob, &codec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, collection, kind)
	}
	if err != nil {
		return nil, err
	}
	return decompressBlob(blob, codec)
}

// Collection returns a handle scoping the store to one collection.
func (s *SQLiteStore) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
