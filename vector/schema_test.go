package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/vecdensity/engine"
)

func TestEnsureSchema(t *testing.T) {
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, db))
	require.NoError(t, EnsureSchema(ctx, db))

	_, err = db.Exec(`INSERT INTO docs(collection, id, content, meta, embedding) VALUES('c', '1', 'hello', '{}', X'')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO vector_storage(collection, kind, blob) VALUES('c', 'index', X'00')`)
	require.NoError(t, err)
}
