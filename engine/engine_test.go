package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t(x INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t(x) VALUES (1),(2),(3)")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	require.Equal(t, 3, n)
}

func TestOpenFileUsesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.sqlite")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	// Each pooled connection gets the pragmas.
	conns := make([]*sql.Conn, 2)
	for i := range conns {
		conns[i], err = db.Conn(context.Background())
		require.NoError(t, err)
		defer conns[i].Close()
	}
	for _, conn := range conns {
		var mode string
		require.NoError(t, conn.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)
		var timeout int
		require.NoError(t, conn.QueryRowContext(context.Background(), "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout)
	}
}

func TestDSN(t *testing.T) {
	testCases := []struct {
		dsn    string
		expect string
	}{
		{dsn: ":memory:", expect: ":memory:"},
		{dsn: "file:x.db?mode=ro", expect: "file:x.db?mode=ro"},
		{dsn: "x.db?_pragma=foreign_keys(1)", expect: "x.db?_pragma=foreign_keys(1)"},
		{dsn: "/tmp/x.db", expect: "file:/tmp/x.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
	}
	for _, tc := range testCases {
		t.Run(tc.dsn, func(t *testing.T) {
			assert.Equal(t, tc.expect, DSN(tc.dsn))
		})
	}
}
