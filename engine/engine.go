package engine

import (
	"database/sql"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

var registerOnce sync.Once

// filePragmas apply to every pooled connection of a file database: WAL lets
// one connection write while another holds a read, and the busy timeout
// waits out competing writers instead of failing with SQLITE_BUSY.
const filePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// Open opens a SQLite database using the modernc.org/sqlite driver with the
// vector functions registered.
//
// For file-based databases, pass a path like "./db.sqlite"; a bare path is
// opened as a URI with WAL journaling and a 5s busy timeout. A DSN that is
// already a "file:" URI or carries query parameters is used as given. For
// in-memory databases, pass ":memory:". An in-memory database is private to
// a single connection, so the pool is pinned to one connection in that case.
func Open(dsn string) (*sql.DB, error) {
	registerOnce.Do(registerVectorFunctions)
	db, err := sql.Open("sqlite", DSN(dsn))
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// DSN returns the driver DSN Open uses for dsn.
func DSN(dsn string) string {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "?") {
		return dsn
	}
	return "file:" + dsn + "?" + filePragmas
}
