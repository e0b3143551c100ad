// Package vecadmin exposes collection maintenance through a SQLite virtual
// table, so reindexing and density fitting can be driven from plain SQL.
package vecadmin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/vecdensity/density"
	"github.com/viant/vecdensity/vector"
	"github.com/viant/vecdensity/vecutil"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name used in CREATE VIRTUAL TABLE ... USING.
const ModuleName = "density_admin"

// Module provides administrative operations via a virtual table.
// Usage:
//
//	CREATE VIRTUAL TABLE density_admin USING density_admin(op);
//	SELECT op FROM density_admin WHERE op MATCH 'reindex:docs'; -- reindexed:<count>
//	SELECT op FROM density_admin WHERE op MATCH 'fit:docs';     -- fitted:<bins>
//	SELECT op FROM density_admin WHERE op MATCH 'count:docs';   -- count:<count>
//
// One module serves the process; operations run against the store passed
// to the most recent Attach call. A command runs on another pooled
// connection while the SELECT holds its own, so the database must allow a
// write beside an open read: a file database opened with engine.Open (WAL).
type Module struct {
	mu    sync.RWMutex
	store *vector.SQLiteStore
	opts  []density.Option
}

type Table struct{ module *Module }

type Cursor struct {
	table *Table
	rows  []string
	pos   int
}

var module = &Module{}

// Register installs the density_admin module on db. Connections opened
// before registration never see the module, so Register must run before
// the first statement on db.
func Register(db *sql.DB) error {
	if db == nil {
		return errors.New("vecadmin: db is nil")
	}
	if n := db.Stats().OpenConnections; n > 0 {
		return fmt.Errorf("vecadmin: Register must run before db is first used, %d connections already open", n)
	}
	if err := vtab.RegisterModule(db, ModuleName, module); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	return nil
}

// Attach points the module at store. opts configure estimators fitted
// through "fit:". The store must not be pinned to a single connection.
func Attach(store *vector.SQLiteStore, opts ...density.Option) error {
	if store == nil {
		return errors.New("vecadmin: store is nil")
	}
	if store.DB().Stats().MaxOpenConnections == 1 {
		return errors.New("vecadmin: store database is limited to one connection, commands would wait on the querying connection")
	}
	module.mu.Lock()
	module.store = store
	module.opts = opts
	module.mu.Unlock()
	return nil
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("%s: need at least 3 args", ModuleName)
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op)", args[2])); err != nil {
		return nil, err
	}
	return &Table{module: m}, nil
}

func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		if c.Column == 0 && c.Op == vtab.OpMATCH {
			// ArgIndex is 0-based; Omit stops SQLite re-checking MATCH itself.
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 1
			break
		}
	}
	return nil
}

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }
func (t *Table) Disconnect() error { return nil }
func (t *Table) Destroy() error { return nil }

func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	op, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("%s: MATCH expects '<op>:<collection>' as TEXT", ModuleName)
	}
	c.table.module.mu.RLock()
	store, opts := c.table.module.store, c.table.module.opts
	c.table.module.mu.RUnlock()
	result, err := Run(context.Background(), store, op, opts...)
	if err != nil {
		return err
	}
	c.rows = []string{result}
	return nil
}

func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("%s: Column out of range", ModuleName)
	}
	if col == 0 {
		return c.rows[c.pos], nil
	}
	return nil, nil
}

func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }

func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = 0
	return nil
}

// Run executes one "<op>:<collection>" command against store.
func Run(ctx context.Context, store *vector.SQLiteStore, command string, opts ...density.Option) (string, error) {
	if store == nil {
		return "", fmt.Errorf("%s: no store attached", ModuleName)
	}
	op, collection, ok := strings.Cut(strings.TrimSpace(command), ":")
	if !ok || collection == "" {
		return "", fmt.Errorf("%s: malformed command %q, want <op>:<collection>", ModuleName, command)
	}
	switch op {
	case "reindex":
		n, err := store.Reindex(ctx, collection)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("reindexed:%d", n), nil
	case "fit":
		est, err := vecutil.FitCollection(ctx, store.Collection(collection), opts...)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("fitted:%d", est.Bins()), nil
	case "count":
		n, err := store.Count(ctx, collection)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("count:%d", n), nil
	default:
		return "", fmt.Errorf("%s: unknown op %q", ModuleName, op)
	}
}
