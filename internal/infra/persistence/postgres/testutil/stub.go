// Package testutil provides an in-memory database/sql driver that understands
// the handful of statements the postgres session store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var driverSeq atomic.Uint64

// StubConn is the single connection behind a stub DB. Tables hold rows keyed
// by lower-cased column name; the Fail* switches inject errors.
type StubConn struct {
	Execs  []string
	Tables map[string][]map[string]any

	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error
}

// NewStubDB registers a uniquely named driver and opens a DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("labbench-stubpg-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; every call goes through the context paths.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements unsupported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger and fails together with FailExec.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext for CREATE, INSERT (with
// optional ON CONFLICT upsert on the first column) and DELETE ... WHERE col = $1.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	stmt, err := parse(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[stmt.table] {
		return nil, fmt.Errorf("stub: %s on %s failed", stmt.verb, stmt.table)
	}
	switch stmt.verb {
	case "insert":
		if len(stmt.cols) != len(args) {
			return nil, fmt.Errorf("stub: %d columns but %d args for %s", len(stmt.cols), len(args), stmt.table)
		}
		row := make(map[string]any, len(stmt.cols))
		for i, col := range stmt.cols {
			row[col] = args[i].Value
		}
		if stmt.upsert {
			c.removeWhere(stmt.table, stmt.cols[0], row[stmt.cols[0]])
		}
		c.Tables[stmt.table] = append(c.Tables[stmt.table], row)
		return driver.RowsAffected(1), nil
	case "delete":
		if len(args) == 0 {
			return nil, fmt.Errorf("stub: delete from %s without argument", stmt.table)
		}
		return driver.RowsAffected(c.removeWhere(stmt.table, stmt.cols[0], args[0].Value)), nil
	default:
		return driver.RowsAffected(0), nil
	}
}

// QueryContext implements driver.QueryerContext for SELECT col, ... FROM table.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	stmt, err := parse(query)
	if err != nil {
		return nil, err
	}
	if stmt.verb != "select" {
		return nil, fmt.Errorf("stub: cannot query with %q", query)
	}
	if c.FailTables[stmt.table] {
		return nil, fmt.Errorf("stub: select on %s failed", stmt.table)
	}
	rows := &stubRows{cols: stmt.cols, err: c.RowsErr}
	for _, row := range c.Tables[stmt.table] {
		vals := make([]driver.Value, len(stmt.cols))
		for i, col := range stmt.cols {
			vals[i] = row[col]
		}
		rows.values = append(rows.values, vals)
	}
	return rows, nil
}

func (c *StubConn) removeWhere(table, col string, value any) int64 {
	var kept []map[string]any
	var removed int64
	for _, row := range c.Tables[table] {
		if row[col] == value {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return removed
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("stub: commit failed")
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols   []string
	values [][]driver.Value
	next   int
	err    error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}

// statement is the parsed shape of a query: its verb, target table and the
// columns it names (insert/select list, or the delete predicate column).
type statement struct {
	verb   string
	table  string
	cols   []string
	upsert bool
}

func parse(query string) (statement, error) {
	q := strings.Join(strings.Fields(query), " ")
	lower := strings.ToLower(q)
	bad := fmt.Errorf("stub: cannot parse %q", query)
	switch {
	case strings.HasPrefix(lower, "create "):
		return statement{verb: "create"}, nil
	case strings.HasPrefix(lower, "insert into "):
		rest := lower[len("insert into "):]
		open, closing := strings.Index(rest, "("), strings.Index(rest, ")")
		if open <= 0 || closing < open {
			return statement{}, bad
		}
		return statement{
			verb:   "insert",
			table:  strings.TrimSpace(rest[:open]),
			cols:   columns(rest[open+1 : closing]),
			upsert: strings.Contains(rest, " on conflict"),
		}, nil
	case strings.HasPrefix(lower, "delete from "):
		table, where, ok := strings.Cut(lower[len("delete from "):], " where ")
		col, _, hasEq := strings.Cut(where, "=")
		if !ok || !hasEq {
			return statement{}, bad
		}
		return statement{verb: "delete", table: strings.TrimSpace(table), cols: []string{strings.TrimSpace(col)}}, nil
	case strings.HasPrefix(lower, "select "):
		cols, from, ok := strings.Cut(lower[len("select "):], " from ")
		fields := strings.Fields(from)
		if !ok || len(fields) == 0 {
			return statement{}, bad
		}
		return statement{verb: "select", table: fields[0], cols: columns(cols)}, nil
	default:
		return statement{}, bad
	}
}

func columns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
