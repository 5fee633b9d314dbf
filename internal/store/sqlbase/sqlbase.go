// Package sqlbase implements store.Store on database/sql. The sqlite and
// postgres backends embed DB and supply a Dialect for placeholder style and
// timestamp encoding.
package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/graaaaa/playpulse/internal/metrics"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name is reported by Backend and used as a metrics label.
	Name string

	// Numbered selects $1, $2, ... placeholders instead of ?.
	Numbered bool

	// Time encodes a timestamp query argument.
	Time func(time.Time) any

	// ScopeLock, when set, takes a transaction-scoped lock keyed by the
	// scope passed as its only argument. Dialects whose transactions already
	// hold the database write lock leave it empty.
	ScopeLock string

	// SequenceSync, when set, is a format with two %s verbs for the table
	// name that advances the table's id sequence past its largest id.
	SequenceSync string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a dialect-aware store.Store over a *sql.DB or a *sql.Tx.
type DB struct {
	db      *sql.DB
	q       querier
	tx      bool
	dialect Dialect
}

var _ store.Store = (*DB)(nil)

// New wraps db with the given dialect.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, q: db, dialect: dialect}
}

// SQL returns the underlying connection pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Backend returns the dialect name.
func (d *DB) Backend() string {
	return d.dialect.Name
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return model.Persistence("ping", d.db.PingContext(ctx))
}

// Close closes the connection pool. It fails when called on a
// transaction-bound store.
func (d *DB) Close() error {
	if d.tx {
		return errors.New("close called inside transaction")
	}
	return d.db.Close()
}

// InTx runs fn in a transaction. Nested calls reuse the open transaction.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if d.tx {
		return fn(ctx, d)
	}
	err := Tx(ctx, d.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &DB{db: d.db, q: tx, tx: true, dialect: d.dialect})
	})
	if err != nil {
		return model.Persistence("transaction", err)
	}
	return nil
}

// LockScope serializes scope-level read-then-write sequences across
// processes until the surrounding transaction ends.
func (d *DB) LockScope(ctx context.Context, scope string) error {
	if !d.tx {
		return errors.New("lock scope called outside transaction")
	}
	if d.dialect.ScopeLock == "" {
		return nil
	}
	_, err := d.exec(ctx, "lock_scope", d.dialect.ScopeLock, scope)
	return model.Persistence("lock scope", err)
}

// rebind rewrites ? placeholders for dialects that number them.
func (d *DB) rebind(query string) string {
	if !d.dialect.Numbered {
		return query
	}
	var (
		sb strings.Builder
		n  int
	)
	sb.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// t encodes a timestamp argument.
func (d *DB) t(ts time.Time) any {
	return d.dialect.Time(ts.UTC())
}

func (d *DB) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := d.q.ExecContext(ctx, d.rebind(query), args...)
	metrics.RecordDBQuery(d.dialect.Name, op, time.Since(start), err)
	return res, err
}

func (d *DB) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.q.QueryContext(ctx, d.rebind(query), args...)
	metrics.RecordDBQuery(d.dialect.Name, op, time.Since(start), err)
	return rows, err
}

func (d *DB) queryRow(ctx context.Context, op, query string, args ...any) *sql.Row {
	start := time.Now()
	row := d.q.QueryRowContext(ctx, d.rebind(query), args...)
	metrics.RecordDBQuery(d.dialect.Name, op, time.Since(start), row.Err())
	return row
}

// insertRow inserts one row into table and scans the generated id into id.
// When *id is already set it is written explicitly instead.
func (d *DB) insertRow(ctx context.Context, op, table string, cols []string, id *int64, args ...any) error {
	if *id != 0 {
		cols = append([]string{"id"}, cols...)
		args = append([]any{*id}, args...)
	}
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ") RETURNING id"
	return d.queryRow(ctx, op, query, args...).Scan(id)
}

// SyncSequences moves generated-id sequences past rows inserted with
// explicit ids.
func (d *DB) SyncSequences(ctx context.Context) error {
	if d.dialect.SequenceSync == "" {
		return nil
	}
	for _, table := range idTables {
		if _, err := d.exec(ctx, "sync_sequence", fmt.Sprintf(d.dialect.SequenceSync, table, table)); err != nil {
			return model.Persistence("sync sequence "+table, err)
		}
	}
	return nil
}

// idTables lists the tables with generated ids.
var idTables = []string{"events", "sessions", "member_snapshots", "game_snapshots"}

// rangeClause appends start_time-style bounds for a half-open range on col.
func (d *DB) rangeClause(sb *strings.Builder, args []any, col string, rng model.Range) []any {
	if !rng.Start.IsZero() {
		sb.WriteString(" AND " + col + " >= ?")
		args = append(args, d.t(rng.Start))
	}
	if !rng.End.IsZero() {
		sb.WriteString(" AND " + col + " < ?")
		args = append(args, d.t(rng.End))
	}
	return args
}
