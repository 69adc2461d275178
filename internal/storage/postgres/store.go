// Package postgres persists record tables into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/menu-scraper/internal/record"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

// codeUndefinedTable is the SQLSTATE for a missing relation.
const codeUndefinedTable = "42P01"

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store reads completed targets from and appends record tables to Postgres.
// Every column is stored as TEXT; tables and columns are created on demand.
type Store struct {
	pool pool
}

var _ scrape.Store = (*Store)(nil)

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// DistinctValues returns the distinct non-null values of column in table.
func (s *Store) DistinctValues(ctx context.Context, column, table string) ([]string, error) {
	if err := checkIdentifiers(table, column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL`,
		quote(column), quote(table), quote(column))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(table, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(table, err)
	}
	return values, nil
}

// AppendRecords appends every row of records to table in one transaction.
// An empty table is a no-op.
func (s *Store) AppendRecords(ctx context.Context, table string, records *record.Table) error {
	if records.Len() == 0 {
		return nil
	}
	columns := records.Columns()
	if err := checkIdentifiers(table, columns...); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, createTableSQL(table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, addColumnsSQL(table, columns)); err != nil {
		return fmt.Errorf("add columns to %s: %w", table, err)
	}

	rows := make([][]any, records.Len())
	for i := range rows {
		values := records.Values(i)
		row := make([]any, len(values))
		for j, v := range values {
			if v != nil {
				row[j] = *v
			}
		}
		rows[i] = row
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy rows into %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	committed = true
	return nil
}

func createTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quote(c) + " TEXT"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quote(table), strings.Join(defs, ", "))
}

func addColumnsSQL(table string, columns []string) string {
	clauses := make([]string, len(columns))
	for i, c := range columns {
		clauses[i] = "ADD COLUMN IF NOT EXISTS " + quote(c) + " TEXT"
	}
	return fmt.Sprintf(`ALTER TABLE %s %s`, quote(table), strings.Join(clauses, ", "))
}

func classify(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable {
		return fmt.Errorf("%w: %s: %w", scrape.ErrTableAbsent, table, err)
	}
	return fmt.Errorf("select distinct from %s: %w", table, err)
}

func checkIdentifiers(table string, columns ...string) error {
	if !validIdentifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	for _, c := range columns {
		if !validIdentifier.MatchString(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
	}
	return nil
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
