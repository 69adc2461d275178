// Package sqlite persists record tables into a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/menu-scraper/internal/record"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is a single-writer SQLite store. Every column is TEXT; tables and
// columns are created on demand.
type Store struct {
	db   *sql.DB
	path string
}

var _ scrape.Store = (*Store)(nil)

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DistinctValues returns the distinct non-null values of column in table.
func (s *Store) DistinctValues(ctx context.Context, column, table string) ([]string, error) {
	if err := checkIdentifiers(table, column); err != nil {
		return nil, err
	}
	// A double-quoted name that matches no column is read by SQLite as a
	// string literal, so the column has to be confirmed first.
	existing, err := tableColumns(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: %s", scrape.ErrTableAbsent, table)
	}
	if _, ok := existing[column]; !ok {
		return nil, fmt.Errorf("table %s has no column %s", table, column)
	}

	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL`,
		quote(column), quote(table), quote(column))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, fmt.Errorf("%w: %s: %w", scrape.ErrTableAbsent, table, err)
		}
		return nil, fmt.Errorf("select distinct from %s: %w", table, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureColumns(ctx, tx, table, columns); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quote(table), strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < records.Len(); i++ {
		values := records.Values(i)
		args := make([]any, len(values))
		for j, v := range values {
			if v != nil {
				args[j] = *v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", i, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func ensureColumns(ctx context.Context, tx *sql.Tx, table string, columns []string) error {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quote(c) + " TEXT"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`,
		quote(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if _, ok := existing[c]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT`, quote(table), quote(c))); err != nil {
			return fmt.Errorf("add column %s to %s: %w", c, table, err)
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tableColumns lists the columns of table; a missing table has none.
func tableColumns(ctx context.Context, q querier, table string) (map[string]struct{}, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quote(table)))
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		out[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column info: %w", err)
	}
	return out, nil
}

func isNoSuchTable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && strings.Contains(err.Error(), "no such table")
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
	return `"` + ident + `"`
}
