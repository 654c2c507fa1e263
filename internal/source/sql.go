package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lib/pq"

	"github.com/exampleco/sensorcube/internal/frame"
)

// Dialect holds the per-engine SQL the source needs.
type Dialect struct {
	Name string
	// ListTablesQuery returns one column of base table names in the
	// connection's current database and schema.
	ListTablesQuery string
}

var (
	DialectDuckDB = Dialect{
		Name: "duckdb",
		ListTablesQuery: `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_catalog = current_database()
				AND table_schema = current_schema()
				AND table_type = 'BASE TABLE'
			ORDER BY table_name
		`,
	}
	DialectPostgres = Dialect{
		Name: "postgres",
		ListTablesQuery: `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = current_schema()
				AND table_type = 'BASE TABLE'
			ORDER BY table_name
		`,
	}
	DialectClickHouse = Dialect{
		Name: "clickhouse",
		ListTablesQuery: `
			SELECT name
			FROM system.tables
			WHERE database = currentDatabase()
			ORDER BY name
		`,
	}
)

// SQLSource reads tables over a single pinned database/sql connection, so
// that per-connection state (USE, ATTACH) applies to every query.
type SQLSource struct {
	log     *slog.Logger
	db      *sql.DB
	conn    *sql.Conn
	dialect Dialect
	// local is the downloaded copy of a remote file source.
	local   string
	cleanup []func() error
}

// NewSQLSource pins a connection from db and runs the setup statements on
// it. On error the db is closed.
func NewSQLSource(ctx context.Context, log *slog.Logger, db *sql.DB, dialect Dialect, setup ...string) (*SQLSource, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to open connection: %w", ErrDataAccess, err)
	}
	for _, stmt := range setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			db.Close()
			return nil, fmt.Errorf("%w: failed to run %q: %w", ErrDataAccess, stmt, err)
		}
	}
	return &SQLSource{
		log:     log,
		db:      db,
		conn:    conn,
		dialect: dialect,
	}, nil
}

func (s *SQLSource) Dialect() Dialect {
	return s.dialect
}

// ListTables returns base table names sorted by name.
func (s *SQLSource) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, s.dialect.ListTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tables: %w", ErrDataAccess, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan table name: %w", ErrDataAccess, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating tables: %w", ErrDataAccess, err)
	}
	// Collations differ between engines; keep a byte-wise order everywhere.
	slices.Sort(names)
	s.log.Debug("source: listed tables", "dialect", s.dialect.Name, "tables", names)
	return names, nil
}

// ReadTable reads every row and column of the named table in storage order.
func (s *SQLSource) ReadTable(ctx context.Context, name string) (*frame.Frame, error) {
	names, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(names, name) {
		return nil, fmt.Errorf("%w: table %q does not exist", ErrDataAccess, name)
	}

	rows, err := s.conn.QueryContext(ctx, "SELECT * FROM "+pq.QuoteIdentifier(name))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read table %s: %w", ErrDataAccess, name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get columns of %s: %w", ErrDataAccess, name, err)
	}

	var records [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row of %s: %w", ErrDataAccess, name, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating rows of %s: %w", ErrDataAccess, name, err)
	}

	return frame.FromRows(name, columns, records)
}

func (s *SQLSource) Close() error {
	var errs []error
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	for _, fn := range s.cleanup {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
