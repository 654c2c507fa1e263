package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const sqliteAlias = "src"

// Open connects to the source identified by uri.
//
// Supported forms:
//   - duckdb:///path/to/file.duckdb, or a bare path ending in .duckdb
//   - sqlite:///path/to/file.db, or a bare path ending in .db, .sqlite, .sqlite3
//     (read through duckdb's sqlite extension)
//   - postgres://... or postgresql://...
//   - clickhouse://...
//   - s3://bucket/key.{duckdb,db,sqlite}: the object is downloaded to a
//     temporary directory that is removed on Close
//
// File-backed sources are opened read-only.
func Open(ctx context.Context, log *slog.Logger, uri string) (*SQLSource, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		return openS3(ctx, log, uri)
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return openPostgres(ctx, log, uri)
	case strings.HasPrefix(uri, "clickhouse://"):
		return openClickHouse(ctx, log, uri)
	}
	if path, found := strings.CutPrefix(uri, "duckdb://"); found {
		return openDuckDB(ctx, log, path)
	}
	if path, found := strings.CutPrefix(uri, "sqlite://"); found {
		return openSQLite(ctx, log, path)
	}
	return openFile(ctx, log, uri)
}

func openFile(ctx context.Context, log *slog.Logger, path string) (*SQLSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".duckdb", ".ddb":
		return openDuckDB(ctx, log, path)
	case ".db", ".sqlite", ".sqlite3":
		return openSQLite(ctx, log, path)
	}
	return nil, fmt.Errorf("unsupported source %q: expected duckdb://, sqlite://, postgres://, clickhouse://, s3:// or a .duckdb/.db/.sqlite path", Redact(path))
}

func statFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDataAccess, err)
	}
	return abs, nil
}

func openDuckDB(ctx context.Context, log *slog.Logger, path string) (*SQLSource, error) {
	abs, err := statFile(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", abs+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDataAccess, err)
	}
	log.Debug("source: opened duckdb database", "path", abs)
	return NewSQLSource(ctx, log, db, DialectDuckDB)
}

func openSQLite(ctx context.Context, log *slog.Logger, path string) (*SQLSource, error) {
	abs, err := statFile(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDataAccess, err)
	}
	log.Debug("source: attaching sqlite database", "path", abs)
	return NewSQLSource(ctx, log, db, DialectDuckDB,
		"INSTALL sqlite",
		"LOAD sqlite",
		fmt.Sprintf("ATTACH '%s' AS %s (TYPE sqlite, READ_ONLY)", strings.ReplaceAll(abs, "'", "''"), sqliteAlias),
		"USE "+sqliteAlias,
	)
}

func openPostgres(ctx context.Context, log *slog.Logger, uri string) (*SQLSource, error) {
	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open postgres: %w", ErrDataAccess, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to reach postgres: %w", ErrDataAccess, err)
	}
	log.Debug("source: connected to postgres", "uri", Redact(uri))
	return NewSQLSource(ctx, log, db, DialectPostgres)
}

func openClickHouse(ctx context.Context, log *slog.Logger, uri string) (*SQLSource, error) {
	opts, err := clickhouse.ParseDSN(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clickhouse DSN: %w", err)
	}
	db := clickhouse.OpenDB(opts)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to reach clickhouse: %w", ErrDataAccess, err)
	}
	log.Debug("source: connected to clickhouse", "addr", opts.Addr, "database", opts.Auth.Database)
	return NewSQLSource(ctx, log, db, DialectClickHouse)
}

// Redact hides the password of a URI for logging.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}
