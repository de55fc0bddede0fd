// Package store mirrors crawler output into durable local stores: a SQLite
// catalog of every known card and a bleve full-text index over it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
)

// Stage names recorded with each catalog row.
const (
	StageDiscover = "discover"
	StageHarvest  = "harvest"
)

func errClosed() *crawlerr.CrawlError {
	return crawlerr.New(crawlerr.ErrCodeInternal, "store is closed", nil)
}

// Catalog is a SQLite table of cards keyed by identifier.
type Catalog struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenCatalog opens or creates the catalog at path. An empty path opens an
// in-memory catalog.
func OpenCatalog(path string) (*Catalog, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, crawlerr.WriteError("failed to create catalog directory", err).WithDetail("path", path)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to open catalog", err).WithDetail("path", path)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to open catalog", err).
				WithDetail("path", path).
				WithSuggestion("check that catalog.path points to a SQLite database")
		}
	}

	c := &Catalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, crawlerr.WriteError("failed to initialize catalog schema", err).WithDetail("path", path)
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- data is the JSON-encoded CSV row; columns from later stages are merged in
	CREATE TABLE IF NOT EXISTS cards (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier TEXT NOT NULL UNIQUE,
		stage      TEXT NOT NULL,
		data       TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Upsert stores rows under stage. For an identifier already present, the
// new row's columns overwrite the stored ones and other stored columns are
// kept. Rows without identifier are ignored.
func (c *Catalog) Upsert(ctx context.Context, stage string, rows []rowsink.Row) error {
	if len(rows) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return c.writeError("failed to begin catalog transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for _, r := range rows {
		id := r.Identifier()
		if id == "" {
			continue
		}

		merged := rowsink.Row{}
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT data FROM cards WHERE identifier = ?`, id).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return c.readError("failed to read catalog row", err).WithDetail("identifier", id)
		default:
			if jerr := json.Unmarshal([]byte(existing), &merged); jerr != nil {
				slog.Warn("catalog_row_corrupt", slog.String("identifier", id), slog.String("error", jerr.Error()))
				merged = rowsink.Row{}
			}
		}
		for k, v := range r {
			merged[k] = v
		}
		merged[rowsink.ColIdentifier] = id

		data, err := json.Marshal(merged)
		if err != nil {
			return crawlerr.New(crawlerr.ErrCodeInternal, "failed to encode catalog row", err).WithDetail("identifier", id)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cards (identifier, stage, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(identifier) DO UPDATE SET stage = excluded.stage, data = excluded.data, updated_at = excluded.updated_at`,
			id, stage, string(data), now)
		if err != nil {
			return c.writeError("failed to upsert catalog row", err).WithDetail("identifier", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return c.writeError("failed to commit catalog", err)
	}
	return nil
}

// Identifiers returns every stored identifier in insertion order.
func (c *Catalog) Identifiers(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed()
	}

	rows, err := c.db.QueryContext(ctx, `SELECT identifier FROM cards ORDER BY seq`)
	if err != nil {
		return nil, c.readError("failed to query catalog identifiers", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, c.readError("failed to scan catalog identifier", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, c.readError("failed to query catalog identifiers", err)
	}
	return ids, nil
}

// Rows returns every stored row in insertion order.
func (c *Catalog) Rows(ctx context.Context) ([]rowsink.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed()
	}

	rows, err := c.db.QueryContext(ctx, `SELECT identifier, data FROM cards ORDER BY seq`)
	if err != nil {
		return nil, c.readError("failed to query catalog rows", err)
	}
	defer rows.Close()

	var out []rowsink.Row
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, c.readError("failed to scan catalog row", err)
		}
		r := rowsink.Row{}
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			slog.Warn("catalog_row_corrupt", slog.String("identifier", id), slog.String("error", err.Error()))
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, c.readError("failed to query catalog rows", err)
	}
	return out, nil
}

// Count returns the number of stored cards.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errClosed()
	}

	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, c.readError("failed to count catalog rows", err)
	}
	return n, nil
}

func (c *Catalog) readError(msg string, err error) *crawlerr.CrawlError {
	return crawlerr.New(crawlerr.ErrCodeReadFailed, msg, err).WithDetail("path", c.path)
}

func (c *Catalog) writeError(msg string, err error) *crawlerr.CrawlError {
	return crawlerr.WriteError(msg, err).WithDetail("path", c.path)
}

// Path returns the database path ("" for in-memory).
func (c *Catalog) Path() string { return c.path }

// Close checkpoints the WAL and closes the database. Idempotent.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return c.db.Close()
}
