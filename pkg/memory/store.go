package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// db wraps the shared SQLite handle backing all three collections. It is
// opened once at startup and closed once at shutdown; all sessions share it.
type db struct {
	*sql.DB
	path string
	// dimension of the vector tables, 0 when no embedding provider is
	// configured and vector tables are absent.
	dimension int
}

func openDB(path string, dimension int) (*db, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &db{DB: sqlDB, path: path, dimension: dimension}
	if err := d.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := d.initSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *db) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := d.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (d *db) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at);

		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS summaries (
			session_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			summary TEXT NOT NULL,
			topics TEXT NOT NULL,
			tool_usage TEXT NOT NULL,
			message_count INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_summaries_created ON summaries(created_at);

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := d.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	if d.dimension > 0 {
		if err := d.checkDimension(); err != nil {
			return err
		}
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS fact_embeddings USING vec0(
				fact_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
			CREATE VIRTUAL TABLE IF NOT EXISTS summary_embeddings USING vec0(
				session_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, d.dimension, d.dimension)
		if _, err := d.Exec(vectorSchema); err != nil {
			return fmt.Errorf("create vector tables: %w", err)
		}
	}

	return nil
}

// checkDimension refuses to open a store whose vector tables were created for
// a different embedding dimensionality. A store must never mix dimensions.
func (d *db) checkDimension() error {
	var stored string
	err := d.QueryRow("SELECT value FROM metadata WHERE key = 'embedding_dimension'").Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = d.Exec(
			"INSERT INTO metadata (key, value) VALUES ('embedding_dimension', ?)",
			strconv.Itoa(d.dimension),
		)
		if err != nil {
			return fmt.Errorf("record embedding dimension: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if stored != strconv.Itoa(d.dimension) {
		return fmt.Errorf("store was created with embedding dimension %s, provider produces %d", stored, d.dimension)
	}
	return nil
}
