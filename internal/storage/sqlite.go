// Package storage provides the SQLite embedding archive.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/embedapi/internal/models"
)

// SQLiteArchive keeps every generated embedding in a SQLite table, one row per
// cache key. Rows are never updated; a second save of the same key is ignored.
type SQLiteArchive struct {
	db   *sql.DB
	path string
}

// NewSQLiteArchive opens or creates the archive at dbPath. Parent directories
// are created if they do not exist.
func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteArchive{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		cache_key TEXT NOT NULL UNIQUE,
		backend TEXT NOT NULL,
		model TEXT NOT NULL,
		text TEXT NOT NULL,
		vector TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_backend ON embeddings(backend);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveEmbedding inserts e unless its key is already archived.
func (s *SQLiteArchive) SaveEmbedding(ctx context.Context, e *models.ArchivedEmbedding) error {
	vectorJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO embeddings (cache_key, backend, model, text, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Key, string(e.Backend), e.Model, e.Text, string(vectorJSON), created,
	)
	if err != nil {
		return fmt.Errorf("failed to save embedding %s: %w", e.Key, err)
	}
	return nil
}

// GetEmbedding returns the archived embedding for key.
func (s *SQLiteArchive) GetEmbedding(ctx context.Context, key string) (*models.ArchivedEmbedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, backend, model, text, vector, created_at
		 FROM embeddings WHERE cache_key = ?`, key)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("embedding not found: %s", key)
	}
	return e, err
}

// Recent returns up to limit of the newest embeddings, oldest first, so that
// inserting them in order reproduces their original insertion order.
func (s *SQLiteArchive) Recent(ctx context.Context, limit int) ([]*models.ArchivedEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, backend, model, text, vector, created_at FROM (
			SELECT * FROM embeddings ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ArchivedEmbedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of archived embeddings.
func (s *SQLiteArchive) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// Path returns the database file path.
func (s *SQLiteArchive) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(sc scanner) (*models.ArchivedEmbedding, error) {
	var (
		e          models.ArchivedEmbedding
		backend    string
		vectorJSON string
	)
	if err := sc.Scan(&e.Key, &backend, &e.Model, &e.Text, &vectorJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Backend = models.Backend(backend)
	if err := json.Unmarshal([]byte(vectorJSON), &e.Vector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector for %s: %w", e.Key, err)
	}
	return &e, nil
}
