package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"wikirag/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	file_path    TEXT PRIMARY KEY,
	hash         TEXT NOT NULL,
	ingested_at  TEXT NOT NULL,
	chunks_count INTEGER NOT NULL,
	collection   TEXT NOT NULL
)`

// SQLiteStore keeps fingerprints in a single SQLite table. Each Put is one
// upsert statement, so concurrent writers never lose updates.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating manifest directory: %w", domain.ErrManifestIO, err)
		}
	}
	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrManifestIO, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %w", domain.ErrManifestIO, err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Get(ctx context.Context, filePath string) (*domain.FingerprintRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, ingested_at, chunks_count, collection FROM fingerprints WHERE file_path = ?`, filePath)
	rec := domain.FingerprintRecord{FilePath: filePath}
	var ingestedAt string
	err := row.Scan(&rec.Hash, &ingestedAt, &rec.ChunksCount, &rec.Collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrManifestIO, filePath, err)
	}
	rec.IngestedAt = parseTime(ingestedAt)
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec domain.FingerprintRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (file_path, hash, ingested_at, chunks_count, collection)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			hash = excluded.hash,
			ingested_at = excluded.ingested_at,
			chunks_count = excluded.chunks_count,
			collection = excluded.collection`,
		rec.FilePath, rec.Hash, rec.IngestedAt.Format(time.RFC3339Nano), rec.ChunksCount, rec.Collection)
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", domain.ErrManifestIO, rec.FilePath, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.FingerprintRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, hash, ingested_at, chunks_count, collection FROM fingerprints ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", domain.ErrManifestIO, err)
	}
	defer rows.Close()

	var out []domain.FingerprintRecord
	for rows.Next() {
		var (
			rec        domain.FingerprintRecord
			ingestedAt string
		)
		if err := rows.Scan(&rec.FilePath, &rec.Hash, &ingestedAt, &rec.ChunksCount, &rec.Collection); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrManifestIO, err)
		}
		rec.IngestedAt = parseTime(ingestedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrManifestIO, err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
