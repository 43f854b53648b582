package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// UploadRecord is one accepted recording and the job it was handed to
type UploadRecord struct {
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	SourceType string    `json:"source_type"`
	JobID      string    `json:"job_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Catalog records accepted uploads in SQLite
type Catalog struct {
	db *sql.DB
}

// NewCatalog opens (or creates) the catalog database
func NewCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		job_id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_filename ON uploads(filename);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Catalog{db: db}, nil
}

// RecordUpload stores rec; a zero CreatedAt is set to now
func (c *Catalog) RecordUpload(ctx context.Context, rec UploadRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO uploads (filename, path, size, source_type, job_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		rec.Filename, rec.Path, rec.Size, rec.SourceType, rec.JobID, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// ListUploads returns up to limit records, newest first. An empty source
// matches every source type.
func (c *Catalog) ListUploads(ctx context.Context, source string, limit int) ([]UploadRecord, error) {
	query := `
	SELECT filename, path, size, source_type, job_id, created_at
	FROM uploads WHERE (? = '' OR source_type = ?)
	ORDER BY created_at DESC, id DESC LIMIT ?
	`
	rows, err := c.db.QueryContext(ctx, query, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	records := make([]UploadRecord, 0)
	for rows.Next() {
		var rec UploadRecord
		if err := rows.Scan(&rec.Filename, &rec.Path, &rec.Size, &rec.SourceType, &rec.JobID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestByFilename maps each filename to its most recent record
func (c *Catalog) LatestByFilename(ctx context.Context) (map[string]UploadRecord, error) {
	query := `
	SELECT filename, path, size, source_type, job_id, created_at
	FROM uploads ORDER BY created_at ASC, id ASC
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]UploadRecord)
	for rows.Next() {
		var rec UploadRecord
		if err := rows.Scan(&rec.Filename, &rec.Path, &rec.Size, &rec.SourceType, &rec.JobID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		latest[rec.Filename] = rec
	}
	return latest, rows.Err()
}

// Close closes the database connection
func (c *Catalog) Close() error {
	return c.db.Close()
}
