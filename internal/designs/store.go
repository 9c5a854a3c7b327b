// Package designs keeps design records, whose images seed per-design edit
// sessions, and the usage ledger of image generations.
package designs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/manash/designedit/internal/security"
)

const schema = `
CREATE TABLE IF NOT EXISTS designs (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    image_path TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS usage_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    cost REAL NOT NULL DEFAULT 0,
    usage_json TEXT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_designs_created_at ON designs(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_log_session_id ON usage_log(session_id);
CREATE INDEX IF NOT EXISTS idx_usage_log_provider ON usage_log(provider);
`

var (
	ErrDesignNotFound = errors.New("design not found")
	ErrSeedMissing    = errors.New("design image is missing")
	ErrDesignExists   = errors.New("design already exists")
)

type Design struct {
	ID        string
	Title     string
	ImagePath string
	CreatedAt time.Time
}

// Store is backed by SQLite. Design image paths are keys relative to the
// designs image root.
type Store struct {
	db        *sql.DB
	imageRoot string
}

func NewStore(dbPath, imageRoot string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(imageRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create design image directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, imageRoot: imageRoot}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ImageRoot() string {
	return s.imageRoot
}

// CreateDesign copies data into the image root and records a new design.
// The id is sanitized to an alphanumeric string; an empty id gets a fresh
// one.
func (s *Store) CreateDesign(ctx context.Context, id, title string, data []byte, ext string) (*Design, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("design image is empty")
	}
	id = security.SanitizeSessionID(id)
	if id == "" {
		id = security.SanitizeSessionID(uuid.NewString())
	}
	if ext == "" {
		ext = ".png"
	}

	if _, err := s.GetDesign(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDesignExists, id)
	}

	key := id + ext
	path, err := security.ResolveKey(s.imageRoot, key)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write design image: %w", err)
	}

	d := &Design{ID: id, Title: title, ImagePath: key, CreatedAt: time.Now().UTC()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO designs (id, title, image_path, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Title, d.ImagePath, d.CreatedAt)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to insert design: %w", err)
	}
	return d, nil
}

func (s *Store) GetDesign(ctx context.Context, id string) (*Design, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, image_path, created_at FROM designs WHERE id = ?`, id)

	d := &Design{}
	if err := row.Scan(&d.ID, &d.Title, &d.ImagePath, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDesignNotFound, id)
		}
		return nil, err
	}
	return d, nil
}

func (s *Store) ListDesigns(ctx context.Context) ([]*Design, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, image_path, created_at FROM designs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Design
	for rows.Next() {
		d := &Design{}
		if err := rows.Scan(&d.ID, &d.Title, &d.ImagePath, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindSeedImage returns the image bytes of a design record.
func (s *Store) FindSeedImage(ctx context.Context, id string) ([]byte, error) {
	d, err := s.GetDesign(ctx, id)
	if err != nil {
		return nil, err
	}
	path, err := security.ResolveKey(s.imageRoot, d.ImagePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSeedMissing, id, err)
	}
	return data, nil
}
