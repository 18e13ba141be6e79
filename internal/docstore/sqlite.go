package docstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite stores documents as rows of a single table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) FindByName(ctx context.Context, name string) (DocumentID, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE name = ? ORDER BY created_at, rowid LIMIT 1`, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query document: %w", err)
	}
	return DocumentID(id), nil
}

func (s *SQLite) Fetch(ctx context.Context, id DocumentID) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE id = ?`, string(id)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return content, nil
}

func (s *SQLite) Replace(ctx context.Context, id DocumentID, content []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = ?, updated_at = ? WHERE id = ?`,
		content, time.Now().UnixNano(), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Create(ctx context.Context, name string, content []byte) (DocumentID, error) {
	id := uuid.NewString()
	now := time.Now().UnixNano()
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, content, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return DocumentID(id), nil
}

var _ Backend = (*SQLite)(nil)
