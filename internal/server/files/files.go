// Package files stores project bundles for the server, one row per file,
// scoped by owner.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const Schema = `
CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    version TEXT NOT NULL,
    updated_at TEXT NOT NULL, -- RFC3339Nano
    content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner);
`

type FileService struct {
	db *sqlx.DB
}

func NewFileService(db *sqlx.DB) *FileService {
	return &FileService{db: db}
}

// List returns the owner's files without content, oldest first.
func (s *FileService) List(ctx context.Context, owner string) ([]*File, error) {
	var rows []dbFile
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, owner, name, version, updated_at, '' AS content FROM files WHERE owner = ? ORDER BY updated_at, id", owner)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	out := make([]*File, 0, len(rows))
	for i := range rows {
		f, err := rows[i].toFile(false)
		if err != nil {
			slog.Error("files skip row", "id", rows[i].ID, "error", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *FileService) Get(ctx context.Context, owner, id string) (*File, error) {
	var row dbFile
	err := s.db.GetContext(ctx, &row,
		"SELECT id, owner, name, version, updated_at, content FROM files WHERE id = ? AND owner = ?", id, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return row.toFile(true)
}

// Create stores a new file under a fresh id.
func (s *FileService) Create(ctx context.Context, owner, name string, content map[string]string) (*File, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	now := time.Now().UTC()
	row := &dbFile{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		Version:   uuid.NewString(),
		UpdatedAt: now.Format(time.RFC3339Nano),
		Content:   string(data),
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO files (id, owner, name, version, updated_at, content)
		VALUES (:id, :owner, :name, :version, :updated_at, :content)`, row)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	slog.Debug("files create", "id", row.ID, "owner", owner, "version", row.Version)
	return &File{ID: row.ID, Name: name, Version: row.Version, UpdatedAt: now}, nil
}

// Update replaces the content of an existing file. An empty baseVersion
// writes unconditionally; otherwise it must equal the current version.
func (s *FileService) Update(ctx context.Context, owner, id, baseVersion, name string, content map[string]string) (*File, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.GetContext(ctx, &current, "SELECT version FROM files WHERE id = ? AND owner = ?", id, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get version of %s: %w", id, err)
	}

	if baseVersion != "" && baseVersion != current {
		return nil, &VersionConflictError{ID: id, BaseVersion: baseVersion, CurrentVersion: current}
	}

	now := time.Now().UTC()
	version := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		"UPDATE files SET name = ?, version = ?, updated_at = ?, content = ? WHERE id = ? AND owner = ?",
		name, version, now.Format(time.RFC3339Nano), string(data), id, owner)
	if err != nil {
		return nil, fmt.Errorf("update file %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update %s: %w", id, err)
	}

	slog.Debug("files update", "id", id, "owner", owner, "base", baseVersion, "version", version)
	return &File{ID: id, Name: name, Version: version, UpdatedAt: now}, nil
}

func (s *FileService) Delete(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFileNotFound
	}
	slog.Debug("files delete", "id", id, "owner", owner)
	return nil
}

func (r *dbFile) toFile(withContent bool) (*File, error) {
	updatedAt, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", r.ID, err)
	}
	f := &File{ID: r.ID, Name: r.Name, Version: r.Version, UpdatedAt: updatedAt}
	if withContent {
		if err := json.Unmarshal([]byte(r.Content), &f.Content); err != nil {
			return nil, fmt.Errorf("decode content of %s: %w", r.ID, err)
		}
	}
	return f, nil
}
