package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/cloudsync/internal/cloudsync"
)

var (
	ErrProjectExists   = errors.New("project already exists")
	ErrEditedElsewhere = errors.New("project edited by another process")
)

// dbHeader is the row shape of the headers table
type dbHeader struct {
	ID               string `db:"id"`
	Name             string `db:"name"`
	BlobID           string `db:"blob_id"`
	BlobVersion      string `db:"blob_version"`
	BlobCurrent      bool   `db:"blob_current"`
	IsDeleted        bool   `db:"is_deleted"`
	ModificationTime string `db:"modification_time"`
	PubID            string `db:"pub_id"`
	PubCurrent       bool   `db:"pub_current"`
	Target           string `db:"target"`
	EditSeq          int64  `db:"edit_seq"`
}

func toRow(h *cloudsync.Header) *dbHeader {
	c := h.Clone()
	return &dbHeader{
		ID:               c.ID,
		Name:             c.Name,
		BlobID:           c.BlobID,
		BlobVersion:      c.BlobVersion,
		BlobCurrent:      c.BlobCurrent,
		IsDeleted:        c.IsDeleted,
		ModificationTime: c.ModificationTime.UTC().Format(time.RFC3339Nano),
		PubID:            c.PubID,
		PubCurrent:       c.PubCurrent,
		Target:           c.Target,
	}
}

func (r *dbHeader) toHeader() (*cloudsync.Header, error) {
	modTime, err := time.Parse(time.RFC3339Nano, r.ModificationTime)
	if err != nil {
		return nil, fmt.Errorf("parse modification time of %s: %w", r.ID, err)
	}
	return &cloudsync.Header{
		ID:               r.ID,
		Name:             r.Name,
		BlobID:           r.BlobID,
		BlobVersion:      r.BlobVersion,
		BlobCurrent:      r.BlobCurrent,
		IsDeleted:        r.IsDeleted,
		ModificationTime: modTime,
		PubID:            r.PubID,
		PubCurrent:       r.PubCurrent,
		Target:           r.Target,
	}, nil
}

const insertHeader = `
INSERT INTO headers (id, name, blob_id, blob_version, blob_current, is_deleted, modification_time, pub_id, pub_current, target)
VALUES (:id, :name, :blob_id, :blob_version, :blob_current, :is_deleted, :modification_time, :pub_id, :pub_current, :target)
`

// updateSynced writes the whole row, but only when no user edit landed since
// the row was loaded.
const updateSynced = `
UPDATE headers SET
    name = :name,
    blob_id = :blob_id,
    blob_version = :blob_version,
    blob_current = :blob_current,
    is_deleted = :is_deleted,
    modification_time = :modification_time,
    pub_id = :pub_id,
    pub_current = :pub_current,
    target = :target
WHERE id = :id AND edit_seq = :edit_seq
`

// updateRemoteState records the remote identity of a row that was edited
// meanwhile. The local content stays dirty.
const updateRemoteState = `
UPDATE headers SET
    blob_id = :blob_id,
    blob_version = :blob_version,
    blob_current = 0,
    is_deleted = CASE WHEN :blob_version = 'DELETED' THEN 1 ELSE is_deleted END
WHERE id = :id
`

// updateEdited writes the user owned columns and bumps edit_seq. The remote
// state columns belong to sync and are left alone.
const updateEdited = `
UPDATE headers SET
    name = :name,
    blob_current = MIN(blob_current, :blob_current),
    is_deleted = :is_deleted,
    modification_time = :modification_time,
    target = :target,
    edit_seq = edit_seq + 1
WHERE id = :id
`

// Store is the sqlite backed project store. Headers are loaded once and kept
// as live records, so a header handed out by GetHeaders is the same value
// later passed back to Save.
//
// Several stores may share one database, e.g. a daemon and a CLI command.
// Each row carries an edit sequence bumped by Edit and Remove; Save only
// overwrites rows whose sequence still matches the one this store loaded.
type Store struct {
	db      *sqlx.DB
	headers map[string]*cloudsync.Header
	seqs    map[string]int64
	mu      sync.RWMutex
}

func NewStore(db *sqlx.DB) (*Store, error) {
	s := &Store{
		db:      db,
		headers: make(map[string]*cloudsync.Header),
		seqs:    make(map[string]int64),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var rows []dbHeader
	if err := s.db.Select(&rows, `SELECT * FROM headers`); err != nil {
		return fmt.Errorf("load headers: %w", err)
	}
	for _, row := range rows {
		h, err := row.toHeader()
		if err != nil {
			return err
		}
		s.headers[h.ID] = h
		s.seqs[h.ID] = row.EditSeq
	}
	slog.Debug("workspace store loaded", "headers", len(s.headers))
	return nil
}

// GetHeaders returns every header, uninstalled ones included, ordered by name.
func (s *Store) GetHeaders(_ context.Context) ([]*cloudsync.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cloudsync.Header, 0, len(s.headers))
	for _, h := range s.headers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Clone(), out[j].Clone()
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Get returns the live header for id.
func (s *Store) Get(id string) (*cloudsync.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, cloudsync.ErrNotFound)
	}
	return h, nil
}

func (s *Store) GetText(ctx context.Context, id string) (cloudsync.Text, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	var rows []struct {
		Path    string `db:"path"`
		Content string `db:"content"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT path, content FROM texts WHERE header_id = ?`, id); err != nil {
		return nil, fmt.Errorf("read text %s: %w", id, err)
	}

	text := make(cloudsync.Text, len(rows))
	for _, row := range rows {
		text[row.Path] = row.Content
	}
	return text, nil
}

// Save persists h and, when text is non-nil, replaces its content. When the
// row was edited through another store since it was loaded, only the remote
// identity and version of h are recorded and h is marked stale; replacing the
// text then fails with ErrEditedElsewhere.
func (s *Store) Save(ctx context.Context, h *cloudsync.Header, text cloudsync.Text) error {
	row := toRow(h)
	row.EditSeq = s.seq(row.ID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, updateSynced, row)
	if err != nil {
		return fmt.Errorf("save header %s: %w", row.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save header %s: %w", row.ID, err)
	}

	if n == 0 {
		var seq int64
		err := tx.GetContext(ctx, &seq, `SELECT edit_seq FROM headers WHERE id = ?`, row.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := insertRow(ctx, tx, row, text); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			s.remember(h, 0)
			return nil
		case err != nil:
			return fmt.Errorf("check %s: %w", row.ID, err)
		}

		if text != nil {
			return fmt.Errorf("save %s: %w", row.ID, ErrEditedElsewhere)
		}
		if _, err := tx.NamedExecContext(ctx, updateRemoteState, row); err != nil {
			return fmt.Errorf("save remote state %s: %w", row.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		h.MarkStale()
		slog.Info("workspace store", "id", row.ID, "edited", "elsewhere", "blobVersion", row.BlobVersion)
		return nil
	}

	if err := replaceText(ctx, tx, row.ID, text); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.remember(h, row.EditSeq)
	return nil
}

// Duplicate stores a copy of h under a fresh id with the given content.
func (s *Store) Duplicate(ctx context.Context, h *cloudsync.Header, text cloudsync.Text) (*cloudsync.Header, error) {
	dup := h.Clone()
	dup.ID = uuid.NewString()
	dup.ModificationTime = time.Now().UTC()
	if err := s.insert(ctx, dup, text); err != nil {
		return nil, err
	}
	return dup, nil
}

// Import stores a header that does not exist locally yet.
func (s *Store) Import(ctx context.Context, h *cloudsync.Header, text cloudsync.Text) error {
	if _, err := s.Get(h.ID); err == nil {
		return fmt.Errorf("import %s: %w", h.ID, ErrProjectExists)
	}
	if text == nil {
		text = cloudsync.Text{}
	}
	return s.insert(ctx, h, text)
}

// Create adds a new, never synced project.
func (s *Store) Create(ctx context.Context, name string, text cloudsync.Text) (*cloudsync.Header, error) {
	h := &cloudsync.Header{
		ID:               uuid.NewString(),
		Name:             name,
		ModificationTime: time.Now().UTC(),
	}
	if text == nil {
		text = cloudsync.Text{}
	}
	if err := s.Import(ctx, h, text); err != nil {
		return nil, err
	}
	return h, nil
}

// Edit writes one file of a project and records the local edit.
func (s *Store) Edit(ctx context.Context, id, path, content string) error {
	h, err := s.Get(id)
	if err != nil {
		return err
	}
	text, err := s.GetText(ctx, id)
	if err != nil {
		return err
	}
	text[path] = content
	h.MarkEdited()
	return s.saveEdit(ctx, h, text)
}

// Remove flags a project for deletion on the next pass.
func (s *Store) Remove(ctx context.Context, id string) error {
	h, err := s.Get(id)
	if err != nil {
		return err
	}
	h.MarkDeleted()
	return s.saveEdit(ctx, h, nil)
}

func (s *Store) seq(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seqs[id]
}

func (s *Store) remember(h *cloudsync.Header, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[h.ID] = h
	s.seqs[h.ID] = seq
}

func (s *Store) insert(ctx context.Context, h *cloudsync.Header, text cloudsync.Text) error {
	row := toRow(h)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM headers WHERE id = ?`, row.ID)
	if err == nil {
		return fmt.Errorf("insert %s: %w", row.ID, ErrProjectExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check %s: %w", row.ID, err)
	}

	if err := insertRow(ctx, tx, row, text); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.remember(h, 0)
	return nil
}

// saveEdit persists a user edit of h and moves its edit sequence.
func (s *Store) saveEdit(ctx context.Context, h *cloudsync.Header, text cloudsync.Text) error {
	row := toRow(h)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, updateEdited, row); err != nil {
		return fmt.Errorf("save edit %s: %w", row.ID, err)
	}
	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT edit_seq FROM headers WHERE id = ?`, row.ID); err != nil {
		return fmt.Errorf("save edit %s: %w", row.ID, err)
	}
	if err := replaceText(ctx, tx, row.ID, text); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.remember(h, seq)
	return nil
}

func insertRow(ctx context.Context, tx *sqlx.Tx, row *dbHeader, text cloudsync.Text) error {
	if _, err := tx.NamedExecContext(ctx, insertHeader, row); err != nil {
		return fmt.Errorf("insert header %s: %w", row.ID, err)
	}
	if text == nil {
		return nil
	}
	return replaceText(ctx, tx, row.ID, text)
}

// replaceText swaps the content of a project. A nil text keeps it.
func replaceText(ctx context.Context, tx *sqlx.Tx, id string, text cloudsync.Text) error {
	if text == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM texts WHERE header_id = ?`, id); err != nil {
		return fmt.Errorf("clear text %s: %w", id, err)
	}
	for path, content := range text {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO texts (header_id, path, content) VALUES (?, ?, ?)`,
			id, path, content,
		); err != nil {
			return fmt.Errorf("save text %s/%s: %w", id, path, err)
		}
	}
	return nil
}

var _ cloudsync.LocalStore = (*Store)(nil)
