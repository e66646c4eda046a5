package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/cloudsync/internal/db"
	"github.com/openmined/cloudsync/internal/utils"
)

const (
	logsDir     = "logs"
	metadataDir = ".data"
	lockFile    = "cloudsync.lock"
	dbFile      = "workspace.db"
	changedFile = "changed"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the on-disk home of the local store: the sqlite database,
// logs and the single instance lock.
type Workspace struct {
	Root        string
	MetadataDir string
	LogsDir     string
	DBPath      string
	// ChangeMarker is touched by commands that edit the store so a running
	// daemon picks up the edit without waiting for its timer.
	ChangeMarker string

	flock *flock.Flock
	db    *sqlx.DB
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metaDir := filepath.Join(root, metadataDir)
	return &Workspace{
		Root:         root,
		MetadataDir:  metaDir,
		LogsDir:      filepath.Join(root, logsDir),
		DBPath:       filepath.Join(metaDir, dbFile),
		ChangeMarker: filepath.Join(metaDir, changedFile),
		flock:        flock.New(filepath.Join(metaDir, lockFile)),
	}, nil
}

// Lock takes the single instance lock. Only the daemon needs it; one-shot
// commands share the database through sqlite's own locking.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// never remove a lock file held by another process
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Open creates the layout and opens the database.
func (w *Workspace) Open() error {
	if w.db != nil {
		return nil
	}

	for _, dir := range []string{w.Root, w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	conn, err := db.NewSqliteDB(db.WithPath(w.DBPath), db.WithMaxOpenConns(1), db.WithSchema(schema))
	if err != nil {
		return fmt.Errorf("open workspace db: %w", err)
	}
	w.db = conn

	slog.Debug("workspace", "root", w.Root, "db", w.DBPath)
	return nil
}

func (w *Workspace) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}

// Store returns the project store. Open must have been called.
func (w *Workspace) Store() (*Store, error) {
	if w.db == nil {
		return nil, errors.New("workspace not open")
	}
	return NewStore(w.db)
}

// Storage returns the key/value store used for login state.
func (w *Workspace) Storage() (*KV, error) {
	if w.db == nil {
		return nil, errors.New("workspace not open")
	}
	return NewKV(w.db), nil
}

// MarkChanged touches ChangeMarker.
func (w *Workspace) MarkChanged() error {
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return err
	}
	return os.WriteFile(w.ChangeMarker, stamp, 0o644)
}
