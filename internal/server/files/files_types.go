package files

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidID    = errors.New("invalid file id")
)

// File is one stored project bundle. Content is omitted from listings.
type File struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Content   map[string]string `json:"content,omitempty"`
}

// VersionConflictError is returned when a conditional write names a version
// that is no longer current.
type VersionConflictError struct {
	ID             string
	BaseVersion    string
	CurrentVersion string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q: expected %q, current %q", e.ID, e.BaseVersion, e.CurrentVersion)
}

// dbFile is the row shape of the files table
type dbFile struct {
	ID        string `db:"id"`
	Owner     string `db:"owner"`
	Name      string `db:"name"`
	Version   string `db:"version"`
	UpdatedAt string `db:"updated_at"`
	Content   string `db:"content"`
}
