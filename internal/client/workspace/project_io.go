package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/openmined/cloudsync/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	manifestFile = "cloudsync.yaml"

	// projects are text only; larger files are skipped on import
	maxImportFileSize = 1 << 20
)

var ErrUnsafePath = errors.New("path escapes the export directory")

// Manifest is written next to exported files so a later import can be
// traced back to its project.
type Manifest struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	BlobID      string    `yaml:"blob_id,omitempty"`
	BlobVersion string    `yaml:"blob_version,omitempty"`
	Exported    time.Time `yaml:"exported"`
	Files       []string  `yaml:"files"`
}

// ImportDir reads every non ignored text file under dir into a new project
// named after the directory.
func ImportDir(ctx context.Context, store *Store, dir string, name string) (*cloudsync.Header, error) {
	root, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("import %s: not a directory", root)
	}
	if name == "" {
		name = filepath.Base(root)
	}

	ignore := NewIgnoreList(root)
	ignore.Load()

	text := cloudsync.Text{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ignore.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxImportFileSize {
			slog.Warn("import skip large file", "path", rel, "size", info.Size())
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			slog.Warn("import skip binary file", "path", rel)
			return nil
		}
		text[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", root, err)
	}
	delete(text, cloudsync.HeaderKey)

	h, err := store.Create(ctx, name, text)
	if err != nil {
		return nil, err
	}
	slog.Info("project imported", "id", h.ID, "name", name, "files", len(text))
	return h, nil
}

// ExportDir writes the project's files below dir. With includes set, only
// paths matching at least one doublestar pattern are written.
func ExportDir(ctx context.Context, store *Store, id string, dir string, includes []string) (*Manifest, error) {
	for _, pattern := range includes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	h, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	text, err := store.GetText(ctx, id)
	if err != nil {
		return nil, err
	}
	root, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(text))
	for path := range text {
		if matchesAny(path, includes) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if !utils.IsSubPath(rel) {
			return nil, fmt.Errorf("export %q: %w", rel, ErrUnsafePath)
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if err := utils.WriteFileAtomic(target, []byte(text[rel]), 0o644); err != nil {
			return nil, fmt.Errorf("export %s: %w", rel, err)
		}
	}

	snapshot := h.Clone()
	manifest := &Manifest{
		ID:          snapshot.ID,
		Name:        snapshot.Name,
		BlobID:      snapshot.BlobID,
		BlobVersion: snapshot.BlobVersion,
		Exported:    time.Now().UTC(),
		Files:       paths,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(root, manifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	slog.Info("project exported", "id", snapshot.ID, "dir", root, "files", len(paths))
	return manifest, nil
}

func matchesAny(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
