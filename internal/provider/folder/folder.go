// Package folder stores projects as JSON bundles in a shared directory,
// such as a mounted network drive.
package folder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/openmined/cloudsync/internal/fswatch"
	"github.com/openmined/cloudsync/internal/utils"
)

const (
	ProviderName = "folder"

	bundleExt     = ".json"
	locksDir      = ".locks"
	lockRetryWait = 25 * time.Millisecond
)

// bundleFile is the on-disk shape of one project
type bundleFile struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Content   cloudsync.Text `json:"content"`
}

type Provider struct {
	dir string
}

func New(dir string) *Provider {
	return &Provider{dir: dir}
}

func (p *Provider) Name() string { return ProviderName }

// LoginCheck activates the provider when the shared directory is reachable.
func (p *Provider) LoginCheck(_ context.Context, sess *cloudsync.Session) {
	if p.dir != "" && utils.DirExists(p.dir) {
		sess.SetProvider(p)
	}
}

func (p *Provider) Login(_ context.Context, sess *cloudsync.Session) error {
	if p.dir == "" {
		return errors.New("folder path not configured")
	}
	if err := utils.EnsureDir(p.dir); err != nil {
		return fmt.Errorf("create %s: %w", p.dir, err)
	}
	sess.SetProvider(p)
	return nil
}

func (p *Provider) LoginCallback(ctx context.Context, sess *cloudsync.Session, _ url.Values) error {
	return p.Login(ctx, sess)
}

func (p *Provider) List(_ context.Context) ([]*cloudsync.FileInfo, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, cloudsync.NewNetworkError("list", 0, err)
	}

	out := make([]*cloudsync.FileInfo, 0, len(entries))
	for _, entry := range entries {
		id, ok := idFromFile(entry.Name())
		if entry.IsDir() || !ok {
			continue
		}
		info, err := p.read(id, false)
		if err != nil {
			// a half written or foreign file should not hide the rest
			slog.Warn("folder skip entry", "file", entry.Name(), "error", err)
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Provider) Download(_ context.Context, id string) (*cloudsync.FileInfo, error) {
	info, err := p.read(id, true)
	if err != nil {
		return nil, notFoundOr("download", err)
	}
	return info, nil
}

// Upload writes the bundle under an exclusive lock. The version is the
// sha256 of the bundle file, so a stale baseVersion is detected by hashing
// the current file.
func (p *Provider) Upload(ctx context.Context, id string, baseVersion string, files cloudsync.Text) (*cloudsync.FileInfo, error) {
	create := id == ""
	if create {
		id = uuid.NewString()
	}

	unlock, err := p.lock(ctx, id)
	if err != nil {
		return nil, cloudsync.NewNetworkError("upload", 0, err)
	}
	defer unlock()

	path := p.path(id)
	current, err := os.ReadFile(path)
	switch {
	case create && err == nil:
		return nil, cloudsync.NewNetworkError("upload", http.StatusConflict, fmt.Errorf("%s already exists", id))
	case !create && errors.Is(err, fs.ErrNotExist):
		return nil, cloudsync.NewNetworkError("upload", http.StatusNotFound, cloudsync.ErrNotFound)
	case !create && err != nil:
		return nil, cloudsync.NewNetworkError("upload", 0, err)
	case !create:
		if version := utils.HashBytes(current); version != baseVersion {
			return nil, cloudsync.NewConflictError(id, baseVersion, version)
		}
	}

	name := ""
	if meta, err := cloudsync.DecodeHeader(files); err == nil {
		name = meta.Name
	}
	data, err := json.Marshal(&bundleFile{
		ID:        id,
		Name:      name,
		UpdatedAt: time.Now().UTC(),
		Content:   files,
	})
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, cloudsync.NewNetworkError("upload", 0, err)
	}

	slog.Debug("folder upload", "id", id, "size", len(data))
	return &cloudsync.FileInfo{ID: id, Name: name, Version: utils.HashBytes(data), UpdatedAt: time.Now().UTC()}, nil
}

func (p *Provider) Delete(ctx context.Context, id string) error {
	unlock, err := p.lock(ctx, id)
	if err != nil {
		return cloudsync.NewNetworkError("delete", 0, err)
	}
	defer unlock()

	if err := os.Remove(p.path(id)); err != nil {
		return notFoundOr("delete", err)
	}
	return nil
}

// Changes reports the ids of bundles written or removed by any device that
// shares the directory.
func (p *Provider) Changes(ctx context.Context) (<-chan string, error) {
	watcher := fswatch.New(p.dir, false)
	watcher.FilterPaths(func(path string) bool {
		_, ok := idFromFile(filepath.Base(path))
		return !ok
	})
	if err := watcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("watch %s: %w", p.dir, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case path, ok := <-watcher.Events():
				if !ok {
					return
				}
				id, _ := idFromFile(filepath.Base(path))
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *Provider) read(id string, withContent bool) (*cloudsync.FileInfo, error) {
	data, err := os.ReadFile(p.path(id))
	if err != nil {
		return nil, err
	}
	var bundle bundleFile
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	info := &cloudsync.FileInfo{
		ID:        id,
		Name:      bundle.Name,
		Version:   utils.HashBytes(data),
		UpdatedAt: bundle.UpdatedAt,
	}
	if withContent {
		info.Content = bundle.Content
	}
	return info, nil
}

func (p *Provider) lock(ctx context.Context, id string) (func(), error) {
	lockPath := filepath.Join(p.dir, locksDir, id+".lock")
	if err := utils.EnsureParent(lockPath); err != nil {
		return nil, err
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryWait)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", id, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", id)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("folder unlock", "id", id, "error", err)
		}
	}, nil
}

func (p *Provider) path(id string) string {
	return filepath.Join(p.dir, id+bundleExt)
}

func idFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, bundleExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return strings.TrimSuffix(name, bundleExt), true
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return cloudsync.NewNetworkError(op, http.StatusNotFound, cloudsync.ErrNotFound)
	}
	return cloudsync.NewNetworkError(op, 0, err)
}

var (
	_ cloudsync.Provider       = (*Provider)(nil)
	_ cloudsync.ChangeNotifier = (*Provider)(nil)
)
