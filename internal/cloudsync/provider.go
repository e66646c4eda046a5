package cloudsync

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
)

// Provider is the capability set of one cloud backend.
type Provider interface {
	// Name is the key the provider is registered under.
	Name() string

	// LoginCheck inspects stored credentials and activates the provider on the
	// session when they are usable.
	LoginCheck(ctx context.Context, sess *Session)
	// Login starts an interactive login.
	Login(ctx context.Context, sess *Session) error
	// LoginCallback completes a login with the parameters of the redirect.
	LoginCallback(ctx context.Context, sess *Session, params url.Values) error

	// List returns every entry of the authenticated account, without content.
	List(ctx context.Context) ([]*FileInfo, error)
	// Download returns the entry with its content populated.
	Download(ctx context.Context, id string) (*FileInfo, error)
	// Upload stores files under id, or creates a new entry when id is empty.
	// A ConflictError is returned when baseVersion no longer matches.
	Upload(ctx context.Context, id string, baseVersion string, files Text) (*FileInfo, error)
	Delete(ctx context.Context, id string) error
}

// ChangeNotifier is implemented by providers that can push remote changes.
// The channel is closed when ctx is done or the feed fails.
type ChangeNotifier interface {
	Changes(ctx context.Context) (<-chan string, error)
}

// Registry is the name keyed table of provider implementations.
type Registry struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Enabled returns the registered providers named in names, in that order.
// Unknown names are skipped.
func (r *Registry) Enabled(names []string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		p, ok := r.providers[name]
		if !ok {
			slog.Warn("provider not registered", "name", name)
			continue
		}
		out = append(out, p)
	}
	return out
}
