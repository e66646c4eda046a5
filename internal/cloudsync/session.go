package cloudsync

import (
	"log/slog"
	"sync"
)

// Session binds the collaborators of the sync engine. It is built once at
// startup and rebound when the active backend changes or the user signs out.
type Session struct {
	Registry   *Registry
	Store      LocalStore
	Storage    Storage
	Notifier   Notifier
	Subscriber SyncSubscriber
	// Target is stamped on downloaded headers.
	Target string

	configured []string
	provider   Provider
	mu         sync.RWMutex
}

// SessionOption configures optional session collaborators.
type SessionOption func(*Session)

func WithSubscriber(sub SyncSubscriber) SessionOption {
	return func(s *Session) { s.Subscriber = sub }
}

func WithTarget(target string) SessionOption {
	return func(s *Session) { s.Target = target }
}

// WithProviders sets the provider names enabled for this session.
func WithProviders(names ...string) SessionOption {
	return func(s *Session) { s.configured = append([]string(nil), names...) }
}

func NewSession(registry *Registry, store LocalStore, storage Storage, notifier Notifier, opts ...SessionOption) *Session {
	s := &Session{
		Registry: registry,
		Store:    store,
		Storage:  storage,
		Notifier: notifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers returns the configured providers.
func (s *Session) Providers() []Provider {
	if s.Registry == nil {
		return nil
	}
	s.mu.RLock()
	names := s.configured
	s.mu.RUnlock()
	return s.Registry.Enabled(names)
}

// SetConfigured replaces the enabled provider names.
func (s *Session) SetConfigured(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = append([]string(nil), names...)
}

// Provider returns the active provider or nil.
func (s *Session) Provider() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// SetProvider activates p. It is generally called by a provider's login hooks.
func (s *Session) SetProvider(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != p && p != nil {
		slog.Info("cloud provider active", "name", p.Name())
	}
	s.provider = p
}

// ClearProvider deactivates the current provider, e.g. on sign out.
func (s *Session) ClearProvider() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = nil
}

func (s *Session) info(msg string) {
	if s.Notifier != nil {
		s.Notifier.Info(msg)
	}
}

func (s *Session) warning(msg string) {
	if s.Notifier != nil {
		s.Notifier.Warning(msg)
	}
}

// handleNetworkError converts a pass level failure into a notification.
func (s *Session) handleNetworkError(err error) {
	slog.Error("sync", "error", err)
	if s.Notifier != nil {
		s.Notifier.Error("Network error: " + err.Error())
	}
}
