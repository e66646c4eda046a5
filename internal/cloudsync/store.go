package cloudsync

import "context"

// LocalStore is the capability set for reading and writing local records.
type LocalStore interface {
	GetHeaders(ctx context.Context) ([]*Header, error)
	GetText(ctx context.Context, id string) (Text, error)
	// Save persists the header, and the text when it is not nil.
	Save(ctx context.Context, h *Header, text Text) error
	// Duplicate stores a copy of the header and text under a new id.
	Duplicate(ctx context.Context, h *Header, text Text) (*Header, error)
	// Import stores a header that does not exist locally yet.
	Import(ctx context.Context, h *Header, text Text) error
}

// Storage is the persistent key/value state used by the login flow.
type Storage interface {
	GetLocal(key string) (string, bool)
	SetLocal(key, value string) error
	RemoveLocal(key string) error
}

// Navigation is the visible navigation state that may carry an OAuth redirect.
type Navigation interface {
	Hash() string
	SetHash(hash string)
}

// Notifier is the user facing notification surface.
type Notifier interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// SyncSubscriber receives the remote ids updated by a pass.
type SyncSubscriber interface {
	NotifySyncDone(updated map[string]bool)
}

type SyncSubscriberFunc func(updated map[string]bool)

func (f SyncSubscriberFunc) NotifySyncDone(updated map[string]bool) { f(updated) }
