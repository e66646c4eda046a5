package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	headers map[string]*Header
	texts   map[string]Text
	saves   int
	mu      sync.Mutex
}

func newMemStore(headers ...*Header) *memStore {
	s := &memStore{headers: make(map[string]*Header), texts: make(map[string]Text)}
	for _, h := range headers {
		s.headers[h.ID] = h
		s.texts[h.ID] = Text{"main.ts": "// " + h.Name}
	}
	return s
}

func (s *memStore) GetHeaders(_ context.Context) ([]*Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Header, 0, len(s.headers))
	for _, h := range s.headers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetText(_ context.Context, id string) (Text, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.texts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return text.Clone(), nil
}

func (s *memStore) Save(_ context.Context, h *Header, text Text) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.headers[h.ID] = h
	if text != nil {
		s.texts[h.ID] = text.Clone()
	}
	return nil
}

func (s *memStore) Duplicate(_ context.Context, h *Header, text Text) (*Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := h.Clone()
	dup.ID = uuid.NewString()
	s.headers[dup.ID] = dup
	s.texts[dup.ID] = text.Clone()
	return dup, nil
}

func (s *memStore) Import(_ context.Context, h *Header, text Text) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.headers[h.ID]; ok {
		return fmt.Errorf("import %s: exists", h.ID)
	}
	s.saves++
	s.headers[h.ID] = h
	s.texts[h.ID] = text.Clone()
	return nil
}

func (s *memStore) get(id string) *Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[id]
}

func (s *memStore) text(id string) Text {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[id]
}

func (s *memStore) byName(name string) *Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.headers {
		if h.Name == name {
			return h
		}
	}
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type remoteEntry struct {
	version int
	content Text
	updated time.Time
}

// fakeProvider keeps entries in memory and issues versions v1, v2, ...
type fakeProvider struct {
	name    string
	entries map[string]*remoteEntry
	calls   map[string]int
	nextID  int

	// hooks
	beforeUpload  func(id string)
	downloadErr   map[string]error
	uploadErr     error
	idOverride    string
	loginChecks   int
	callbackCalls []url.Values

	mu sync.Mutex
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		name:        "fake",
		entries:     make(map[string]*remoteEntry),
		calls:       make(map[string]int),
		downloadErr: make(map[string]error),
	}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) LoginCheck(_ context.Context, sess *Session) {
	p.mu.Lock()
	p.loginChecks++
	p.mu.Unlock()
}

func (p *fakeProvider) Login(_ context.Context, sess *Session) error { return nil }

func (p *fakeProvider) LoginCallback(_ context.Context, sess *Session, params url.Values) error {
	p.mu.Lock()
	p.callbackCalls = append(p.callbackCalls, params)
	p.mu.Unlock()
	sess.SetProvider(p)
	return nil
}

func (p *fakeProvider) put(id string, version int, content Text) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[id] = &remoteEntry{version: version, content: content, updated: time.Now()}
}

// bump simulates an edit made on another device.
func (p *fakeProvider) bump(id string, content Text) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[id]
	e.version++
	e.content = content
}

func (p *fakeProvider) info(id string, e *remoteEntry, withContent bool) *FileInfo {
	fi := &FileInfo{ID: id, Name: id, Version: fmt.Sprintf("v%d", e.version), UpdatedAt: e.updated}
	if withContent {
		fi.Content = e.content.Clone()
	}
	return fi
}

func (p *fakeProvider) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for op, c := range p.calls {
		if op != "list" {
			n += c
		}
	}
	return n
}

func (p *fakeProvider) has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

func (p *fakeProvider) List(_ context.Context) ([]*FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["list"]++
	out := make([]*FileInfo, 0, len(p.entries))
	for id, e := range p.entries {
		out = append(out, p.info(id, e, false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *fakeProvider) Download(_ context.Context, id string) (*FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["download"]++
	if err := p.downloadErr[id]; err != nil {
		return nil, err
	}
	e, ok := p.entries[id]
	if !ok {
		return nil, NewNetworkError("download", 404, ErrNotFound)
	}
	fi := p.info(id, e, true)
	if p.idOverride != "" {
		fi.ID = p.idOverride
	}
	return fi, nil
}

func (p *fakeProvider) Upload(_ context.Context, id, baseVersion string, files Text) (*FileInfo, error) {
	if p.beforeUpload != nil {
		p.beforeUpload(id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["upload"]++
	if p.uploadErr != nil {
		return nil, p.uploadErr
	}

	if id == "" {
		p.nextID++
		id = fmt.Sprintf("blob-%d", p.nextID)
		p.entries[id] = &remoteEntry{version: 1, content: files.Clone(), updated: time.Now()}
	} else {
		e, ok := p.entries[id]
		if !ok {
			return nil, NewNetworkError("upload", 404, ErrNotFound)
		}
		current := fmt.Sprintf("v%d", e.version)
		if current != baseVersion {
			return nil, NewConflictError(id, baseVersion, current)
		}
		e.version++
		e.content = files.Clone()
		e.updated = time.Now()
	}

	fi := p.info(id, p.entries[id], false)
	if p.idOverride != "" {
		fi.ID = p.idOverride
	}
	return fi, nil
}

func (p *fakeProvider) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["delete"]++
	if _, ok := p.entries[id]; !ok {
		return NewNetworkError("delete", 404, errors.New("missing"))
	}
	delete(p.entries, id)
	return nil
}

type recordingNotifier struct {
	infos    []string
	warnings []string
	errors   []string
	mu       sync.Mutex
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Warning(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type memStorage map[string]string

func (m memStorage) GetLocal(key string) (string, bool) { v, ok := m[key]; return v, ok }
func (m memStorage) SetLocal(key, value string) error   { m[key] = value; return nil }
func (m memStorage) RemoveLocal(key string) error       { delete(m, key); return nil }

type fakeNav struct{ hash string }

func (n *fakeNav) Hash() string        { return n.hash }
func (n *fakeNav) SetHash(hash string) { n.hash = hash }

// newTestSession wires a session with p active.
func newTestSession(store *memStore, p *fakeProvider) (*Session, *recordingNotifier) {
	notifier := &recordingNotifier{}
	sess := NewSession(NewRegistry(p), store, memStorage{}, notifier, WithProviders(p.Name()))
	sess.SetProvider(p)
	return sess, notifier
}
