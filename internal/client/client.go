package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/openmined/cloudsync/internal/client/config"
	"github.com/openmined/cloudsync/internal/client/workspace"
	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/openmined/cloudsync/internal/provider/folder"
	"github.com/openmined/cloudsync/internal/provider/restapi"
	"github.com/openmined/cloudsync/internal/provider/s3blob"
)

var (
	ErrNotSignedIn    = errors.New("not signed in to any provider")
	ErrLoginRejected  = errors.New("login redirect rejected")
	ErrNotEnabled     = errors.New("provider not enabled")
	ErrNoFragmentData = errors.New("redirect url has no access token")
)

// loggerOut is implemented by providers holding credentials that can be
// dropped on sign out.
type loggerOut interface {
	Logout(sess *cloudsync.Session) error
}

type Option func(*Client)

func WithNotifier(n cloudsync.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithSubscriber(sub cloudsync.SyncSubscriber) Option {
	return func(c *Client) { c.subscriber = sub }
}

// WithProvider registers p in place of the provider built from config under
// the same name.
func WithProvider(p cloudsync.Provider) Option {
	return func(c *Client) { c.overrides = append(c.overrides, p) }
}

func WithRestAPIOptions(opts ...restapi.Option) Option {
	return func(c *Client) { c.restOpts = append(c.restOpts, opts...) }
}

// Client wires the configured providers, the local workspace and the sync
// engine.
type Client struct {
	config     *config.Config
	workspace  *workspace.Workspace
	registry   *cloudsync.Registry
	engine     *cloudsync.SyncEngine
	notifier   cloudsync.Notifier
	subscriber cloudsync.SyncSubscriber

	overrides []cloudsync.Provider
	restOpts  []restapi.Option
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	c := &Client{
		config:   cfg,
		engine:   cloudsync.NewSyncEngine(),
		notifier: NewConsoleNotifier(os.Stdout),
		subscriber: cloudsync.SyncSubscriberFunc(func(updated map[string]bool) {
			if len(updated) > 0 {
				slog.Info("sync done", "updated", len(updated))
			}
		}),
	}
	for _, opt := range opts {
		opt(c)
	}

	registry, err := c.buildRegistry(ctx)
	if err != nil {
		return nil, err
	}
	c.registry = registry

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := ws.Open(); err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	c.workspace = ws

	return c, nil
}

func (c *Client) buildRegistry(ctx context.Context) (*cloudsync.Registry, error) {
	registry := cloudsync.NewRegistry()

	if c.config.Enabled(restapi.ProviderName) {
		registry.Register(restapi.New(c.config.RestAPI(), c.restOpts...))
	}
	if c.config.Enabled(folder.ProviderName) {
		registry.Register(folder.New(c.config.Folder.Path))
	}
	if c.config.Enabled(s3blob.ProviderName) && !c.overridden(s3blob.ProviderName) {
		p, err := s3blob.New(ctx, &c.config.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 provider: %w", err)
		}
		registry.Register(p)
	}

	for _, p := range c.overrides {
		registry.Register(p)
	}
	return registry, nil
}

func (c *Client) overridden(name string) bool {
	for _, p := range c.overrides {
		if p.Name() == name {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	return c.workspace.Close()
}

func (c *Client) Config() *config.Config {
	return c.config
}

func (c *Client) Workspace() *workspace.Workspace {
	return c.workspace
}

func (c *Client) Engine() *cloudsync.SyncEngine {
	return c.engine
}

// Store loads the project store fresh from disk.
func (c *Client) Store() (*workspace.Store, error) {
	return c.workspace.Store()
}

// Session builds a session over a freshly loaded store. No provider is active
// until a login check runs.
func (c *Client) Session() (*cloudsync.Session, error) {
	store, err := c.workspace.Store()
	if err != nil {
		return nil, err
	}
	kv, err := c.workspace.Storage()
	if err != nil {
		return nil, err
	}
	return cloudsync.NewSession(c.registry, store, kv, c.notifier,
		cloudsync.WithProviders(c.config.Providers...),
		cloudsync.WithSubscriber(c.subscriber),
	), nil
}

// ActiveSession returns a session after the login check, failing when no
// provider holds usable credentials.
func (c *Client) ActiveSession(ctx context.Context) (*cloudsync.Session, error) {
	sess, err := c.Session()
	if err != nil {
		return nil, err
	}
	cloudsync.LoginCheck(ctx, sess, nil)
	if sess.Provider() == nil {
		return sess, ErrNotSignedIn
	}
	return sess, nil
}

// RunOnce runs the login check and one reconciliation pass.
func (c *Client) RunOnce(ctx context.Context) (*cloudsync.PassResult, error) {
	sess, err := c.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	return c.engine.RunSync(ctx, sess)
}

// SaveToCloud pushes one project right away.
func (c *Client) SaveToCloud(ctx context.Context, id string) error {
	sess, err := c.ActiveSession(ctx)
	if err != nil {
		return err
	}
	store, ok := sess.Store.(*workspace.Store)
	if !ok {
		return errors.New("unexpected store type")
	}
	h, err := store.Get(id)
	if err != nil {
		return err
	}
	return c.engine.SaveToCloud(ctx, sess, h)
}

func (c *Client) provider(name string) (cloudsync.Provider, error) {
	if !c.config.Enabled(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotEnabled, name)
	}
	p, ok := c.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cloudsync.ErrProviderNotFound, name)
	}
	return p, nil
}

// Login starts an interactive login with the named provider.
func (c *Client) Login(ctx context.Context, name string) error {
	p, err := c.provider(name)
	if err != nil {
		return err
	}
	sess, err := c.Session()
	if err != nil {
		return err
	}
	return p.Login(ctx, sess)
}

// LoginCallback completes a login from the URL the provider redirected to.
func (c *Client) LoginCallback(ctx context.Context, redirectURL string) (cloudsync.Provider, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	if u.Fragment == "" {
		return nil, ErrNoFragmentData
	}

	sess, err := c.Session()
	if err != nil {
		return nil, err
	}
	nav := &fragmentNav{hash: "#" + u.EscapedFragment()}
	if !cloudsync.HandleLoginRedirect(ctx, sess, nav) {
		return nil, ErrLoginRejected
	}
	if sess.Provider() == nil {
		return nil, ErrLoginRejected
	}
	return sess.Provider(), nil
}

// Logout drops stored credentials of every enabled provider.
func (c *Client) Logout(ctx context.Context) error {
	sess, err := c.Session()
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range sess.Providers() {
		if lo, ok := p.(loggerOut); ok {
			if err := lo.Logout(sess); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			}
		}
	}
	sess.ClearProvider()
	if err := c.engine.Reset(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProviderStatus reports the enabled providers and which one a login check
// activates.
type ProviderStatus struct {
	Name   string `yaml:"name"`
	Active bool   `yaml:"active"`
}

func (c *Client) ProviderStatus(ctx context.Context) ([]ProviderStatus, error) {
	sess, err := c.ActiveSession(ctx)
	if err != nil && !errors.Is(err, ErrNotSignedIn) {
		return nil, err
	}
	active := sess.Provider()

	var out []ProviderStatus
	for _, p := range sess.Providers() {
		out = append(out, ProviderStatus{Name: p.Name(), Active: p == active})
	}
	return out, nil
}

// fragmentNav carries the fragment of a pasted redirect URL.
type fragmentNav struct {
	hash string
}

func (n *fragmentNav) Hash() string        { return n.hash }
func (n *fragmentNav) SetHash(hash string) { n.hash = hash }
