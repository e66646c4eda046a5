// Package restapi is the provider for the cloudsync HTTP API. Sign-in uses
// the OAuth implicit grant: the access token comes back in the fragment of
// the redirect URL.
package restapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/imroc/req/v3"
	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/openmined/cloudsync/internal/utils"
	"github.com/openmined/cloudsync/internal/version"
)

const (
	ProviderName = "cloud"

	// StorageToken is the stored-state key of the access token.
	StorageToken = "cloudToken"

	v1Files     = "/api/v1/files"
	v1File      = "/api/v1/files/{id}"
	v1Events    = "/api/v1/events"
	oauthPath   = "/oauth/authorize"
	tokenLeeway = 30 * time.Second
)

type Config struct {
	ServerURL   string `mapstructure:"server_url"`
	ClientID    string `mapstructure:"client_id"`
	RedirectURL string `mapstructure:"redirect_url"`
	// User is passed as login_hint to the authorize endpoint.
	User string `mapstructure:"user"`
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("restapi: invalid server url: %w", err)
	}
	return nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithBrowser sets how the authorize URL is shown to the user.
func WithBrowser(open func(authorizeURL string) error) Option {
	return func(p *Provider) { p.openURL = open }
}

type Provider struct {
	config  Config
	client  *req.Client
	openURL func(string) error

	token string
	mu    sync.RWMutex
}

func New(config Config, opts ...Option) *Provider {
	client := req.C().
		SetBaseURL(strings.TrimRight(config.ServerURL, "/")).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500*time.Millisecond).
		SetCommonRetryCondition(func(_ *req.Response, err error) bool { return err != nil }).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderCloudVersion, version.Version).
		SetCommonHeader(HeaderCloudDeviceID, utils.DeviceID(version.AppName)).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	p := &Provider{
		config: config,
		client: client,
		openURL: func(u string) error {
			slog.Info("open this url to sign in", "url", u)
			return nil
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return ProviderName }

// LoginCheck activates the provider when a stored token has not expired.
func (p *Provider) LoginCheck(_ context.Context, sess *cloudsync.Session) {
	token, ok := sess.Storage.GetLocal(StorageToken)
	if !ok || token == "" {
		return
	}
	if err := checkToken(token); err != nil {
		slog.Info("cloud token unusable", "error", err)
		return
	}
	p.setToken(token)
	sess.SetProvider(p)
}

// Login records the anti-forgery state and shows the authorize URL.
func (p *Provider) Login(_ context.Context, sess *cloudsync.Session) error {
	authorizeURL, err := p.AuthorizeURL(sess)
	if err != nil {
		return err
	}
	return p.openURL(authorizeURL)
}

// AuthorizeURL stores a fresh anti-forgery state and returns the URL that
// starts the implicit grant.
func (p *Provider) AuthorizeURL(sess *cloudsync.Session) (string, error) {
	if err := p.config.Validate(); err != nil {
		return "", err
	}

	state, err := utils.RandBase34(32)
	if err != nil {
		return "", fmt.Errorf("oauth state: %w", err)
	}
	if err := sess.Storage.SetLocal(cloudsync.StorageOAuthState, state); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	if err := sess.Storage.SetLocal(cloudsync.StorageOAuthType, p.Name()); err != nil {
		return "", fmt.Errorf("store oauth type: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", p.config.ClientID)
	q.Set("redirect_uri", p.config.RedirectURL)
	q.Set("state", state)
	q.Set("response_type", "token")
	if p.config.User != "" {
		q.Set("login_hint", p.config.User)
	}
	return strings.TrimRight(p.config.ServerURL, "/") + oauthPath + "?" + q.Encode(), nil
}

// LoginCallback stores the access token of a completed redirect.
func (p *Provider) LoginCallback(_ context.Context, sess *cloudsync.Session, params url.Values) error {
	token := params.Get("access_token")
	if token == "" {
		return ErrNoToken
	}
	if err := checkToken(token); err != nil {
		return err
	}
	if err := sess.Storage.SetLocal(StorageToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	p.setToken(token)
	slog.Info("signed in", "provider", p.Name(), "token", utils.MaskSecret(token))
	sess.SetProvider(p)
	return nil
}

// Logout forgets the stored token and deactivates the provider.
func (p *Provider) Logout(sess *cloudsync.Session) error {
	p.setToken("")
	if sess.Provider() == cloudsync.Provider(p) {
		sess.ClearProvider()
	}
	return sess.Storage.RemoveLocal(StorageToken)
}

func (p *Provider) List(ctx context.Context) ([]*cloudsync.FileInfo, error) {
	var result listResponse
	resp, err := p.request(ctx).
		SetSuccessResult(&result).
		Get(v1Files)
	if err := handleAPIError(resp, err, "list", "", ""); err != nil {
		return nil, err
	}
	return result.Files, nil
}

func (p *Provider) Download(ctx context.Context, id string) (*cloudsync.FileInfo, error) {
	var info cloudsync.FileInfo
	resp, err := p.request(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&info).
		Get(v1File)
	if err := handleAPIError(resp, err, "download", id, ""); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *Provider) Upload(ctx context.Context, id string, baseVersion string, files cloudsync.Text) (*cloudsync.FileInfo, error) {
	body := &uploadRequest{Content: files}
	if meta, err := cloudsync.DecodeHeader(files); err == nil {
		body.Name = meta.Name
	}

	var info cloudsync.FileInfo
	r := p.request(ctx).
		SetBody(body).
		SetSuccessResult(&info).
		SetRetryCount(0)

	var resp *req.Response
	var err error
	if id == "" {
		resp, err = r.Post(v1Files)
	} else {
		if baseVersion != "" {
			r.SetHeader("If-Match", `"`+baseVersion+`"`)
		}
		resp, err = r.SetPathParam("id", id).Put(v1File)
	}
	if err := handleAPIError(resp, err, "upload", id, baseVersion); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *Provider) Delete(ctx context.Context, id string) error {
	resp, err := p.request(ctx).
		SetPathParam("id", id).
		Delete(v1File)
	return handleAPIError(resp, err, "delete", id, "")
}

func (p *Provider) request(ctx context.Context) *req.Request {
	r := p.client.R().SetContext(ctx)
	if token := p.Token(); token != "" {
		r.SetBearerAuthToken(token)
	}
	return r
}

// Token returns the access token in use.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

func (p *Provider) setToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

// checkToken reads the expiry of a token without verifying its signature;
// the server does that on every request.
func checkToken(token string) error {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return fmt.Errorf("restapi: malformed token: %w", err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now().Add(tokenLeeway)) {
		return ErrTokenExpired
	}
	return nil
}

// handleAPIError maps a response to the provider error kinds.
func handleAPIError(resp *req.Response, requestErr error, op, id, baseVersion string) error {
	if requestErr != nil {
		return cloudsync.NewNetworkError(op, 0, requestErr)
	}
	if !resp.IsErrorState() {
		return nil
	}

	apiErr, ok := resp.ErrorResult().(*APIError)
	if !ok || apiErr.Code == "" {
		apiErr = &APIError{Code: "E_UNKNOWN", Message: strings.TrimSpace(resp.String())}
	}

	switch {
	case resp.StatusCode == http.StatusConflict && apiErr.Code == codeVersionConflict:
		return cloudsync.NewConflictError(id, baseVersion, apiErr.CurrentVersion)
	case resp.StatusCode == http.StatusNotFound:
		return cloudsync.NewNetworkError(op, resp.StatusCode, errors.Join(cloudsync.ErrNotFound, apiErr))
	default:
		return cloudsync.NewNetworkError(op, resp.StatusCode, apiErr)
	}
}

var (
	_ cloudsync.Provider       = (*Provider)(nil)
	_ cloudsync.ChangeNotifier = (*Provider)(nil)
)
