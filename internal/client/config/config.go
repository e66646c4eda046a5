package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/cloudsync/internal/provider/folder"
	"github.com/openmined/cloudsync/internal/provider/restapi"
	"github.com/openmined/cloudsync/internal/provider/s3blob"
	"github.com/openmined/cloudsync/internal/utils"
)

const (
	DefaultSyncInterval = 30 * time.Second
	MinSyncInterval     = 5 * time.Second
	DefaultClientID     = "cloudsync-cli"
	DefaultRedirectURL  = "http://127.0.0.1:7938/oauth/callback"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".cloudsync", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".cloudsync", "logs", "cloudsync.log")
	DefaultDataDir     = filepath.Join(home, "CloudSync")
	DefaultServerURL   = "http://127.0.0.1:8080"
	DefaultProviders   = []string{restapi.ProviderName}
)

var (
	ErrNoProviders     = errors.New("no providers configured")
	ErrUnknownProvider = errors.New("unknown provider")
)

type FolderConfig struct {
	Path string `json:"path,omitempty" mapstructure:"path"`
}

type Config struct {
	DataDir      string        `json:"data_dir" mapstructure:"data_dir"`
	Providers    []string      `json:"providers" mapstructure:"providers"`
	ServerURL    string        `json:"server_url,omitempty" mapstructure:"server_url"`
	ClientID     string        `json:"client_id,omitempty" mapstructure:"client_id"`
	RedirectURL  string        `json:"redirect_url,omitempty" mapstructure:"redirect_url"`
	User         string        `json:"user,omitempty" mapstructure:"user"`
	S3           s3blob.Config `json:"s3" mapstructure:"s3"`
	Folder       FolderConfig  `json:"folder" mapstructure:"folder"`
	SyncInterval string        `json:"sync_interval,omitempty" mapstructure:"sync_interval"`
	Path         string        `json:"-"`

	interval time.Duration
}

// KnownProviders lists the provider names a config may enable.
func KnownProviders() []string {
	return []string{restapi.ProviderName, s3blob.ProviderName, folder.ProviderName}
}

// Validate normalizes paths and the user email, fills defaults and rejects
// settings the enabled providers cannot work with.
func (c *Config) Validate() error {
	var err error

	c.DataDir, err = utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	if c.Path != "" {
		c.Path, err = utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if len(c.Providers) == 0 {
		return ErrNoProviders
	}
	known := KnownProviders()
	for _, name := range c.Providers {
		if !slices.Contains(known, name) {
			return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
		}
	}

	if c.User != "" {
		c.User, err = utils.NormalizeEmail(c.User)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
	}

	if c.Enabled(restapi.ProviderName) {
		if err := utils.ValidateURL(c.ServerURL); err != nil {
			return fmt.Errorf("invalid server url %q: %w", c.ServerURL, err)
		}
		if c.ClientID == "" {
			c.ClientID = DefaultClientID
		}
		if c.RedirectURL == "" {
			c.RedirectURL = DefaultRedirectURL
		}
		if err := utils.ValidateURL(c.RedirectURL); err != nil {
			return fmt.Errorf("invalid redirect url %q: %w", c.RedirectURL, err)
		}
	}

	if c.Enabled(s3blob.ProviderName) && !c.S3.Enabled() {
		return errors.New("s3 provider enabled without a bucket")
	}

	if c.Enabled(folder.ProviderName) {
		if c.Folder.Path == "" {
			return errors.New("folder provider enabled without a path")
		}
		c.Folder.Path, err = utils.ResolvePath(c.Folder.Path)
		if err != nil {
			return fmt.Errorf("folder path: %w", err)
		}
	}

	c.interval = DefaultSyncInterval
	if c.SyncInterval != "" {
		d, err := time.ParseDuration(c.SyncInterval)
		if err != nil {
			return fmt.Errorf("sync interval: %w", err)
		}
		if d < MinSyncInterval {
			return fmt.Errorf("sync interval must be at least %s", MinSyncInterval)
		}
		c.interval = d
	}

	return nil
}

// Enabled reports whether the named provider is configured.
func (c *Config) Enabled(name string) bool {
	return slices.Contains(c.Providers, name)
}

// Interval is the parsed sync interval. Validate must have been called.
func (c *Config) Interval() time.Duration {
	if c.interval == 0 {
		return DefaultSyncInterval
	}
	return c.interval
}

func (c *Config) RestAPI() restapi.Config {
	return restapi.Config{
		ServerURL:   c.ServerURL,
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURL,
		User:        c.User,
	}
}

func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config path not set")
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// may carry s3 secrets
	return utils.WriteFileAtomic(c.Path, data, 0o600)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	return &cfg, nil
}
