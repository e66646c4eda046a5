package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/cloudsync/internal/provider/s3blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_NormalizesAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		DataDir:   tmp,
		Providers: []string{"cloud"},
		User:      " Alice@Example.com ",
		ServerURL: "http://127.0.0.1:8080",
		Path:      filepath.Join(tmp, "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.True(t, filepath.IsAbs(cfg.Path))
	assert.Equal(t, "alice@example.com", cfg.User)
	assert.Equal(t, DefaultClientID, cfg.ClientID)
	assert.Equal(t, DefaultRedirectURL, cfg.RedirectURL)
	assert.Equal(t, DefaultSyncInterval, cfg.Interval())
}

func TestConfig_Validate_ParsesInterval(t *testing.T) {
	cfg := &Config{
		DataDir:      t.TempDir(),
		Providers:    []string{"folder"},
		Folder:       FolderConfig{Path: t.TempDir()},
		SyncInterval: "2m",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Minute, cfg.Interval())
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"no providers", func(c *Config) { c.Providers = nil }, "no providers"},
		{"unknown provider", func(c *Config) { c.Providers = []string{"dropbox"} }, "unknown provider"},
		{"bad email", func(c *Config) { c.User = "not-an-email" }, "user"},
		{"bad server url", func(c *Config) { c.ServerURL = "ftp://bad.example.com" }, "server url"},
		{"bad redirect url", func(c *Config) { c.RedirectURL = "://bad" }, "redirect url"},
		{"s3 without bucket", func(c *Config) { c.Providers = []string{"s3"} }, "bucket"},
		{"folder without path", func(c *Config) { c.Providers = []string{"folder"} }, "path"},
		{"bad interval", func(c *Config) { c.SyncInterval = "soon" }, "sync interval"},
		{"short interval", func(c *Config) { c.SyncInterval = "1s" }, "at least"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DataDir:   tmp,
				Providers: []string{"cloud"},
				ServerURL: "http://127.0.0.1:8080",
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.json")

	cfg := &Config{
		DataDir:      tmp,
		Providers:    []string{"cloud", "s3"},
		ServerURL:    "http://127.0.0.1:8080",
		User:         "alice@example.com",
		S3:           s3blob.Config{Bucket: "projects", Region: "us-east-1", Prefix: "alice"},
		SyncInterval: "45s",
		Path:         path,
	}

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.Providers, loaded.Providers)
	assert.Equal(t, cfg.ServerURL, loaded.ServerURL)
	assert.Equal(t, cfg.ClientID, loaded.ClientID)
	assert.Equal(t, cfg.User, loaded.User)
	assert.Equal(t, cfg.S3, loaded.S3)
	assert.Equal(t, "45s", loaded.SyncInterval)
	assert.Equal(t, path, loaded.Path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConfig_LoadFromFile_Errors(t *testing.T) {
	tmp := t.TempDir()

	_, err := LoadFromFile(filepath.Join(tmp, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	broken := filepath.Join(tmp, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = LoadFromFile(broken)
	assert.Error(t, err)
}

func TestConfig_SaveWithoutPath(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir(), Providers: []string{"folder"}}
	assert.Error(t, cfg.Save())
}
