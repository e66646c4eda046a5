package server

import (
	"errors"
	"fmt"

	"github.com/openmined/cloudsync/internal/server/auth"
	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRateLimit = "600-M"
)

type Config struct {
	HTTP   HTTPConfig  `mapstructure:"http"`
	Auth   auth.Config `mapstructure:"auth"`
	DBPath string      `mapstructure:"db_path"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	// RateLimit uses the limiter notation, e.g. "600-M". Empty disables it.
	RateLimit string `mapstructure:"rate_limit"`
}

func (c *HTTPConfig) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http `addr` is required")
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return errors.New("http `cert_file` and `key_file` must be set together")
	}
	if c.HTTP.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.HTTP.RateLimit); err != nil {
			return fmt.Errorf("http `rate_limit`: %w", err)
		}
	}
	if c.DBPath == "" {
		return errors.New("`db_path` is required")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return nil
}
