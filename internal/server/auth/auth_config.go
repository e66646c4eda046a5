package auth

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	TokenIssuer       string        `mapstructure:"token_issuer"`
	AccessTokenSecret string        `mapstructure:"access_token_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
	// ClientIDs restricts /oauth/authorize to known clients. Empty allows any.
	ClientIDs []string `mapstructure:"client_ids"`
}

func (c *Config) Validate() error {
	if c.Enabled {
		if c.TokenIssuer == "" {
			return fmt.Errorf("auth `token_issuer` is required when auth is enabled")
		}
		if c.AccessTokenSecret == "" {
			return fmt.Errorf("auth `access_token_secret` is required when auth is enabled")
		}
		if c.AccessTokenExpiry < 0 {
			return fmt.Errorf("auth `access_token_expiry` must not be negative")
		}
	}
	return nil
}
