package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestAuthConfig() *Config {
	return &Config{
		Enabled:           true,
		TokenIssuer:       "cloudsync-test",
		AccessTokenSecret: "access-secret",
		AccessTokenExpiry: time.Minute,
	}
}

func TestAuthService_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(getTestAuthConfig())

	token, err := svc.IssueAccessToken(ctx, " Alice@Example.com ")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Subject)
	assert.Equal(t, "cloudsync-test", claims.Issuer)

	// served from the cache the second time
	cached, err := svc.ValidateAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Same(t, claims, cached)
}

func TestAuthService_IssueInvalidEmail(t *testing.T) {
	svc := NewAuthService(getTestAuthConfig())
	_, err := svc.IssueAccessToken(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestAuthService_ValidateRejects(t *testing.T) {
	ctx := context.Background()
	cfg := getTestAuthConfig()
	svc := NewAuthService(cfg)

	_, err := svc.ValidateAccessToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	foreign := signClaims(t, jwt.SigningMethodHS256, []byte(cfg.AccessTokenSecret), Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice@example.com", Issuer: "someone-else"},
		Type:             AccessToken,
	})
	_, err = svc.ValidateAccessToken(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	wrongType := signClaims(t, jwt.SigningMethodHS256, []byte(cfg.AccessTokenSecret), Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice@example.com", Issuer: cfg.TokenIssuer},
		Type:             "refresh",
	})
	_, err = svc.ValidateAccessToken(ctx, wrongType)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestAuthService_AllowsClient(t *testing.T) {
	cfg := getTestAuthConfig()
	assert.True(t, NewAuthService(cfg).AllowsClient("anything"))

	cfg.ClientIDs = []string{"cli"}
	svc := NewAuthService(cfg)
	assert.True(t, svc.AllowsClient("cli"))
	assert.False(t, svc.AllowsClient("web"))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "disabled skips checks", mutate: func(c *Config) { c.Enabled = false; c.AccessTokenSecret = "" }},
		{name: "missing issuer", mutate: func(c *Config) { c.TokenIssuer = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.AccessTokenSecret = "" }, wantErr: true},
		{name: "negative expiry", mutate: func(c *Config) { c.AccessTokenExpiry = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getTestAuthConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
