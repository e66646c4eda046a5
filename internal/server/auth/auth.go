package auth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/cloudsync/internal/utils"
)

const (
	tokenCacheSize = 1024
	tokenCacheTTL  = 5 * time.Minute
)

type AuthService struct {
	config *Config
	// validated tokens, so hot clients skip the signature check
	tokens *expirable.LRU[string, *Claims]
}

func NewAuthService(config *Config) *AuthService {
	ttl := tokenCacheTTL
	if config.AccessTokenExpiry > 0 && config.AccessTokenExpiry < ttl {
		ttl = config.AccessTokenExpiry
	}
	return &AuthService{
		config: config,
		tokens: expirable.NewLRU[string, *Claims](tokenCacheSize, nil, ttl),
	}
}

func (s *AuthService) IsEnabled() bool {
	return s.config.Enabled
}

// AllowsClient reports whether clientID may request tokens.
func (s *AuthService) AllowsClient(clientID string) bool {
	if len(s.config.ClientIDs) == 0 {
		return true
	}
	return slices.Contains(s.config.ClientIDs, clientID)
}

// IssueAccessToken signs an access token for the given user email.
func (s *AuthService) IssueAccessToken(ctx context.Context, userEmail string) (string, error) {
	email, err := utils.NormalizeEmail(userEmail)
	if err != nil {
		return "", ErrInvalidEmail
	}

	token, err := newAccessToken(email, s.config.TokenIssuer, s.config.AccessTokenSecret, s.config.AccessTokenExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	slog.Debug("auth issued token", "user", email, "expiry", s.config.AccessTokenExpiry)
	return token, nil
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, ErrInvalidAccessToken
	}

	if claims, ok := s.tokens.Get(accessToken); ok {
		if claims.ExpiresAt == nil || claims.ExpiresAt.After(time.Now()) {
			return claims, nil
		}
		s.tokens.Remove(accessToken)
	}

	claims, err := ParseClaims(accessToken, s.config.AccessTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}

	if claims.Type != AccessToken {
		return nil, fmt.Errorf("%w: wrong token type got %q", ErrInvalidAccessToken, claims.Type)
	}

	if s.config.TokenIssuer != "" && claims.Issuer != s.config.TokenIssuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidAccessToken, claims.Issuer)
	}

	s.tokens.Add(accessToken, claims)
	return claims, nil
}

func newAccessToken(subject, issuer, jwtSecret string, expiry time.Duration) (string, error) {
	var expiryTime *jwt.NumericDate

	if expiry > 0 {
		expiryTime = jwt.NewNumericDate(time.Now().Add(expiry))
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: expiryTime,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Type: AccessToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
