package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/cloudsync/internal/server/auth"
	"github.com/openmined/cloudsync/internal/server/handlers/api"
)

const (
	bearerPrefix = "Bearer "
	authHeader   = "Authorization"
	// browsers cannot set headers on a websocket upgrade
	tokenQueryParam = "access_token"
)

// JWTAuth validates the bearer access token and stores its subject as the
// request user. With auth disabled every request runs as auth.DefaultUser.
func JWTAuth(authService *auth.AuthService) gin.HandlerFunc {
	if !authService.IsEnabled() {
		slog.Info("auth middleware disabled")
		return func(ctx *gin.Context) {
			ctx.Set(api.UserKey, auth.DefaultUser)
			ctx.Next()
		}
	}
	slog.Info("auth middleware enabled")
	return func(ctx *gin.Context) {
		tokenString, err := bearerToken(ctx)
		if err != nil {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials, err)
			return
		}

		claims, err := authService.ValidateAccessToken(ctx, tokenString)
		if err != nil {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials, err)
			return
		}

		ctx.Set(api.UserKey, claims.Subject)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) (string, error) {
	value := ctx.GetHeader(authHeader)
	if value == "" {
		if token := ctx.Query(tokenQueryParam); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header is missing")
	}

	if !strings.HasPrefix(value, bearerPrefix) {
		return "", errors.New("authorization header format must be Bearer {token}")
	}

	token := strings.TrimSpace(strings.TrimPrefix(value, bearerPrefix))
	if token == "" {
		return "", errors.New("token is missing")
	}
	return token, nil
}
