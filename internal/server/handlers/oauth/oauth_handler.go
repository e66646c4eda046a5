// Package oauth serves a development implicit grant: the user named by
// login_hint is trusted and receives an access token in the redirect
// fragment.
package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/openmined/cloudsync/internal/server/auth"
	"github.com/openmined/cloudsync/internal/server/handlers/api"
)

type OAuthHandler struct {
	auth *auth.AuthService
}

func New(auth *auth.AuthService) *OAuthHandler {
	return &OAuthHandler{auth: auth}
}

// AuthorizeRequest is the query of GET /oauth/authorize.
type AuthorizeRequest struct {
	ClientID     string `form:"client_id" binding:"required"`
	RedirectURI  string `form:"redirect_uri" binding:"required"`
	State        string `form:"state" binding:"required"`
	ResponseType string `form:"response_type" binding:"required"`
	LoginHint    string `form:"login_hint" binding:"required"`
}

func (h *OAuthHandler) Authorize(ctx *gin.Context) {
	var req AuthorizeRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind query: %w", err))
		return
	}

	if req.ResponseType != "token" {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("unsupported response_type %q", req.ResponseType))
		return
	}

	if !h.auth.AllowsClient(req.ClientID) {
		api.AbortWithError(ctx, http.StatusForbidden, api.CodeAuthUnknownClient, auth.ErrUnknownClient)
		return
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil || !redirect.IsAbs() {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid redirect_uri %q", req.RedirectURI))
		return
	}

	token, err := h.auth.IssueAccessToken(ctx, req.LoginHint)
	if errors.Is(err, auth.ErrInvalidEmail) {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	} else if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeAuthTokenGenerationFailed, err)
		return
	}

	fragment := url.Values{}
	fragment.Set("access_token", token)
	fragment.Set("state", req.State)
	fragment.Set("token_type", "bearer")
	redirect.Fragment = ""
	redirect.RawFragment = ""

	slog.Info("oauth authorize", "client", req.ClientID, "user", req.LoginHint)
	ctx.Redirect(http.StatusFound, redirect.String()+"#"+fragment.Encode())
}
