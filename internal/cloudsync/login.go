package cloudsync

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

const (
	// StorageOAuthState holds the anti-forgery token of a pending login.
	StorageOAuthState = "oauthState"
	// StorageOAuthType holds the name of the provider a login was started for.
	StorageOAuthType = "oauthType"

	accessTokenParam = "access_token"
)

var accessTokenFragment = regexp.MustCompile(`(%23)?[#&?]*access_token.*`)

// LoginCheck completes a pending OAuth redirect carried by nav, if any, and
// then lets every configured provider inspect its stored credentials.
func LoginCheck(ctx context.Context, sess *Session, nav Navigation) {
	providers := sess.Providers()
	if len(providers) == 0 {
		return
	}

	if nav != nil {
		HandleLoginRedirect(ctx, sess, nav)
	}

	for _, p := range providers {
		p.LoginCheck(ctx, sess)
	}
}

// HandleLoginRedirect validates an access token found in the navigation state
// against the stored anti-forgery token and hands it to the provider the login
// was started for. It reports whether a callback was invoked. On any mismatch
// the stored state is left untouched.
func HandleLoginRedirect(ctx context.Context, sess *Session, nav Navigation) bool {
	hash := nav.Hash()
	params := ParseFragment(hash)
	if params.Get(accessTokenParam) == "" {
		return false
	}

	expected, ok := sess.Storage.GetLocal(StorageOAuthState)
	if !ok || expected == "" || expected != params.Get("state") {
		slog.Warn("login redirect state mismatch")
		return false
	}

	providerName, _ := sess.Storage.GetLocal(StorageOAuthType)
	for _, p := range sess.Providers() {
		if p.Name() != providerName {
			continue
		}
		if err := sess.Storage.RemoveLocal(StorageOAuthState); err != nil {
			slog.Warn("clear oauth state", "error", err)
		}
		nav.SetHash(accessTokenFragment.ReplaceAllString(hash, ""))
		if err := p.LoginCallback(ctx, sess, params); err != nil {
			slog.Error("login callback", "provider", p.Name(), "error", err)
		}
		return true
	}
	return false
}

// ParseFragment parses a URL fragment as a query string. A fragment whose
// separator was escaped as %23 is tolerated.
func ParseFragment(hash string) url.Values {
	hash = strings.TrimPrefix(hash, "#")
	hash = strings.Replace(hash, "%23access_token", accessTokenParam, 1)
	values, err := url.ParseQuery(hash)
	if err != nil {
		slog.Debug("parse fragment", "error", err)
	}
	return values
}
