package cloudsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoginSession(p *fakeProvider, storage memStorage) *Session {
	return NewSession(NewRegistry(p), newMemStore(), storage, &recordingNotifier{}, WithProviders(p.Name()))
}

func TestHandleLoginRedirect(t *testing.T) {
	cases := []struct {
		name       string
		hash       string
		storage    memStorage
		called     bool
		wantHash   string
		stateAfter bool
	}{
		{
			name:       "matching state",
			hash:       "#access_token=tok&state=s1&token_type=Bearer",
			storage:    memStorage{StorageOAuthState: "s1", StorageOAuthType: "fake"},
			called:     true,
			wantHash:   "",
			stateAfter: false,
		},
		{
			name:       "escaped separator",
			hash:       "#%23access_token=tok&state=s1",
			storage:    memStorage{StorageOAuthState: "s1", StorageOAuthType: "fake"},
			called:     true,
			wantHash:   "#",
			stateAfter: false,
		},
		{
			name:       "state mismatch",
			hash:       "#access_token=tok&state=other",
			storage:    memStorage{StorageOAuthState: "s1", StorageOAuthType: "fake"},
			called:     false,
			wantHash:   "#access_token=tok&state=other",
			stateAfter: true,
		},
		{
			name:       "unknown provider",
			hash:       "#access_token=tok&state=s1",
			storage:    memStorage{StorageOAuthState: "s1", StorageOAuthType: "dropbox"},
			called:     false,
			wantHash:   "#access_token=tok&state=s1",
			stateAfter: true,
		},
		{
			name:       "no token",
			hash:       "#state=s1",
			storage:    memStorage{StorageOAuthState: "s1", StorageOAuthType: "fake"},
			called:     false,
			wantHash:   "#state=s1",
			stateAfter: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakeProvider()
			sess := newLoginSession(p, tc.storage)
			nav := &fakeNav{hash: tc.hash}

			called := HandleLoginRedirect(context.Background(), sess, nav)
			assert.Equal(t, tc.called, called)
			assert.Equal(t, tc.wantHash, nav.hash)
			_, ok := tc.storage[StorageOAuthState]
			assert.Equal(t, tc.stateAfter, ok)

			if tc.called {
				require.Len(t, p.callbackCalls, 1)
				assert.Equal(t, "tok", p.callbackCalls[0].Get("access_token"))
				assert.Equal(t, p, sess.Provider())
			} else {
				assert.Empty(t, p.callbackCalls)
				assert.Nil(t, sess.Provider())
			}
		})
	}
}

func TestLoginCheck_RunsEveryProvider(t *testing.T) {
	p := newFakeProvider()
	sess := newLoginSession(p, memStorage{})

	LoginCheck(context.Background(), sess, &fakeNav{})
	assert.Equal(t, 1, p.loginChecks)
}

func TestLoginCheck_NoProvidersConfigured(t *testing.T) {
	p := newFakeProvider()
	sess := NewSession(NewRegistry(p), newMemStore(), memStorage{}, &recordingNotifier{})

	LoginCheck(context.Background(), sess, nil)
	assert.Zero(t, p.loginChecks)
}

func TestParseFragment(t *testing.T) {
	v := ParseFragment("#%23access_token=abc&expires_in=3600")
	assert.Equal(t, "abc", v.Get("access_token"))
	assert.Equal(t, "3600", v.Get("expires_in"))
}
