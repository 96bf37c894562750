package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/handler"
	"github.com/sakif/ricebook/internal/repository/sqlite"
	"github.com/sakif/ricebook/internal/service"
	"github.com/sakif/ricebook/internal/session"
)

const (
	successURL = "http://localhost:3000/main"
	failureURL = "http://localhost:3000/login"
)

// fakeProvider stands in for Google: any code other than "bad" signs in
// the same identity.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "google" }

func (fakeProvider) BeginLogin(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (fakeProvider) CompleteLogin(_ context.Context, code string) (*auth.Identity, error) {
	if code == "bad" {
		return nil, errors.New("exchange failed")
	}
	return &auth.Identity{Provider: "google", Subject: "1234", Email: "g@example.com"}, nil
}

type oauthEnv struct {
	handler  *handler.OAuthHandler
	sessions *session.Memory
}

func newOAuthEnv(t *testing.T) *oauthEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	states, err := auth.NewStateTokens("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewMemory(time.Hour)
	oauthSvc := service.NewOAuthService(fakeProvider{}, store, sessions, nil, logger)
	cookies := auth.CookieConfig{Secure: true, MaxAge: 24 * time.Hour}

	return &oauthEnv{
		handler:  handler.NewOAuthHandler(oauthSvc, states, cookies, successURL, failureURL, logger),
		sessions: sessions,
	}
}

// begin runs GET /google/login and returns the state cookie it set.
func (e *oauthEnv) begin(t *testing.T) *http.Cookie {
	t.Helper()

	rr := httptest.NewRecorder()
	e.handler.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/google/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauth_state" {
			location, err := url.Parse(rr.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, c.Value, location.Query().Get("state"))
			return c
		}
	}
	t.Fatal("no oauth_state cookie set")
	return nil
}

func (e *oauthEnv) callback(query string, state *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/google/callback?"+query, nil)
	if state != nil {
		req.AddCookie(&http.Cookie{Name: state.Name, Value: state.Value})
	}
	rr := httptest.NewRecorder()
	e.handler.HandleCallback(rr, req)
	return rr
}

func TestOAuthHandler_Callback(t *testing.T) {
	t.Run("signs in and redirects to the app", func(t *testing.T) {
		env := newOAuthEnv(t)
		state := env.begin(t)

		rr := env.callback("code=good&state="+url.QueryEscape(state.Value), state)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, successURL, rr.Header().Get("Location"))

		cookie := sessionCookie(rr)
		require.NotNil(t, cookie)
		username, err := env.sessions.Resolve(context.Background(), cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, "google_1234", username)
	})

	t.Run("second sign-in reuses the account", func(t *testing.T) {
		env := newOAuthEnv(t)
		for i := 0; i < 2; i++ {
			state := env.begin(t)
			rr := env.callback("code=good&state="+url.QueryEscape(state.Value), state)
			require.Equal(t, successURL, rr.Header().Get("Location"))
		}
	})

	failures := map[string]func(state *http.Cookie) (string, *http.Cookie){
		"missing state cookie": func(s *http.Cookie) (string, *http.Cookie) {
			return "code=good&state=" + url.QueryEscape(s.Value), nil
		},
		"state mismatch": func(s *http.Cookie) (string, *http.Cookie) {
			return "code=good&state=forged", s
		},
		"user denied consent": func(s *http.Cookie) (string, *http.Cookie) {
			return "error=access_denied&state=" + url.QueryEscape(s.Value), s
		},
		"missing code": func(s *http.Cookie) (string, *http.Cookie) {
			return "state=" + url.QueryEscape(s.Value), s
		},
		"exchange fails": func(s *http.Cookie) (string, *http.Cookie) {
			return "code=bad&state=" + url.QueryEscape(s.Value), s
		},
	}
	for name, build := range failures {
		t.Run(name, func(t *testing.T) {
			env := newOAuthEnv(t)
			query, cookie := build(env.begin(t))

			rr := env.callback(query, cookie)

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, failureURL, rr.Header().Get("Location"))
			assert.Nil(t, sessionCookie(rr))
		})
	}

	t.Run("forged cookie and query pair", func(t *testing.T) {
		env := newOAuthEnv(t)
		forged := &http.Cookie{Name: "oauth_state", Value: "not-a-token"}

		rr := env.callback("code=good&state=not-a-token", forged)

		assert.Equal(t, failureURL, rr.Header().Get("Location"))
		assert.Nil(t, sessionCookie(rr))
	})
}
