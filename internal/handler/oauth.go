package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/service"
)

const stateCookieName = "oauth_state"

// OAuthHandler runs the Google sign-in redirect flow.
//
// CSRF PROTECTION VIA STATE:
// The state sent to Google is a short-lived signed token (auth.StateTokens).
// It is also stored in a cookie, and the callback only proceeds when the
// query state matches the cookie AND the signature and expiry check out.
// The cookie binds the flow to this browser; the signature proves this
// server issued it.
type OAuthHandler struct {
	oauth      *service.OAuthService
	states     *auth.StateTokens
	cookies    auth.CookieConfig
	successURL string
	failureURL string
	logger     *slog.Logger
}

func NewOAuthHandler(
	oauthService *service.OAuthService,
	states *auth.StateTokens,
	cookies auth.CookieConfig,
	successURL, failureURL string,
	logger *slog.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		oauth:      oauthService,
		states:     states,
		cookies:    cookies,
		successURL: successURL,
		failureURL: failureURL,
		logger:     logger,
	}
}

// HandleLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /google/login
func (h *OAuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue()
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // matches the state token lifetime
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.BeginLogin(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the flow and sends the browser to the front end.
// Every failure ends in a redirect to the failure URL; the reason is logged.
//
// HTTP: GET /google/callback?code=xxx&state=yyy
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.fail(w, r, "missing state cookie")
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	state := query.Get("state")
	if state != stateCookie.Value {
		h.fail(w, r, "state mismatch")
		return
	}
	if err := h.states.Verify(state); err != nil {
		h.fail(w, r, "invalid state", slog.String("error", err.Error()))
		return
	}

	// The user declined on the consent page.
	if errParam := query.Get("error"); errParam != "" {
		h.fail(w, r, "authorization denied", slog.String("reason", errParam))
		return
	}

	// --- Step 2: Exchange the code and sign in ---
	code := query.Get("code")
	if code == "" {
		h.fail(w, r, "missing code")
		return
	}

	token, user, err := h.oauth.CompleteLogin(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: login failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.failureURL, http.StatusSeeOther)
		return
	}

	h.cookies.SetSessionCookie(w, token)
	h.logger.Info("oauth callback: signed in", slog.String("username", user.Username))
	http.Redirect(w, r, h.successURL, http.StatusSeeOther)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, reason string, attrs ...any) {
	h.logger.Warn("oauth callback: "+reason, attrs...)
	http.Redirect(w, r, h.failureURL, http.StatusSeeOther)
}
