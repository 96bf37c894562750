package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/ricebook/internal/apperror"
)

// contextKey is unexported so no other package can read or overwrite the
// values this package puts in a request context.
type contextKey string

const usernameKey contextKey = "username"

// Authenticator resolves a session token to a username. It returns an error
// wrapping apperror.ErrUnauthorized when the token names no live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// RequireAuth resolves the session cookie and stores the username in the
// request context. Requests without a live session get 401 and never reach
// the handler; any other failure is a 500.
//
// Chi runs middlewares as a chain: req → M1 → M2 → Handler → M2 → M1 → resp.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := SessionToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid session required")
				return
			}

			username, err := authn.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, apperror.ErrUnauthorized):
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid session required")
				return
			case err != nil:
				slog.ErrorContext(r.Context(), "resolving session", slog.String("error", err.Error()))
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUsername(r.Context(), username)))
		})
	}
}

// UsernameFromContext returns the authenticated username, or ("", false) for
// an anonymous request.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

// ContextWithUsername returns ctx carrying username as the caller identity.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// writeAuthError writes the same {"error","message"} body the handlers use.
// It is written by hand because this package cannot import handler.
func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}
