package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie the session token travels in.
const SessionCookieName = "sid"

// CookieConfig controls the attributes of the session cookie.
//
// SameSite=None lets a front end on another origin send the cookie with
// credentialed requests. Browsers only accept SameSite=None together with
// Secure, so Secure can only be turned off for plain-HTTP local development.
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// SetSessionCookie writes the sid cookie carrying token.
func (c CookieConfig) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(token, int(c.MaxAge.Seconds())))
}

// ClearSessionCookie tells the browser to drop the sid cookie.
// A negative MaxAge is sent as "Max-Age=0", which expires it immediately.
func (c CookieConfig) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c CookieConfig) cookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if !c.Secure {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

// SessionToken returns the token from the request's sid cookie.
func SessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
