package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/service"
)

// AuthHandler handles registration, password login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create a local account
//   - HandleLogin    → check credentials, start a session, set the sid cookie
//   - HandleLogout   → revoke the session and clear the cookie
type AuthHandler struct {
	auth    *service.AuthService
	cookies auth.CookieConfig
	logger  *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, cookies: cookies, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	DOB      string `json:"dob"`
	Phone    string `json:"phone"`
	Zipcode  string `json:"zipcode"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type resultResponse struct {
	Result   string `json:"result"`
	Username string `json:"username"`
}

// HandleRegister creates an account. It does not log the new user in.
//
// HTTP: POST /register
// REQUEST BODY: {"username", "password", "email", "dob", "phone", "zipcode"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		DOB:      req.DOB,
		Phone:    req.Phone,
		Zipcode:  req.Zipcode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{Result: "success", Username: user.Username})
}

// HandleLogin checks the credentials and sets the sid cookie.
//
// HTTP: POST /login
// REQUEST BODY: {"username", "password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookies.SetSessionCookie(w, token)
	writeJSON(w, http.StatusOK, resultResponse{Result: "success", Username: user.Username})
}

// HandleLogout ends the session.
//
// HTTP: PUT /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.SessionToken(r); ok {
		h.auth.Logout(r.Context(), token)
	}
	h.cookies.ClearSessionCookie(w)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
