package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ricebook/internal/service"
)

type FollowingHandler struct {
	following *service.FollowingService
	logger    *slog.Logger
}

func NewFollowingHandler(following *service.FollowingService, logger *slog.Logger) *FollowingHandler {
	return &FollowingHandler{following: following, logger: logger}
}

type followingResponse struct {
	Username  string   `json:"username"`
	Following []string `json:"following"`
}

// HandleGet returns a follow-list: the {user} parameter's, or the caller's.
//
// HTTP: GET /following, GET /following/{user}
func (h *FollowingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "user")
	if username == "" {
		var err error
		if username, err = caller(r); err != nil {
			writeError(w, r, err)
			return
		}
	}

	following, err := h.following.Get(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followingResponse{Username: username, Following: following})
}

// HandleFollow adds {user} to the caller's follow-list.
//
// HTTP: PUT /following/{user}
func (h *FollowingHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.following.Follow)
}

// HandleUnfollow removes {user} from the caller's follow-list.
//
// HTTP: DELETE /following/{user}
func (h *FollowingHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.following.Unfollow)
}

func (h *FollowingHandler) change(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, caller, target string) ([]string, error),
) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	following, err := op(r.Context(), username, chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followingResponse{Username: username, Following: following})
}
