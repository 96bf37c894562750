package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/service"
)

// ArticleHandler serves the feed and article editing.
type ArticleHandler struct {
	articles *service.ArticleService
	logger   *slog.Logger
}

func NewArticleHandler(articles *service.ArticleService, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{articles: articles, logger: logger}
}

// articlesResponse wraps every article payload in a list, single articles
// included, which is the shape the front end expects.
type articlesResponse struct {
	Articles   []model.Article   `json:"articles"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
}

type createArticleRequest struct {
	Text string `json:"text"`
}

type updateArticleRequest struct {
	Text      string `json:"text"`
	CommentID string `json:"commentId"`
	Comment   string `json:"comment"`
}

// HandleFeed returns one page of the caller's feed.
//
// HTTP: GET /articles?page=1&limit=10
func (h *ArticleHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := queryInt(r, "page", service.DefaultPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	feed, err := h.articles.List(r.Context(), username, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articlesResponse{
		Articles:   feed.Articles,
		Pagination: &feed.Pagination,
	})
}

// HandleGet returns a single article by numeric id or by its _id.
//
// HTTP: GET /articles/{id}
func (h *ArticleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	article, err := h.articles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articlesResponse{Articles: []model.Article{*article}})
}

// HandleCreate posts a new article as the caller.
//
// HTTP: POST /article
// REQUEST BODY: {"text": "..."}
func (h *ArticleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	article, err := h.articles.Create(r.Context(), username, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articlesResponse{Articles: []model.Article{*article}})
}

// HandleUpdate edits the text and/or appends a comment.
//
// HTTP: PUT /articles/{id}
// REQUEST BODY: {"text": "...", "commentId": "...", "comment": "..."}, all optional
func (h *ArticleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	article, err := h.articles.Update(r.Context(), username, chi.URLParam(r, "id"), service.ArticleUpdate{
		Text:      req.Text,
		CommentID: req.CommentID,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articlesResponse{Articles: []model.Article{*article}})
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.ValidationFailed(name, name+" must be a positive integer")
	}
	return n, nil
}
