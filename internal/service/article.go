package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/monitoring"
	"github.com/sakif/ricebook/internal/repository"
)

// Feed paging. Page and limit are 1-based and validated by List; a limit
// above MaxLimit is rejected rather than silently reduced.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ArticleService implements the feed and article editing.
type ArticleService struct {
	articles repository.ArticleRepository
	users    repository.UserRepository
	metrics  *monitoring.Metrics
	logger   *slog.Logger

	// strictOwnership turns a text edit by someone other than the author into
	// a Forbidden error instead of a logged no-op.
	strictOwnership bool
	now             func() time.Time
}

func NewArticleService(
	articles repository.ArticleRepository,
	users repository.UserRepository,
	strictOwnership bool,
	metrics *monitoring.Metrics,
	logger *slog.Logger,
) *ArticleService {
	return &ArticleService{
		articles:        articles,
		users:           users,
		strictOwnership: strictOwnership,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
	}
}

// FeedPage is one page of a caller's feed.
type FeedPage struct {
	Articles   []model.Article
	Pagination model.Pagination
}

// List returns page of the caller's feed: articles written by the caller or
// by anyone the caller follows, newest first.
func (s *ArticleService) List(ctx context.Context, caller string, page, limit int) (*FeedPage, error) {
	if page < 1 {
		return nil, apperror.ValidationFailed("page", "page must be a positive integer")
	}
	if limit < 1 {
		return nil, apperror.ValidationFailed("limit", "limit must be a positive integer")
	}
	if limit > MaxLimit {
		return nil, apperror.ValidationFailed("limit", fmt.Sprintf("limit must be at most %d", MaxLimit))
	}

	user, err := s.users.GetUser(ctx, caller)
	if err != nil {
		return nil, err
	}

	authors := make([]string, 0, len(user.Following)+1)
	authors = append(authors, user.Username)
	authors = append(authors, user.Following...)

	articles, total, err := s.articles.Feed(ctx, authors, repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		s.logger.Error("failed to load feed",
			slog.String("username", caller),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading feed: %w", err)
	}

	return &FeedPage{
		Articles:   articles,
		Pagination: model.NewPagination(page, limit, total),
	}, nil
}

// Get looks an article up by its integer id, falling back to the store's own
// identifier for anything that is not a number or did not match.
func (s *ArticleService) Get(ctx context.Context, idOrRef string) (*model.Article, error) {
	idOrRef = strings.TrimSpace(idOrRef)
	if idOrRef == "" {
		return nil, apperror.ValidationFailed("id", "article id is required")
	}

	if id, err := strconv.ParseInt(idOrRef, 10, 64); err == nil {
		article, err := s.articles.GetArticle(ctx, id)
		if err == nil || !errors.Is(err, apperror.ErrNotFound) {
			return article, err
		}
	}

	article, err := s.articles.GetArticleByRef(ctx, idOrRef)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("article", idOrRef)
		}
		return nil, err
	}
	return article, nil
}

// Create posts a new article authored by the caller.
func (s *ArticleService) Create(ctx context.Context, caller, text string) (*model.Article, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperror.ValidationFailed("text", "text is required")
	}

	article := &model.Article{
		Author:   caller,
		Text:     text,
		Date:     s.now(),
		Comments: []model.Comment{},
	}
	if err := s.articles.CreateArticle(ctx, article); err != nil {
		s.logger.Error("failed to create article",
			slog.String("username", caller),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating article: %w", err)
	}

	s.metrics.ArticlePosted()
	s.logger.Info("article created",
		slog.Int64("id", article.ID),
		slog.String("author", caller),
	)
	return article, nil
}

// ArticleUpdate lists the optional changes of PUT /articles/{id}. Empty
// strings mean "not supplied".
type ArticleUpdate struct {
	Text      string
	CommentID string
	Comment   string
}

// Update edits the text (author only) and/or appends a comment (anyone), then
// returns the article as stored.
//
// A text edit by a non-author is skipped and logged, unless strict ownership
// is on, in which case it fails with Forbidden before anything is written.
func (s *ArticleService) Update(ctx context.Context, caller, idOrRef string, upd ArticleUpdate) (*model.Article, error) {
	article, err := s.Get(ctx, idOrRef)
	if err != nil {
		return nil, err
	}

	editText := upd.Text != ""
	if editText && article.Author != caller {
		if s.strictOwnership {
			return nil, apperror.Forbidden("only the author can edit an article's text")
		}
		s.logger.Warn("ignoring text edit by non-author",
			slog.Int64("id", article.ID),
			slog.String("author", article.Author),
			slog.String("caller", caller),
		)
		editText = false
	}

	if editText {
		if err := s.articles.SetArticleText(ctx, article.ID, upd.Text); err != nil {
			return nil, s.updateFailed(article.ID, err)
		}
	}

	if upd.CommentID != "" && upd.Comment != "" {
		comment := model.Comment{
			CommentID: upd.CommentID,
			Text:      upd.Comment,
			Author:    caller,
			Date:      s.now(),
		}
		if err := s.articles.AppendComment(ctx, article.ID, comment); err != nil {
			return nil, s.updateFailed(article.ID, err)
		}
		s.metrics.CommentAdded()
	}

	return s.articles.GetArticle(ctx, article.ID)
}

func (s *ArticleService) updateFailed(id int64, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.logger.Error("failed to update article",
		slog.Int64("id", id),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("updating article %d: %w", id, err)
}
