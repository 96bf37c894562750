// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in the mongo and sqlite subpackages.
//
// Domain cases are reported with apperror values (NotFound, Conflict); every
// other error is a storage failure and is wrapped with the package prefix.
package repository

import (
	"context"

	"github.com/sakif/ricebook/internal/model"
)

// ListOptions selects one page of a listing.
type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	// CreateUser inserts a new account. It returns apperror.Conflict when the
	// username is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, username string) (*model.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// UpdateProfile sets a single profile field and returns the updated user.
	UpdateProfile(ctx context.Context, username string, field model.ProfileField, value string) (*model.User, error)
	UpdateCredentials(ctx context.Context, username, salt, hash string) (*model.User, error)

	// AddFollowing adds target to the follow-list of username. Adding a name
	// that is already present leaves the list unchanged.
	AddFollowing(ctx context.Context, username, target string) (*model.User, error)
	// RemoveFollowing is a no-op when target is not followed.
	RemoveFollowing(ctx context.Context, username, target string) (*model.User, error)

	// ImportUsers inserts users in bulk, skipping usernames that already exist.
	// It returns the number of users inserted.
	ImportUsers(ctx context.Context, users []model.User) (int, error)
}

type ArticleRepository interface {
	// CreateArticle assigns article.ID from an atomic counter and article.Ref
	// from the store, then inserts it.
	CreateArticle(ctx context.Context, article *model.Article) error
	GetArticle(ctx context.Context, id int64) (*model.Article, error)
	GetArticleByRef(ctx context.Context, ref string) (*model.Article, error)

	// Feed returns the articles written by any of authors, newest first, and
	// the total number of matching articles.
	Feed(ctx context.Context, authors []string, opts ListOptions) ([]model.Article, int64, error)

	SetArticleText(ctx context.Context, id int64, text string) error
	AppendComment(ctx context.Context, id int64, comment model.Comment) error

	CountArticles(ctx context.Context) (int64, error)
	// ImportArticles bulk-inserts articles that already carry their ID and
	// advances the id counter past the largest one.
	ImportArticles(ctx context.Context, articles []model.Article) error
}

// Store is what the server wires into the services: one backend that serves
// both collections and owns the connection.
type Store interface {
	UserRepository
	ArticleRepository
	Close() error
}
