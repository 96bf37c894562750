package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/placeholder"
	"github.com/sakif/ricebook/internal/repository"
)

const (
	// seedDOB is given to every imported account; the feed has no birthdays.
	seedDOB = "2000-01-01"
	// unknownAuthor is used for posts whose userId matches no feed user.
	unknownAuthor = "unknown"
)

// FeedSource is where demo content comes from. *placeholder.Client
// implements it.
type FeedSource interface {
	Users(ctx context.Context) ([]placeholder.User, error)
	Posts(ctx context.Context) ([]placeholder.Post, error)
	Comments(ctx context.Context) ([]placeholder.Comment, error)
}

// SeedResult reports what a Seed call did.
type SeedResult struct {
	Skipped  bool
	Users    int
	Articles int
	Comments int
}

// Seeder fills an empty store with the demo users, posts and comments.
//
// It runs only when asked: by the `seed` command, or once at startup when
// configured. Seeding is idempotent. When the article store already has
// content it does nothing, and a failed seed leaves the articles empty so
// the next call starts over.
type Seeder struct {
	source   FeedSource
	users    repository.UserRepository
	articles repository.ArticleRepository
	hasher   auth.Hasher
	logger   *slog.Logger
	now      func() time.Time

	// mu keeps two seeds in this process from both seeing an empty store.
	mu sync.Mutex
}

func NewSeeder(
	source FeedSource,
	users repository.UserRepository,
	articles repository.ArticleRepository,
	hasher auth.Hasher,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		source:   source,
		users:    users,
		articles: articles,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.articles.CountArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed: counting articles: %w", err)
	}
	if count > 0 {
		s.logger.Info("store already seeded", slog.Int64("articles", count))
		return &SeedResult{Skipped: true}, nil
	}

	// Fetch everything before writing anything, so a network failure leaves
	// the store untouched.
	feedUsers, err := s.source.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	posts, err := s.source.Posts(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	comments, err := s.source.Comments(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	users, err := s.buildUsers(feedUsers)
	if err != nil {
		return nil, err
	}
	insertedUsers, err := s.users.ImportUsers(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("seed: importing users: %w", err)
	}

	articles, commentCount := s.buildArticles(feedUsers, posts, comments)
	if err := s.articles.ImportArticles(ctx, articles); err != nil {
		return nil, fmt.Errorf("seed: importing articles: %w", err)
	}

	result := &SeedResult{Users: insertedUsers, Articles: len(articles), Comments: commentCount}
	s.logger.Info("store seeded",
		slog.Int("users", result.Users),
		slog.Int("articles", result.Articles),
		slog.Int("comments", result.Comments),
	)
	return result, nil
}

// buildUsers maps feed users to accounts. Each account's password is the
// street of its feed address, which is how the demo accounts log in.
func (s *Seeder) buildUsers(feedUsers []placeholder.User) ([]model.User, error) {
	users := make([]model.User, 0, len(feedUsers))
	for _, fu := range feedUsers {
		if fu.Username == "" {
			continue
		}
		salt, hash, err := s.hasher.Hash(fu.Address.Street)
		if err != nil {
			return nil, fmt.Errorf("seed: hashing password of %s: %w", fu.Username, err)
		}
		users = append(users, model.User{
			Username: fu.Username,
			Salt:     salt,
			Hash:     hash,
			Email:    fu.Email,
			Phone:    fu.Phone,
			Zipcode:  fu.Address.Zipcode,
			DOB:      seedDOB,
			Auth:     model.AuthLocal,
		})
	}
	return users, nil
}

// buildArticles turns posts into articles, keeping the post id, resolving the
// author through the post's userId and attaching the post's comments in feed
// order.
func (s *Seeder) buildArticles(feedUsers []placeholder.User, posts []placeholder.Post, comments []placeholder.Comment) ([]model.Article, int) {
	now := s.now()

	usernames := make(map[int64]string, len(feedUsers))
	for _, u := range feedUsers {
		usernames[u.ID] = u.Username
	}

	byPost := make(map[int64][]model.Comment)
	for _, c := range comments {
		byPost[c.PostID] = append(byPost[c.PostID], model.Comment{
			CommentID: strconv.FormatInt(c.ID, 10),
			Text:      c.Body,
			Author:    emailLocalPart(c.Email),
			Date:      now,
		})
	}

	articles := make([]model.Article, 0, len(posts))
	total := 0
	for _, p := range posts {
		author, ok := usernames[p.UserID]
		if !ok || author == "" {
			author = unknownAuthor
		}
		postComments := byPost[p.ID]
		if postComments == nil {
			postComments = []model.Comment{}
		}
		total += len(postComments)

		articles = append(articles, model.Article{
			ID:       p.ID,
			UserID:   p.UserID,
			Author:   author,
			Text:     p.Body,
			Date:     now,
			Comments: postComments,
		})
	}
	return articles, total
}

func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
