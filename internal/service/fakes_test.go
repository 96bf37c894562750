package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/placeholder"
	"github.com/sakif/ricebook/internal/repository"
	"github.com/sakif/ricebook/internal/session"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testHasher() auth.Hasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

var errStoreDown = errors.New("store down")

// fakeStore is an in-memory repository.Store. It copies users and articles in
// and out so callers cannot mutate what it holds.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	articles map[int64]*model.Article
	nextID   int64

	// set to a non-nil error to simulate a storage failure
	createUserErr error
	getUserErr    error
	feedErr       error
	importErr     error
	appendErr     error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		articles: make(map[int64]*model.Article),
	}
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Following = slices.Clone(u.Following)
	if c.Following == nil {
		c.Following = []string{}
	}
	return &c
}

func copyArticle(a *model.Article) *model.Article {
	c := *a
	c.Comments = slices.Clone(a.Comments)
	if c.Comments == nil {
		c.Comments = []model.Comment{}
	}
	return &c
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createUserErr != nil {
		return f.createUserErr
	}
	if _, ok := f.users[user.Username]; ok {
		return apperror.Conflict("user", user.Username)
	}
	if user.Headline == "" {
		user.Headline = model.DefaultHeadline
	}
	if user.Following == nil {
		user.Following = []string{}
	}
	f.users[user.Username] = copyUser(user)
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	return copyUser(u), nil
}

func (f *fakeStore) GetUserByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GoogleID != "" && u.GoogleID == googleID {
			return copyUser(u), nil
		}
	}
	return nil, apperror.NotFound("google account", googleID)
}

func (f *fakeStore) mutateUser(username string, fn func(u *model.User)) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	fn(u)
	return copyUser(u), nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, username string, field model.ProfileField, value string) (*model.User, error) {
	return f.mutateUser(username, func(u *model.User) {
		switch field {
		case model.FieldHeadline:
			u.Headline = value
		case model.FieldEmail:
			u.Email = value
		case model.FieldZipcode:
			u.Zipcode = value
		case model.FieldPhone:
			u.Phone = value
		case model.FieldAvatar:
			u.Avatar = value
		case model.FieldDOB:
			u.DOB = value
		}
	})
}

func (f *fakeStore) UpdateCredentials(_ context.Context, username, salt, hash string) (*model.User, error) {
	return f.mutateUser(username, func(u *model.User) {
		u.Salt, u.Hash = salt, hash
	})
}

func (f *fakeStore) AddFollowing(_ context.Context, username, target string) (*model.User, error) {
	return f.mutateUser(username, func(u *model.User) {
		if !u.IsFollowing(target) {
			u.Following = append(u.Following, target)
		}
	})
}

func (f *fakeStore) RemoveFollowing(_ context.Context, username, target string) (*model.User, error) {
	return f.mutateUser(username, func(u *model.User) {
		u.Following = slices.DeleteFunc(u.Following, func(s string) bool { return s == target })
	})
}

func (f *fakeStore) ImportUsers(ctx context.Context, users []model.User) (int, error) {
	inserted := 0
	for i := range users {
		err := f.CreateUser(ctx, &users[i])
		if errors.Is(err, apperror.ErrConflict) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) CreateArticle(_ context.Context, article *model.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	article.ID = f.nextID
	article.Ref = "ref-" + strconv.FormatInt(article.ID, 10)
	f.articles[article.ID] = copyArticle(article)
	return nil
}

func (f *fakeStore) GetArticle(_ context.Context, id int64) (*model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, apperror.NotFound("article", strconv.FormatInt(id, 10))
	}
	return copyArticle(a), nil
}

func (f *fakeStore) GetArticleByRef(_ context.Context, ref string) (*model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.articles {
		if a.Ref == ref {
			return copyArticle(a), nil
		}
	}
	return nil, apperror.NotFound("article", ref)
}

func (f *fakeStore) Feed(_ context.Context, authors []string, opts repository.ListOptions) ([]model.Article, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedErr != nil {
		return nil, 0, f.feedErr
	}

	var matched []model.Article
	for _, a := range f.articles {
		if slices.Contains(authors, a.Author) {
			matched = append(matched, *copyArticle(a))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := min(opts.Offset, len(matched))
	end := min(start+opts.Limit, len(matched))
	return append([]model.Article{}, matched[start:end]...), total, nil
}

func (f *fakeStore) SetArticleText(_ context.Context, id int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return apperror.NotFound("article", strconv.FormatInt(id, 10))
	}
	a.Text = text
	return nil
}

func (f *fakeStore) AppendComment(_ context.Context, id int64, comment model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	a, ok := f.articles[id]
	if !ok {
		return apperror.NotFound("article", strconv.FormatInt(id, 10))
	}
	a.Comments = append(a.Comments, comment)
	return nil
}

func (f *fakeStore) CountArticles(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.articles)), nil
}

func (f *fakeStore) ImportArticles(_ context.Context, articles []model.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.importErr != nil {
		return f.importErr
	}
	for i := range articles {
		a := &articles[i]
		a.Ref = "ref-" + strconv.FormatInt(a.ID, 10)
		f.articles[a.ID] = copyArticle(a)
		f.nextID = max(f.nextID, a.ID)
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeSessions is a session.Store that can be made to fail.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]string
	next     int
	err      error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]string)}
}

func (f *fakeSessions) Create(_ context.Context, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.next++
	token := "token-" + strconv.Itoa(f.next)
	f.sessions[token] = username
	return token, nil
}

func (f *fakeSessions) Resolve(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	username, ok := f.sessions[token]
	if !ok {
		return "", session.ErrNotFound
	}
	return username, nil
}

func (f *fakeSessions) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.sessions, token)
	return nil
}

func (f *fakeSessions) Close() error { return nil }

// fakeProvider stands in for Google.
type fakeProvider struct {
	identity *auth.Identity
	err      error
}

func (p *fakeProvider) Name() string { return "google" }

func (p *fakeProvider) BeginLogin(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (p *fakeProvider) CompleteLogin(_ context.Context, code string) (*auth.Identity, error) {
	if p.err != nil {
		return nil, p.err
	}
	if code == "" {
		return nil, errors.New("empty code")
	}
	return p.identity, nil
}

// fakeUploader records what was uploaded.
type fakeUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (u *fakeUploader) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	u.key, u.contentType, u.body = key, contentType, data
	return "https://cdn.example.com/" + key, nil
}

// fakeFeed is a canned FeedSource.
type fakeFeed struct {
	users    []placeholder.User
	posts    []placeholder.Post
	comments []placeholder.Comment
	err      error
	calls    int
}

func (f *fakeFeed) Users(context.Context) ([]placeholder.User, error) {
	f.calls++
	return f.users, f.err
}

func (f *fakeFeed) Posts(context.Context) ([]placeholder.Post, error) {
	return f.posts, f.err
}

func (f *fakeFeed) Comments(context.Context) ([]placeholder.Comment, error) {
	return f.comments, f.err
}

// mustRegister creates a local account through AuthService so the stored
// credentials are real.
func mustRegister(t *testing.T, svc *AuthService, username, password string) *model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Password: password,
		Email:    username + "@example.com",
		DOB:      "1990-01-01",
		Phone:    "555-0100",
		Zipcode:  "77005",
	})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	return user
}

func assertIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
