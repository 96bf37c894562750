package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/repository"
)

func createTestArticle(t *testing.T, db *DB, author, text string, date time.Time) *model.Article {
	t.Helper()
	a := &model.Article{Author: author, Text: text, Date: date}
	require.NoError(t, db.CreateArticle(context.Background(), a))
	return a
}

// =========================================================================
// CREATE / GET
// =========================================================================

func TestCreateArticle_AssignsSequentialIDs(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	first := createTestArticle(t, db, "alice", "one", now)
	second := createTestArticle(t, db, "alice", "two", now)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, first.ID+1, second.ID)
	assert.NotEmpty(t, first.Ref)
	assert.NotEqual(t, first.Ref, second.Ref)
}

func TestCreateArticle_ConcurrentIDsAreUnique(t *testing.T) {
	db := newTestDB(t)

	const n = 20
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := &model.Article{Author: "alice", Text: "concurrent"}
			if err := db.CreateArticle(context.Background(), a); err != nil {
				t.Errorf("CreateArticle() error = %v", err)
				return
			}
			ids <- a.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestGetArticle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	created := createTestArticle(t, db, "alice", "hello", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	byID, err := db.GetArticle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", byID.Text)
	assert.Equal(t, "alice", byID.Author)
	assert.True(t, byID.Date.Equal(created.Date))
	assert.NotNil(t, byID.Comments)

	byRef, err := db.GetArticleByRef(ctx, created.Ref)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byRef.ID)

	_, err = db.GetArticle(ctx, 999)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = db.GetArticleByRef(ctx, "nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// FEED
// =========================================================================

func TestFeed_FiltersSortsAndPaginates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		createTestArticle(t, db, "alice", "a", base.Add(time.Duration(i)*time.Hour))
	}
	createTestArticle(t, db, "bob", "b", base.Add(10*time.Hour))
	createTestArticle(t, db, "mallory", "m", base.Add(20*time.Hour))

	page1, total, err := db.Feed(ctx, []string{"alice", "bob"}, repository.ListOptions{Limit: 4, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	require.Len(t, page1, 4)
	assert.Equal(t, "bob", page1[0].Author)
	for i := 1; i < len(page1); i++ {
		assert.False(t, page1[i].Date.After(page1[i-1].Date), "feed not sorted newest first")
	}

	page2, _, err := db.Feed(ctx, []string{"alice", "bob"}, repository.ListOptions{Limit: 4, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	for _, a := range append(page1, page2...) {
		assert.NotEqual(t, "mallory", a.Author)
	}
}

func TestFeed_SameDateOrdersByIDDesc(t *testing.T) {
	db := newTestDB(t)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older := createTestArticle(t, db, "alice", "first", date)
	newer := createTestArticle(t, db, "alice", "second", date)

	feed, _, err := db.Feed(context.Background(), []string{"alice"}, repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, newer.ID, feed[0].ID)
	assert.Equal(t, older.ID, feed[1].ID)
}

func TestFeed_NoAuthors(t *testing.T) {
	db := newTestDB(t)
	createTestArticle(t, db, "alice", "a", time.Now())

	feed, total, err := db.Feed(context.Background(), nil, repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, feed)
	assert.Zero(t, total)
}

// =========================================================================
// UPDATE
// =========================================================================

func TestSetArticleText(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestArticle(t, db, "alice", "before", time.Now())

	require.NoError(t, db.SetArticleText(ctx, a.ID, "after"))

	got, err := db.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Text)

	assert.True(t, errors.Is(db.SetArticleText(ctx, 404, "x"), apperror.ErrNotFound))
}

func TestAppendComment_PreservesOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestArticle(t, db, "alice", "post", time.Now())

	for _, text := range []string{"first", "second", "third"} {
		c := model.Comment{CommentID: text, Text: text, Author: "bob"}
		require.NoError(t, db.AppendComment(ctx, a.ID, c))
	}

	got, err := db.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 3)
	assert.Equal(t, "first", got.Comments[0].Text)
	assert.Equal(t, "second", got.Comments[1].Text)
	assert.Equal(t, "third", got.Comments[2].Text)

	err = db.AppendComment(ctx, 404, model.Comment{Text: "x", Author: "bob"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// IMPORT
// =========================================================================

func TestImportArticles_KeepsIDsAndAdvancesCounter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	imported := []model.Article{
		{ID: 1, UserID: 1, Author: "Bret", Text: "p1", Comments: []model.Comment{{CommentID: "1", Text: "c1", Author: "Eliseo"}}},
		{ID: 100, UserID: 10, Author: "Moriah.Stanton", Text: "p100"},
	}
	require.NoError(t, db.ImportArticles(ctx, imported))

	n, err := db.CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := db.GetArticle(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "Eliseo", got.Comments[0].Author)

	next := createTestArticle(t, db, "alice", "mine", time.Now())
	assert.Equal(t, int64(101), next.ID)
}

func TestImportArticles_RollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// The duplicate id makes the second insert fail; nothing may be kept.
	batch := []model.Article{
		{ID: 1, Author: "Bret", Text: "p1"},
		{ID: 1, Author: "Bret", Text: "dup"},
	}
	require.Error(t, db.ImportArticles(ctx, batch))

	n, err := db.CountArticles(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =========================================================================
// DRIVER FAILURES
// =========================================================================

// Driver errors must come back wrapped, not translated into domain errors.
func TestDriverErrorsAreWrapped(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	db := &DB{conn: conn}

	boom := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)
	_, err = db.CountArticles(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))

	mock.ExpectExec("UPDATE articles SET text").WillReturnError(boom)
	err = db.SetArticleText(context.Background(), 1, "x")
	assert.ErrorIs(t, err, boom)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO articles").WillReturnError(boom)
	mock.ExpectRollback()
	err = db.CreateArticle(context.Background(), &model.Article{Author: "a", Text: "t"})
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}
