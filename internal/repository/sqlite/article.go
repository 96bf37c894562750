package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/repository"
)

var _ repository.ArticleRepository = (*DB)(nil)

const articleColumns = `id, ref, user_id, author, text, date`

// Dates are stored as unix milliseconds so ORDER BY date is numeric, and so
// precision matches what the Mongo backend keeps.
func toMillis(t time.Time) int64     { return t.UnixMilli() }
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// CreateArticle lets AUTOINCREMENT pick the id. SQLite never reuses an
// AUTOINCREMENT value, so the id is max(id)+1 with no read-then-write race.
func (db *DB) CreateArticle(ctx context.Context, article *model.Article) error {
	article.Ref = xid.New().String()
	if article.Date.IsZero() {
		article.Date = time.Now()
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO articles (ref, user_id, author, text, date) VALUES (?, ?, ?, ?, ?)`,
			article.Ref,
			article.UserID,
			article.Author,
			article.Text,
			toMillis(article.Date),
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating article: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading article id: %w", err)
		}
		article.ID = id

		return insertComments(ctx, tx, article.ID, article.Comments)
	})
}

func (db *DB) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	return db.getArticleWhere(ctx, "id = ?", id, strconv.FormatInt(id, 10))
}

func (db *DB) GetArticleByRef(ctx context.Context, ref string) (*model.Article, error) {
	return db.getArticleWhere(ctx, "ref = ?", ref, ref)
}

func (db *DB) getArticleWhere(ctx context.Context, where string, arg any, label string) (*model.Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE `+where,
		arg,
	)

	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("article", label)
		}
		return nil, fmt.Errorf("sqlite: getting article %s: %w", label, err)
	}

	articles := []model.Article{*a}
	if err := loadComments(ctx, db.conn, articles); err != nil {
		return nil, err
	}
	return &articles[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (*model.Article, error) {
	var (
		a    model.Article
		date int64
	)
	if err := s.Scan(&a.ID, &a.Ref, &a.UserID, &a.Author, &a.Text, &date); err != nil {
		return nil, err
	}
	a.Date = fromMillis(date)
	a.Comments = []model.Comment{}
	return &a, nil
}

func (db *DB) Feed(ctx context.Context, authors []string, opts repository.ListOptions) ([]model.Article, int64, error) {
	if len(authors) == 0 {
		return []model.Article{}, 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(authors)), ", ")
	args := make([]any, 0, len(authors)+2)
	for _, a := range authors {
		args = append(args, a)
	}

	var total int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE author IN (`+placeholders+`)`,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting feed: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE author IN (`+placeholders+`)
		 ORDER BY date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing feed: %w", err)
	}
	defer rows.Close()

	articles := make([]model.Article, 0, opts.Limit)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning article row: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating feed: %w", err)
	}
	rows.Close()

	if err := loadComments(ctx, db.conn, articles); err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// loadComments fills in the comments of every article in one query, in the
// order they were appended.
func loadComments(ctx context.Context, q querier, articles []model.Article) error {
	if len(articles) == 0 {
		return nil
	}

	index := make(map[int64]int, len(articles))
	args := make([]any, 0, len(articles))
	for i, a := range articles {
		index[a.ID] = i
		args = append(args, a.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(articles)), ", ")

	rows, err := q.QueryContext(ctx,
		`SELECT article_id, comment_id, text, author, date FROM comments
		 WHERE article_id IN (`+placeholders+`)
		 ORDER BY seq`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			articleID int64
			c         model.Comment
			date      int64
		)
		if err := rows.Scan(&articleID, &c.CommentID, &c.Text, &c.Author, &date); err != nil {
			return fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		c.Date = fromMillis(date)
		i := index[articleID]
		articles[i].Comments = append(articles[i].Comments, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return nil
}

func insertComments(ctx context.Context, q querier, articleID int64, comments []model.Comment) error {
	for _, c := range comments {
		if c.Date.IsZero() {
			c.Date = time.Now()
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO comments (article_id, comment_id, text, author, date) VALUES (?, ?, ?, ?, ?)`,
			articleID, c.CommentID, c.Text, c.Author, toMillis(c.Date),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting comment on article %d: %w", articleID, err)
		}
	}
	return nil
}

func (db *DB) SetArticleText(ctx context.Context, id int64, text string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE articles SET text = ? WHERE id = ?`,
		text, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating text of article %d: %w", id, err)
	}
	return expectOneRow(result, "article", strconv.FormatInt(id, 10))
}

func (db *DB) AppendComment(ctx context.Context, id int64, comment model.Comment) error {
	if comment.Date.IsZero() {
		comment.Date = time.Now()
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (article_id, comment_id, text, author, date)
		 SELECT id, ?, ?, ?, ? FROM articles WHERE id = ?`,
		comment.CommentID, comment.Text, comment.Author, toMillis(comment.Date), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: commenting on article %d: %w", id, err)
	}
	return expectOneRow(result, "article", strconv.FormatInt(id, 10))
}

func (db *DB) CountArticles(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting articles: %w", err)
	}
	return n, nil
}

// ImportArticles inserts the whole batch in one transaction, so a failure
// leaves the table empty and the import can simply be retried. Explicit ids
// also bump sqlite_sequence, which keeps later CreateArticle calls above them.
func (db *DB) ImportArticles(ctx context.Context, articles []model.Article) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range articles {
			a := &articles[i]
			if a.Ref == "" {
				a.Ref = xid.New().String()
			}
			if a.Date.IsZero() {
				a.Date = time.Now()
			}

			_, err := tx.ExecContext(ctx,
				`INSERT INTO articles (id, ref, user_id, author, text, date) VALUES (?, ?, ?, ?, ?, ?)`,
				a.ID, a.Ref, a.UserID, a.Author, a.Text, toMillis(a.Date),
			)
			if err != nil {
				return fmt.Errorf("sqlite: importing article %d: %w", a.ID, err)
			}

			if err := insertComments(ctx, tx, a.ID, a.Comments); err != nil {
				return err
			}
		}
		return nil
	})
}
