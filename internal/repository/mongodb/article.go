package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/repository"
)

type commentDoc struct {
	CommentID string    `bson:"commentId"`
	Text      string    `bson:"text"`
	Author    string    `bson:"author"`
	Date      time.Time `bson:"date"`
}

type articleDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ArticleID int64              `bson:"id"`
	UserID    int64              `bson:"userId"`
	Author    string             `bson:"author"`
	Text      string             `bson:"text"`
	Date      time.Time          `bson:"date"`
	Comments  []commentDoc       `bson:"comments"`
}

func newArticleDoc(a *model.Article) articleDoc {
	comments := make([]commentDoc, 0, len(a.Comments))
	for _, c := range a.Comments {
		comments = append(comments, newCommentDoc(c))
	}
	return articleDoc{
		ArticleID: a.ID,
		UserID:    a.UserID,
		Author:    a.Author,
		Text:      a.Text,
		Date:      a.Date,
		Comments:  comments,
	}
}

func newCommentDoc(c model.Comment) commentDoc {
	if c.Date.IsZero() {
		c.Date = time.Now()
	}
	return commentDoc{CommentID: c.CommentID, Text: c.Text, Author: c.Author, Date: c.Date}
}

func (d *articleDoc) toModel() model.Article {
	comments := make([]model.Comment, 0, len(d.Comments))
	for _, c := range d.Comments {
		comments = append(comments, model.Comment{
			CommentID: c.CommentID,
			Text:      c.Text,
			Author:    c.Author,
			Date:      c.Date.UTC(),
		})
	}
	return model.Article{
		Ref:      d.ID.Hex(),
		ID:       d.ArticleID,
		UserID:   d.UserID,
		Author:   d.Author,
		Text:     d.Text,
		Date:     d.Date.UTC(),
		Comments: comments,
	}
}

// nextArticleID increments the counter document and returns the new value.
// The upsert creates the counter on first use.
func (db *DB) nextArticleID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := db.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": articleCounter},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongodb: allocating article id: %w", err)
	}
	return counter.Seq, nil
}

func (db *DB) CreateArticle(ctx context.Context, article *model.Article) error {
	id, err := db.nextArticleID(ctx)
	if err != nil {
		return err
	}
	article.ID = id
	if article.Date.IsZero() {
		article.Date = time.Now()
	}
	// BSON dates keep millisecond precision; truncate so the caller sees what
	// a later read returns.
	article.Date = article.Date.Truncate(time.Millisecond).UTC()

	doc := newArticleDoc(article)
	doc.ID = primitive.NewObjectID()

	if _, err := db.articles.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodb: creating article %d: %w", id, err)
	}
	article.Ref = doc.ID.Hex()
	if article.Comments == nil {
		article.Comments = []model.Comment{}
	}
	return nil
}

func (db *DB) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	return db.findArticle(ctx, bson.M{"id": id}, strconv.FormatInt(id, 10))
}

func (db *DB) GetArticleByRef(ctx context.Context, ref string) (*model.Article, error) {
	oid, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return nil, apperror.NotFound("article", ref)
	}
	return db.findArticle(ctx, bson.M{"_id": oid}, ref)
}

func (db *DB) findArticle(ctx context.Context, filter bson.M, label string) (*model.Article, error) {
	var doc articleDoc
	if err := db.articles.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("article", label)
		}
		return nil, fmt.Errorf("mongodb: getting article %s: %w", label, err)
	}
	a := doc.toModel()
	return &a, nil
}

func (db *DB) Feed(ctx context.Context, authors []string, opts repository.ListOptions) ([]model.Article, int64, error) {
	if len(authors) == 0 {
		return []model.Article{}, 0, nil
	}
	filter := bson.M{"author": bson.M{"$in": authors}}

	total, err := db.articles.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: counting feed: %w", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "id", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))

	cursor, err := db.articles.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: listing feed: %w", err)
	}

	var docs []articleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("mongodb: decoding feed: %w", err)
	}

	articles := make([]model.Article, 0, len(docs))
	for i := range docs {
		articles = append(articles, docs[i].toModel())
	}
	return articles, total, nil
}

func (db *DB) SetArticleText(ctx context.Context, id int64, text string) error {
	return db.updateArticle(ctx, id, bson.M{"$set": bson.M{"text": text}})
}

func (db *DB) AppendComment(ctx context.Context, id int64, comment model.Comment) error {
	return db.updateArticle(ctx, id, bson.M{"$push": bson.M{"comments": newCommentDoc(comment)}})
}

func (db *DB) updateArticle(ctx context.Context, id int64, update bson.M) error {
	result, err := db.articles.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("mongodb: updating article %d: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return apperror.NotFound("article", strconv.FormatInt(id, 10))
	}
	return nil
}

func (db *DB) CountArticles(ctx context.Context) (int64, error) {
	n, err := db.articles.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting articles: %w", err)
	}
	return n, nil
}

// ImportArticles inserts the batch and then raises the counter to the largest
// imported id with $max, so it never moves backwards.
func (db *DB) ImportArticles(ctx context.Context, articles []model.Article) error {
	if len(articles) == 0 {
		return nil
	}

	docs := make([]any, 0, len(articles))
	var maxID int64
	for i := range articles {
		a := &articles[i]
		if a.Date.IsZero() {
			a.Date = time.Now()
		}
		doc := newArticleDoc(a)
		doc.ID = primitive.NewObjectID()
		a.Ref = doc.ID.Hex()
		docs = append(docs, doc)
		if a.ID > maxID {
			maxID = a.ID
		}
	}

	if _, err := db.articles.InsertMany(ctx, docs); err != nil {
		// Undo the part of the batch that made it in, so the import can be
		// retried against an empty collection. Matching on our own ObjectIDs
		// leaves documents written by anyone else alone.
		refs := make([]primitive.ObjectID, 0, len(docs))
		for _, d := range docs {
			refs = append(refs, d.(articleDoc).ID)
		}
		db.articles.DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": refs}})
		return fmt.Errorf("mongodb: importing articles: %w", err)
	}

	_, err := db.counters.UpdateOne(ctx,
		bson.M{"_id": articleCounter},
		bson.M{"$max": bson.M{"seq": maxID}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb: advancing article counter: %w", err)
	}
	return nil
}
