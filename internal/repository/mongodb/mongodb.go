// Package mongodb is the document-store backend. Users and articles each live
// in their own collection, with follow-lists and comments embedded as arrays
// so every mutation is a single-document atomic update.
//
// WHY EMBED INSTEAD OF JOIN?
// A follow-list is only ever read together with its owner, and comments are
// only ever read together with their article. Embedding them means $addToSet,
// $pull and $push do the whole job in one round trip, with MongoDB's
// per-document atomicity standing in for transactions.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sakif/ricebook/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	usersCollection    = "users"
	articlesCollection = "articles"
	countersCollection = "counters"

	// articleCounter is the _id of the counters document that hands out
	// article ids.
	articleCounter = "articles"
)

// DB holds the client and the three collections the repository methods use.
type DB struct {
	client   *mongo.Client
	users    *mongo.Collection
	articles *mongo.Collection
	counters *mongo.Collection
}

// New connects to uri, verifies the connection and makes sure the indexes
// exist. The returned DB owns the client; call Close when done.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	db := client.Database(database)
	store := &DB{
		client:   client,
		users:    db.Collection(usersCollection),
		articles: db.Collection(articlesCollection),
		counters: db.Collection(countersCollection),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	_, err := db.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// googleId is omitted for local accounts, so the uniqueness only
			// applies to documents that actually carry one.
			Keys: bson.D{{Key: "googleId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"googleId": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating user indexes: %w", err)
	}

	_, err = db.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "author", Value: 1}, {Key: "date", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating article indexes: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}
