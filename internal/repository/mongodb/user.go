package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
)

// userDoc is the stored shape of a user. The bson keys of the profile fields
// are exactly the model.ProfileField values, which is what lets UpdateProfile
// use the field name directly as the $set key.
type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Salt      string             `bson:"salt"`
	Hash      string             `bson:"hash"`
	Email     string             `bson:"email"`
	Phone     string             `bson:"phone"`
	Zipcode   string             `bson:"zipcode"`
	DOB       string             `bson:"dob"`
	Headline  string             `bson:"headline"`
	Avatar    string             `bson:"avatar"`
	Following []string           `bson:"following"`
	GoogleID  string             `bson:"googleId,omitempty"`
	Auth      string             `bson:"auth"`
}

func newUserDoc(u *model.User) userDoc {
	if u.Headline == "" {
		u.Headline = model.DefaultHeadline
	}
	if u.Auth == "" {
		u.Auth = model.AuthLocal
	}
	following := u.Following
	if following == nil {
		following = []string{}
	}

	return userDoc{
		Username:  u.Username,
		Salt:      u.Salt,
		Hash:      u.Hash,
		Email:     u.Email,
		Phone:     u.Phone,
		Zipcode:   u.Zipcode,
		DOB:       u.DOB,
		Headline:  u.Headline,
		Avatar:    u.Avatar,
		Following: following,
		GoogleID:  u.GoogleID,
		Auth:      u.Auth,
	}
}

func (d *userDoc) toModel() *model.User {
	following := d.Following
	if following == nil {
		following = []string{}
	}
	return &model.User{
		Username:  d.Username,
		Salt:      d.Salt,
		Hash:      d.Hash,
		Email:     d.Email,
		Phone:     d.Phone,
		Zipcode:   d.Zipcode,
		DOB:       d.DOB,
		Headline:  d.Headline,
		Avatar:    d.Avatar,
		Following: following,
		GoogleID:  d.GoogleID,
		Auth:      d.Auth,
	}
}

// CreateUser relies on the unique username index: a duplicate insert fails
// atomically, so there is no check-then-insert window.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	_, err := db.users.InsertOne(ctx, newUserDoc(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("mongodb: creating user %s: %w", user.Username, err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, username string) (*model.User, error) {
	return db.findUser(ctx, bson.M{"username": username}, username)
}

func (db *DB) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return db.findUser(ctx, bson.M{"googleId": googleID}, googleID)
}

func (db *DB) findUser(ctx context.Context, filter bson.M, label string) (*model.User, error) {
	var doc userDoc
	if err := db.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("mongodb: getting user %s: %w", label, err)
	}
	return doc.toModel(), nil
}

// updateUser applies update to the user and returns the document as it is
// after the update.
func (db *DB) updateUser(ctx context.Context, username string, update bson.M) (*model.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	err := db.users.FindOneAndUpdate(ctx, bson.M{"username": username}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("mongodb: updating user %s: %w", username, err)
	}
	return doc.toModel(), nil
}

func (db *DB) UpdateProfile(ctx context.Context, username string, field model.ProfileField, value string) (*model.User, error) {
	if !field.Valid() {
		return nil, apperror.ValidationFailed("field", fmt.Sprintf("unknown profile field %q", field))
	}
	return db.updateUser(ctx, username, bson.M{"$set": bson.M{string(field): value}})
}

func (db *DB) UpdateCredentials(ctx context.Context, username, salt, hash string) (*model.User, error) {
	return db.updateUser(ctx, username, bson.M{"$set": bson.M{"salt": salt, "hash": hash}})
}

func (db *DB) AddFollowing(ctx context.Context, username, target string) (*model.User, error) {
	return db.updateUser(ctx, username, bson.M{"$addToSet": bson.M{"following": target}})
}

func (db *DB) RemoveFollowing(ctx context.Context, username, target string) (*model.User, error) {
	return db.updateUser(ctx, username, bson.M{"$pull": bson.M{"following": target}})
}

// ImportUsers upserts with $setOnInsert, so existing accounts are matched and
// left untouched while new ones are created, all in one ordered bulk write.
func (db *DB) ImportUsers(ctx context.Context, users []model.User) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}

	writes := make([]mongo.WriteModel, 0, len(users))
	for i := range users {
		doc := newUserDoc(&users[i])
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"username": doc.Username}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	result, err := db.users.BulkWrite(ctx, writes)
	if err != nil {
		return 0, fmt.Errorf("mongodb: importing users: %w", err)
	}
	return int(result.UpsertedCount), nil
}
