package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `username, salt, hash, email, phone, zipcode, dob, headline, avatar, google_id, auth`

const insertUser = `INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(username) DO NOTHING`

// CreateUser inserts the user. ON CONFLICT DO NOTHING turns the uniqueness
// check and the insert into one statement; zero affected rows means the name
// was already taken.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	inserted, err := insertUserRow(ctx, db.conn, user)
	if err != nil {
		return fmt.Errorf("sqlite: creating user %s: %w", user.Username, err)
	}
	if !inserted {
		return apperror.Conflict("user", user.Username)
	}
	return nil
}

func insertUserRow(ctx context.Context, q querier, user *model.User) (bool, error) {
	if user.Headline == "" {
		user.Headline = model.DefaultHeadline
	}
	if user.Auth == "" {
		user.Auth = model.AuthLocal
	}

	var googleID any
	if user.GoogleID != "" {
		googleID = user.GoogleID
	}

	result, err := q.ExecContext(ctx, insertUser,
		user.Username,
		user.Salt,
		user.Hash,
		user.Email,
		user.Phone,
		user.Zipcode,
		user.DOB,
		user.Headline,
		user.Avatar,
		googleID,
		user.Auth,
	)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

func (db *DB) GetUser(ctx context.Context, username string) (*model.User, error) {
	return db.getUserWhere(ctx, "username = ?", username)
}

func (db *DB) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return db.getUserWhere(ctx, "google_id = ?", googleID)
}

// getUserWhere loads a single user and its follow-list. where is always a
// constant from this file, never caller input.
func (db *DB) getUserWhere(ctx context.Context, where string, arg string) (*model.User, error) {
	var (
		u        model.User
		googleID sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where,
		arg,
	).Scan(
		&u.Username,
		&u.Salt,
		&u.Hash,
		&u.Email,
		&u.Phone,
		&u.Zipcode,
		&u.DOB,
		&u.Headline,
		&u.Avatar,
		&googleID,
		&u.Auth,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", arg, err)
	}
	u.GoogleID = googleID.String

	following, err := db.following(ctx, u.Username)
	if err != nil {
		return nil, err
	}
	u.Following = following

	return &u, nil
}

func (db *DB) following(ctx context.Context, username string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT target FROM follows WHERE username = ? ORDER BY rowid`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing following of %s: %w", username, err)
	}
	defer rows.Close()

	following := []string{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("sqlite: scanning following row: %w", err)
		}
		following = append(following, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating following: %w", err)
	}
	return following, nil
}

func (db *DB) UpdateProfile(ctx context.Context, username string, field model.ProfileField, value string) (*model.User, error) {
	if !field.Valid() {
		return nil, apperror.ValidationFailed("field", fmt.Sprintf("unknown profile field %q", field))
	}

	// field is whitelisted above, so formatting it into the statement is safe.
	result, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = ? WHERE username = ?`, field),
		value, username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating %s of %s: %w", field, username, err)
	}
	if err := expectOneRow(result, "user", username); err != nil {
		return nil, err
	}

	return db.GetUser(ctx, username)
}

func (db *DB) UpdateCredentials(ctx context.Context, username, salt, hash string) (*model.User, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET salt = ?, hash = ? WHERE username = ?`,
		salt, hash, username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating credentials of %s: %w", username, err)
	}
	if err := expectOneRow(result, "user", username); err != nil {
		return nil, err
	}

	return db.GetUser(ctx, username)
}

func (db *DB) AddFollowing(ctx context.Context, username, target string) (*model.User, error) {
	// INSERT ... SELECT only inserts when the follower exists, and the
	// primary key on (username, target) gives set semantics.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO follows (username, target)
		 SELECT username, ? FROM users WHERE username = ?
		 ON CONFLICT(username, target) DO NOTHING`,
		target, username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: following %s as %s: %w", target, username, err)
	}

	return db.GetUser(ctx, username)
}

func (db *DB) RemoveFollowing(ctx context.Context, username, target string) (*model.User, error) {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM follows WHERE username = ? AND target = ?`,
		username, target,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: unfollowing %s as %s: %w", target, username, err)
	}

	return db.GetUser(ctx, username)
}

func (db *DB) ImportUsers(ctx context.Context, users []model.User) (int, error) {
	inserted := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range users {
			ok, err := insertUserRow(ctx, tx, &users[i])
			if err != nil {
				return fmt.Errorf("sqlite: importing user %s: %w", users[i].Username, err)
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
