package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/monitoring"
	"github.com/sakif/ricebook/internal/repository"
	"github.com/sakif/ricebook/internal/session"
)

// errBadCredentials is deliberately the same for an unknown user and a wrong
// password, so the response does not reveal which usernames exist.
var errBadCredentials = apperror.Unauthorized("invalid username or password")

// AuthService handles registration, password login and sessions.
//
//	AuthHandler → AuthService → UserRepository
//	                          ↘ session.Store, auth.Hasher
type AuthService struct {
	users    repository.UserRepository
	sessions session.Store
	hasher   auth.Hasher
	metrics  *monitoring.Metrics
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions session.Store,
	hasher auth.Hasher,
	metrics *monitoring.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterInput carries the fields accepted by POST /register.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	DOB      string
	Phone    string
	Zipcode  string
}

// Register creates a local account. The password is hashed with a fresh
// salt; the plaintext goes no further than this method.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username, err := requireNonEmpty("username", in.Username)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	salt, hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username: username,
		Salt:     salt,
		Hash:     hash,
		Email:    in.Email,
		DOB:      in.DOB,
		Phone:    in.Phone,
		Zipcode:  in.Zipcode,
		Auth:     model.AuthLocal,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("registering %s: %w", username, err)
	}

	s.metrics.UserRegistered()
	s.logger.Info("user registered", slog.String("username", username))
	return user, nil
}

// hashPassword turns hasher errors the caller can fix into validation errors.
func (s *AuthService) hashPassword(password string) (string, string, error) {
	salt, hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", "", apperror.ValidationFailed("password", "password is too long")
		}
		return "", "", fmt.Errorf("hashing password: %w", err)
	}
	return salt, hash, nil
}

// Login checks the credentials and starts a session, returning its token and
// the account. The username is trimmed the same way Register trims it, and
// the returned user carries the stored spelling.
//
// Accounts created through Google have no password material and can never
// log in here, whatever password is supplied.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	username = strings.TrimSpace(username)
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.LoginFailed(monitoring.ReasonUnknownUser)
			return "", nil, errBadCredentials
		}
		return "", nil, fmt.Errorf("loading user %s: %w", username, err)
	}

	if user.Hash == "" {
		s.metrics.LoginFailed(monitoring.ReasonExternalOnly)
		return "", nil, errBadCredentials
	}

	if err := s.hasher.Verify(password, user.Salt, user.Hash); err != nil {
		if !errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Error("stored credentials unusable",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
		s.metrics.LoginFailed(monitoring.ReasonWrongPassword)
		return "", nil, errBadCredentials
	}

	token, err := s.sessions.Create(ctx, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("creating session for %s: %w", username, err)
	}

	s.metrics.LoginSucceeded()
	s.logger.Info("user logged in", slog.String("username", user.Username))
	return token, user, nil
}

// Logout revokes the session. It never fails from the caller's point of
// view: a store error is logged and the cookie is cleared regardless.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.Warn("failed to revoke session", slog.String("error", err.Error()))
	}
}

// Authenticate resolves a session token to its username.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	username, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", apperror.Unauthorized("valid session required")
		}
		return "", fmt.Errorf("resolving session: %w", err)
	}
	return username, nil
}
