package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/monitoring"
	"github.com/sakif/ricebook/internal/repository"
	"github.com/sakif/ricebook/internal/session"
)

// OAuthService signs users in through an external identity provider.
//
// The provider is constructed at startup and passed in, so this service has
// no idea it is talking to Google; tests pass a fake AuthProvider.
type OAuthService struct {
	provider auth.AuthProvider
	users    repository.UserRepository
	sessions session.Store
	metrics  *monitoring.Metrics
	logger   *slog.Logger
}

func NewOAuthService(
	provider auth.AuthProvider,
	users repository.UserRepository,
	sessions session.Store,
	metrics *monitoring.Metrics,
	logger *slog.Logger,
) *OAuthService {
	return &OAuthService{
		provider: provider,
		users:    users,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// BeginLogin returns the provider URL to redirect the browser to.
func (s *OAuthService) BeginLogin(state string) string {
	return s.provider.BeginLogin(state)
}

// CompleteLogin finishes the flow: it exchanges the code, finds or creates
// the local account and starts a session exactly like a password login does.
func (s *OAuthService) CompleteLogin(ctx context.Context, code string) (string, *model.User, error) {
	identity, err := s.provider.CompleteLogin(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("completing %s login: %w", s.provider.Name(), err)
	}

	user, err := s.FindOrCreateIdentity(ctx, identity)
	if err != nil {
		return "", nil, err
	}

	token, err := s.sessions.Create(ctx, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("creating session for %s: %w", user.Username, err)
	}

	s.metrics.LoginSucceeded()
	s.logger.Info("user logged in via provider",
		slog.String("provider", identity.Provider),
		slog.String("username", user.Username),
	)
	return token, user, nil
}

// FindOrCreateIdentity returns the account linked to identity, creating one
// named "<provider>_<subject>" on first sign-in.
//
// Two first-time callbacks for the same person can race. The loser's insert
// hits the unique username, and it simply reads the winner's account.
func (s *OAuthService) FindOrCreateIdentity(ctx context.Context, identity *auth.Identity) (*model.User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, apperror.ValidationFailed("identity", "provider identity has no subject")
	}

	user, err := s.users.GetUserByGoogleID(ctx, identity.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("looking up identity %s: %w", identity.Subject, err)
	}

	user = &model.User{
		Username: identity.Provider + "_" + identity.Subject,
		Email:    identity.Email,
		Avatar:   identity.Picture,
		GoogleID: identity.Subject,
		Auth:     model.AuthGoogle,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			existing, lookupErr := s.users.GetUserByGoogleID(ctx, identity.Subject)
			if lookupErr != nil {
				// The name belongs to an account that is not linked to this
				// identity.
				return nil, err
			}
			return existing, nil
		}
		s.logger.Error("failed to create user for identity",
			slog.String("subject", identity.Subject),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user for identity %s: %w", identity.Subject, err)
	}

	s.metrics.UserRegistered()
	s.logger.Info("user created from provider identity",
		slog.String("provider", identity.Provider),
		slog.String("username", user.Username),
	)
	return user, nil
}
