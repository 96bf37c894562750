package service

import (
	"context"
	"log/slog"

	"github.com/sakif/ricebook/internal/monitoring"
	"github.com/sakif/ricebook/internal/repository"
)

// FollowingService manages who follows whom. A follow-list is a set of
// usernames stored on the follower.
type FollowingService struct {
	users   repository.UserRepository
	metrics *monitoring.Metrics
	logger  *slog.Logger
}

func NewFollowingService(users repository.UserRepository, metrics *monitoring.Metrics, logger *slog.Logger) *FollowingService {
	return &FollowingService{users: users, metrics: metrics, logger: logger}
}

func (s *FollowingService) Get(ctx context.Context, username string) ([]string, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.Following, nil
}

// Follow adds target to the caller's follow-list. target must be an existing
// user; following someone twice leaves the list unchanged.
func (s *FollowingService) Follow(ctx context.Context, caller, target string) ([]string, error) {
	if _, err := s.users.GetUser(ctx, target); err != nil {
		return nil, err
	}

	user, err := s.users.AddFollowing(ctx, caller, target)
	if err != nil {
		return nil, err
	}

	s.metrics.FollowChanged("follow")
	s.logger.Info("user followed", slog.String("username", caller), slog.String("target", target))
	return user.Following, nil
}

// Unfollow removes target from the caller's follow-list. It does not check
// that target exists, so stale names can always be cleaned up.
func (s *FollowingService) Unfollow(ctx context.Context, caller, target string) ([]string, error) {
	user, err := s.users.RemoveFollowing(ctx, caller, target)
	if err != nil {
		return nil, err
	}

	s.metrics.FollowChanged("unfollow")
	s.logger.Info("user unfollowed", slog.String("username", caller), slog.String("target", target))
	return user.Following, nil
}
