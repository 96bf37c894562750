package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/repository"
	"github.com/sakif/ricebook/internal/upload"
)

// MaxAvatarSize caps avatar uploads.
const MaxAvatarSize = 5 << 20

// ProfileService reads and writes the per-user profile fields.
type ProfileService struct {
	users    repository.UserRepository
	hasher   auth.Hasher
	uploader upload.Uploader
	logger   *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	hasher auth.Hasher,
	uploader upload.Uploader,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:    users,
		hasher:   hasher,
		uploader: uploader,
		logger:   logger,
	}
}

// Get returns the value of field for username.
func (s *ProfileService) Get(ctx context.Context, username string, field model.ProfileField) (string, error) {
	if !field.Valid() {
		return "", apperror.NotFound("profile field", string(field))
	}

	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return "", err
	}
	return user.Value(field), nil
}

// Set updates one of the text fields of the caller's own profile. The avatar
// goes through SetAvatar and the date of birth is fixed at registration.
func (s *ProfileService) Set(ctx context.Context, caller string, field model.ProfileField, value string) (string, error) {
	switch field {
	case model.FieldHeadline, model.FieldEmail, model.FieldZipcode, model.FieldPhone:
	default:
		return "", apperror.ValidationFailed(string(field), fmt.Sprintf("%s cannot be set directly", field))
	}

	value, err := requireNonEmpty(string(field), value)
	if err != nil {
		return "", err
	}

	user, err := s.users.UpdateProfile(ctx, caller, field, value)
	if err != nil {
		return "", err
	}

	s.logger.Info("profile updated",
		slog.String("username", caller),
		slog.String("field", string(field)),
	)
	return user.Value(field), nil
}

// SetPassword replaces the caller's credentials with a fresh salt and hash.
func (s *ProfileService) SetPassword(ctx context.Context, caller, password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}

	salt, hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return apperror.ValidationFailed("password", "password is too long")
		}
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := s.users.UpdateCredentials(ctx, caller, salt, hash); err != nil {
		return err
	}

	s.logger.Info("password changed", slog.String("username", caller))
	return nil
}

// SetAvatar stores an uploaded image and points the caller's avatar at it.
// contentType must be the type sniffed from the file's bytes; only the raster
// formats upload accepts get through.
func (s *ProfileService) SetAvatar(ctx context.Context, caller, contentType string, body io.Reader, size int64) (string, error) {
	if !upload.IsImageType(contentType) {
		return "", apperror.ValidationFailed("avatar", "avatar must be a PNG, JPEG, GIF or WebP image")
	}
	if size > MaxAvatarSize {
		return "", apperror.ValidationFailed("avatar", fmt.Sprintf("avatar must be at most %d bytes", MaxAvatarSize))
	}

	// Check the caller exists before spending an upload on them.
	if _, err := s.users.GetUser(ctx, caller); err != nil {
		return "", err
	}

	url, err := s.uploader.Upload(ctx, upload.AvatarKey(caller, contentType), contentType, body, size)
	if err != nil {
		s.logger.Error("avatar upload failed",
			slog.String("username", caller),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("uploading avatar: %w", err)
	}

	user, err := s.users.UpdateProfile(ctx, caller, model.FieldAvatar, url)
	if err != nil {
		return "", err
	}
	return user.Avatar, nil
}
