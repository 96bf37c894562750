package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/monitoring"
)

func newTestProfileService(t *testing.T) (*ProfileService, *AuthService, *fakeUploader) {
	t.Helper()
	store := newFakeStore()
	hasher := testHasher()
	uploader := &fakeUploader{}
	authSvc := NewAuthService(store, newFakeSessions(), hasher, monitoring.New(), testLogger())
	mustRegister(t, authSvc, "alice", "pw")
	return NewProfileService(store, hasher, uploader, testLogger()), authSvc, uploader
}

func TestProfileGet(t *testing.T) {
	svc, _, _ := newTestProfileService(t)
	ctx := context.Background()

	tests := []struct {
		field model.ProfileField
		want  string
	}{
		{model.FieldHeadline, model.DefaultHeadline},
		{model.FieldEmail, "alice@example.com"},
		{model.FieldZipcode, "77005"},
		{model.FieldPhone, "555-0100"},
		{model.FieldDOB, "1990-01-01"},
		{model.FieldAvatar, ""},
	}
	for _, tt := range tests {
		got, err := svc.Get(ctx, "alice", tt.field)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", tt.field, err)
		}
		if got != tt.want {
			t.Errorf("Get(%s) = %q, want %q", tt.field, got, tt.want)
		}
	}

	_, err := svc.Get(ctx, "ghost", model.FieldHeadline)
	assertIs(t, err, apperror.ErrNotFound)

	_, err = svc.Get(ctx, "alice", model.ProfileField("password"))
	assertIs(t, err, apperror.ErrNotFound)
}

func TestProfileSet(t *testing.T) {
	svc, _, _ := newTestProfileService(t)
	ctx := context.Background()

	got, err := svc.Set(ctx, "alice", model.FieldHeadline, "  busy  ")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got != "busy" {
		t.Errorf("Set() = %q, want %q", got, "busy")
	}

	read, _ := svc.Get(ctx, "alice", model.FieldHeadline)
	if read != "busy" {
		t.Errorf("Get() after Set = %q, want %q", read, "busy")
	}
}

func TestProfileSet_Rejects(t *testing.T) {
	svc, _, _ := newTestProfileService(t)
	ctx := context.Background()

	_, err := svc.Set(ctx, "alice", model.FieldEmail, "   ")
	assertIs(t, err, apperror.ErrValidation)

	for _, field := range []model.ProfileField{model.FieldDOB, model.FieldAvatar, "password"} {
		_, err := svc.Set(ctx, "alice", field, "x")
		assertIs(t, err, apperror.ErrValidation)
	}

	_, err = svc.Set(ctx, "ghost", model.FieldPhone, "555")
	assertIs(t, err, apperror.ErrNotFound)
}

func TestSetPassword(t *testing.T) {
	svc, authSvc, _ := newTestProfileService(t)
	ctx := context.Background()

	if err := svc.SetPassword(ctx, "alice", "new-secret"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	if _, _, err := authSvc.Login(ctx, "alice", "pw"); err == nil {
		t.Error("old password still works")
	}
	if _, _, err := authSvc.Login(ctx, "alice", "new-secret"); err != nil {
		t.Errorf("Login with new password error = %v", err)
	}

	assertIs(t, svc.SetPassword(ctx, "alice", ""), apperror.ErrValidation)
	assertIs(t, svc.SetPassword(ctx, "alice", strings.Repeat("x", 100)), apperror.ErrValidation)
}

func TestSetAvatar(t *testing.T) {
	svc, _, uploader := newTestProfileService(t)
	ctx := context.Background()

	url, err := svc.SetAvatar(ctx, "alice", "image/png", strings.NewReader("PNG"), 3)
	if err != nil {
		t.Fatalf("SetAvatar() error = %v", err)
	}
	if !strings.HasPrefix(uploader.key, "avatars/alice/") || !strings.HasSuffix(uploader.key, ".png") {
		t.Errorf("upload key = %q", uploader.key)
	}
	if string(uploader.body) != "PNG" {
		t.Errorf("uploaded body = %q", uploader.body)
	}

	stored, _ := svc.Get(ctx, "alice", model.FieldAvatar)
	if stored != url {
		t.Errorf("avatar = %q, want %q", stored, url)
	}
}

func TestSetAvatar_Rejects(t *testing.T) {
	svc, _, uploader := newTestProfileService(t)
	ctx := context.Background()

	for _, contentType := range []string{"text/plain", "text/html; charset=utf-8", "image/svg+xml", ""} {
		_, err := svc.SetAvatar(ctx, "alice", contentType, strings.NewReader("x"), 1)
		assertIs(t, err, apperror.ErrValidation)
	}

	_, err := svc.SetAvatar(ctx, "alice", "image/png", strings.NewReader("x"), MaxAvatarSize+1)
	assertIs(t, err, apperror.ErrValidation)

	_, err = svc.SetAvatar(ctx, "ghost", "image/png", strings.NewReader("x"), 1)
	assertIs(t, err, apperror.ErrNotFound)

	if uploader.key != "" {
		t.Errorf("rejected avatar was uploaded as %q", uploader.key)
	}

	uploader.err = errors.New("bucket gone")
	_, err = svc.SetAvatar(ctx, "alice", "image/png", strings.NewReader("x"), 1)
	assertIs(t, err, uploader.err)

	avatar, _ := svc.Get(ctx, "alice", model.FieldAvatar)
	if avatar != "" {
		t.Errorf("avatar = %q after failed upload, want empty", avatar)
	}
}
