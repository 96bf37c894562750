package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/monitoring"
)

func newTestOAuthService(t *testing.T, identity *auth.Identity) (*OAuthService, *fakeStore, *fakeProvider) {
	t.Helper()
	store := newFakeStore()
	provider := &fakeProvider{identity: identity}
	return NewOAuthService(provider, store, newFakeSessions(), monitoring.New(), testLogger()), store, provider
}

var googleAlice = &auth.Identity{
	Provider: "google",
	Subject:  "1234567890",
	Email:    "alice@gmail.com",
	Name:     "Alice",
	Picture:  "https://lh3.googleusercontent.com/a/alice",
}

func TestBeginLogin_PassesState(t *testing.T) {
	svc, _, _ := newTestOAuthService(t, googleAlice)

	url := svc.BeginLogin("state-xyz")
	if !strings.Contains(url, "state=state-xyz") {
		t.Errorf("BeginLogin() = %q, want state carried", url)
	}
}

func TestCompleteLogin_CreatesAccountOnce(t *testing.T) {
	svc, store, _ := newTestOAuthService(t, googleAlice)
	ctx := context.Background()

	token, user, err := svc.CompleteLogin(ctx, "code-1")
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if token == "" {
		t.Fatal("CompleteLogin() returned empty token")
	}
	if user.Username != "google_1234567890" {
		t.Errorf("Username = %q, want %q", user.Username, "google_1234567890")
	}
	if user.Auth != model.AuthGoogle || user.GoogleID != googleAlice.Subject {
		t.Errorf("user = %+v, want google account", user)
	}
	if user.Email != googleAlice.Email || user.Avatar != googleAlice.Picture {
		t.Errorf("profile not copied from identity: %+v", user)
	}
	if user.Hash != "" {
		t.Error("google account has password material")
	}

	// Second sign-in finds the same account.
	_, again, err := svc.CompleteLogin(ctx, "code-2")
	if err != nil {
		t.Fatalf("second CompleteLogin() error = %v", err)
	}
	if again.Username != user.Username {
		t.Errorf("second login user = %q, want %q", again.Username, user.Username)
	}
	if len(store.users) != 1 {
		t.Errorf("store has %d users, want 1", len(store.users))
	}
}

func TestCompleteLogin_ProviderFailure(t *testing.T) {
	svc, store, provider := newTestOAuthService(t, googleAlice)
	provider.err = errors.New("exchange failed")

	_, _, err := svc.CompleteLogin(context.Background(), "code")
	assertIs(t, err, provider.err)
	if len(store.users) != 0 {
		t.Error("user created despite provider failure")
	}
}

func TestFindOrCreateIdentity_Validation(t *testing.T) {
	svc, _, _ := newTestOAuthService(t, googleAlice)

	_, err := svc.FindOrCreateIdentity(context.Background(), nil)
	assertIs(t, err, apperror.ErrValidation)

	_, err = svc.FindOrCreateIdentity(context.Background(), &auth.Identity{Provider: "google"})
	assertIs(t, err, apperror.ErrValidation)
}

func TestFindOrCreateIdentity_NameTakenByLocalAccount(t *testing.T) {
	svc, store, _ := newTestOAuthService(t, googleAlice)
	store.users["google_1234567890"] = &model.User{Username: "google_1234567890", Hash: "x"}

	// The local account is not linked to the identity, so it is not handed
	// over.
	_, err := svc.FindOrCreateIdentity(context.Background(), googleAlice)
	assertIs(t, err, apperror.ErrConflict)
}
