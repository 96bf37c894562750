package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Identity is what an external provider tells us about the person who just
// signed in. Subject is the provider's stable account id; the rest is profile
// data used to pre-fill a new account.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// AuthProvider is an external identity provider using the OAuth 2.0
// authorization code flow.
//
//  1. BeginLogin gives the URL to send the browser to.
//  2. The provider redirects back to our callback with a one-time code.
//  3. CompleteLogin trades the code for a token server-to-server and uses
//     the token to fetch the Identity.
//
// The code-for-token exchange needs the client secret, so the access token
// never reaches the browser.
type AuthProvider interface {
	Name() string
	BeginLogin(state string) string
	CompleteLogin(ctx context.Context, code string) (*Identity, error)
}

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// googleUserInfo is the subset of the OpenID Connect userinfo response we use.
type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleProvider signs users in with their Google account.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

var _ AuthProvider = (*GoogleProvider)(nil)

// NewGoogleProvider builds the provider from the credentials of an OAuth
// client registered in the Google Cloud console. callbackURL must match one
// of the client's authorised redirect URIs exactly.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

// BeginLogin returns Google's consent URL. prompt=select_account makes Google
// show the account chooser even when a single account is signed in, so a
// user who just logged out is not silently logged back in.
func (p *GoogleProvider) BeginLogin(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (p *GoogleProvider) CompleteLogin(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The returned client adds "Authorization: Bearer <token>" to each request.
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("auth: Google userinfo has no subject")
	}

	return &Identity{
		Provider: p.Name(),
		Subject:  info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Picture:  info.Picture,
	}, nil
}
