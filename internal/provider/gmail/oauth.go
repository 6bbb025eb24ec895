package gmail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const mailScope = "https://mail.google.com/"

func oauthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{mailScope},
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
	}
}

// AuthURL returns the consent URL for the authorization-code flow. Offline
// access and a forced consent prompt are required so the exchange issues a
// refresh token.
func AuthURL(clientID, clientSecret string) string {
	cfg := oauthConfig(clientID, clientSecret)
	return cfg.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a refresh token. A response
// without a refresh token is a fatal setup error: without one the account
// cannot be used unattended.
func Exchange(ctx context.Context, clientID, clientSecret, code string) (string, error) {
	cfg := oauthConfig(clientID, clientSecret)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("authorization response contained no refresh token; revoke access and authorize again")
	}
	return token.RefreshToken, nil
}
