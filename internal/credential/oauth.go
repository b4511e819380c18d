package credential

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyTokenURL is Spotify's client-credentials token endpoint.
const SpotifyTokenURL = "https://accounts.spotify.com/api/token"

// OAuthRefresher exchanges client credentials for an access token.
type OAuthRefresher struct {
	cfg    clientcredentials.Config
	client *http.Client
}

// NewOAuthRefresher creates a refresher for the given token endpoint. client
// may be nil to use http.DefaultClient.
func NewOAuthRefresher(clientID, clientSecret, tokenURL string, client *http.Client) *OAuthRefresher {
	return &OAuthRefresher{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: client,
	}
}

// Refresh fetches a new access token.
func (r *OAuthRefresher) Refresh(ctx context.Context) (string, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}
	tok, err := r.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	return tok.AccessToken, nil
}
