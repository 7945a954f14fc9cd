package oauthtoken

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Fetcher exchanges client credentials for a fresh token.
type Fetcher interface {
	Fetch(ctx context.Context, creds ClientCredentials) (Entry, error)
}

// ClientCredentialsFetcher performs the OAuth2 client-credentials grant with
// the client id and secret sent as HTTP basic auth.
type ClientCredentialsFetcher struct {
	httpClient *http.Client
}

func NewClientCredentialsFetcher(httpClient *http.Client) *ClientCredentialsFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClientCredentialsFetcher{httpClient: httpClient}
}

func (f *ClientCredentialsFetcher) Fetch(ctx context.Context, creds ClientCredentials) (Entry, error) {
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	tok, err := cfg.Token(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("client credentials exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return Entry{}, fmt.Errorf("client credentials exchange returned an empty token")
	}
	return Entry{AccessToken: tok.AccessToken, TokenType: tok.Type(), Expiry: tok.Expiry}, nil
}
