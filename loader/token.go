package loader

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/c360/docmesh/errors"
)

// TokenProvider obtains bearer tokens for named token clients
type TokenProvider interface {
	Token(ctx context.Context, client string) (string, error)
}

// ClientCredentialsConfig describes one OAuth2 client credentials client
type ClientCredentialsConfig struct {
	TokenURL       string            `json:"token_url" yaml:"token_url"`
	ClientID       string            `json:"client_id" yaml:"client_id"`
	ClientSecret   string            `json:"client_secret" yaml:"client_secret"`
	Scopes         []string          `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	EndpointParams map[string]string `json:"endpoint_params,omitempty" yaml:"endpoint_params,omitempty"`
}

// ClientCredentials is a TokenProvider backed by the OAuth2 client
// credentials grant. Tokens are cached per client and refreshed on expiry.
type ClientCredentials struct {
	clients    map[string]ClientCredentialsConfig
	httpClient *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewClientCredentials creates a provider for the configured clients.
// httpClient is used for token requests; nil means http.DefaultClient.
func NewClientCredentials(clients map[string]ClientCredentialsConfig, httpClient *http.Client) *ClientCredentials {
	return &ClientCredentials{
		clients:    clients,
		httpClient: httpClient,
		sources:    make(map[string]oauth2.TokenSource),
	}
}

// Token implements TokenProvider
func (c *ClientCredentials) Token(ctx context.Context, client string) (string, error) {
	ts, err := c.source(client)
	if err != nil {
		return "", err
	}

	type result struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := ts.Token()
		done <- result{tok, err}
	}()

	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "ClientCredentials", "Token", "token request")
	case r := <-done:
		if r.err != nil {
			return "", errors.WrapTransient(r.err, "ClientCredentials", "Token",
				fmt.Sprintf("token request for client %s", client))
		}
		return r.token.AccessToken, nil
	}
}

func (c *ClientCredentials) source(client string) (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.sources[client]; ok {
		return ts, nil
	}

	cfg, ok := c.clients[client]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("token client %q: %w", client, errors.ErrMissingConfig),
			"ClientCredentials", "Token", "client lookup")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if len(cfg.EndpointParams) > 0 {
		cc.EndpointParams = make(map[string][]string, len(cfg.EndpointParams))
		for k, v := range cfg.EndpointParams {
			cc.EndpointParams.Set(k, v)
		}
	}

	// The context only carries the HTTP client; it outlives any single request.
	base := context.Background()
	if c.httpClient != nil {
		base = context.WithValue(base, oauth2.HTTPClient, c.httpClient)
	}
	ts := cc.TokenSource(base)
	c.sources[client] = ts
	return ts, nil
}
