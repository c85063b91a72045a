package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"reservas/internal/config"
	"reservas/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTimeout = 5 * time.Second

// Client talks to the identity provider: client-credentials tokens for
// service-to-service calls and token introspection for inbound requests.
type Client struct {
	cfg        config.IdentityConfig
	httpClient *http.Client
	logger     *zerolog.Logger

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

func NewClient(cfg config.IdentityConfig, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		sources:    make(map[string]oauth2.TokenSource),
	}
}

// AccessToken returns a bearer token for the configured client.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.TokenFor(ctx, c.cfg.ClientID, c.cfg.ClientSecret)
}

// TokenFor returns a token for the given credentials. Tokens are cached per
// credential pair and refreshed RefreshMargin before they expire.
func (c *Client) TokenFor(ctx context.Context, clientID, clientSecret string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.Unauthenticated("identity: token", err)
	}
	tok, err := c.source(clientID, clientSecret).Token()
	if err != nil {
		c.logger.Error().Err(err).Str("client_id", clientID).Msg("failed to obtain access token")
		return "", domain.Unauthenticated("identity: token", err)
	}
	return tok.AccessToken, nil
}

func (c *Client) source(clientID, clientSecret string) oauth2.TokenSource {
	key := clientID + "\x00" + clientSecret

	c.mu.Lock()
	defer c.mu.Unlock()
	if src, ok := c.sources[key]; ok {
		return src
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     c.cfg.TokenURL,
		Scopes:       c.cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The source outlives any single request, so it carries its own context.
	base := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	src := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(base), c.cfg.RefreshMargin)
	c.sources[key] = src
	return src
}

type introspection struct {
	Active bool `json:"active"`
}

// VerifyToken asks the provider whether token is active. An inactive token is
// (false, nil); a provider failure is an authentication error.
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	form := url.Values{
		"token":         {token},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.IntrospectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, domain.Unauthenticated("identity: introspect", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("token introspection failed")
		return false, domain.Unauthenticated("identity: introspect", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, domain.Unauthenticated("identity: introspect",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out introspection
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, domain.Unauthenticated("identity: introspect", err)
	}
	return out.Active, nil
}
