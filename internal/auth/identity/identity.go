// Package identity exchanges OAuth authorisation codes for tokens and user
// profiles against the external identity provider. It holds no session state;
// the authenticator owns everything that outlives a login attempt.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTokenURL   = "https://discord.com/api/oauth2/token"
	defaultProfileURL = "https://discord.com/api/users/@me"
	defaultScope      = "identify"

	// requestTimeout bounds each outbound provider call.
	requestTimeout = 10 * time.Second
)

// Config describes the OAuth application registered with the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// TokenURL and ProfileURL override the provider endpoints; tests and
	// self-hosted providers set these.
	TokenURL   string
	ProfileURL string
	Scope      string
}

// Validate reports whether the configuration is complete enough to drive a
// login flow.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("identity client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("identity client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURI) == "" {
		return fmt.Errorf("identity redirect uri is required")
	}
	return nil
}

// TokenInfo is the provider's token-exchange response.
type TokenInfo struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// UserProfile is the provider's view of the authenticated user.
type UserProfile struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Avatar   string         `json:"avatar"`
	Raw      map[string]any `json:"-"`
}

// Option customises the identity client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// Client performs the two outbound provider calls of a login flow.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient constructs an identity client for the provided configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if strings.TrimSpace(cfg.ProfileURL) == "" {
		cfg.ProfileURL = defaultProfileURL
	}
	if strings.TrimSpace(cfg.Scope) == "" {
		cfg.Scope = defaultScope
	}
	client := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ExchangeCode trades an authorisation code for token info.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenInfo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return TokenInfo{}, fmt.Errorf("authorization code is required")
	}
	payload := url.Values{}
	payload.Set("client_id", c.cfg.ClientID)
	payload.Set("client_secret", c.cfg.ClientSecret)
	payload.Set("grant_type", "authorization_code")
	payload.Set("code", code)
	payload.Set("redirect_uri", c.cfg.RedirectURI)
	payload.Set("scope", c.cfg.Scope)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return TokenInfo{}, fmt.Errorf("create token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("exchange code: %w", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("read token response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return TokenInfo{}, fmt.Errorf("token exchange failed: status %d: %s", response.StatusCode, bodySnippet(body))
	}
	var token TokenInfo
	if err := json.Unmarshal(body, &token); err != nil {
		return TokenInfo{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return TokenInfo{}, fmt.Errorf("token response missing access_token")
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	return token, nil
}

// FetchProfile retrieves the user profile for the provided token info.
func (c *Client) FetchProfile(ctx context.Context, token TokenInfo) (UserProfile, error) {
	if token.AccessToken == "" {
		return UserProfile{}, fmt.Errorf("access token is required")
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProfileURL, nil)
	if err != nil {
		return UserProfile{}, fmt.Errorf("create profile request: %w", err)
	}
	request.Header.Set("Authorization", fmt.Sprintf("%s %s", token.TokenType, token.AccessToken))
	request.Header.Set("Accept", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return UserProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return UserProfile{}, fmt.Errorf("read profile response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return UserProfile{}, fmt.Errorf("profile request failed: status %d: %s", response.StatusCode, bodySnippet(body))
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return UserProfile{}, fmt.Errorf("decode profile response: %w", err)
	}
	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return UserProfile{}, fmt.Errorf("decode profile response: %w", err)
	}
	if profile.ID == "" {
		return UserProfile{}, fmt.Errorf("profile response missing id")
	}
	profile.Raw = raw
	return profile, nil
}

func bodySnippet(body []byte) string {
	snippet := string(bytes.TrimSpace(body))
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	return snippet
}
