package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTokenURL = "https://outpost.mappls.com/api/security/oauth/token"

	// expiryMargin is subtracted from expires_in so a token is refreshed
	// before the identity provider rejects it.
	expiryMargin = 60 * time.Second
)

var ErrMissingCredentials = errors.New("credentials not set")

// UpstreamError is returned when the identity provider rejects a token request.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to get token: status %d", e.StatusCode)
}

// Credentials is what the browser needs to load the map SDK and its plugins.
type Credentials struct {
	AccessToken string `json:"access_token"`
	RestAPIKey  string `json:"rest_api_key"`
}

type Options struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RestAPIKey   string
	Timeout      time.Duration
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Broker exchanges client credentials for an access token and caches it.
type Broker struct {
	opts       Options
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewBroker(opts Options) *Broker {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Broker{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		now:        time.Now,
	}
}

// Credentials returns a valid access token together with the static REST key.
func (b *Broker) Credentials(ctx context.Context) (Credentials, error) {
	token, err := b.AccessToken(ctx)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{AccessToken: token, RestAPIKey: b.opts.RestAPIKey}, nil
}

func (b *Broker) AccessToken(ctx context.Context) (string, error) {
	if b.opts.ClientID == "" || b.opts.ClientSecret == "" {
		return "", ErrMissingCredentials
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && b.now().Before(b.expires) {
		return b.token, nil
	}

	resp, err := b.fetch(ctx)
	if err != nil {
		return "", err
	}

	b.token = resp.AccessToken
	b.expires = time.Time{}
	if resp.ExpiresIn > 0 {
		b.expires = b.now().Add(time.Duration(resp.ExpiresIn)*time.Second - expiryMargin)
	}
	return b.token, nil
}

func (b *Broker) fetch(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {b.opts.ClientID},
		"client_secret": {b.opts.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}
	return &tr, nil
}
