// Package gateway talks to the G2A seller REST API.
//
// Every call runs under its own timeout. Responses with 429 or 5xx, and
// network failures, are retried with a fixed delay a bounded number of
// times. Offer creation is sent once. A 401 triggers exactly one token
// refresh and one retry; a second 401 fails the call with an AuthError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL   = "https://gateway.g2a.com"
	defaultUserAgent = "g2a-repricer/1.0"
	tokenPath        = "/oauth/token"
)

// Credentials identify the seller API client.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialsFunc resolves credentials at token acquisition time.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// StaticCredentials returns a CredentialsFunc that always yields the given pair.
func StaticCredentials(clientID, clientSecret string) CredentialsFunc {
	return func(context.Context) (Credentials, error) {
		return Credentials{ClientID: clientID, ClientSecret: clientSecret}, nil
	}
}

// Options parameterise the marketplace client.
type Options struct {
	BaseURL     string
	Credentials CredentialsFunc
	// Timeout bounds listing, update and creation calls.
	Timeout time.Duration
	// LookupTimeout bounds ancillary lookups such as competitor quotes.
	LookupTimeout time.Duration
	PageSize      int
	MaxAttempts   int
	RetryDelay    time.Duration
	JobPollDelay  time.Duration
	UserAgent     string
	HTTPClient    *http.Client
}

// Client is a G2A API client safe for sequential use by one scheduler and
// concurrent use by CLI commands.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	token string
}

// New constructs a Client, filling unset options with defaults.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.JobPollDelay < 0 {
		opts.JobPollDelay = 0
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Credentials == nil {
		opts.Credentials = StaticCredentials("", "")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "g2a_gateway").Logger(),
		client:  httpClient,
		baseURL: baseURL,
	}
}

type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	timeout time.Duration
	// once disables transient retries for requests that are not idempotent.
	once bool
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AcquireToken exchanges client credentials for a fresh access token.
func (c *Client) AcquireToken(ctx context.Context) error {
	creds, err := c.opts.Credentials(ctx)
	if err != nil {
		return &AuthError{Op: "token", Err: fmt.Errorf("resolve credentials: %w", err)}
	}
	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
		return &AuthError{Op: "token", Err: ErrMissingCredentials}
	}

	resp, err := c.retrying(ctx, request{
		op:     "token",
		method: http.MethodPost,
		path:   tokenPath,
		body: tokenRequest{
			GrantType:    "client_credentials",
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		},
		timeout: c.opts.Timeout,
	}, "")
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return &AuthError{Op: "token", Status: resp.status, Body: trimBody(resp.body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.body, &tok); err != nil {
		return &AuthError{Op: "token", Status: resp.status, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return &AuthError{Op: "token", Status: resp.status, Body: "empty access_token"}
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()

	c.logger.Debug().Int("expires_in", tok.ExpiresIn).Msg("access token acquired")
	return nil
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if err := c.AcquireToken(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

// refreshToken drops stale and fetches a new token unless another caller
// already replaced it.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.token != stale {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.token = ""
	c.mu.Unlock()
	return c.currentToken(ctx)
}

// call runs an authenticated request under the token refresh policy.
func (c *Client) call(ctx context.Context, r request) (*response, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.retrying(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusUnauthorized {
		return resp, nil
	}

	c.logger.Info().Str("op", r.op).Msg("access token rejected; refreshing once")
	token, err = c.refreshToken(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = c.retrying(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized {
		return nil, &AuthError{Op: r.op, Status: resp.status, Body: trimBody(resp.body)}
	}
	return resp, nil
}

// retrying sends r until it gets a non-retryable answer or attempts run out.
func (c *Client) retrying(ctx context.Context, r request, token string) (*response, error) {
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, r, token)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil && !retryable(resp.status) {
			return resp, nil
		}

		lastErr, lastStatus = err, 0
		if resp != nil {
			lastStatus = resp.status
		}
		if attempt >= c.opts.MaxAttempts || r.once {
			return nil, &TransientError{Op: r.op, Attempts: attempt, Status: lastStatus, Err: lastErr}
		}

		c.logger.Warn().
			Str("op", r.op).
			Int("attempt", attempt).
			Int("status", lastStatus).
			AnErr("cause", lastErr).
			Dur("retry_in", c.opts.RetryDelay).
			Msg("transient failure; retrying")

		if err := sleep(ctx, c.opts.RetryDelay); err != nil {
			return nil, err
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// send performs exactly one HTTP exchange under the request's own timeout.
func (c *Client) send(ctx context.Context, r request, token string) (*response, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", r.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.op, err)
	}
	return &response{status: resp.StatusCode, body: payload}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
