package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/waabox/catalogauth/internal/credential"
	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/logging"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultTokenTTL   = time.Hour
	maxResponseBody   = 1 << 20
	maxErrorFieldSize = 100
)

// OAuth error codes that mean the submitted credentials were rejected.
var invalidCredentialCodes = map[string]bool{
	"invalid_client":      true,
	"invalid_grant":       true,
	"unauthorized_client": true,
	"invalid_scope":       true,
	"access_denied":       true,
}

// Client exchanges credential requests for access tokens at an OAuth token endpoint.
// It makes exactly one HTTP attempt per Exchange call.
type Client struct {
	tokenURL   string
	client     *http.Client
	defaultTTL time.Duration
	now        func() time.Time
	log        logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// WithDefaultTTL sets the lifetime used when the endpoint reports no expiry
// and the token has no exp claim.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithClock overrides the issuance time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the client logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log.WithName("token-exchange") }
}

// NewClient creates a Client for the given token endpoint URL.
func NewClient(tokenURL string, opts ...Option) *Client {
	c := &Client{
		tokenURL:   tokenURL,
		client:     &http.Client{Timeout: defaultTimeout},
		defaultTTL: defaultTokenTTL,
		now:        time.Now,
		log:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange posts req to the token endpoint and returns the issued session.
// The returned session has no ID; the session manager assigns one.
// Failures are *domain.AuthError (or *domain.ValidationError for malformed input).
func (c *Client) Exchange(ctx context.Context, req domain.CredentialRequest) (domain.Session, error) {
	if err := credential.Check(req); err != nil {
		return domain.Session{}, err
	}

	data := url.Values{}
	data.Set(domain.FieldGrantType, string(req.GrantType))
	data.Set(domain.FieldClientID, req.ClientID)
	data.Set(domain.FieldClientSecret, req.ClientSecret)
	data.Set(domain.FieldScope, req.Scope)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return domain.Session{}, &domain.AuthError{Kind: domain.AuthNetwork, Err: fmt.Errorf("creating request: %w", err)}
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-Request-ID", requestID)

	issuedAt := c.now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.Session{}, &domain.AuthError{Kind: domain.AuthNetwork, Err: fmt.Errorf("requesting token: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.Session{}, &domain.AuthError{
			Kind:       domain.AuthNetwork,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("reading token response: %w", err),
		}
	}

	c.log.V(1).Info("token endpoint responded", logging.KeyRequestID, requestID, logging.KeyStatus, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Session{}, classifyFailure(resp.StatusCode, body)
	}

	var raw tokenResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Session{}, &domain.AuthError{
			Kind:       domain.AuthServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decoding token response: %w", err),
		}
	}
	if raw.Error != "" {
		return domain.Session{}, classifyFailure(resp.StatusCode, body)
	}
	if raw.AccessToken == "" {
		return domain.Session{}, &domain.AuthError{
			Kind:       domain.AuthServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response has no access_token"),
		}
	}

	expiresAt, err := c.expiry(raw, issuedAt)
	if err != nil {
		return domain.Session{}, &domain.AuthError{Kind: domain.AuthServer, StatusCode: resp.StatusCode, Err: err}
	}

	tokenType := raw.TokenType
	if tokenType == "" {
		tokenType = domain.DefaultTokenType
	}
	scope := raw.Scope
	if scope == "" {
		scope = req.Scope
	}
	return domain.Session{
		AccessToken: raw.AccessToken,
		TokenType:   tokenType,
		Scope:       scope,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// expiry resolves the token lifetime: expires_in, then the JWT exp claim, then the default TTL.
func (c *Client) expiry(raw tokenResponse, issuedAt time.Time) (time.Time, error) {
	if d := raw.ExpiresIn.Duration(); d > 0 {
		return issuedAt.Add(d), nil
	}
	if exp, ok := jwtExpiry(raw.AccessToken); ok {
		if !exp.After(issuedAt) {
			return time.Time{}, fmt.Errorf("issued token already expired at %s", exp.Format(time.RFC3339))
		}
		return exp, nil
	}
	return issuedAt.Add(c.defaultTTL), nil
}

// classifyFailure maps a non-success response to an AuthError.
func classifyFailure(status int, body []byte) *domain.AuthError {
	var oe oauthError
	_ = json.Unmarshal(body, &oe)

	e := &domain.AuthError{
		StatusCode:  status,
		Code:        truncate(oe.Error),
		Description: truncate(oe.ErrorDescription),
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = domain.AuthInvalidCredentials
	case status >= 500:
		e.Kind = domain.AuthServer
	case invalidCredentialCodes[oe.Error]:
		e.Kind = domain.AuthInvalidCredentials
	default:
		e.Kind = domain.AuthServer
	}
	return e
}

// truncate cuts s to maxErrorFieldSize characters.
func truncate(s string) string {
	n := 0
	for i := range s {
		if n == maxErrorFieldSize {
			return s[:i]
		}
		n++
	}
	return s
}
