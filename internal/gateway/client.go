// Package gateway calls the catalog API gateway with the current session's token.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/logging"
)

// AuthExpiredError is returned when no valid session is available and
// interactive re-authentication is required.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("catalog session expired: re-authentication required: %v", e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// TokenSource yields the currently valid session.
// session.Manager is the production implementation.
type TokenSource interface {
	Current() (domain.Session, error)
}

// Client sends authenticated requests to the API gateway.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     logr.Logger
}

// NewClient creates a Client for the gateway at baseURL.
// A nil hc selects a client with a 30s timeout.
func NewClient(baseURL string, tokens TokenSource, hc *http.Client, log logr.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  hc,
		log:     log.WithName("gateway"),
	}
}

// Do sends req with the current Authorization header.
// It returns *AuthExpiredError when there is no valid session, and an error
// wrapping domain.ErrUnauthorized when the gateway answers 401.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	sess, err := c.tokens.Current()
	if err != nil {
		return nil, &AuthExpiredError{Err: err}
	}

	req = req.Clone(req.Context())
	req.Header.Set("Authorization", sess.AuthorizationHeader())
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	c.log.V(1).Info("gateway responded",
		logging.KeySession, sess.ID,
		logging.KeyRequestID, req.Header.Get("X-Request-ID"),
		logging.KeyStatus, resp.StatusCode,
	)
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("catalog API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	}
	return resp, nil
}

// Get fetches path and decodes the JSON body into target. A nil target
// discards the body. path may be relative to the gateway URL or absolute.
func (c *Client) Get(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("catalog API error: %s", resp.Status)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
