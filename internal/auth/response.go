package auth

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// tokenResponse is the authentication endpoint's JSON body. Servers that report
// failures with HTTP 200 fill Error instead of AccessToken.
type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        expiresIn `json:"expires_in"`
	Scope            string    `json:"scope"`
	Error            string    `json:"error"`
	ErrorDescription string    `json:"error_description"`
}

// oauthError is the RFC 6749 error body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// maxExpiresInSeconds is the largest lifetime a time.Duration can hold.
const maxExpiresInSeconds = float64(math.MaxInt64 / int64(time.Second))

// expiresIn is a lifetime in seconds. Some providers send it as a string.
type expiresIn time.Duration

func (e *expiresIn) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expires_in: %w", err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > maxExpiresInSeconds {
		return fmt.Errorf("expires_in: %s out of range", s)
	}
	*e = expiresIn(time.Duration(secs * float64(time.Second)))
	return nil
}

func (e expiresIn) Duration() time.Duration {
	return time.Duration(e)
}

// Compile-time check.
var _ json.Unmarshaler = (*expiresIn)(nil)
