// Package credential collects and structurally validates credential requests
// before they are submitted for token exchange.
package credential

import (
	"strings"

	"github.com/waabox/catalogauth/internal/domain"
)

const (
	msgRequired    = "is required"
	msgUnsupported = "unsupported grant type"
)

// Validate returns one FieldError per invalid field, in field order.
// A nil result means the request may be submitted.
func Validate(req domain.CredentialRequest) []domain.FieldError {
	var errs []domain.FieldError

	switch {
	case strings.TrimSpace(string(req.GrantType)) == "":
		errs = append(errs, domain.FieldError{Field: domain.FieldGrantType, Message: msgRequired})
	case !req.GrantType.Supported():
		errs = append(errs, domain.FieldError{Field: domain.FieldGrantType, Message: msgUnsupported})
	}

	required := []struct {
		name  string
		value string
	}{
		{domain.FieldClientID, req.ClientID},
		{domain.FieldClientSecret, req.ClientSecret},
		{domain.FieldScope, req.Scope},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, domain.FieldError{Field: f.name, Message: msgRequired})
		}
	}
	return errs
}

// Check wraps Validate, returning a *domain.ValidationError when any field is invalid.
func Check(req domain.CredentialRequest) error {
	if errs := Validate(req); len(errs) > 0 {
		return &domain.ValidationError{Fields: errs}
	}
	return nil
}
