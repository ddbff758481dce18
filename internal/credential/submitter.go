package credential

import (
	"context"
	"errors"

	"github.com/go-logr/logr"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/logging"
)

// Authenticator performs the login that follows a valid submission.
// session.Manager is the production implementation.
type Authenticator interface {
	Login(ctx context.Context, req domain.CredentialRequest) (domain.Session, error)
}

// Submitter validates credential requests and hands valid ones to an Authenticator.
type Submitter struct {
	auth Authenticator
	log  logr.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(auth Authenticator, log logr.Logger) *Submitter {
	return &Submitter{auth: auth, log: log.WithName("submitter")}
}

// Submit validates req and, only when it is structurally valid, logs in once.
// Validation failures return *domain.ValidationError and never reach the network.
// Submit does not retry.
func (s *Submitter) Submit(ctx context.Context, req domain.CredentialRequest) (domain.Session, error) {
	if errs := Validate(req); len(errs) > 0 {
		for _, fe := range errs {
			s.log.Info("credential request rejected", logging.KeyField, fe.Field, "reason", fe.Message)
		}
		return domain.Session{}, &domain.ValidationError{Fields: errs}
	}

	sess, err := s.auth.Login(ctx, req)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			s.log.Info("login failed", logging.KeyKind, string(authErr.Kind), logging.KeyStatus, authErr.StatusCode)
		}
		return domain.Session{}, err
	}
	return sess, nil
}
