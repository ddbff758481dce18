package domain

// GrantType is the OAuth credential exchange mode sent to the authentication endpoint.
type GrantType string

// GrantClientCredentials is the only grant type this flow supports.
const GrantClientCredentials GrantType = "client_credentials"

// Field names used in FieldError and on the wire.
const (
	FieldGrantType    = "grant_type"
	FieldClientID     = "client_id"
	FieldClientSecret = "client_secret"
	FieldScope        = "scope"
)

// Supported reports whether g is accepted by the token exchange.
func (g GrantType) Supported() bool {
	return g == GrantClientCredentials
}

// CredentialRequest is the fixed-shape request exchanged for an access token.
type CredentialRequest struct {
	GrantType    GrantType
	ClientID     string
	ClientSecret string
	Scope        string
}

// NewClientCredentials builds a CredentialRequest with the client_credentials grant.
func NewClientCredentials(clientID, clientSecret, scope string) CredentialRequest {
	return CredentialRequest{
		GrantType:    GrantClientCredentials,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        scope,
	}
}
