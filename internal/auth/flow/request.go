package flow

import (
	"github.com/truecredit/authserver/internal/auth/domain"
)

// Endpoint identifies the protocol endpoint a request arrived at.
type Endpoint string

const (
	EndpointAuthorize  Endpoint = "authorize"
	EndpointToken      Endpoint = "token"
	EndpointIntrospect Endpoint = "introspect"
)

// Request is a protocol request decoded from its transport.
type Request struct {
	Endpoint Endpoint

	GrantType    string
	ResponseType string

	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Scopes is nil when the request carried no scope parameter.
	Scopes []string

	Code                string
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string

	RefreshToken string

	Username string
	Password string
	OTP      string

	// Subject is set when the caller already holds an authenticated session.
	Subject string

	Nonce string

	// Token is the token presented for introspection.
	Token string
}

// Outcome is the result of running a request through the state machine.
type Outcome struct {
	Flow  string
	State State
	Trace []State

	Tokens        domain.TokenSet
	Code          string
	Introspection *domain.Introspection
	Principal     *domain.Principal

	Rejection *Rejection
}

// OK reports whether the flow reached TokenIssued.
func (o Outcome) OK() bool { return o.State == StateTokenIssued }
