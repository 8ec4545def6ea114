package flow

import "fmt"

// Error codes returned to protocol clients.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidScope            = "invalid_scope"
	CodeAccessDenied            = "access_denied"
	CodeLoginRequired           = "login_required"
	CodeInsufficientScope       = "insufficient_scope"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeTemporarilyUnavailable  = "temporarily_unavailable"
)

// Kind classifies why a request was rejected.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindTransient
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindTransient:
		return "transient"
	case KindConfiguration:
		return "configuration"
	}
	return "unknown"
}

// Rejection is the terminal failure of a flow. It never wraps internal
// errors; those are logged by the controller.
type Rejection struct {
	Code        string
	Kind        Kind
	Description string

	// At is the last state reached before the rejection.
	At State
}

func (r *Rejection) Error() string {
	if r.Description == "" {
		return r.Code
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

func reject(code string, kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Kind: kind, Description: fmt.Sprintf(format, args...)}
}

func invalidRequest(format string, args ...any) *Rejection {
	return reject(CodeInvalidRequest, KindValidation, format, args...)
}

func invalidClient(kind Kind, format string, args ...any) *Rejection {
	return reject(CodeInvalidClient, kind, format, args...)
}

func invalidGrant(format string, args ...any) *Rejection {
	return reject(CodeInvalidGrant, KindAuthentication, format, args...)
}

func invalidScope(format string, args ...any) *Rejection {
	return reject(CodeInvalidScope, KindValidation, format, args...)
}
