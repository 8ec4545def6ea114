package flow

// State is a step of the token issuance state machine.
type State string

const (
	StateReceived         State = "received"
	StateClientValidated  State = "client_validated"
	StateGrantValidated   State = "grant_validated"
	StateAuthenticated    State = "authenticated"
	StateScopesAuthorized State = "scopes_authorized"
	StateTokenIssued      State = "token_issued"
	StateRejected         State = "rejected"
)

// progression lists the non-terminal transitions in order.
var progression = []State{
	StateClientValidated,
	StateGrantValidated,
	StateAuthenticated,
	StateScopesAuthorized,
	StateTokenIssued,
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateTokenIssued || s == StateRejected
}
