// Package flow implements the token issuance state machine shared by the
// authorization, token and introspection endpoints. It has no transport
// dependencies: requests arrive as Request values and leave as Outcomes.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/pkg/slogx"
)

const DefaultTimeout = 5 * time.Second

type Registry interface {
	FindClientByID(ctx context.Context, id string) (domain.Client, error)
	VerifyClientSecret(c domain.Client, secret string) error
	ResolveScopes(ctx context.Context, requested []string) ([]domain.Scope, []string, error)
}

// CredentialProvider is the user store as seen by the controller.
type CredentialProvider interface {
	FindUser(ctx context.Context, subject string) (domain.Principal, error)
	ValidateCredentials(ctx context.Context, username, password, otp string) (domain.Principal, error)
	GetRoles(ctx context.Context, subject string) ([]string, error)
}

type Policies interface {
	Evaluate(name string, roles []string) (policy.Decision, error)
}

type Issuer interface {
	IssueAccessToken(ctx context.Context, subject, clientID string, audience, scopes, roles []string, ttl time.Duration) (domain.Token, error)
	IssueRefreshToken(ctx context.Context, subject, clientID string, audience, scopes []string, ttl time.Duration) (domain.Token, error)
	IssueIdentityToken(ctx context.Context, subject, clientID string, claims map[string]any, ttl time.Duration) (domain.Token, error)
	Introspect(ctx context.Context, token string) (domain.Introspection, error)
	LookupRefreshToken(ctx context.Context, value string) (domain.TokenRecord, error)
	RotateWith(ctx context.Context, refreshToken string, r service.Rotation) (domain.TokenSet, error)
	Discard(ctx context.Context, tokens ...domain.Token) error
}

type Codes interface {
	Issue(ctx context.Context, g service.CodeGrant) (string, error)
	Lookup(ctx context.Context, value string) (domain.AuthorizationCode, error)
	Redeem(ctx context.Context, value string) (domain.AuthorizationCode, error)
}

// Observer is notified of every finished flow.
type Observer interface {
	ObserveFlow(o Outcome, elapsed time.Duration)
}

// Controller drives requests through the state machine. All collaborators
// are required except Observer.
type Controller struct {
	Registry    Registry
	Credentials CredentialProvider
	Policies    Policies
	Issuer      Issuer
	Codes       Codes
	Claims      domain.ClaimMap
	Observer    Observer

	// Timeout bounds each Run. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// step performs the work guarding one transition.
type step func(ctx context.Context, r *run) error

// variant is one flow over the shared skeleton. steps[i] guards the
// transition into progression[i]; nil steps pass through.
type variant struct {
	name  string
	steps [5]step
}

// Run executes req to a terminal state. It never returns internal errors:
// failures surface as Outcome.Rejection.
func (c *Controller) Run(ctx context.Context, req Request) Outcome {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()

	r := &run{
		c:   c,
		req: req,
		out: Outcome{State: StateReceived, Trace: []State{StateReceived}},
	}

	v, rej := selectVariant(req)
	if rej != nil {
		r.fail(ctx, rej)
	} else {
		r.out.Flow = v.name
		for i, next := range progression {
			if err := ctx.Err(); err != nil {
				r.fail(ctx, err)
				break
			}
			if s := v.steps[i]; s != nil {
				if err := s(ctx, r); err != nil {
					r.fail(ctx, err)
					break
				}
			}
			r.out.State = next
			r.out.Trace = append(r.out.Trace, next)
		}
	}

	if c.Observer != nil {
		c.Observer.ObserveFlow(r.out, time.Since(start))
	}
	return r.out
}

func selectVariant(req Request) (variant, *Rejection) {
	switch req.Endpoint {
	case EndpointAuthorize:
		switch rt := domain.NormalizeResponseType(req.ResponseType); rt {
		case "":
			return variant{}, invalidRequest("response_type is required")
		case domain.ResponseTypeCode:
			return authorizationVariant, nil
		case domain.ResponseTypeToken, domain.ResponseTypeIDToken, domain.ResponseTypeIDTokenToken:
			return implicitVariant, nil
		default:
			return variant{}, reject(CodeUnsupportedResponseType, KindValidation, "response_type %q is not supported", req.ResponseType)
		}

	case EndpointToken:
		switch req.GrantType {
		case "":
			return variant{}, invalidRequest("grant_type is required")
		case domain.GrantAuthorizationCode:
			return codeExchangeVariant, nil
		case domain.GrantRefreshToken:
			return refreshVariant, nil
		case domain.GrantPassword:
			return passwordVariant, nil
		case domain.GrantClientCredentials:
			return clientCredentialsVariant, nil
		default:
			return variant{}, reject(CodeUnsupportedGrantType, KindValidation, "grant_type %q is not supported", req.GrantType)
		}

	case EndpointIntrospect:
		return introspectionVariant, nil
	}
	return variant{}, invalidRequest("unknown endpoint")
}

// run carries the state accumulated while one request moves through the
// machine.
type run struct {
	c   *Controller
	req Request
	out Outcome

	client       domain.Client
	responseType string
	scopes       []string
	scopeRecords []domain.Scope
	audience     []string
	principal    domain.Principal
	code         domain.AuthorizationCode
	refresh      domain.TokenRecord

	// issued holds tokens already recorded in the ledger by this run.
	issued []domain.Token
}

// fail moves the run to Rejected, translating internal errors into a
// transient rejection. Anything minted so far is dropped from the outcome.
func (r *run) fail(ctx context.Context, err error) {
	l := slogx.FromContext(ctx)

	var rej *Rejection
	switch {
	case errors.As(err, &rej):
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil:
		l.Warn("flow timed out",
			slog.String("flow", r.out.Flow),
			slog.String("state", string(r.out.State)),
			slog.Any("error", err),
		)
		rej = reject(CodeTemporarilyUnavailable, KindTransient, "request timed out")
	default:
		l.Error("flow failed",
			slog.String("flow", r.out.Flow),
			slog.String("state", string(r.out.State)),
			slog.String("client_id", r.req.ClientID),
			slog.Any("error", err),
		)
		rej = reject(CodeTemporarilyUnavailable, KindTransient, "service temporarily unavailable")
	}

	if len(r.issued) > 0 {
		if err := r.c.Issuer.Discard(context.WithoutCancel(ctx), r.issued...); err != nil {
			l.Error("failed to revoke partially issued tokens", slog.Any("error", err))
		}
		r.issued = nil
	}

	rej.At = r.out.State
	r.out.State = StateRejected
	r.out.Trace = append(r.out.Trace, StateRejected)
	r.out.Rejection = rej
	r.out.Tokens = domain.TokenSet{}
	r.out.Code = ""
	r.out.Introspection = nil

	if rej.Kind != KindTransient {
		l.Info("flow rejected",
			slog.String("flow", r.out.Flow),
			slog.String("state", string(rej.At)),
			slog.String("client_id", r.req.ClientID),
			slog.String("error", rej.Code),
			slog.String("kind", rej.Kind.String()),
		)
	}
}
