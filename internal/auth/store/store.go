package store

import (
	"context"
	"errors"
	"time"

	"github.com/truecredit/authserver/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a conditional update that matched nothing, such as
	// redeeming an already redeemed code or token.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface implemented by drivers. It exposes
// sub-repositories; a Tx exposes the same repositories bound to one
// transaction and cannot be nested.
type Store interface {
	Clients() Clients
	Scopes() Scopes
	Users() Users
	AuthorizationCodes() AuthorizationCodes
	Tokens() Tokens

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts c, returning ErrAlreadyExists if the id is taken.
	CreateClient(ctx context.Context, c domain.Client) error

	CountClients(ctx context.Context) (int64, error)
}

type Scopes interface {
	GetScopeByName(ctx context.Context, name string) (domain.Scope, error)
	ListScopes(ctx context.Context) ([]domain.Scope, error)

	// CreateScope inserts s, returning ErrAlreadyExists if the name is taken.
	CreateScope(ctx context.Context, s domain.Scope) error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the id or username is taken.
	CreateUser(ctx context.Context, u domain.User) error
}

type AuthorizationCodes interface {
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCode looks a code up by fingerprint.
	GetAuthorizationCode(ctx context.Context, id string) (domain.AuthorizationCode, error)

	// RedeemAuthorizationCode marks the code used if it is unused and
	// unexpired at now. Returns ErrConflict otherwise, ErrNotFound if unknown.
	RedeemAuthorizationCode(ctx context.Context, id string, now time.Time) (domain.AuthorizationCode, error)

	// DeleteStaleAuthorizationCodes removes codes expired or redeemed before cutoff.
	DeleteStaleAuthorizationCodes(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tokens is the issued-token ledger. Implementations must make ConsumeToken
// an atomic compare-and-invalidate.
type Tokens interface {
	CreateToken(ctx context.Context, rec domain.TokenRecord) error
	GetToken(ctx context.Context, id string) (domain.TokenRecord, error)

	// ConsumeToken flips a valid, unexpired token to redeemed and returns the
	// record as it was. Exactly one concurrent caller succeeds; the rest get
	// ErrConflict. Unknown ids return ErrNotFound.
	ConsumeToken(ctx context.Context, id string, now time.Time) (domain.TokenRecord, error)

	// RevokeToken marks a token revoked regardless of its state.
	RevokeToken(ctx context.Context, id string) error

	// RevokeSubjectTokens revokes every valid token of subject issued to clientID.
	RevokeSubjectTokens(ctx context.Context, subject, clientID string) (int64, error)

	// DeleteStaleTokens removes records that expired before cutoff.
	DeleteStaleTokens(ctx context.Context, cutoff time.Time) (int64, error)
}
