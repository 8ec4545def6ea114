package app

import (
	"context"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/slogx"
)

// Bootstrap runs the reconciler against the configured database and exits.
// No signing key is needed.
func Bootstrap(ctx context.Context, cfg Config) error {
	logger := NewLogger(cfg)
	ctx = slogx.WithContext(ctx, logger)

	db, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	policies := policy.Default()
	registry := &service.RegistryService{Store: db, Hasher: cryptox.Hasher{Pepper: cfg.Pepper}}
	r, err := NewReconciler(cfg, registry, policies)
	if err != nil {
		return err
	}
	if err := r.Reconcile(ctx); err != nil {
		return err
	}
	return r.ValidateStoredScopes(ctx)
}

// AddUser creates a local account. The returned URL is the TOTP provisioning
// URI when enrollment was requested.
func AddUser(ctx context.Context, cfg Config, nu service.NewUser) (domain.User, string, error) {
	ctx = slogx.WithContext(ctx, NewLogger(cfg))

	db, err := OpenStore(cfg)
	if err != nil {
		return domain.User{}, "", err
	}
	defer func() { _ = db.Close() }()

	users := &service.UserDirectory{Store: db, Hasher: cryptox.Hasher{Pepper: cfg.Pepper}, Issuer: TOTPIssuer}
	return users.CreateUser(ctx, nu)
}
