package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/pkg/slogx"
)

// Well-known client identifiers.
const (
	FrontendClientID        = "aurelia"
	ResourceServerClientID  = "resource_server_1"
	LocalResourceServerName = "resource_server_2"
)

var ErrBootstrapFailed = errors.New("bootstrap failed")

// PolicyValidator rejects unknown policy names.
type PolicyValidator interface {
	Validate(names ...string) error
}

// DefaultBootstrapData returns the canonical clients and scopes.
// resourceServerSecret is the introspection secret of resource_server_1.
func DefaultBootstrapData(resourceServerSecret string) domain.BootstrapData {
	return domain.BootstrapData{
		Scopes: []domain.ScopeDescriptor{
			{Name: "api1", Resources: []string{ResourceServerClientID}, Policy: policy.User},
			{Name: "api2", Resources: []string{LocalResourceServerName}, Policy: policy.User},
		},
		Clients: []domain.ClientDescriptor{
			{
				ID:                     FrontendClientID,
				DisplayName:            "Aurelia client application",
				RedirectURIs:           []string{"http://127.0.0.1:5500/callback.html"},
				PostLogoutRedirectURIs: []string{"http://127.0.0.1:5500/index.html"},
				Permissions: []string{
					domain.PermAuthorizationEndpoint,
					domain.PermLogoutEndpoint,
					domain.PermTokenEndpoint,
					domain.GrantTypePermission(domain.GrantImplicit),
					domain.GrantTypePermission(domain.GrantAuthorizationCode),
					domain.GrantTypePermission(domain.GrantPassword),
					domain.ResponseTypePermission(domain.ResponseTypeIDToken),
					domain.ResponseTypePermission(domain.ResponseTypeIDTokenToken),
					domain.ResponseTypePermission(domain.ResponseTypeToken),
					domain.ResponseTypePermission(domain.ResponseTypeCode),
					domain.ScopePermission(domain.ScopeEmail),
					domain.ScopePermission(domain.ScopeProfile),
					domain.ScopePermission(domain.ScopeRoles),
					domain.ScopePermission("api1"),
					domain.ScopePermission("api2"),
				},
			},
			{
				ID:          ResourceServerClientID,
				Secret:      resourceServerSecret,
				DisplayName: "Resource server 1",
				Permissions: []string{domain.PermIntrospectionEndpoint},
			},
		},
	}
}

// LoadBootstrapFile reads clients and scopes from a YAML document.
func LoadBootstrapFile(path string) (domain.BootstrapData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.BootstrapData{}, fmt.Errorf("read bootstrap file: %w", err)
	}

	var data domain.BootstrapData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return domain.BootstrapData{}, fmt.Errorf("parse bootstrap file %s: %w", path, err)
	}
	return data, nil
}

// Reconciler ensures the bootstrap clients and scopes exist. It only creates
// missing records; existing ones are left untouched even when their
// definition differs.
type Reconciler struct {
	Registry *RegistryService
	Policies PolicyValidator
	Data     domain.BootstrapData
}

// Reconcile validates every descriptor before writing anything, then creates
// scopes followed by clients. Any failure is returned wrapped in
// ErrBootstrapFailed.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	l := slogx.FromContext(ctx)

	for _, d := range r.Data.Scopes {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
		}
		if r.Policies != nil {
			if err := r.Policies.Validate(d.Policy); err != nil {
				return fmt.Errorf("%w: scope %q: %w", ErrBootstrapFailed, d.Name, err)
			}
		}
	}
	for _, d := range r.Data.Clients {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
		}
	}

	for _, d := range r.Data.Scopes {
		sc, err := r.Registry.UpsertScope(ctx, d)
		if err != nil {
			l.Error("failed to ensure scope", slog.String("scope", d.Name), slog.Any("error", err))
			return fmt.Errorf("%w: scope %q: %w", ErrBootstrapFailed, d.Name, err)
		}
		l.Debug("scope ensured", slog.String("scope", sc.Name))
	}

	for _, d := range r.Data.Clients {
		c, err := r.Registry.UpsertClient(ctx, d)
		if err != nil {
			l.Error("failed to ensure client", slog.String("client_id", d.ID), slog.Any("error", err))
			return fmt.Errorf("%w: client %q: %w", ErrBootstrapFailed, d.ID, err)
		}
		l.Debug("client ensured", slog.String("client_id", c.ID))
	}

	l.Info("bootstrap reconciled",
		slog.Int("scopes", len(r.Data.Scopes)),
		slog.Int("clients", len(r.Data.Clients)),
	)
	return nil
}

// ValidateStoredScopes checks that every stored scope references a known
// policy. Run at startup after Reconcile.
func (r *Reconciler) ValidateStoredScopes(ctx context.Context) error {
	scopes, err := r.Registry.ListScopes(ctx)
	if err != nil {
		return err
	}
	for _, sc := range scopes {
		if err := r.Policies.Validate(sc.Policy); err != nil {
			return fmt.Errorf("scope %q: %w", sc.Name, err)
		}
	}
	return nil
}
