package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/slogx"
)

// RegistryService is the client and scope registry. Records are created once
// and never modified by request traffic.
type RegistryService struct {
	Store  store.Store
	Hasher cryptox.Hasher
}

func (s *RegistryService) FindClientByID(ctx context.Context, id string) (domain.Client, error) {
	return s.Store.Clients().GetClientByID(ctx, id)
}

// UpsertClient returns the stored client with d.ID, creating it from d when
// absent. An existing client is returned unchanged even if d differs.
func (s *RegistryService) UpsertClient(ctx context.Context, d domain.ClientDescriptor) (domain.Client, error) {
	if err := d.Validate(); err != nil {
		return domain.Client{}, err
	}

	existing, err := s.Store.Clients().GetClientByID(ctx, d.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, err
	}

	client := domain.Client{
		ID:                     d.ID,
		DisplayName:            d.DisplayName,
		RedirectURIs:           slices.Clone(d.RedirectURIs),
		PostLogoutRedirectURIs: slices.Clone(d.PostLogoutRedirectURIs),
		Permissions:            slices.Clone(d.Permissions),
		CreatedAt:              time.Now().UTC(),
	}
	if d.Secret != "" {
		if client.SecretHash, err = s.Hasher.Hash(d.Secret); err != nil {
			return domain.Client{}, fmt.Errorf("hash client secret: %w", err)
		}
	}

	var out domain.Client
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.Clients().GetClientByID(ctx, d.ID)
		if err == nil {
			out = found
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Clients().CreateClient(ctx, client); err != nil {
			return err
		}
		out = client
		return nil
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost a race with a concurrent creator.
		return s.Store.Clients().GetClientByID(ctx, d.ID)
	}
	if err != nil {
		return domain.Client{}, err
	}

	slogx.FromContext(ctx).Debug("client ensured", slog.String("client_id", out.ID))
	return out, nil
}

func (s *RegistryService) FindScopeByName(ctx context.Context, name string) (domain.Scope, error) {
	return s.Store.Scopes().GetScopeByName(ctx, name)
}

func (s *RegistryService) ListScopes(ctx context.Context) ([]domain.Scope, error) {
	return s.Store.Scopes().ListScopes(ctx)
}

// UpsertScope behaves like UpsertClient for scopes.
func (s *RegistryService) UpsertScope(ctx context.Context, d domain.ScopeDescriptor) (domain.Scope, error) {
	if err := d.Validate(); err != nil {
		return domain.Scope{}, err
	}

	scope := domain.Scope{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Resources:   slices.Clone(d.Resources),
		Policy:      d.Policy,
		CreatedAt:   time.Now().UTC(),
	}

	var out domain.Scope
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		found, err := tx.Scopes().GetScopeByName(ctx, d.Name)
		if err == nil {
			out = found
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Scopes().CreateScope(ctx, scope); err != nil {
			return err
		}
		out = scope
		return nil
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return s.Store.Scopes().GetScopeByName(ctx, d.Name)
	}
	if err != nil {
		return domain.Scope{}, err
	}
	return out, nil
}

// VerifyClientSecret authenticates a confidential client. Public clients
// always pass.
func (s *RegistryService) VerifyClientSecret(c domain.Client, secret string) error {
	if !c.IsConfidential() {
		return nil
	}
	if secret == "" {
		return ErrInvalidClient
	}
	if err := s.Hasher.Verify(secret, c.SecretHash); err != nil {
		return ErrInvalidClient
	}
	return nil
}

// ResolveScopes looks up the stored scopes among requested and returns the
// union of their resources, in first-seen order. Built-in identity scopes
// carry no resources. Unknown scopes return ErrUnknownScope.
func (s *RegistryService) ResolveScopes(ctx context.Context, requested []string) ([]domain.Scope, []string, error) {
	var (
		scopes    []domain.Scope
		resources []string
	)
	for _, name := range requested {
		if domain.IsIdentityScope(name) {
			continue
		}
		sc, err := s.Store.Scopes().GetScopeByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownScope, name)
		}
		if err != nil {
			return nil, nil, err
		}
		scopes = append(scopes, sc)
		for _, r := range sc.Resources {
			if !slices.Contains(resources, r) {
				resources = append(resources, r)
			}
		}
	}
	return scopes, resources, nil
}

// RequiresEncryption reports whether a token for audience must be encrypted:
// true when any audience has no introspection-capable client and therefore
// validates tokens locally with the shared key.
func (s *RegistryService) RequiresEncryption(ctx context.Context, audience []string) (bool, error) {
	for _, aud := range audience {
		c, err := s.Store.Clients().GetClientByID(ctx, aud)
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if !c.HasPermission(domain.PermIntrospectionEndpoint) {
			return true, nil
		}
	}
	return false, nil
}
