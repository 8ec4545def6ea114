package domain

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ErrInvalidDescriptor wraps every client or scope validation failure.
var ErrInvalidDescriptor = errors.New("domain: invalid descriptor")

// Client is a registered OAuth client. ID is immutable once created.
type Client struct {
	ID                     string
	SecretHash             string // argon2id; empty for public clients
	DisplayName            string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	Permissions            []string
	CreatedAt              time.Time
}

// IsConfidential reports whether the client authenticates with a secret.
func (c Client) IsConfidential() bool { return c.SecretHash != "" }

func (c Client) HasPermission(p string) bool {
	return slices.Contains(c.Permissions, p)
}

// AllowsRedirectURI requires an exact match against a registered URI.
func (c Client) AllowsRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIs, uri)
}

func (c Client) AllowsPostLogoutRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.PostLogoutRedirectURIs, uri)
}

// PermitsScope reports whether the client may request scope. openid is open
// to every client and offline_access follows the refresh_token grant.
func (c Client) PermitsScope(scope string) bool {
	switch scope {
	case ScopeOpenID:
		return true
	case ScopeOfflineAccess:
		return c.HasPermission(GrantTypePermission(GrantRefreshToken))
	}
	return c.HasPermission(ScopePermission(scope))
}

// ForbiddenScopes returns the members of requested the client may not ask for.
func (c Client) ForbiddenScopes(requested []string) []string {
	var out []string
	for _, s := range requested {
		if !c.PermitsScope(s) {
			out = append(out, s)
		}
	}
	return out
}

// ClientDescriptor is the canonical definition used to create a client.
// Secret is plaintext and hashed on creation.
type ClientDescriptor struct {
	ID                     string   `yaml:"id"`
	Secret                 string   `yaml:"secret,omitempty"`
	DisplayName            string   `yaml:"display_name"`
	RedirectURIs           []string `yaml:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs []string `yaml:"post_logout_redirect_uris,omitempty"`
	Permissions            []string `yaml:"permissions"`
}

func (d ClientDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidDescriptor)
	}
	for _, p := range d.Permissions {
		if !IsSupportedPermission(p) {
			return fmt.Errorf("%w: client %q: unsupported permission %q", ErrInvalidDescriptor, d.ID, p)
		}
	}
	for _, u := range append(slices.Clone(d.RedirectURIs), d.PostLogoutRedirectURIs...) {
		if !isAbsoluteURI(u) {
			return fmt.Errorf("%w: client %q: redirect uri %q is not absolute", ErrInvalidDescriptor, d.ID, u)
		}
	}

	needsRedirect := slices.Contains(d.Permissions, PermAuthorizationEndpoint)
	if needsRedirect && len(d.RedirectURIs) == 0 {
		return fmt.Errorf("%w: client %q: authorization endpoint requires a redirect uri", ErrInvalidDescriptor, d.ID)
	}
	if slices.Contains(d.Permissions, GrantTypePermission(GrantClientCredentials)) && d.Secret == "" {
		return fmt.Errorf("%w: client %q: client_credentials requires a secret", ErrInvalidDescriptor, d.ID)
	}
	if slices.Contains(d.Permissions, PermIntrospectionEndpoint) && d.Secret == "" {
		return fmt.Errorf("%w: client %q: introspection requires a secret", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

func isAbsoluteURI(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != "" && u.Fragment == ""
}
