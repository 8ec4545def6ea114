package domain

import (
	"fmt"
	"strings"
	"time"
)

// Standard OpenID Connect scopes. They are built in and have no stored record.
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeRoles         = "roles"
)

// IsIdentityScope reports whether scope is a built-in OIDC scope.
func IsIdentityScope(scope string) bool {
	switch scope {
	case ScopeOpenID, ScopeOfflineAccess, ScopeProfile, ScopeEmail, ScopeRoles:
		return true
	}
	return false
}

// Scope names a bundle of access to one or more resource servers.
type Scope struct {
	Name        string
	DisplayName string
	Resources   []string

	// Policy optionally gates the scope on the principal's roles.
	Policy string

	CreatedAt time.Time
}

type ScopeDescriptor struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name,omitempty"`
	Resources   []string `yaml:"resources"`
	Policy      string   `yaml:"policy,omitempty"`
}

func (d ScopeDescriptor) Validate() error {
	if d.Name == "" || strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("%w: scope name %q", ErrInvalidDescriptor, d.Name)
	}
	if IsIdentityScope(d.Name) {
		return fmt.Errorf("%w: scope %q is built in", ErrInvalidDescriptor, d.Name)
	}
	if len(d.Resources) == 0 {
		return fmt.Errorf("%w: scope %q has no resources", ErrInvalidDescriptor, d.Name)
	}
	for _, r := range d.Resources {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: scope %q has a blank resource", ErrInvalidDescriptor, d.Name)
		}
	}
	return nil
}
