// Package policy maps named authorization policies to the roles that satisfy
// them.
package policy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/truecredit/authserver/internal/auth/domain"
)

// Built-in policy names.
const (
	User                = "User"
	Administrator       = "Administrator"
	MasterAdministrator = "MasterAdministrator"
)

var ErrUnknownPolicy = errors.New("policy: unknown policy")

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Engine evaluates principals against a fixed set of policies. A principal
// satisfies a policy when it holds at least one of the policy's roles.
type Engine struct {
	policies map[string][]string
}

// Default returns the engine with the built-in role hierarchy.
func Default() *Engine {
	return New(map[string][]string{
		User:                {domain.RoleUser, domain.RoleAdministrator, domain.RoleMasterAdministrator},
		Administrator:       {domain.RoleAdministrator, domain.RoleMasterAdministrator},
		MasterAdministrator: {domain.RoleMasterAdministrator},
	})
}

// New copies policies into an immutable engine.
func New(policies map[string][]string) *Engine {
	m := make(map[string][]string, len(policies))
	for name, roles := range policies {
		m[name] = slices.Clone(roles)
	}
	return &Engine{policies: m}
}

// Evaluate allows iff principalRoles intersects the policy's required roles.
func (e *Engine) Evaluate(name string, principalRoles []string) (Decision, error) {
	required, ok := e.policies[name]
	if !ok {
		return Deny, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	for _, r := range principalRoles {
		if slices.Contains(required, r) {
			return Allow, nil
		}
	}
	return Deny, nil
}

// Validate reports the first name that is not a known policy. Empty names
// mean "not gated" and are accepted.
func (e *Engine) Validate(names ...string) error {
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := e.policies[n]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPolicy, n)
		}
	}
	return nil
}

// Roles returns the roles that satisfy name.
func (e *Engine) Roles(name string) ([]string, bool) {
	r, ok := e.policies[name]
	return slices.Clone(r), ok
}
