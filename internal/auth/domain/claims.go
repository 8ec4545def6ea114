package domain

import (
	"errors"
	"fmt"
)

// ClaimKind identifies a piece of identity information independent of the
// claim name it is serialized under.
type ClaimKind string

const (
	ClaimSubject  ClaimKind = "subject"
	ClaimAudience ClaimKind = "audience"
	ClaimRole     ClaimKind = "role"
	ClaimName     ClaimKind = "name"
	ClaimEmail    ClaimKind = "email"
)

var claimKinds = []ClaimKind{ClaimSubject, ClaimAudience, ClaimRole, ClaimName, ClaimEmail}

// ClaimMap maps each claim kind to its serialized claim name.
type ClaimMap map[ClaimKind]string

var ErrInvalidClaimMap = errors.New("domain: invalid claim map")

// DefaultClaimMap returns the standard OIDC claim names.
func DefaultClaimMap() ClaimMap {
	return ClaimMap{
		ClaimSubject:  "sub",
		ClaimAudience: "aud",
		ClaimRole:     "role",
		ClaimName:     "name",
		ClaimEmail:    "email",
	}
}

// Validate requires every kind to be mapped to a distinct, non-empty name.
func (m ClaimMap) Validate() error {
	seen := make(map[string]ClaimKind, len(m))
	for _, k := range claimKinds {
		name := m[k]
		if name == "" {
			return fmt.Errorf("%w: %s is unmapped", ErrInvalidClaimMap, k)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s and %s both map to %q", ErrInvalidClaimMap, other, k, name)
		}
		seen[name] = k
	}
	return nil
}

// Name returns the claim name for k.
func (m ClaimMap) Name(k ClaimKind) string { return m[k] }

// ProfileClaims returns the identity claims p discloses under scopes, keyed
// by the mapped claim names. The subject is always present.
func (m ClaimMap) ProfileClaims(p Principal, scopes []string) map[string]any {
	out := map[string]any{m.Name(ClaimSubject): p.Subject}
	for _, s := range scopes {
		switch s {
		case ScopeProfile:
			name := p.DisplayName
			if name == "" {
				name = p.Username
			}
			out[m.Name(ClaimName)] = name
			out["preferred_username"] = p.Username
		case ScopeEmail:
			if p.Email != "" {
				out[m.Name(ClaimEmail)] = p.Email
			}
		case ScopeRoles:
			if len(p.Roles) > 0 {
				out[m.Name(ClaimRole)] = p.Roles
			}
		}
	}
	return out
}
