package domain

import (
	"slices"
	"strings"
)

// Permission prefixes.
const (
	PrefixEndpoint     = "ept:"
	PrefixGrantType    = "gt:"
	PrefixResponseType = "rst:"
	PrefixScope        = "scp:"
)

// Endpoint permissions.
const (
	PermAuthorizationEndpoint = PrefixEndpoint + "authorization"
	PermTokenEndpoint         = PrefixEndpoint + "token"
	PermLogoutEndpoint        = PrefixEndpoint + "logout"
	PermIntrospectionEndpoint = PrefixEndpoint + "introspection"
)

// Grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantImplicit          = "implicit"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

// Response types, in normalized (sorted) form.
const (
	ResponseTypeCode         = "code"
	ResponseTypeToken        = "token"
	ResponseTypeIDToken      = "id_token"
	ResponseTypeIDTokenToken = "id_token token"
)

var (
	grantTypes    = []string{GrantAuthorizationCode, GrantImplicit, GrantRefreshToken, GrantClientCredentials, GrantPassword}
	responseTypes = []string{ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken, ResponseTypeIDTokenToken}
	endpoints     = []string{PermAuthorizationEndpoint, PermTokenEndpoint, PermLogoutEndpoint, PermIntrospectionEndpoint}
)

func GrantTypePermission(gt string) string    { return PrefixGrantType + gt }
func ResponseTypePermission(rt string) string { return PrefixResponseType + rt }
func ScopePermission(scope string) string     { return PrefixScope + scope }

// NormalizeResponseType sorts the space-delimited values of rt so
// "token id_token" and "id_token token" compare equal.
func NormalizeResponseType(rt string) string {
	f := strings.Fields(rt)
	slices.Sort(f)
	return strings.Join(f, " ")
}

// IsSupportedResponseType reports whether rt (normalized) is served.
func IsSupportedResponseType(rt string) bool {
	return slices.Contains(responseTypes, rt)
}

// IsSupportedPermission reports whether p belongs to one of the permission
// families. Scope permissions need a name.
func IsSupportedPermission(p string) bool {
	switch {
	case strings.HasPrefix(p, PrefixEndpoint):
		return slices.Contains(endpoints, p)
	case strings.HasPrefix(p, PrefixGrantType):
		return slices.Contains(grantTypes, strings.TrimPrefix(p, PrefixGrantType))
	case strings.HasPrefix(p, PrefixResponseType):
		return slices.Contains(responseTypes, strings.TrimPrefix(p, PrefixResponseType))
	case strings.HasPrefix(p, PrefixScope):
		name := strings.TrimPrefix(p, PrefixScope)
		return name != "" && !strings.ContainsAny(name, " \t\n")
	}
	return false
}
