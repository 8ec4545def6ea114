package domain

import "time"

// Roles known to the built-in policies.
const (
	RoleUser                = "user"
	RoleAdministrator       = "administrator"
	RoleMasterAdministrator = "masterAdministrator"
)

// User is a local account of the sqlite-backed credential provider.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	TOTPSecret   string // base32; empty when no second factor is enrolled
	Roles        []string
	CreatedAt    time.Time
}

// Principal is the authenticated identity handed to the flow controller.
type Principal struct {
	Subject     string
	Username    string
	DisplayName string
	Email       string
	Roles       []string
}
