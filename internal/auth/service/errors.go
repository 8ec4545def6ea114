package service

import "errors"

var (
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrOTPRequired        = errors.New("otp_required")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrUnknownScope       = errors.New("unknown_scope")

	// ErrIssuance reports a signing, encryption or ledger failure after the
	// grant was already consumed.
	ErrIssuance = errors.New("token issuance failed")

	// ErrEncryptionUnavailable is returned when an audience requires an
	// encrypted token and no encryption key is configured.
	ErrEncryptionUnavailable = errors.New("encryption key not configured")
)
