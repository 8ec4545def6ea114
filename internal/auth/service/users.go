package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/idx"
	"github.com/truecredit/authserver/pkg/slogx"
)

// UserDirectory is the local credential and role provider backed by the
// users table.
type UserDirectory struct {
	Store  store.Store
	Hasher cryptox.Hasher

	// Issuer labels TOTP enrollments.
	Issuer string
}

func principalOf(u domain.User) domain.Principal {
	return domain.Principal{
		Subject:     u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Roles:       slices.Clone(u.Roles),
	}
}

// FindUser resolves a subject. Unknown subjects return store.ErrNotFound.
func (s *UserDirectory) FindUser(ctx context.Context, subject string) (domain.Principal, error) {
	u, err := s.Store.Users().GetUserByID(ctx, subject)
	if err != nil {
		return domain.Principal{}, err
	}
	return principalOf(u), nil
}

// ValidateCredentials checks username and password, and the TOTP code when
// the account has a second factor enrolled. A missing code returns
// ErrOTPRequired so the caller can prompt for it.
func (s *UserDirectory) ValidateCredentials(ctx context.Context, username, password, code string) (domain.Principal, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Principal{}, err
	}

	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		l.Info("password verification failed", slog.String("user_id", u.ID))
		return domain.Principal{}, ErrInvalidCredentials
	}

	if u.TOTPSecret != "" {
		code = strings.TrimSpace(code)
		if code == "" {
			return domain.Principal{}, ErrOTPRequired
		}
		if !totp.Validate(code, u.TOTPSecret) {
			l.Info("totp verification failed", slog.String("user_id", u.ID))
			return domain.Principal{}, ErrInvalidCredentials
		}
	}

	return principalOf(u), nil
}

func (s *UserDirectory) GetRoles(ctx context.Context, subject string) ([]string, error) {
	u, err := s.Store.Users().GetUserByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	return slices.Clone(u.Roles), nil
}

// NewUser describes a local account to create.
type NewUser struct {
	// ID is the subject identifier. A ULID is generated when empty.
	ID          string
	Username    string
	Password    string
	DisplayName string
	Email       string
	Roles       []string
	EnrollTOTP  bool
}

// CreateUser stores a new account. When EnrollTOTP is set the returned URL
// is the otpauth:// provisioning URI for an authenticator app.
func (s *UserDirectory) CreateUser(ctx context.Context, nu NewUser) (domain.User, string, error) {
	nu.Username = strings.TrimSpace(nu.Username)
	if nu.Username == "" || nu.Password == "" {
		return domain.User{}, "", errors.New("username and password are required")
	}

	hash, err := s.Hasher.Hash(nu.Password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	id := strings.TrimSpace(nu.ID)
	if id == "" {
		id = idx.New().String()
	}
	u := domain.User{
		ID:           id,
		Username:     nu.Username,
		DisplayName:  nu.DisplayName,
		Email:        nu.Email,
		PasswordHash: hash,
		Roles:        slices.Clone(nu.Roles),
		CreatedAt:    time.Now().UTC(),
	}

	var otpURL string
	if nu.EnrollTOTP {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.Issuer,
			AccountName: u.Username,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return domain.User{}, "", fmt.Errorf("generate totp secret: %w", err)
		}
		u.TOTPSecret = key.Secret()
		otpURL = key.URL()
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, "", err
	}

	slogx.FromContext(ctx).Info("user created",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
		slog.Bool("totp", u.TOTPSecret != ""),
	)
	return u, otpURL, nil
}
