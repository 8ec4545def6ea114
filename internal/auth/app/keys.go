package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
)

// LoadKeys reads the configured key material once and builds the immutable
// key manager. When a master key is configured the signing key file is
// expected to be sealed with it.
func LoadKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	pemKey, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	if cfg.MasterKeyFile != "" {
		master, err := readMasterKey(cfg.MasterKeyFile)
		if err != nil {
			return nil, err
		}
		if pemKey, err = cryptox.OpenKey(master, pemKey); err != nil {
			return nil, fmt.Errorf("failed to open sealed signing key: %w", err)
		}
	}

	encKey, err := cfg.encryptionKey()
	if err != nil {
		return nil, fmt.Errorf("%w: AUTH_ENCRYPTION_KEY: %w", ErrInvalidConfig, err)
	}

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm:     cfg.Algorithm,
		KeyID:         cfg.SigningKeyID,
		PrivateKeyPEM: pemKey,
		Issuer:        cfg.Issuer,
		EncryptionKey: encKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	logger.Info("signing key loaded",
		"algorithm", km.Algorithm(),
		"kid", km.Signer.KID(),
		"sealed", cfg.MasterKeyFile != "",
		"encryption", km.CanEncrypt(),
	)
	return km, nil
}

func readMasterKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}
	master := bytes.TrimSpace(raw)
	if len(master) == 0 {
		return nil, fmt.Errorf("%w: master key file %s is empty", ErrInvalidConfig, path)
	}
	return master, nil
}

// KeyMaterial is freshly generated key material for `auth keys generate`.
type KeyMaterial struct {
	// SigningKey is a PKCS8 PEM, sealed when a master key was supplied.
	SigningKey []byte
	Sealed     bool

	// EncryptionKey is the base64 value for AUTH_ENCRYPTION_KEY.
	EncryptionKey string
}

// GenerateKeyMaterial creates a signing key for alg and an encryption key.
// masterKeyFile may be empty.
func GenerateKeyMaterial(alg, masterKeyFile string) (KeyMaterial, error) {
	pemKey, err := cryptox.GenerateSigningKey(alg)
	if err != nil {
		return KeyMaterial{}, err
	}

	out := KeyMaterial{SigningKey: pemKey}
	if masterKeyFile != "" {
		master, err := readMasterKey(masterKeyFile)
		if err != nil {
			return KeyMaterial{}, err
		}
		if out.SigningKey, err = cryptox.SealKey(master, pemKey); err != nil {
			return KeyMaterial{}, err
		}
		out.Sealed = true
	}

	enc, err := cryptox.GenerateSymmetricKey(jwtx.EncryptionKeySize)
	if err != nil {
		return KeyMaterial{}, err
	}
	out.EncryptionKey = base64.StdEncoding.EncodeToString(enc)
	return out, nil
}

// checkEncryptedAudiences fails when a stored scope targets a resource that
// validates tokens locally but no encryption key is configured.
func checkEncryptedAudiences(ctx context.Context, registry *service.RegistryService, keys *jwtx.KeyManager) error {
	if keys.CanEncrypt() {
		return nil
	}

	scopes, err := registry.ListScopes(ctx)
	if err != nil {
		return err
	}
	for _, sc := range scopes {
		encrypted, err := registry.RequiresEncryption(ctx, sc.Resources)
		if err != nil {
			return err
		}
		if encrypted {
			return fmt.Errorf("%w: scope %q targets a locally validating audience",
				service.ErrEncryptionUnavailable, sc.Name)
		}
	}
	return nil
}
