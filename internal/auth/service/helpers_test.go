package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/internal/auth/store/drivers/sqlite"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
)

const testIssuer = "https://auth.example.test/"

type fixture struct {
	store    *sqlite.Store
	registry *RegistryService
	issuer   *TokenIssuer
	users    *UserDirectory
	codes    *CodeService
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newKeyManager(t *testing.T, withEncryption bool) *jwtx.KeyManager {
	t.Helper()
	pemKey, err := cryptox.GenerateSigningKey(jwtx.AlgorithmEdDSA)
	require.NoError(t, err)

	opts := jwtx.KeyManagerOptions{
		Algorithm:     jwtx.AlgorithmEdDSA,
		PrivateKeyPEM: pemKey,
		Issuer:        testIssuer,
	}
	if withEncryption {
		opts.EncryptionKey, err = cryptox.GenerateSymmetricKey(jwtx.EncryptionKeySize)
		require.NoError(t, err)
	}
	km, err := jwtx.NewKeyManager(opts)
	require.NoError(t, err)
	return km
}

// newFixture wires the services over a fresh store seeded with the default
// bootstrap data, using "S3CR3T" as the resource server secret.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := newTestStore(t)
	hasher := cryptox.Hasher{Pepper: "test-pepper"}
	registry := &RegistryService{Store: s, Hasher: hasher}

	r := &Reconciler{Registry: registry, Policies: policy.Default(), Data: DefaultBootstrapData("S3CR3T")}
	require.NoError(t, r.Reconcile(context.Background()))

	return &fixture{
		store:    s,
		registry: registry,
		issuer: &TokenIssuer{
			Keys:       newKeyManager(t, true),
			Ledger:     s.Tokens(),
			Audiences:  registry,
			Issuer:     testIssuer,
			Claims:     domain.DefaultClaimMap(),
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		},
		users: &UserDirectory{Store: s, Hasher: hasher, Issuer: "TrueCredit"},
		codes: &CodeService{Store: s.AuthorizationCodes()},
	}
}
