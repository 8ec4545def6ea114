package app

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
	"github.com/truecredit/authserver/pkg/slogx"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	pemKey, err := cryptox.GenerateSigningKey(jwtx.AlgorithmEdDSA)
	require.NoError(t, err)
	keyFile := filepath.Join(dir, "signing.pem")
	require.NoError(t, os.WriteFile(keyFile, pemKey, 0o600))

	encKey, err := cryptox.GenerateSymmetricKey(jwtx.EncryptionKeySize)
	require.NoError(t, err)

	return Config{
		Issuer:               "http://auth.test",
		Algorithm:            jwtx.AlgorithmEdDSA,
		SigningKeyFile:       keyFile,
		EncryptionKey:        base64.StdEncoding.EncodeToString(encKey),
		DatabaseFile:         filepath.Join(dir, "auth.db"),
		Pepper:               "pepper",
		ResourceServerSecret: "S3CR3T",
		TokenLedger:          LedgerSQLite,
		LogLevel:             "error",
		Port:                 8080,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "30m")
	t.Setenv("AUTH_CODE_TTL", "2")
	t.Setenv("PORT", "not-a-port")

	cfg := LoadConfig()
	require.Equal(t, "http://localhost:8080", cfg.Issuer)
	require.Equal(t, jwtx.AlgorithmEdDSA, cfg.Algorithm)
	require.Equal(t, LedgerSQLite, cfg.TokenLedger)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 2*time.Minute, cfg.CodeTTL)
	require.Equal(t, service.DefaultRefreshTTL, cfg.RefreshTokenTTL)
	require.Equal(t, 8080, cfg.Port)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig(t).Validate())

	err := Config{TokenLedger: LedgerRedis, Algorithm: "HS256"}.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{
		"AUTH_ISSUER",
		"AUTH_ALGORITHM",
		"AUTH_SIGNING_KEY_FILE",
		"AUTH_RESOURCE_SERVER_SECRET",
		"REDIS_ADDR",
		"PORT",
	} {
		require.ErrorContains(t, err, want)
	}

	cfg := testConfig(t)
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short"))
	require.ErrorContains(t, cfg.Validate(), "must decode to 32 bytes")

	cfg = testConfig(t)
	cfg.ResourceServerSecret = ""
	cfg.BootstrapFile = "bootstrap.yaml"
	require.NoError(t, cfg.Validate())
}

func TestLoadKeys_Sealed(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()

	master := filepath.Join(dir, "master.key")
	require.NoError(t, os.WriteFile(master, []byte("a master key\n"), 0o600))

	mat, err := GenerateKeyMaterial(jwtx.AlgorithmES256, master)
	require.NoError(t, err)
	require.True(t, mat.Sealed)
	require.NotContains(t, string(mat.SigningKey), "PRIVATE KEY")

	cfg.Algorithm = jwtx.AlgorithmES256
	cfg.SigningKeyFile = filepath.Join(dir, "signing.sealed")
	cfg.EncryptionKey = mat.EncryptionKey
	require.NoError(t, os.WriteFile(cfg.SigningKeyFile, mat.SigningKey, 0o600))

	_, err = LoadKeys(cfg, slogx.Discard())
	require.Error(t, err)

	cfg.MasterKeyFile = master
	km, err := LoadKeys(cfg, slogx.Discard())
	require.NoError(t, err)
	require.Equal(t, jwtx.AlgorithmES256, km.Algorithm())
	require.True(t, km.CanEncrypt())
}

func TestNew_RequiresEncryptionKeyForLocalAudience(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = ""

	_, err := New(context.Background(), cfg)
	require.ErrorIs(t, err, service.ErrEncryptionUnavailable)
}

func TestNew_FailsOnInvalidBootstrapFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, []byte(`
scopes:
  - name: reports
    resources: [reporting]
    policy: Auditor
`), 0o600))

	_, err := New(context.Background(), cfg)
	require.ErrorIs(t, err, service.ErrBootstrapFailed)
}

func TestNew_RestartsAndServes(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	// Starting twice against the same database keeps bootstrap idempotent.
	for range 2 {
		a, err := New(ctx, cfg)
		require.NoError(t, err)
		require.NoError(t, a.close())
	}

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })

	clients, err := a.db.Clients().ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + authsdk.PathLiveness)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	a.server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBootstrapAndAddUser(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, Bootstrap(ctx, cfg))
	}

	u, otpURL, err := AddUser(ctx, cfg, service.NewUser{
		ID:         "alice",
		Username:   "alice",
		Password:   "correct horse battery staple",
		EnrollTOTP: true,
	})
	require.NoError(t, err)
	require.Equal(t, "alice", u.ID)
	require.Contains(t, otpURL, "otpauth://totp/")

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })

	clients, err := a.db.Clients().ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)

	p, err := a.users.FindUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", p.Subject)
}
