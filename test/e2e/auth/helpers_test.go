//go:build e2e

package auth_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * This includes container setup, service operations, and assertions.
 */

const (
	testImageName = "truecredit-auth-test:latest"

	issuer        = "http://auth.e2e.test"
	rsSecret      = "S3CR3T"
	aliceUsername = "alice"
	alicePassword = "correct horse battery staple"
	callbackURI   = "http://127.0.0.1:5500/callback.html"
	postLogoutURI = "http://127.0.0.1:5500/index.html"
)

var (
	rs1     = authsdk.ClientAuth{ClientID: "resource_server_1", ClientSecret: rsSecret}
	svc     = authsdk.ClientAuth{ClientID: "batch", ClientSecret: "batch-secret", UseBasicAuth: true}
	aurelia = authsdk.ClientAuth{ClientID: "aurelia"}
)

// bootstrapYAML is the built-in descriptor set plus a client_credentials
// service client with its own ungated scope.
const bootstrapYAML = `
scopes:
  - name: api1
    resources: [resource_server_1]
    policy: User
  - name: api2
    resources: [resource_server_2]
    policy: User
  - name: reports
    resources: [resource_server_1]
clients:
  - id: aurelia
    display_name: Aurelia client application
    redirect_uris: ["http://127.0.0.1:5500/callback.html"]
    post_logout_redirect_uris: ["http://127.0.0.1:5500/index.html"]
    permissions:
      - ept:authorization
      - ept:logout
      - ept:token
      - gt:implicit
      - gt:authorization_code
      - gt:password
      - gt:refresh_token
      - rst:code
      - rst:token
      - rst:id_token
      - rst:id_token token
      - scp:email
      - scp:profile
      - scp:roles
      - scp:api1
      - scp:api2
  - id: resource_server_1
    secret: S3CR3T
    display_name: Resource server 1
    permissions: ["ept:introspection"]
  - id: batch
    secret: batch-secret
    display_name: Nightly batch
    permissions: ["ept:token", "gt:client_credentials", "scp:reports"]
`

// TestMain manages the test lifecycle, builds the Docker image once before
// all tests and cleans it up after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Auth Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Auth Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

type authContainer struct {
	BaseURL string
	SDK     *authsdk.SDKClient

	// EncryptionKey validates tokens issued for resource_server_2.
	EncryptionKey []byte
}

// setupAuthContainer starts the service with relaxed rate limits and the
// user alice. extraEnv overrides the defaults.
func setupAuthContainer(t *testing.T, extraEnv map[string]string) *authContainer {
	t.Helper()
	ctx := context.Background()

	signingKey, err := cryptox.GenerateSigningKey(jwtx.AlgorithmEdDSA)
	require.NoError(t, err)
	encKey, err := cryptox.GenerateSymmetricKey(jwtx.EncryptionKeySize)
	require.NoError(t, err)

	env := map[string]string{
		"AUTH_ISSUER":           issuer,
		"AUTH_ALGORITHM":        jwtx.AlgorithmEdDSA,
		"AUTH_SIGNING_KEY_FILE": "/keys/signing.pem",
		"AUTH_ENCRYPTION_KEY":   base64.StdEncoding.EncodeToString(encKey),
		"AUTH_BOOTSTRAP_FILE":   "/keys/bootstrap.yaml",
		"AUTH_DATABASE_FILE":    "/data/auth.db",
		"AUTH_PEPPER":           "e2e-pepper",
		"ENV":                   "test",
		"LOG_LEVEL":             "info",
		"LOG_FORMAT":            "json",
		// Tests make many rapid requests which would otherwise hit the strict production limits
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		Files: []testcontainers.ContainerFile{
			{Reader: bytes.NewReader(signingKey), ContainerFilePath: "/keys/signing.pem", FileMode: 0o644},
			{Reader: bytes.NewReader([]byte(bootstrapYAML)), ContainerFilePath: "/keys/bootstrap.yaml", FileMode: 0o644},
		},
		WaitingFor: wait.ForHTTP(authsdk.PathReadiness).
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	code, out, err := container.Exec(ctx, []string{
		"auth", "users", "add", aliceUsername,
		"--id", aliceUsername,
		"--password", alicePassword,
		"--name", "Alice",
		"--email", "alice@example.test",
	})
	require.NoError(t, err)
	if code != 0 {
		b, _ := io.ReadAll(out)
		t.Fatalf("users add exited %d: %s", code, b)
	}

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
	return &authContainer{
		BaseURL:       baseURL,
		SDK:           authsdk.NewSDKClient(baseURL),
		EncryptionKey: encKey,
	}
}

// requireOAuthError asserts err is an OAuth2 error with code.
func requireOAuthError(t *testing.T, err error, code string) *authsdk.OAuth2Error {
	t.Helper()
	require.Error(t, err)
	var oe *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oe)
	require.Equal(t, code, oe.Code, oe.Description)
	return oe
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
