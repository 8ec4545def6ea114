package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotReady is returned by GetReadiness when a dependency check failed.
// The HealthResponse is still returned so callers can see which one.
var ErrNotReady = errors.New("authsdk: service not ready")

// GetJWKS retrieves the public signing keys.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	var jwks JWKSResponse
	if err := c.getJSON(ctx, PathJWKS, "", &jwks); err != nil {
		return nil, err
	}
	return &jwks, nil
}

// GetDiscovery retrieves the OpenID Provider Metadata.
func (c *SDKClient) GetDiscovery(ctx context.Context) (*DiscoveryDocument, error) {
	var doc DiscoveryDocument
	if err := c.getJSON(ctx, PathDiscovery, "", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.getJSON(ctx, PathLiveness, "", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetReadiness reports the database, ledger and signer checks.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.get(ctx, PathReadiness, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusServiceUnavailable:
	default:
		return nil, parseErrorResponse(resp, body)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, ErrNotReady
	}
	return &health, nil
}
