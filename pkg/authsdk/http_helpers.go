package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// get issues a GET, with a bearer token when one is given.
func (c *SDKClient) get(ctx context.Context, path, bearer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func (c *SDKClient) getJSON(ctx context.Context, path, bearer string, target any) error {
	resp, err := c.get(ctx, path, bearer)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}

// postForm sends form to path, authenticating as auth when it names a client.
func (c *SDKClient) postForm(ctx context.Context, path string, auth ClientAuth, form url.Values) (*http.Response, error) {
	if auth.ClientID != "" && !auth.UseBasicAuth {
		form.Set("client_id", auth.ClientID)
		if auth.ClientSecret != "" {
			form.Set("client_secret", auth.ClientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if auth.ClientID != "" && auth.UseBasicAuth {
		// RFC 6749 section 2.3.1: credentials are form-encoded before Basic.
		req.SetBasicAuth(url.QueryEscape(auth.ClientID), url.QueryEscape(auth.ClientSecret))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// decodeJSON decodes a response with expectedStatus into target. Any other
// status becomes an *OAuth2Error.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
