package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the identity provider's protocol endpoints.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ClientAuth identifies the calling OAuth client. Public clients leave
// ClientSecret empty. With UseBasicAuth the credentials travel in the
// Authorization header instead of the form body.
type ClientAuth struct {
	ClientID     string
	ClientSecret string
	UseBasicAuth bool
}

// noRedirect returns a copy of the HTTP client that stops at redirects so
// authorization responses can be read.
func (c *SDKClient) noRedirect() *http.Client {
	return &http.Client{
		Transport: c.HTTPClient.Transport,
		Timeout:   c.HTTPClient.Timeout,
		Jar:       c.HTTPClient.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
