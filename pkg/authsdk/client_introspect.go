package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Introspect asks the server whether token is active (RFC 7662). The caller
// must be a confidential client with the introspection permission, and only
// learns about tokens issued to it or naming it as an audience.
func (c *SDKClient) Introspect(ctx context.Context, auth ClientAuth, token string) (*IntrospectionResponse, error) {
	resp, err := c.postForm(ctx, PathIntrospect, auth, url.Values{"token": {token}})
	if err != nil {
		return nil, err
	}

	var out IntrospectionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserInfo returns the claims the server releases for accessToken.
func (c *SDKClient) UserInfo(ctx context.Context, accessToken string) (UserInfoResponse, error) {
	var out UserInfoResponse
	if err := c.getJSON(ctx, PathUserInfo, accessToken, &out); err != nil {
		return nil, err
	}
	return out, nil
}
