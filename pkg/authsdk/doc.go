// Package authsdk is the client library for the identity provider. It is
// shared by the server, which uses its wire types and error values, and by
// applications and resource servers.
//
// Applications obtain tokens with the grant helpers:
//
//	c := authsdk.NewSDKClient("https://auth.example.com")
//	tok, err := c.PasswordGrant(ctx, authsdk.ClientAuth{ClientID: "aurelia"}, "alice", "secret", []string{"api1"})
//
// Resource servers either introspect each token with their own client
// credentials:
//
//	info, err := c.Introspect(ctx, authsdk.ClientAuth{ClientID: "resource_server_1", ClientSecret: "..."}, tok.AccessToken)
//	if err == nil && info.Active {
//		// serve the request
//	}
//
// or validate encrypted tokens locally with the shared encryption key and the
// published signing keys:
//
//	v, err := c.NewLocalValidator(ctx, authsdk.LocalValidatorOptions{
//		Issuer:        "https://auth.example.com/",
//		Audience:      "resource_server_2",
//		EncryptionKey: key,
//	})
//	claims, err := v.Validate(token)
//
// Every endpoint error is returned as *OAuth2Error; use errors.As to inspect
// the OAuth2 error code.
package authsdk
