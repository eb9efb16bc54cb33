// Package oauth implements the OAuth 2.0 pieces needed to authenticate a
// JMAP client against a mail server: authorization-server metadata discovery
// (RFC 8414 / OpenID well-known documents), the Device Authorization Grant
// (RFC 8628), and refresh-token exchange.
//
// The package is transport-only: it never persists tokens. Storage is the
// token package's concern, and the retry/re-auth policy around a failed
// refresh belongs to the jmap package, because a failed refresh has
// authentication consequences that must not be silently repeated.
//
// Example device-flow login:
//
//	md, err := oauth.NewDiscoverer().Discover(ctx, "https://mail.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	flow := oauth.NewFlow(md, clientID)
//	grant, err := flow.RequestDeviceCode(ctx, []string{"mail"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Visit %s and enter code %s\n", grant.VerificationURI, grant.UserCode)
//	tok, err := flow.PollToken(ctx, grant)
package oauth
