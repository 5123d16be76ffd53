// Package oauth authenticates users and API callers against an OpenID
// Connect provider.
//
// An Authenticator is created once per process. It owns the provider
// client, the token validator and the shared cache, and hands out
// request-scoped authenticators for the two supported flows.
//
// # Browser Login
//
// StatefulAuthenticator keeps the TokenSet in a session.Store and drives
// the authorization code flow with state, nonce and PKCE. Operations that
// may end request handling return an Outcome; on Redirect the caller sends
// the redirect and stops.
//
//	auth, err := oauth.NewAuthenticator(&oauth.Config{
//	    Provider:     oauth.Keycloak("https://keycloak.example.com", "master"),
//	    ClientID:     "web",
//	    ClientSecret: "secret",
//	    RedirectURL:  "https://app.example.com/callback",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer auth.Close()
//
//	stateful, err := auth.Stateful(sessions.Session(w, r))
//	if err != nil {
//	    return err
//	}
//	outcome, err := stateful.AuthenticateOrLogin(r.Context(), r)
//	if err != nil {
//	    return err
//	}
//	if outcome.Redirected() {
//	    http.Redirect(w, r, outcome.Location, http.StatusFound)
//	    return nil
//	}
//	user, _ := stateful.User()
//
// Tokens within Config.RefreshSkew of expiry are refreshed silently. A
// failed refresh of an expired token clears the session and starts a new
// login.
//
// # Bearer Tokens
//
// StatelessAuthenticator validates a bearer token against the provider's
// JWKS, which is cached under "jwks.<issuer>" in both cache tiers. Invalid
// tokens leave it unauthenticated without returning an error:
//
//	stateless := auth.Stateless()
//	if err := stateless.Authenticate(ctx, token); err != nil {
//	    // provider unreachable
//	}
//	if !stateless.Authenticated() {
//	    // 401
//	}
//
// # Errors
//
// Errors match one of ErrInvalidConfiguration, ErrProviderCommunication,
// ErrTokenValidation or ErrStateMismatch with errors.Is.
package oauth
