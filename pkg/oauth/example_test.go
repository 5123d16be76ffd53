package oauth_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-identity/pkg/cache"
	"github.com/jeremyhahn/go-identity/pkg/oauth"
	"github.com/jeremyhahn/go-identity/pkg/session"
)

func ExampleAuthenticator_Stateless() {
	auth, err := oauth.NewAuthenticator(&oauth.Config{
		Provider: oauth.Keycloak("https://keycloak.example.com", "master"),
		ClientID: "api",
		Validation: oauth.TokenValidationConfig{
			Audience: "api",
		},
		Cache: oauth.CacheConfig{
			Store: cache.NewMemoryStore(100),
			TTL:   5 * time.Minute,
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer auth.Close()

	stateless := auth.Stateless()
	if err := stateless.Authenticate(context.Background(), "access-token"); err != nil {
		log.Printf("provider unreachable: %v", err)
		return
	}
	if user, ok := stateless.User(); ok {
		fmt.Println("hello", user.Username)
	}
}

func ExampleAuthenticator_Stateful() {
	auth, err := oauth.NewAuthenticator(&oauth.Config{
		Provider:     oauth.Keycloak("https://keycloak.example.com", "master"),
		ClientID:     "web",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/callback",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer auth.Close()

	sessions := session.NewManager(session.ManagerConfig{Backend: session.NewMemoryBackend(time.Hour, nil)})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		stateful, err := auth.Stateful(sessions.Session(w, r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		outcome, err := stateful.AuthenticateOrLogin(r.Context(), r)
		if err != nil {
			http.Error(w, "login failed", http.StatusUnauthorized)
			return
		}
		if outcome.Redirected() {
			http.Redirect(w, r, outcome.Location, http.StatusFound)
			return
		}
		user, _ := stateful.User()
		fmt.Fprintf(w, "hello %s", user.Username)
	})
}

func ExampleKeycloak() {
	provider := oauth.Keycloak("https://keycloak.example.com", "master")
	fmt.Println(provider.Issuer())
	fmt.Println(provider.JWKSURL())
	fmt.Println(provider.AdminURL())
	// Output:
	// https://keycloak.example.com/realms/master
	// https://keycloak.example.com/realms/master/protocol/openid-connect/certs
	// https://keycloak.example.com/admin/realms/master
}

func ExampleOkta() {
	provider := oauth.Okta("dev-12345.okta.com")
	fmt.Println(provider.Name())
	// Output: okta
}
