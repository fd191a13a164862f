package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTokenEndpointPassthrough(t *testing.T) {
	url := "https://auth.example.com/realms/flightctl/protocol/openid-connect/token"
	got := ResolveTokenEndpoint(context.Background(), &http.Client{}, url, testLogger(t))
	require.Equal(t, url, got)
}

func TestResolveTokenEndpointRealmURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "https realm",
			url:  "https://auth.example.com/realms/flightctl",
			want: "https://auth.example.com/realms/flightctl/protocol/openid-connect/token",
		},
		{
			name: "http realm",
			url:  "http://keycloak.internal:8080/auth/realms/edge",
			want: "http://keycloak.internal:8080/auth/realms/edge/protocol/openid-connect/token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTokenEndpoint(context.Background(), &http.Client{}, tt.url, testLogger(t))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTokenEndpointDiscovery(t *testing.T) {
	var issuerURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"issuer":%q,"authorization_endpoint":%q,"token_endpoint":%q,"jwks_uri":%q}`,
			issuerURL, issuerURL+"/authorize", issuerURL+"/oauth/token", issuerURL+"/keys")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuerURL = srv.URL

	got := ResolveTokenEndpoint(context.Background(), srv.Client(), srv.URL, testLogger(t))
	require.Equal(t, srv.URL+"/oauth/token", got)
}

func TestResolveTokenEndpointDiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	// A provider without a discovery document is used as configured.
	got := ResolveTokenEndpoint(context.Background(), srv.Client(), srv.URL, testLogger(t))
	require.Equal(t, srv.URL, got)
}

func TestResolveTokenEndpointRealmTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	// A trailing slash keeps the realm shortcut from matching; discovery
	// fails and the URL comes back untouched.
	url := srv.URL + "/realms/flightctl/"
	got := ResolveTokenEndpoint(context.Background(), srv.Client(), url, testLogger(t))
	require.Equal(t, url, got)
}
