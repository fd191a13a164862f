package auth

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
)

const keycloakTokenPath = "/protocol/openid-connect/token"

// Keycloak issuer URLs look like https://host/realms/<realm>; their token
// endpoint is a fixed path below the realm.
var keycloakRealmPattern = regexp.MustCompile(`^https?://.+/realms/[^/]+$`)

// ResolveTokenEndpoint normalizes the configured authentication server
// URL into a token endpoint. URLs that already point at a Keycloak token
// endpoint pass through, Keycloak realm issuers get the well-known path
// appended, and anything else goes through OIDC discovery. Discovery
// failures fall back to the URL as configured so a provider that only
// exposes the token endpoint still works.
func ResolveTokenEndpoint(ctx context.Context, httpClient *http.Client, rawURL string, log *zap.SugaredLogger) string {
	if strings.HasSuffix(rawURL, keycloakTokenPath) {
		return rawURL
	}
	if keycloakRealmPattern.MatchString(rawURL) {
		resolved := rawURL + keycloakTokenPath
		log.Debugw("derived Keycloak token endpoint", "endpoint", resolved)
		return resolved
	}

	ctx = oidc.ClientContext(ctx, httpClient)
	provider, err := oidc.NewProvider(ctx, rawURL)
	if err != nil {
		log.Debugw("OIDC discovery failed, using configured URL as token endpoint",
			"url", rawURL, "error", err)
		return rawURL
	}
	endpoint := provider.Endpoint().TokenURL
	log.Debugw("discovered token endpoint", "endpoint", endpoint)
	return endpoint
}
