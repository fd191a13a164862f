// Package auth mints and caches Flight Control access tokens from the
// long-lived refresh token issued at flightctl login time. It resolves
// the OIDC token endpoint (Keycloak issuers directly, anything else via
// discovery) and builds the TLS-aware HTTP clients the rest of the
// bridge shares.
package auth
