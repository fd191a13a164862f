package auth

import (
	"github.com/golang-jwt/jwt/v4"
)

// UserFromToken extracts a human-readable identity from an access token
// for audit records. The signature is not verified here; the API server
// does that on every request, this value only labels the trail.
func UserFromToken(token string) string {
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"preferred_username", "email", "sub"} {
		if value, ok := claims[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
