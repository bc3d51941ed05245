package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated player extracted from a verified token.
type Identity struct {
	ID       string
	Name     string
	PhotoURL string
}

// ValidateToken validates a JWT against the provider's JWKS and returns the
// player identity. baseURL is the auth provider base URL (e.g. AUTH_BASE_URL).
func ValidateToken(baseURL, tokenString string) (Identity, error) {
	claims, err := parseClaims(baseURL, tokenString)
	if err != nil {
		return Identity{}, err
	}
	id := userIDFromClaims(claims)
	if id == "" {
		return Identity{}, fmt.Errorf("token has no subject claim")
	}
	return Identity{
		ID:       id,
		Name:     nameFromClaims(claims),
		PhotoURL: stringClaim(claims, "picture"),
	}, nil
}

func parseClaims(baseURL, tokenString string) (jwt.MapClaims, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("AUTH_BASE_URL is not set")
	}
	jwksURL := baseURL + "/.well-known/jwks.json"

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	expectedIssuer := u.Scheme + "://" + u.Host

	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, jwks.Keyfunc,
		jwt.WithIssuer(expectedIssuer),
		jwt.WithValidMethods([]string{"EdDSA", "RS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// nameFromClaims returns the "name" claim, or a fallback display name.
func nameFromClaims(claims jwt.MapClaims) string {
	name := strings.TrimSpace(stringClaim(claims, "name"))
	if name == "" {
		return "Player"
	}
	return name
}

// userIDFromClaims returns the user id from claims ("sub" or "id").
func userIDFromClaims(claims jwt.MapClaims) string {
	if sub := stringClaim(claims, "sub"); sub != "" {
		return sub
	}
	return stringClaim(claims, "id")
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
