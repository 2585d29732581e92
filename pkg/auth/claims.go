// Package auth provides JWT-based authentication for grouplog-engine.
// It validates tokens issued by the identity provider using JWKS endpoints.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
)

// AdminRole marks callers who may manage group database configs and read
// any group's logs.
const AdminRole = "admin"

// Claims represents the JWT claims structure for grouplog users.
// Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`  // Display name, recorded on created logs
	Email string   `json:"email,omitempty"` // User email address
	Roles []string `json:"roles,omitempty"` // Global roles
}

// IsAdmin reports whether the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	for _, role := range c.Roles {
		if role == AdminRole {
			return true
		}
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// SetClaims stores JWT claims in the context.
func SetClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
