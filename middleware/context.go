package middleware

import (
	"context"

	"github.com/upb/admin-gateway/cognito"
)

// Context key type to avoid collisions
type contextKey string

// IdentityKey is the context key for the authenticated identity
const IdentityKey contextKey = "identity"

// Identity is the request-scoped view of the caller handed to handlers.
type Identity struct {
	Subject     string         `json:"sub"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	Groups      []string       `json:"groups,omitempty"`
	Claims      map[string]any `json:"claims,omitempty"`
	DevMode     bool           `json:"devMode"`
}

// HasGroup checks if the identity belongs to the given group
func (i *Identity) HasGroup(group string) bool {
	for _, g := range i.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// IdentityFromClaims derives the identity exposed downstream from verified claims
func IdentityFromClaims(claims *cognito.TokenClaims) *Identity {
	return &Identity{
		Subject:     claims.Subject,
		Username:    claims.Username,
		Email:       claims.Email,
		DisplayName: claims.DisplayName(),
		Groups:      append([]string(nil), claims.Groups...),
		Claims:      claims.Raw(),
	}
}

// DevModeIdentity returns the synthetic identity used when no identity
// provider is configured. It is never a real authenticated user.
func DevModeIdentity() *Identity {
	return &Identity{
		Subject:     "dev-mode",
		Username:    "dev-user",
		Email:       "dev@localhost",
		DisplayName: "Development User (unauthenticated)",
		Claims:      map[string]any{"dev_mode": true},
		DevMode:     true,
	}
}

// WithIdentity adds the identity to the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentityFromContext retrieves the identity from context
func GetIdentityFromContext(ctx context.Context) *Identity {
	if val := ctx.Value(IdentityKey); val != nil {
		if identity, ok := val.(*Identity); ok {
			return identity
		}
	}
	return nil
}
