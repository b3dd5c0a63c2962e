package cognito

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token use values carried in the token_use claim
const (
	TokenUseID     = "id"
	TokenUseAccess = "access"
)

// TokenClaims holds the verified claims of an ID token. Values are copied out
// of the payload, so a TokenClaims is never affected by later parsing.
type TokenClaims struct {
	Subject       string
	Issuer        string
	Audience      []string
	ExpiresAt     time.Time
	IssuedAt      time.Time
	AuthTime      time.Time
	Email         string
	EmailVerified bool
	Username      string
	Name          string
	Groups        []string
	TokenUse      string

	raw map[string]any
}

// Raw returns a copy of the full token payload.
func (c *TokenClaims) Raw() map[string]any {
	out := make(map[string]any, len(c.raw))
	for k, v := range c.raw {
		out[k] = v
	}
	return out
}

// DisplayName picks the friendliest available name for the subject.
func (c *TokenClaims) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Username != "":
		return c.Username
	case c.Email != "":
		return c.Email
	default:
		return c.Subject
	}
}

// HasGroup checks if the subject belongs to the given group
func (c *TokenClaims) HasGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// newTokenClaims converts a verified payload into TokenClaims
func newTokenClaims(claims jwt.MapClaims) *TokenClaims {
	parsed := &TokenClaims{
		raw: make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		parsed.raw[k] = v
	}

	parsed.Subject, _ = claims.GetSubject()
	parsed.Issuer, _ = claims.GetIssuer()
	if aud, err := claims.GetAudience(); err == nil {
		parsed.Audience = append([]string(nil), aud...)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		parsed.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		parsed.IssuedAt = iat.Time
	}
	if at, ok := claims["auth_time"].(float64); ok {
		parsed.AuthTime = time.Unix(int64(at), 0)
	}

	parsed.Email = stringClaim(claims, "email")
	parsed.Name = stringClaim(claims, "name")
	parsed.TokenUse = stringClaim(claims, "token_use")
	parsed.Username = stringClaim(claims, "cognito:username")
	if parsed.Username == "" {
		parsed.Username = stringClaim(claims, "preferred_username")
	}

	switch v := claims["email_verified"].(type) {
	case bool:
		parsed.EmailVerified = v
	case string:
		parsed.EmailVerified = v == "true"
	}

	if groups, ok := claims["cognito:groups"].([]any); ok {
		for _, g := range groups {
			if s, ok := g.(string); ok {
				parsed.Groups = append(parsed.Groups, s)
			}
		}
	}

	return parsed
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
