// Package cognito verifies ID tokens issued by an Amazon Cognito user pool or
// any OIDC provider publishing a rotating JWKS.
package cognito

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/admin-gateway/jwks"
)

// KeyProvider resolves signing keys by key ID. *jwks.Cache satisfies it.
type KeyProvider interface {
	Get(ctx context.Context, kid string) (jwks.SigningKey, error)
}

// Config holds configuration for Validator
type Config struct {
	// Issuer is the exact expected iss claim
	Issuer string

	// ClientID is the app client ID expected in the aud claim
	ClientID string

	// AllowedAlgorithms lists acceptable header alg values. Defaults to RS256.
	AllowedAlgorithms []string

	// Leeway tolerates clock skew on exp. Defaults to zero.
	Leeway time.Duration

	// SkipTokenUse disables the token_use check, for OIDC providers that do
	// not emit it.
	SkipTokenUse bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Validator validates ID tokens against the provider's key set
type Validator struct {
	keys         KeyProvider
	issuer       string
	clientID     string
	allowed      map[string]bool
	leeway       time.Duration
	skipTokenUse bool
	now          func() time.Time
	parser       *jwt.Parser
}

// errAlgorithmNotAllowed is returned from the keyfunc so the parse error can be
// told apart from a key lookup failure.
var errAlgorithmNotAllowed = errors.New("algorithm not allowed")

// NewValidator creates a new token validator
func NewValidator(keys KeyProvider, config Config) *Validator {
	if len(config.AllowedAlgorithms) == 0 {
		config.AllowedAlgorithms = []string{jwt.SigningMethodRS256.Alg()}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	allowed := make(map[string]bool, len(config.AllowedAlgorithms))
	for _, alg := range config.AllowedAlgorithms {
		// "none" is never acceptable, whatever the configuration says.
		if strings.EqualFold(alg, "none") {
			continue
		}
		allowed[alg] = true
	}

	return &Validator{
		keys:         keys,
		issuer:       config.Issuer,
		clientID:     config.ClientID,
		allowed:      allowed,
		leeway:       config.Leeway,
		skipTokenUse: config.SkipTokenUse,
		now:          config.Now,
		parser:       jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
}

// ValidateToken verifies the token and returns its claims. Checks run in a
// fixed order and stop at the first failure; every error is an *AuthFailure.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, newFailure(ReasonMissingToken, nil)
	}

	// Structure
	unverified, _, err := v.parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			// Well-formed, but the alg is not one we know how to verify.
			return nil, newFailure(ReasonUnsupportedAlgorithm, err)
		}
		return nil, newFailure(ReasonMalformedToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, newFailure(ReasonMalformedToken, errors.New("kid header not found"))
	}

	// Key lookup, algorithm and signature
	token, err := v.parser.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (any, error) {
		key, err := v.keys.Get(ctx, kid)
		if err != nil {
			return nil, err
		}

		alg := token.Method.Alg()
		if !v.allowed[alg] {
			return nil, fmt.Errorf("%w: %s", errAlgorithmNotAllowed, alg)
		}
		if key.Algorithm != "" && key.Algorithm != alg {
			return nil, fmt.Errorf("%w: key %s is for %s, token uses %s", errAlgorithmNotAllowed, kid, key.Algorithm, alg)
		}
		return key.Key, nil
	})
	if err != nil {
		// The caller gave up while the key lookup waited on a fetch.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, newFailure(ReasonRequestCanceled, err)
		}
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, newFailure(ReasonMalformedToken, errors.New("unexpected claims type"))
	}

	// Expiry
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, newFailure(ReasonMalformedToken, errors.New("exp claim missing or invalid"))
	}
	if !v.now().Before(exp.Time.Add(v.leeway)) {
		return nil, newFailure(ReasonExpired, fmt.Errorf("expired at %s", exp.Time.UTC().Format(time.RFC3339)))
	}

	// Audience
	aud, err := claims.GetAudience()
	if err != nil || !containsAudience(aud, v.clientID) {
		return nil, newFailure(ReasonAudienceMismatch, nil)
	}

	// Issuer
	if iss, _ := claims.GetIssuer(); iss != v.issuer {
		return nil, newFailure(ReasonIssuerMismatch, fmt.Errorf("expected %s, got %s", v.issuer, iss))
	}

	// Token use
	if !v.skipTokenUse {
		if use := stringClaim(claims, "token_use"); use != TokenUseID {
			return nil, newFailure(ReasonWrongTokenUse, fmt.Errorf("token_use %q", use))
		}
	}

	return newTokenClaims(claims), nil
}

// classifyParseError maps golang-jwt parse errors onto failure reasons
func classifyParseError(err error) *AuthFailure {
	switch {
	case errors.Is(err, jwks.ErrKeyNotFound):
		return newFailure(ReasonKeyNotFound, err)
	case errors.Is(err, errAlgorithmNotAllowed):
		return newFailure(ReasonUnsupportedAlgorithm, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Any other keyfunc failure: fetch error, timeout, cancellation.
		return newFailure(ReasonProviderUnreachable, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newFailure(ReasonMalformedToken, err)
	default:
		return newFailure(ReasonSignatureInvalid, err)
	}
}

// containsAudience checks if the audience list contains the expected client ID
func containsAudience(audiences jwt.ClaimStrings, clientID string) bool {
	if clientID == "" {
		return false
	}
	for _, aud := range audiences {
		if aud == clientID {
			return true
		}
	}
	return false
}
