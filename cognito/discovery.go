package cognito

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IssuerURL returns the issuer of tokens minted by a Cognito user pool
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// JWKSURL returns the conventional key set location below an issuer
func JWKSURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
}

// ErrDiscoveryIncomplete is returned when the provider metadata has no jwks_uri
var ErrDiscoveryIncomplete = errors.New("discovery metadata missing jwks_uri")

// DiscoverJWKSURL resolves the key set location of a generic OIDC issuer using
// its /.well-known/openid-configuration document.
func DiscoverJWKSURL(ctx context.Context, issuer string, client *http.Client) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", ErrDiscoveryIncomplete
	}
	return meta.JWKSURI, nil
}
