package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AuthConfigPath is the gateway endpoint describing its identity provider
const AuthConfigPath = "/api/auth/config"

// ProviderConfig is what the gateway publishes about its identity provider
type ProviderConfig struct {
	UserPoolID string `json:"userPoolId"`
	ClientID   string `json:"clientId"`
	Region     string `json:"region"`
	Issuer     string `json:"issuer"`
	Configured bool   `json:"configured"`
}

// DiscoverProvider asks the gateway at baseURL which identity provider it
// trusts. A gateway in development mode, or one that omits the client or
// issuer, is reported as not configured.
func DiscoverProvider(ctx context.Context, client *http.Client, baseURL string) (*ProviderConfig, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+AuthConfigPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discover provider: unexpected status %d", resp.StatusCode)
	}

	var cfg ProviderConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode provider config: %w", err)
	}

	cfg.Configured = cfg.Configured && cfg.ClientID != "" && cfg.Issuer != ""
	return &cfg, nil
}
