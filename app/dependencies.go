package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/admin-gateway/cognito"
	"github.com/upb/admin-gateway/config"
	"github.com/upb/admin-gateway/jwks"
	"github.com/upb/admin-gateway/middleware"
	"github.com/upb/admin-gateway/store"
	"github.com/upb/admin-gateway/store/memory"
	redisstore "github.com/upb/admin-gateway/store/redis"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Store  store.Store

	// Auth. KeyCache and Validator are nil in development mode.
	KeyCache  *jwks.Cache
	Validator *cognito.Validator
	AuthGate  *middleware.AuthGate
}

// ProviderInfo is the public description of the trusted identity provider
type ProviderInfo struct {
	UserPoolID string `json:"userPoolId"`
	ClientID   string `json:"clientId"`
	Region     string `json:"region"`
	Issuer     string `json:"issuer"`
	Configured bool   `json:"configured"`
}

// NewDependencies creates and wires up all application dependencies.
// Whether the gateway runs in development mode is decided here, once.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initAuth(ctx, cfg, http.DefaultClient); err != nil {
		_ = deps.Store.Close()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Bool("dev_mode", deps.DevMode()))
	return deps, nil
}

// DevMode reports whether authentication is bypassed
func (d *Dependencies) DevMode() bool {
	return d.AuthGate == nil || d.AuthGate.DevMode()
}

// ProviderInfo describes the identity provider for client discovery
func (d *Dependencies) ProviderInfo() ProviderInfo {
	if d.DevMode() || d.Config == nil {
		return ProviderInfo{}
	}
	auth := d.Config.Auth
	info := ProviderInfo{
		ClientID:   auth.ExpectedAudience(),
		Issuer:     auth.Issuer(),
		Configured: true,
	}
	if auth.UsesCognito() {
		info.UserPoolID = auth.UserPoolID
		info.Region = auth.Region
	}
	return info
}

// initStore selects Redis when REDIS_URL is set, memory otherwise
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.RedisURL == "" {
		d.Store = memory.New()
		d.Logger.Warn("REDIS_URL not set, admin resources are kept in memory")
		return nil
	}

	s, err := redisstore.NewFromURL(ctx, cfg.Store.RedisURL, cfg.Store.KeyPrefix)
	if err != nil {
		return err
	}
	d.Store = s
	d.Logger.Info("redis store connected")
	return nil
}

func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config, client *http.Client) error {
	gateLogger := d.Logger.Named("auth")

	if !cfg.Auth.Configured() {
		if cfg.Auth.Partial() {
			d.Logger.Warn("identity provider configuration is incomplete, ignoring it",
				zap.Bool("user_pool_id_set", cfg.Auth.UserPoolID != ""),
				zap.Bool("client_id_set", cfg.Auth.ClientID != ""),
				zap.Bool("issuer_url_set", cfg.Auth.IssuerURL != ""))
		}
		d.AuthGate = middleware.NewDevModeGate(middleware.DefaultExemptPaths(), gateLogger)
		return nil
	}

	issuer := cfg.Auth.Issuer()
	jwksURL, err := resolveJWKSURL(ctx, cfg.Auth, client)
	if err != nil {
		return err
	}

	fetcher := jwks.NewHTTPFetcher(jwksURL, &http.Client{Timeout: cfg.Auth.JWKSFetchTimeout})
	d.KeyCache = jwks.NewCache(fetcher, jwks.Config{
		FetchTimeout:       cfg.Auth.JWKSFetchTimeout,
		MinRefreshInterval: cfg.Auth.JWKSMinRefresh,
	}, d.Logger.Named("jwks"))

	d.Validator = cognito.NewValidator(d.KeyCache, cognito.Config{
		Issuer:            issuer,
		ClientID:          cfg.Auth.ExpectedAudience(),
		AllowedAlgorithms: cfg.Auth.AllowedAlgorithms,
		Leeway:            cfg.Auth.ClockLeeway,
		SkipTokenUse:      !cfg.Auth.UsesCognito(),
	})
	d.AuthGate = middleware.NewAuthGate(d.Validator, middleware.DefaultExemptPaths(), gateLogger)

	d.Logger.Info("token verification configured",
		zap.String("issuer", issuer),
		zap.String("jwks_url", jwksURL),
		zap.Strings("allowed_algorithms", cfg.Auth.AllowedAlgorithms))
	return nil
}

// resolveJWKSURL prefers an explicit URL, then the Cognito well-known path,
// then OIDC discovery on the issuer.
func resolveJWKSURL(ctx context.Context, auth config.AuthConfig, client *http.Client) (string, error) {
	if auth.JWKSURL != "" {
		return auth.JWKSURL, nil
	}
	if auth.UsesCognito() {
		return cognito.JWKSURL(auth.Issuer()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, auth.JWKSFetchTimeout)
	defer cancel()
	url, err := cognito.DiscoverJWKSURL(ctx, auth.Issuer(), client)
	if err != nil {
		return "", fmt.Errorf("discover jwks url: %w", err)
	}
	return url, nil
}

// WarmKeys loads the key set ahead of the first request. Failure is not fatal;
// the cache retries lazily on the first token.
func (d *Dependencies) WarmKeys(ctx context.Context, timeout time.Duration) {
	if d.KeyCache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.KeyCache.Warm(ctx); err != nil {
		d.Logger.Warn("key set warm-up failed, will retry on first request", zap.Error(err))
		return
	}
	stats := d.KeyCache.Stats()
	d.Logger.Info("key set loaded", zap.Int("keys", stats.KeyCount))
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
