package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/admin-gateway/cognito"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	CORS          CORSConfig
	Store         StoreConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// AuthConfig describes the identity provider whose ID tokens are accepted.
// Either a Cognito user pool (region, pool id, app client id) or a generic
// OIDC issuer with an audience. When neither is complete the gateway runs in
// development mode.
type AuthConfig struct {
	Region     string
	UserPoolID string
	ClientID   string

	IssuerURL string // generic OIDC issuer, overrides the Cognito issuer
	Audience  string // expected aud, defaults to ClientID
	JWKSURL   string // explicit key set URL, skips discovery

	// AdminGroup, when set, is required for mutating admin resources
	AdminGroup string

	AllowedAlgorithms []string
	JWKSFetchTimeout  time.Duration
	JWKSMinRefresh    time.Duration
	ClockLeeway       time.Duration
}

// CORSConfig holds cross-origin settings for the admin UI
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// StoreConfig selects the admin resource store. An empty RedisURL selects the
// in-memory store.
type StoreConfig struct {
	RedisURL  string
	KeyPrefix string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Auth: AuthConfig{
			Region:            getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:        getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:          getEnv("COGNITO_CLIENT_ID", ""),
			IssuerURL:         strings.TrimRight(getEnv("AUTH_ISSUER_URL", ""), "/"),
			Audience:          getEnv("AUTH_AUDIENCE", ""),
			JWKSURL:           getEnv("AUTH_JWKS_URL", ""),
			AllowedAlgorithms: getEnvAsSlice("AUTH_ALLOWED_ALGS", []string{"RS256"}),
			JWKSFetchTimeout:  getEnvAsDuration("AUTH_JWKS_FETCH_TIMEOUT", 5*time.Second),
			JWKSMinRefresh:    getEnvAsDuration("AUTH_JWKS_MIN_REFRESH", 0),
			ClockLeeway:       getEnvAsDuration("AUTH_CLOCK_LEEWAY", 0),
			AdminGroup:        getEnv("AUTH_ADMIN_GROUP", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			MaxAge:         getEnvAsInt("CORS_MAX_AGE", 300),
		},
		Store: StoreConfig{
			RedisURL:  getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "admin-gateway:"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Identity provider is mandatory in production; development mode is never allowed there
	if c.IsProduction() && !c.Auth.Configured() {
		return fmt.Errorf("identity provider configuration is required in production: set COGNITO_USER_POOL_ID and COGNITO_CLIENT_ID, or AUTH_ISSUER_URL and AUTH_AUDIENCE")
	}

	for _, alg := range c.Auth.AllowedAlgorithms {
		if strings.EqualFold(alg, "none") {
			return fmt.Errorf("algorithm %q cannot be allowed", alg)
		}
	}
	if c.Auth.Configured() && len(c.Auth.AllowedAlgorithms) == 0 {
		return fmt.Errorf("at least one signing algorithm must be allowed")
	}
	if c.Auth.JWKSFetchTimeout <= 0 {
		return fmt.Errorf("jwks fetch timeout must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Configured reports whether a complete identity provider is configured.
// This is the single predicate for development mode.
func (a *AuthConfig) Configured() bool {
	if a.IssuerURL != "" {
		return a.ExpectedAudience() != ""
	}
	return a.Region != "" && a.UserPoolID != "" && a.ClientID != ""
}

// Partial reports whether some provider settings are present without forming
// a complete configuration.
func (a *AuthConfig) Partial() bool {
	if a.Configured() {
		return false
	}
	return a.UserPoolID != "" || a.ClientID != "" || a.IssuerURL != "" || a.Audience != "" || a.JWKSURL != ""
}

// UsesCognito reports whether tokens come from a Cognito user pool
func (a *AuthConfig) UsesCognito() bool {
	return a.IssuerURL == "" && a.UserPoolID != ""
}

// Issuer returns the expected iss claim
func (a *AuthConfig) Issuer() string {
	if a.IssuerURL != "" {
		return a.IssuerURL
	}
	if a.UserPoolID == "" {
		return ""
	}
	return cognito.IssuerURL(a.Region, a.UserPoolID)
}

// ExpectedAudience returns the expected aud claim
func (a *AuthConfig) ExpectedAudience() string {
	if a.Audience != "" {
		return a.Audience
	}
	return a.ClientID
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma-separated variable, dropping empty entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
