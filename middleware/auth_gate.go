package middleware

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/admin-gateway/cognito"
	"github.com/upb/admin-gateway/utils"
	"go.uber.org/zap"
)

const (
	// MessageNotAuthenticated is returned when no usable bearer token was sent
	MessageNotAuthenticated = "Not authenticated"
	// MessageInvalidCredentials is returned for every token that fails verification
	MessageInvalidCredentials = "Invalid authentication credentials"

	// AuthModeHeader marks responses served under the development bypass
	AuthModeHeader = "X-Auth-Mode"
	// AuthModeDevelopment is the AuthModeHeader value in development mode
	AuthModeDevelopment = "development"
)

// TokenValidator defines the interface for validating ID tokens
type TokenValidator interface {
	// ValidateToken verifies a raw token and returns its claims
	ValidateToken(ctx context.Context, token string) (*cognito.TokenClaims, error)
}

// AuthGate guards every route except the exempt allow-list. A request ends in
// exactly one of: exempt, dev-mode, authenticated or rejected.
type AuthGate struct {
	validator TokenValidator
	exempt    *ExemptPaths
	devMode   bool
	logger    *zap.Logger
}

// NewAuthGate creates a gate that verifies bearer tokens with validator
func NewAuthGate(validator TokenValidator, exempt *ExemptPaths, logger *zap.Logger) *AuthGate {
	if exempt == nil {
		exempt = DefaultExemptPaths()
	}
	return &AuthGate{
		validator: validator,
		exempt:    exempt,
		logger:    logger,
	}
}

// NewDevModeGate creates a gate for deployments without an identity provider.
// Every protected request gets DevModeIdentity. Callers decide this once at
// startup and must never construct it in production.
func NewDevModeGate(exempt *ExemptPaths, logger *zap.Logger) *AuthGate {
	if exempt == nil {
		exempt = DefaultExemptPaths()
	}
	logger.Warn("identity provider not configured, authentication is DISABLED",
		zap.String("auth_mode", AuthModeDevelopment))
	return &AuthGate{
		exempt:  exempt,
		devMode: true,
		logger:  logger,
	}
}

// DevMode reports whether the gate runs the development bypass
func (g *AuthGate) DevMode() bool {
	return g.devMode
}

// RequireAuth is the gate middleware
func (g *AuthGate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if g.exempt.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if g.devMode {
			w.Header().Set(AuthModeHeader, AuthModeDevelopment)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, DevModeIdentity())))
			return
		}

		requestID := chimw.GetReqID(ctx)

		token, ok := extractBearerToken(r)
		if !ok {
			g.logger.Info("request rejected",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("reason", string(cognito.ReasonMissingToken)))
			_ = utils.WriteUnauthorized(w, MessageNotAuthenticated)
			return
		}

		claims, err := g.validator.ValidateToken(ctx, token)
		if err != nil {
			g.logRejection(requestID, r.URL.Path, err)
			_ = utils.WriteUnauthorized(w, MessageInvalidCredentials)
			return
		}

		identity := IdentityFromClaims(claims)

		g.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", identity.Subject))

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}

// RequireGroup is a middleware that requires membership in group. It must run
// after RequireAuth. The development identity always passes.
func (g *AuthGate) RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := chimw.GetReqID(ctx)

			identity := GetIdentityFromContext(ctx)
			if identity == nil {
				g.logger.Error("identity not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, MessageNotAuthenticated)
				return
			}

			if !identity.DevMode && !identity.HasGroup(group) {
				g.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_group", group),
					zap.Strings("user_groups", identity.Groups))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// logRejection records the internal reason. Provider outages are logged at
// error level so they stand apart from bad credentials.
func (g *AuthGate) logRejection(requestID, path string, err error) {
	failure := cognito.FailureOf(err)
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("path", path),
		zap.String("reason", string(failure.Reason)),
		zap.String("failure_class", failure.Class()),
		zap.Error(err),
	}
	if failure.Infrastructure() {
		g.logger.Error("token verification unavailable", fields...)
		return
	}
	g.logger.Info("request rejected", fields...)
}

// extractBearerToken returns the credential of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive and exactly one credential is allowed.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	return parts[1], true
}
