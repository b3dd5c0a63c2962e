package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/admin-gateway/app"
	"github.com/upb/admin-gateway/utils"
	"go.uber.org/zap"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck reports whether the store is reachable. The key set is
// reported but does not gate readiness, since it loads lazily.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		ready := true
		checks := map[string]string{}

		switch {
		case deps.Store == nil:
			ready = false
			checks["store"] = "not_initialized"
		default:
			if err := deps.Store.Ping(ctx); err != nil {
				ready = false
				checks["store"] = "unhealthy"
				deps.Logger.Error("store health check failed", zap.Error(err))
			} else {
				checks["store"] = "healthy"
			}
		}

		switch {
		case deps.DevMode():
			checks["auth"] = "development"
		case deps.KeyCache != nil && deps.KeyCache.Stats().Loaded:
			checks["auth"] = "keys_loaded"
		default:
			checks["auth"] = "keys_pending"
		}

		status := http.StatusOK
		response := map[string]interface{}{
			"status": "ready",
			"checks": checks,
		}
		if !ready {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}
		_ = utils.WriteJSON(w, status, response)
	}
}
