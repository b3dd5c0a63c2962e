package handlers

import (
	"net/http"

	"github.com/upb/admin-gateway/app"
	"github.com/upb/admin-gateway/utils"
)

// AuthConfigHandler handles GET /api/auth/config. Clients use it to find the
// identity provider; in development mode every field is empty and configured
// is false.
func AuthConfigHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		_ = utils.WriteJSON(w, http.StatusOK, deps.ProviderInfo())
	}
}
