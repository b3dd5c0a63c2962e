package handlers

import (
	"net/http"

	"github.com/upb/admin-gateway/app"
	"github.com/upb/admin-gateway/middleware"
	"github.com/upb/admin-gateway/utils"
)

// GetCurrentUserHandler handles GET /api/me
func GetCurrentUserHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.GetIdentityFromContext(r.Context())
		if identity == nil {
			_ = utils.WriteUnauthorized(w, middleware.MessageNotAuthenticated)
			return
		}
		_ = utils.WriteOK(w, identity)
	}
}
