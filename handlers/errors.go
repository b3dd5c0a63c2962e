package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/admin-gateway/store"
	"github.com/upb/admin-gateway/utils"
	"go.uber.org/zap"
)

// errInvalidBody marks request bodies that are not valid JSON for the target type
var errInvalidBody = errors.New("invalid request body")

// HandleStoreError maps store errors to HTTP responses
func HandleStoreError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := utils.WriteNotFound(w, "Resource not found"); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}
	default:
		// Store failures are logged but never echoed to the caller
		logger.Error("store operation failed", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles errors from request parsing and validation
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if fields := utils.GetValidationFields(err); fields != nil {
		if err := utils.WriteBadRequest(w, "Validation failed", fields); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, "Invalid request body", nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
