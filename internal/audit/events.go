// Package audit records administrative mutations. Events name who changed
// which resource; payloads and secrets are never included.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Actions recorded for admin resources
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event captures one auditable action
type Event struct {
	Timestamp  time.Time
	RequestID  string
	Actor      string
	DevMode    bool
	Action     string
	Collection string
	ResourceID string
}

// Recorder persists audit events
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// ZapRecorder writes audit events to a dedicated logger
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder creates a recorder writing to logger.Named("audit")
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger.Named("audit")}
}

// Record implements Recorder
func (r *ZapRecorder) Record(_ context.Context, e Event) {
	r.logger.Info("admin resource "+e.Action+"d",
		zap.Time("timestamp", e.Timestamp),
		zap.String("request_id", e.RequestID),
		zap.String("actor", e.Actor),
		zap.Bool("dev_mode", e.DevMode),
		zap.String("action", e.Action),
		zap.String("collection", e.Collection),
		zap.String("resource_id", e.ResourceID))
}
