package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/admin-gateway/internal/audit"
	"github.com/upb/admin-gateway/middleware"
	"github.com/upb/admin-gateway/models"
	"github.com/upb/admin-gateway/store"
	"github.com/upb/admin-gateway/utils"
	"go.uber.org/zap"
)

const maxResourceBody = 1 << 20

// collection decodes, validates and presents the payloads of one resource kind
type collection interface {
	decode(body io.Reader) (json.RawMessage, error)
	present(data json.RawMessage) (json.RawMessage, error)
}

type typedCollection[T any] struct {
	redact func(*T)
}

func (c typedCollection[T]) decode(body io.Reader) (json.RawMessage, error) {
	var v T
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := utils.ValidateStruct(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c typedCollection[T]) present(data json.RawMessage) (json.RawMessage, error) {
	if c.redact == nil {
		return data, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	c.redact(&v)
	return json.Marshal(v)
}

// ResourceHandler serves CRUD for the admin resource collections
type ResourceHandler struct {
	store       store.Store
	audit       audit.Recorder
	logger      *zap.Logger
	collections map[string]collection
	now         func() time.Time
}

// NewResourceHandler creates a new ResourceHandler. A nil recorder writes
// audit events to logger.
func NewResourceHandler(s store.Store, recorder audit.Recorder, logger *zap.Logger) *ResourceHandler {
	if recorder == nil {
		recorder = audit.NewZapRecorder(logger)
	}
	return &ResourceHandler{
		store:  s,
		audit:  recorder,
		logger: logger,
		collections: map[string]collection{
			models.CollectionAPIKeys:       typedCollection[models.APIKey]{redact: (*models.APIKey).Redact},
			models.CollectionPricing:       typedCollection[models.Pricing]{},
			models.CollectionModelMappings: typedCollection[models.ModelMapping]{},
		},
		now: time.Now,
	}
}

// lookup resolves the collection URL parameter, writing 404 when unknown
func (h *ResourceHandler) lookup(w http.ResponseWriter, r *http.Request) (string, collection, bool) {
	name := chi.URLParam(r, "collection")
	c, ok := h.collections[name]
	if !ok {
		_ = utils.WriteNotFound(w, "Unknown collection")
		return "", nil, false
	}
	return name, c, true
}

func (h *ResourceHandler) resourceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := utils.ValidateUUID(id); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid id format", nil)
		return "", false
	}
	return id, true
}

func (h *ResourceHandler) presentRecord(c collection, rec store.Record) (store.Record, error) {
	data, err := c.present(rec.Data)
	if err != nil {
		return store.Record{}, fmt.Errorf("present record %s: %w", rec.ID, err)
	}
	rec.Data = data
	return rec, nil
}

// HandleList handles GET /api/{collection}
func (h *ResourceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	name, c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	requestID := chimw.GetReqID(r.Context())

	records, err := h.store.List(r.Context(), name)
	if err != nil {
		HandleStoreError(w, err, h.logger.With(zap.String("request_id", requestID)))
		return
	}

	responses := make([]store.Record, 0, len(records))
	for _, rec := range records {
		presented, err := h.presentRecord(c, rec)
		if err != nil {
			HandleStoreError(w, err, h.logger.With(zap.String("request_id", requestID)))
			return
		}
		responses = append(responses, presented)
	}

	h.logger.Debug("listed resources",
		zap.String("request_id", requestID),
		zap.String("collection", name),
		zap.Int("count", len(responses)))

	_ = utils.WriteOK(w, responses)
}

// HandleGet handles GET /api/{collection}/{id}
func (h *ResourceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name, c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Get(r.Context(), name, id)
	if err == nil {
		rec, err = h.presentRecord(c, rec)
	}
	if err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rec)
}

// HandleCreate handles POST /api/{collection}
func (h *ResourceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	name, c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	requestID := chimw.GetReqID(r.Context())

	data, err := c.decode(http.MaxBytesReader(w, r.Body, maxResourceBody))
	if err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.String("collection", name),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	now := h.now().UTC()
	rec := store.Record{
		ID:        uuid.New().String(),
		Data:      data,
		CreatedBy: actor(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Put(r.Context(), name, rec); err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}

	h.record(r, audit.ActionCreate, name, rec.ID)

	if rec, err = h.presentRecord(c, rec); err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, rec)
}

// HandleUpdate handles PUT /api/{collection}/{id}
func (h *ResourceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	name, c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}
	requestID := chimw.GetReqID(r.Context())

	existing, err := h.store.Get(r.Context(), name, id)
	if err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}

	data, err := c.decode(http.MaxBytesReader(w, r.Body, maxResourceBody))
	if err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.String("collection", name),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	existing.Data = data
	existing.UpdatedAt = h.now().UTC()
	if err := h.store.Put(r.Context(), name, existing); err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}

	h.record(r, audit.ActionUpdate, name, id)

	if existing, err = h.presentRecord(c, existing); err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, existing)
}

// HandleDelete handles DELETE /api/{collection}/{id}
func (h *ResourceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), name, id); err != nil {
		HandleStoreError(w, err, h.logger)
		return
	}

	h.record(r, audit.ActionDelete, name, id)

	utils.WriteNoContent(w)
}

func (h *ResourceHandler) record(r *http.Request, action, collection, id string) {
	identity := middleware.GetIdentityFromContext(r.Context())
	h.audit.Record(r.Context(), audit.Event{
		Timestamp:  h.now().UTC(),
		RequestID:  chimw.GetReqID(r.Context()),
		Actor:      actor(r),
		DevMode:    identity != nil && identity.DevMode,
		Action:     action,
		Collection: collection,
		ResourceID: id,
	})
}

// actor names the caller for audit fields
func actor(r *http.Request) string {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		return ""
	}
	if identity.Username != "" {
		return identity.Username
	}
	return identity.Subject
}
