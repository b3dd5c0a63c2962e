package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/admin-gateway/internal/audit"
	"github.com/upb/admin-gateway/middleware"
	"github.com/upb/admin-gateway/store"
	"github.com/upb/admin-gateway/store/memory"
	"go.uber.org/zap"
)

// MockStore is a mock implementation of store.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context, collection string) ([]store.Record, error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Record), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (store.Record, error) {
	args := m.Called(ctx, collection, id)
	return args.Get(0).(store.Record), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, collection string, record store.Record) error {
	return m.Called(ctx, collection, record).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	return m.Called(ctx, collection, id).Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

type envelope struct {
	Data    json.RawMessage   `json:"data"`
	Detail  string            `json:"detail"`
	Fields  map[string]string `json:"fields"`
	Message string            `json:"message"`
}

func resourceRouter(h *ResourceHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			identity := &middleware.Identity{Subject: "sub-1", Username: "alice"}
			next.ServeHTTP(w, req.WithContext(middleware.WithIdentity(req.Context(), identity)))
		})
	})
	r.Get("/api/{collection}", h.HandleList)
	r.Post("/api/{collection}", h.HandleCreate)
	r.Get("/api/{collection}/{id}", h.HandleGet)
	r.Put("/api/{collection}/{id}", h.HandleUpdate)
	r.Delete("/api/{collection}/{id}", h.HandleDelete)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestResourceHandler_Lifecycle(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewResourceHandler(memory.New(), nil, zap.NewNop())
	h.now = func() time.Time { return fixed }
	router := resourceRouter(h)

	w, env := do(t, router, http.MethodPost, "/api/model-mappings",
		`{"alias":"fast","provider":"openai","model":"gpt-4o-mini"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created store.Record
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NoError(t, uuid.Validate(created.ID))
	assert.Equal(t, "alice", created.CreatedBy)
	assert.True(t, fixed.Equal(created.CreatedAt))
	assert.JSONEq(t, `{"alias":"fast","provider":"openai","model":"gpt-4o-mini"}`, string(created.Data))

	w, env = do(t, router, http.MethodGet, "/api/model-mappings/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	h.now = func() time.Time { return fixed.Add(time.Hour) }
	w, env = do(t, router, http.MethodPut, "/api/model-mappings/"+created.ID,
		`{"alias":"fast","provider":"anthropic","model":"claude-haiku"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var updated store.Record
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "alice", updated.CreatedBy)
	assert.True(t, fixed.Equal(updated.CreatedAt))
	assert.True(t, fixed.Add(time.Hour).Equal(updated.UpdatedAt))
	assert.Contains(t, string(updated.Data), "anthropic")

	w, env = do(t, router, http.MethodGet, "/api/model-mappings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []store.Record
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)

	w, _ = do(t, router, http.MethodDelete, "/api/model-mappings/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = do(t, router, http.MethodGet, "/api/model-mappings/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Resource not found", env.Detail)
}

func TestResourceHandler_APIKeySecretIsMasked(t *testing.T) {
	s := memory.New()
	router := resourceRouter(NewResourceHandler(s, nil, zap.NewNop()))

	w, env := do(t, router, http.MethodPost, "/api/api-keys",
		`{"name":"primary","provider":"openai","key":"sk-live-0000000000wxyz","enabled":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-live")

	var created store.Record
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Contains(t, string(created.Data), `"key":"********wxyz"`)

	stored, err := s.Get(context.Background(), "api-keys", created.ID)
	require.NoError(t, err)
	assert.Contains(t, string(stored.Data), "sk-live-0000000000wxyz")

	w, _ = do(t, router, http.MethodGet, "/api/api-keys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-live")
}

func TestResourceHandler_Validation(t *testing.T) {
	router := resourceRouter(NewResourceHandler(memory.New(), nil, zap.NewNop()))

	tests := []struct {
		name   string
		target string
		body   string
		detail string
		field  string
	}{
		{"missing field", "/api/pricing", `{"provider":"openai"}`, "Validation failed", "Model"},
		{"bad provider", "/api/model-mappings", `{"alias":"a","provider":"nope","model":"m"}`, "Validation failed", "Provider"},
		{"negative price", "/api/pricing", `{"provider":"openai","model":"m","inputPerMillion":-1}`, "Validation failed", "InputPerMillion"},
		{"unknown field", "/api/pricing", `{"provider":"openai","model":"m","extra":1}`, "Invalid request body", ""},
		{"not json", "/api/api-keys", `{`, "Invalid request body", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, router, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.detail, env.Detail)
			if tt.field != "" {
				assert.Contains(t, env.Fields, tt.field)
			}
		})
	}
}

func TestResourceHandler_Errors(t *testing.T) {
	t.Run("unknown collection", func(t *testing.T) {
		router := resourceRouter(NewResourceHandler(memory.New(), nil, zap.NewNop()))
		w, env := do(t, router, http.MethodGet, "/api/widgets", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Unknown collection", env.Detail)
	})

	t.Run("invalid id", func(t *testing.T) {
		router := resourceRouter(NewResourceHandler(memory.New(), nil, zap.NewNop()))
		w, env := do(t, router, http.MethodGet, "/api/pricing/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid id format", env.Detail)
	})

	t.Run("update missing record", func(t *testing.T) {
		router := resourceRouter(NewResourceHandler(memory.New(), nil, zap.NewNop()))
		w, _ := do(t, router, http.MethodPut, "/api/pricing/"+uuid.NewString(),
			`{"provider":"openai","model":"m"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete missing record", func(t *testing.T) {
		router := resourceRouter(NewResourceHandler(memory.New(), nil, zap.NewNop()))
		w, _ := do(t, router, http.MethodDelete, "/api/pricing/"+uuid.NewString(), "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("store failure is not echoed", func(t *testing.T) {
		mockStore := new(MockStore)
		mockStore.On("List", mock.Anything, "pricing").
			Return(nil, errors.New("dial tcp 10.0.0.5:6379: connection refused"))

		router := resourceRouter(NewResourceHandler(mockStore, nil, zap.NewNop()))
		w, env := do(t, router, http.MethodGet, "/api/pricing", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "An internal error occurred", env.Detail)
		assert.NotContains(t, w.Body.String(), "10.0.0.5")
		mockStore.AssertExpectations(t)
	})

	t.Run("create store failure", func(t *testing.T) {
		mockStore := new(MockStore)
		mockStore.On("Put", mock.Anything, "pricing", mock.AnythingOfType("store.Record")).
			Return(errors.New("boom"))

		router := resourceRouter(NewResourceHandler(mockStore, nil, zap.NewNop()))
		w, _ := do(t, router, http.MethodPost, "/api/pricing", `{"provider":"bedrock","model":"titan"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		mockStore.AssertExpectations(t)
	})
}

type auditLog struct {
	events []audit.Event
}

func (a *auditLog) Record(_ context.Context, e audit.Event) {
	a.events = append(a.events, e)
}

func TestResourceHandler_AuditsMutations(t *testing.T) {
	log := &auditLog{}
	router := resourceRouter(NewResourceHandler(memory.New(), log, zap.NewNop()))

	w, env := do(t, router, http.MethodPost, "/api/pricing", `{"provider":"openai","model":"gpt-4o","inputPerMillion":2.5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created store.Record
	require.NoError(t, json.Unmarshal(env.Data, &created))

	do(t, router, http.MethodGet, "/api/pricing/"+created.ID, "")
	do(t, router, http.MethodDelete, "/api/pricing/"+created.ID, "")

	require.Len(t, log.events, 2, "reads are not audited")
	assert.Equal(t, audit.ActionCreate, log.events[0].Action)
	assert.Equal(t, audit.ActionDelete, log.events[1].Action)
	for _, e := range log.events {
		assert.Equal(t, "alice", e.Actor)
		assert.Equal(t, "pricing", e.Collection)
		assert.Equal(t, created.ID, e.ResourceID)
		assert.False(t, e.DevMode)
	}
}
