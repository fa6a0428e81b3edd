package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/memory"
)

// MemoryStore is the store surface the HTTP layer needs. All three store
// variants satisfy it.
type MemoryStore interface {
	Add(r *memory.Record) uuid.UUID
	Get(id uuid.UUID) (memory.Record, error)
	Remove(id uuid.UUID) error
	Len() int
	FindRelevant(query []float32, limit int) ([]memory.ScoredRecord, error)
	FindRelevantBatch(queries [][]float32, limit int) ([][]memory.ScoredRecord, error)
	Maintain(threshold float64) (int, error)
	UpdateState(state memory.AgentState)
	UpdateProfile(profile memory.AgentProfile)
	Profile() memory.AgentProfile
	State() memory.AgentState
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store  MemoryStore
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(store MemoryStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.healthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Post("/records", h.createRecord)
		r.Get("/records/{id}", h.getRecord)
		r.Delete("/records/{id}", h.removeRecord)
		r.Post("/query", h.query)
		r.Post("/query/batch", h.queryBatch)
		r.Post("/maintain", h.maintain)
		r.Get("/profile", h.getProfile)
		r.Put("/profile", h.updateProfile)
		r.Get("/state", h.getState)
		r.Put("/state", h.updateState)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "records": h.store.Len()})
}

type createRecordRequest struct {
	Vector         []float32      `json:"vector"`
	Emotion        float64        `json:"emotion"`
	AgeAtFormation float64        `json:"age_at_formation"`
	CapacityWeight float64        `json:"capacity_weight"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Vector) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "vector is required"})
		return
	}

	rec := memory.NewRecord(req.Vector, req.Emotion, req.AgeAtFormation, req.CapacityWeight)
	for k, v := range req.Metadata {
		rec.WithMetadata(k, v)
	}
	id := h.store.Add(rec)
	stored, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record id"})
		return
	}
	rec, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) removeRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record id"})
		return
	}
	if err := h.store.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type queryRequest struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit"`
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	results, err := h.store.FindRelevant(req.Vector, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type batchQueryRequest struct {
	Vectors [][]float32 `json:"vectors"`
	Limit   int         `json:"limit"`
}

func (h *Handler) queryBatch(w http.ResponseWriter, r *http.Request) {
	var req batchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	results, err := h.store.FindRelevantBatch(req.Vectors, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type maintainRequest struct {
	Threshold float64 `json:"threshold"`
}

func (h *Handler) maintain(w http.ResponseWriter, r *http.Request) {
	var req maintainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	evicted, err := h.store.Maintain(req.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"evicted": evicted, "remaining": h.store.Len()})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Profile())
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p memory.AgentProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.store.UpdateProfile(p)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State())
}

func (h *Handler) updateState(w http.ResponseWriter, r *http.Request) {
	var s memory.AgentState
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.store.UpdateState(s)
	writeJSON(w, http.StatusOK, s)
}

// writeError maps domain sentinels to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, memory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, memory.ErrInvalidParameter):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
