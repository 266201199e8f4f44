package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 1000
)

// ReplicaReader reads projections back from the secondary store.
type ReplicaReader interface {
	GetReplica(ctx context.Context, itemID string) (*domain.ReplicaRecord, error)
}

// QueueDepther reports how many mutations wait for processing.
type QueueDepther interface {
	QueueDepth() int
}

// HTTPHandler serves the operator surface: health, surfaced failures and
// replica lookups. Records are not created or edited here.
type HTTPHandler struct {
	failures port.FailureLog
	replicas ReplicaReader
	pipeline QueueDepther
	log      *zap.Logger
}

type FailuresHTTPResponse struct {
	Failures []domain.FailureRecord `json:"failures"`
}

type ReplicaHTTPResponse struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Version     int    `json:"version"`
	LastUpdated string `json:"last_updated"`
}

type ErrorHTTPResponse struct {
	Message string `json:"message"`
}

func NewHTTPHandler(failures port.FailureLog, replicas ReplicaReader, pipeline QueueDepther, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{failures: failures, replicas: replicas, pipeline: pipeline, log: log}
}

func (h *HTTPHandler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/failures", h.Failures).Methods(http.MethodGet)
	api.HandleFunc("/replica/{itemID}", h.Replica).Methods(http.MethodGet)

	return h.logMiddleware(r)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": h.pipeline.QueueDepth(),
	})
}

func (h *HTTPHandler) Failures(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailureLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid limit"})
			return
		}
		limit = min(n, maxFailureLimit)
	}

	failures, err := h.failures.RecentFailures(r.Context(), limit)
	if err != nil {
		h.log.Error("read failure log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Message: "internal error"})
		return
	}
	if failures == nil {
		failures = []domain.FailureRecord{}
	}

	writeJSON(w, http.StatusOK, FailuresHTTPResponse{Failures: failures})
}

func (h *HTTPHandler) Replica(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]

	record, err := h.replicas.GetReplica(r.Context(), itemID)
	if err != nil {
		h.log.Error("read replica", zap.String("item_id", itemID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Message: "internal error"})
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Message: "replica not found"})
		return
	}

	writeJSON(w, http.StatusOK, ReplicaHTTPResponse{
		ItemID:      record.ItemID,
		Name:        record.Name,
		Quantity:    record.Quantity,
		Price:       record.Price,
		Category:    record.Category,
		Version:     record.Version,
		LastUpdated: record.SyncedAt.Format(time.RFC3339Nano),
	})
}

func (h *HTTPHandler) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
