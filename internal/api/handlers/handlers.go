// Package handlers exposes ingestion and classification over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerkeep/ledgerkeep/internal/api/middleware"
	"github.com/ledgerkeep/ledgerkeep/internal/classify"
	"github.com/ledgerkeep/ledgerkeep/internal/ingest"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/rs/zerolog"
)

// BatchesHandler handles batch ingestion endpoints.
type BatchesHandler struct {
	service *ingest.Service
	log     zerolog.Logger
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(service *ingest.Service, log zerolog.Logger) *BatchesHandler {
	return &BatchesHandler{service: service, log: log}
}

// IngestBatch handles POST /api/batches
func (h *BatchesHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var batch ingest.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if batch.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	report, err := h.service.Run(ctx, batch)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", batch.UserID).Msg("Failed to ingest batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to ingest batch")
		return
	}

	status := http.StatusOK
	if !report.Applied {
		// Account needs selection or disambiguation before the batch
		// can be applied.
		status = http.StatusConflict
	}
	middleware.WriteJSON(w, status, report)
}

// ClassifyHandler handles ad-hoc classification requests.
type ClassifyHandler struct {
	log zerolog.Logger
}

// NewClassifyHandler creates a new classify handler.
func NewClassifyHandler(log zerolog.Logger) *ClassifyHandler {
	return &ClassifyHandler{log: log}
}

// Classify handles POST /api/classify
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ingest.Candidate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := req.ToTransaction()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := classify.Classify(tx)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"type":     result.Type,
		"excluded": result.Excluded,
	})
}

// AccountsHandler handles account endpoints.
type AccountsHandler struct {
	store storage.AccountStore
	log   zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(store storage.AccountStore, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{store: store, log: log}
}

// ListAccounts handles GET /api/users/{userID}/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "userID is required")
		return
	}

	accounts, err := h.store.ListAccounts(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User has no accounts")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
