// Package handler serves the ingestion HTTP endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/logger"
)

const maxBodyBytes = 8 << 20

type Handler struct {
	publisher *publisher.Publisher
	fields    []string
	logger    *slog.Logger
}

// New accepts records whose field names are among fields.
func New(pub *publisher.Publisher, fields []string) *Handler {
	return &Handler{
		publisher: pub,
		fields:    fields,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest serves POST /api/v1/ingest.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.fields); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req, logger.RequestID(ctx))
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("record ingested", "record_id", resp.RecordID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
