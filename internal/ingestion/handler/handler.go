// Package handler exposes paper ingestion over HTTP. It accepts either a
// JSON batch of normalized papers or a raw DBLP JSONL body.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
)

const (
	maxBodyBytes = 64 << 20
	maxBatch     = 10000
)

// Ingester persists a batch of records.
type Ingester interface {
	Ingest(ctx context.Context, records []record.Record) (*ingestion.IngestResponse, error)
}

type Handler struct {
	ingester Ingester
	reader   *ingestion.Reader
	logger   *slog.Logger
}

// New wires the handler. reader parses raw JSONL bodies and applies the
// venue allow-list to them.
func New(ing Ingester, reader *ingestion.Reader) *Handler {
	return &Handler{
		ingester: ing,
		reader:   reader,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /api/v1/papers.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		records []record.Record
		skipped int
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-ndjson", "application/jsonl":
		recs, stats, err := h.reader.ReadJSONL(ctx, r.Body)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "unreadable JSONL body")
			return
		}
		records, skipped = recs, stats.Filtered+stats.Malformed
	default:
		var req ingestion.IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Papers) > maxBatch {
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d papers per request", maxBatch))
			return
		}
		records = make([]record.Record, 0, len(req.Papers))
		for i := range req.Papers {
			if err := validator.ValidateFields(&req.Papers[i]); err != nil {
				var validationErr *validator.ValidationError
				if errors.As(err, &validationErr) {
					h.writeJSON(w, http.StatusBadRequest, map[string]any{
						"error":  "validation failed",
						"index":  i,
						"fields": validationErr.Fields,
					})
					return
				}
				h.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			records = append(records, record.FromFields(req.Papers[i]))
		}
	}
	if len(records) == 0 {
		h.writeError(w, http.StatusBadRequest, "no valid papers in request")
		return
	}

	resp, err := h.ingester.Ingest(ctx, records)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("papers ingested",
		"accepted", resp.Accepted,
		"skipped", skipped,
		"total", resp.Total,
	)
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
