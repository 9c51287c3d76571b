package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/settleup/reconciler/internal/ingestion"
	"github.com/settleup/reconciler/internal/ratecard"
	"github.com/settleup/reconciler/internal/reconciliation"
	"github.com/settleup/reconciler/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	cardRepo     *repository.RateCardRepo
	orderRepo    *repository.OrderRepo
	ingestionSvc *ingestion.Service
	reconSvc     *reconciliation.Service
	tolerance    decimal.Decimal
	maxUpload    int64
	logger       *zap.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Encode response failed", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeResolutionError maps rate card resolution failures onto HTTP statuses.
func (h *Handlers) writeResolutionError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, ratecard.ErrNoActiveRateCard):
		status = http.StatusNotFound
	case errors.Is(err, ratecard.ErrAmbiguousRateCard):
		status = http.StatusConflict
	}
	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  ratecard.KindName(err),
	})
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Import ---

// Import accepts a multipart upload with a "file" field and ingests it as kind.
func (h *Handlers) Import(kind ingestion.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
			return
		}

		result, err := h.ingestionSvc.Ingest(r.Context(), kind, data)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, ratecard.ErrAmbiguousRateCard) {
				status = http.StatusConflict
			}
			h.writeError(w, status, err.Error())
			return
		}

		h.writeJSON(w, http.StatusOK, result)
	}
}

// --- ListOrders ---

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.OrderFilter{
		Platform: q.Get("marketplace"),
		Category: q.Get("category"),
		Status:   strings.ToLower(q.Get("status")),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	orders, total, err := h.orderRepo.List(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

// --- Reconciliation ---

func reportFilter(r *http.Request) repository.OrderFilter {
	q := r.URL.Query()
	return repository.OrderFilter{
		Platform: q.Get("marketplace"),
		Category: q.Get("category"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
	}
}

func (h *Handlers) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconSvc.Run(r.Context(), reportFilter(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) GetOrderReconciliation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	result, failure, err := h.reconSvc.ForOrder(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("order %s not found", id))
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if failure != nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "failure": failure})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "result": result})
}
