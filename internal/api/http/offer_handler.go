// internal/api/http/offer_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/metrics"
	"github.com/Dattelon/field-service-sub000/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OfferHandler exposes the master-facing acceptance path over HTTP. The
// master's bot or app calls these; everything else about the conversation
// with the master lives outside this core.
type OfferHandler struct {
	service  *usecase.AcceptanceService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewOfferHandler creates an OfferHandler with its validator.
func NewOfferHandler(service *usecase.AcceptanceService, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{
		service:  service,
		logger:   logger.With("component", "offer-handler"),
		validate: validator.New(),
		tracer:   otel.Tracer("field-service-api"),
	}
}

// A helper struct to capture the status code.
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers offer routes on the mux.
func (h *OfferHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /offers/{id}/accept", h.instrument("/offers/{id}/accept", h.handleAccept))
	mux.Handle("POST /offers/{id}/decline", h.instrument("/offers/{id}/decline", h.handleDecline))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// instrument wraps a handler with the request counter and a span.
func (h *OfferHandler) instrument(path string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			))
		defer span.End()

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(iw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()
	})
}

func (h *OfferHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	offerID, req, ok := h.parseRespond(w, r)
	if !ok {
		return
	}

	res, err := h.service.AcceptOffer(r.Context(), offerID, req.MasterID)
	if err != nil {
		h.writeRefusal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AcceptResponse{
		OrderID:  res.OrderID,
		MasterID: res.MasterID,
		Round:    res.Round,
	})
}

func (h *OfferHandler) handleDecline(w http.ResponseWriter, r *http.Request) {
	offerID, req, ok := h.parseRespond(w, r)
	if !ok {
		return
	}

	declined, err := h.service.DeclineOffer(r.Context(), offerID, req.MasterID)
	if err != nil {
		h.logger.Error("decline failed", "offer_id", offerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, DeclineResponse{Declined: declined, AlreadyResolved: !declined})
}

// parseRespond extracts and validates the offer id and request body.
func (h *OfferHandler) parseRespond(w http.ResponseWriter, r *http.Request) (string, *RespondOfferRequest, bool) {
	offerID := r.PathValue("id")
	if _, err := uuid.Parse(offerID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid offer id"})
		return "", nil, false
	}

	var req RespondOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return "", nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return "", nil, false
	}
	return offerID, &req, true
}

// writeRefusal maps the acceptance-path sentinels onto status codes and the
// short reason strings masters actually see.
func (h *OfferHandler) writeRefusal(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOfferExpired):
		writeJSON(w, http.StatusGone, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrOfferUnavailable),
		errors.Is(err, domain.ErrOrderUnavailable),
		errors.Is(err, domain.ErrOrderTaken),
		errors.Is(err, domain.ErrOfferDeclined),
		errors.Is(err, domain.ErrOfferAlreadyAccepted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
