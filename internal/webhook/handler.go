package webhook

import (
	stderrors "errors"
	"io"
	"net/http"
	"time"

	errors "github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/frahmantamala/finverse-reconciler/internal/metrics"
	"github.com/frahmantamala/finverse-reconciler/internal/transport"
	"github.com/frahmantamala/finverse-reconciler/pkg/logger"
)

const (
	SignatureHeader = "fv-signature"
	MaxBodyBytes    = 1 << 20
)

type Handler struct {
	*transport.BaseHandler
	service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		service:     service,
	}
}

// HandleFinverseWebhook serves POST /webhooks/finverse and its sub-paths.
func (h *Handler) HandleFinverseWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.WebhookDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	}()

	log := logger.From(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			log.Warn("webhook body too large", "limit", tooLarge.Limit)
			h.HandleError(w, errors.ErrPayloadTooLarge)
			return
		}
		log.Warn("failed to read webhook body", "error", err)
		h.HandleError(w, errors.ErrMalformedWebhook.WithCause(err))
		return
	}

	result, err := h.service.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		h.HandleError(w, err)
		return
	}

	attrs := []any{
		"path", r.URL.Path,
		"event_type", result.EventType,
		"status", result.Status,
	}
	if result.InvoiceID != "" {
		attrs = append(attrs, "invoice_id", result.InvoiceID)
	}
	if len(result.SideEffectErrors) > 0 {
		attrs = append(attrs, "side_effect_errors", len(result.SideEffectErrors))
		log.Warn("webhook handled with side effect failures", attrs...)
	} else {
		log.Info("webhook handled", attrs...)
	}

	h.WriteText(w, http.StatusOK, "OK")
}

// NotFound answers unknown webhook paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	logger.From(r.Context()).Warn("webhook path not found", "path", r.URL.Path, "method", r.Method)
	h.HandleError(w, errors.ErrRouteNotFound)
}
