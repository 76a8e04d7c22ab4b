package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/finverse-reconciler/internal/core/events"
	"github.com/frahmantamala/finverse-reconciler/internal/metrics"
)

// EventHandler turns reconciliation events into settlement metrics and audit log lines.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandleInvoicePaid(ctx context.Context, event events.Event) error {
	paid, ok := event.(*events.InvoicePaidEvent)
	if !ok {
		h.logger.Error("invalid event type for invoice paid handler", "event_type", event.EventType())
		return fmt.Errorf("expected InvoicePaidEvent, got %T", event)
	}

	metrics.InvoicesSettledTotal.WithLabelValues("paid").Inc()
	h.logger.Info("audit: invoice paid",
		"invoice_id", paid.InvoiceID,
		"payment_id", paid.PaymentID,
		"amount", paid.Amount,
		"payment_date", paid.PaymentDate,
		"event_id", paid.EventID())
	return nil
}

func (h *EventHandler) HandleInvoiceFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.InvoiceFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for invoice failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected InvoiceFailedEvent, got %T", event)
	}

	metrics.InvoicesSettledTotal.WithLabelValues("failed").Inc()
	h.logger.Info("audit: invoice failed",
		"invoice_id", failed.InvoiceID,
		"payment_id", failed.PaymentID,
		"event_id", failed.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentMethodSaved(ctx context.Context, event events.Event) error {
	saved, ok := event.(*events.PaymentMethodSavedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment method handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentMethodSavedEvent, got %T", event)
	}

	h.logger.Info("audit: payment method saved",
		"payment_method_id", saved.PaymentMethodID,
		"user_id", saved.UserID,
		"event_id", saved.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeInvoicePaid, h.HandleInvoicePaid)
	eventBus.Subscribe(events.EventTypeInvoiceFailed, h.HandleInvoiceFailed)
	eventBus.Subscribe(events.EventTypePaymentMethodSaved, h.HandlePaymentMethodSaved)

	h.logger.Info("reconciliation event handlers registered",
		"handlers", []string{
			events.EventTypeInvoicePaid,
			events.EventTypeInvoiceFailed,
			events.EventTypePaymentMethodSaved,
		})
}
