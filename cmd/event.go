package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/finverse-reconciler/internal/core/events"
	"github.com/frahmantamala/finverse-reconciler/internal/webhook"
	"github.com/frahmantamala/finverse-reconciler/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish reconciliation events through the audit subscribers for debugging`,
}

var publishEventCmd = &cobra.Command{
	Use:       "publish [event-type]",
	Short:     "Publish a test event",
	Long:      `Publish a sample reconciliation event to the subscribers the server registers`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{events.EventTypeInvoicePaid, events.EventTypeInvoiceFailed, events.EventTypePaymentMethodSaved},
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(args[0])
	},
}

var (
	eventInvoiceID string
	eventUserID    string
)

func publishTestEvent(eventType string) error {
	logger := logger.LoggerWrapper()

	eventBus := events.NewEventBus(logger)
	webhook.NewEventHandler(logger).RegisterEventHandlers(eventBus)

	var event events.Event
	switch eventType {
	case events.EventTypeInvoicePaid:
		event = events.NewInvoicePaidEvent(eventInvoiceID, "cli-payment", "0.00", time.Now().Format(time.DateOnly))
	case events.EventTypeInvoiceFailed:
		event = events.NewInvoiceFailedEvent(eventInvoiceID, "cli-payment")
	case events.EventTypePaymentMethodSaved:
		event = events.NewPaymentMethodSavedEvent("cli-payment-method", eventUserID)
	default:
		return fmt.Errorf("unknown event type %q", eventType)
	}

	logger.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(context.Background(), event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logger.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventInvoiceID, "invoice", "cli-invoice", "Invoice id carried by the event")
	publishEventCmd.Flags().StringVar(&eventUserID, "user", "cli-user", "User id carried by the event")

	eventCmd.AddCommand(publishEventCmd)
}
