package webhook

import (
	"context"
	"fmt"
	"log/slog"

	errors "github.com/frahmantamala/finverse-reconciler/internal"
	fvtypes "github.com/frahmantamala/finverse-reconciler/internal/core/datamodel/finverse"
	sgtypes "github.com/frahmantamala/finverse-reconciler/internal/core/datamodel/storeganise"
	whtypes "github.com/frahmantamala/finverse-reconciler/internal/core/datamodel/webhook"
	"github.com/frahmantamala/finverse-reconciler/internal/core/events"
	"github.com/frahmantamala/finverse-reconciler/internal/core/money"
	"github.com/frahmantamala/finverse-reconciler/internal/metrics"
)

// SignatureVerifier checks the fv-signature header against the raw body.
type SignatureVerifier interface {
	Verify(rawBody []byte, signatureBase64 string) (bool, error)
}

// InvoiceAPI is the Storeganise side of reconciliation.
type InvoiceAPI interface {
	GetInvoice(ctx context.Context, invoiceID string) (*sgtypes.Invoice, error)
	SetInvoiceStatus(ctx context.Context, invoiceID string, state sgtypes.InvoiceState) error
	RecordPayment(ctx context.Context, invoiceID, amount, date, paymentID string) error
	SavePaymentMethod(ctx context.Context, paymentMethodID, userID string) error
}

// PaymentAPI is the Finverse side of reconciliation.
type PaymentAPI interface {
	GetPayment(ctx context.Context, token string, paymentID string) (*fvtypes.Payment, error)
}

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ServiceAPI is what the HTTP layer needs from the engine.
type ServiceAPI interface {
	Handle(ctx context.Context, rawBody []byte, signature string) (*Result, error)
}

type Status string

const (
	StatusProcessed Status = "processed"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
)

// Result describes a successfully handled delivery. SideEffectErrors lists
// best-effort steps that failed without failing the delivery.
type Result struct {
	Status           Status
	EventType        string
	InvoiceID        string
	SideEffectErrors []error
}

type Dependencies struct {
	Verifier      SignatureVerifier
	Invoices      InvoiceAPI
	Payments      PaymentAPI
	Tokens        TokenProvider
	Events        EventPublisher
	CustomerAppID string
}

type Service struct {
	verifier      SignatureVerifier
	invoices      InvoiceAPI
	payments      PaymentAPI
	tokens        TokenProvider
	events        EventPublisher
	customerAppID string
	logger        *slog.Logger
}

func NewService(deps Dependencies, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier:      deps.Verifier,
		invoices:      deps.Invoices,
		payments:      deps.Payments,
		tokens:        deps.Tokens,
		events:        deps.Events,
		customerAppID: deps.CustomerAppID,
		logger:        logger,
	}
}

// Handle authenticates, decodes and applies one webhook delivery.
func (s *Service) Handle(ctx context.Context, rawBody []byte, signature string) (result *Result, err error) {
	eventLabel := "unparsed"
	defer func() {
		metrics.WebhookEventsTotal.WithLabelValues(eventLabel, outcome(result, err)).Inc()
	}()

	ok, verr := s.verifier.Verify(rawBody, signature)
	if verr != nil {
		s.logger.Error("signature verification could not run", "error", verr)
		return nil, errors.ErrVerification.WithCause(verr)
	}
	if !ok {
		s.logger.Warn("rejected webhook with invalid signature", "body_size", len(rawBody))
		return nil, errors.ErrInvalidSignature
	}

	appID, err := whtypes.DecodeCustomerAppID(rawBody)
	if err != nil {
		s.logger.Warn("rejected malformed webhook", "error", err)
		return nil, err
	}
	if appID != s.customerAppID {
		s.logger.Warn("rejected webhook for another customer app", "customer_app_id", appID)
		return nil, errors.ErrTenantMismatch
	}

	envelope, err := whtypes.Decode(rawBody)
	if err != nil {
		s.logger.Warn("rejected malformed webhook", "error", err)
		return nil, err
	}

	event, err := envelope.Event()
	if err != nil {
		s.logger.Warn("rejected invalid webhook",
			"event_type", envelope.EventType,
			"payment_id", envelope.PaymentID,
			"error", err)
		return nil, err
	}
	eventLabel = metricLabel(event)

	switch e := event.(type) {
	case whtypes.PaymentExecuted:
		return s.settle(ctx, e.InvoiceID, e)
	case whtypes.PaymentFailed:
		return s.settle(ctx, e.InvoiceID, e)
	case whtypes.PaymentLinkSetupSucceeded:
		return s.savePaymentMethod(ctx, e)
	default:
		s.logger.Info("ignoring unhandled webhook event type",
			"event_type", e.EventHeader().RawType,
			"payment_id", e.EventHeader().PaymentID)
		return &Result{Status: StatusIgnored, EventType: e.EventHeader().RawType}, nil
	}
}

func (s *Service) savePaymentMethod(ctx context.Context, e whtypes.PaymentLinkSetupSucceeded) (*Result, error) {
	if err := s.invoices.SavePaymentMethod(ctx, e.PaymentMethodID, e.ExternalUserID); err != nil {
		s.logger.Error("failed to save payment method",
			"payment_method_id", e.PaymentMethodID,
			"user_id", e.ExternalUserID,
			"error", err)
		return nil, errors.ErrRemoteFailure.WithCause(fmt.Errorf("save payment method: %w", err))
	}

	s.publish(ctx, events.NewPaymentMethodSavedEvent(e.PaymentMethodID, e.ExternalUserID))

	s.logger.Info("payment method saved",
		"payment_method_id", e.PaymentMethodID,
		"user_id", e.ExternalUserID)

	return &Result{Status: StatusProcessed, EventType: string(e.Type())}, nil
}

// settle runs the shared invoice path for PAYMENT_EXECUTED and PAYMENT_FAILED.
// The terminal-state check happens before any mutation.
func (s *Service) settle(ctx context.Context, invoiceID string, event whtypes.Event) (*Result, error) {
	logger := s.logger.With(
		"invoice_id", invoiceID,
		"payment_id", event.EventHeader().PaymentID,
		"event_type", event.Type())

	invoice, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		logger.Error("failed to fetch invoice", "error", err)
		return nil, errors.ErrRemoteFailure.WithCause(fmt.Errorf("get invoice: %w", err))
	}

	result := &Result{EventType: string(event.Type()), InvoiceID: invoiceID}

	if invoice.State.IsTerminal() {
		logger.Info("invoice already settled, skipping", "state", invoice.State)
		result.Status = StatusDuplicate
		return result, nil
	}

	if !invoice.State.IsPayable() {
		logger.Error("invoice is in a state that cannot be settled", "state", invoice.State)
		return nil, errors.ErrInvoiceNotPayable.WithDetails(map[string]string{
			"invoice_id": invoiceID,
			"state":      string(invoice.State),
		})
	}

	switch e := event.(type) {
	case whtypes.PaymentExecuted:
		if err := s.markPaid(ctx, logger, result, e); err != nil {
			return nil, err
		}
	case whtypes.PaymentFailed:
		if err := s.invoices.SetInvoiceStatus(ctx, invoiceID, sgtypes.InvoiceStateFailed); err != nil {
			logger.Error("failed to mark invoice failed", "error", err)
			return nil, errors.ErrRemoteFailure.WithCause(fmt.Errorf("set invoice status: %w", err))
		}
		s.publish(ctx, events.NewInvoiceFailedEvent(invoiceID, e.PaymentID))
		logger.Info("invoice marked failed")
	}

	result.Status = StatusProcessed
	return result, nil
}

func (s *Service) markPaid(ctx context.Context, logger *slog.Logger, result *Result, e whtypes.PaymentExecuted) error {
	if e.PaymentMethodID != "" {
		if err := s.invoices.SavePaymentMethod(ctx, e.PaymentMethodID, e.ExternalUserID); err != nil {
			metrics.SideEffectFailuresTotal.WithLabelValues("save_payment_method").Inc()
			logger.Error("failed to save payment method, continuing with payment",
				"payment_method_id", e.PaymentMethodID,
				"user_id", e.ExternalUserID,
				"error", err)
			result.SideEffectErrors = append(result.SideEffectErrors, fmt.Errorf("save payment method: %w", err))
		} else {
			s.publish(ctx, events.NewPaymentMethodSavedEvent(e.PaymentMethodID, e.ExternalUserID))
		}
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		logger.Error("failed to obtain finverse token", "error", err)
		return errors.ErrRemoteFailure.WithCause(fmt.Errorf("obtain token: %w", err))
	}

	payment, err := s.payments.GetPayment(ctx, token, e.PaymentID)
	if err != nil {
		logger.Error("failed to fetch payment", "error", err)
		return errors.ErrRemoteFailure.WithCause(fmt.Errorf("get payment: %w", err))
	}

	amount, err := money.MajorUnitsFromJSON(payment.Amount)
	if err != nil {
		logger.Error("payment amount cannot be converted", "amount", payment.Amount.String(), "error", err)
		return err
	}

	date := e.EventDate()
	if err := s.invoices.RecordPayment(ctx, e.InvoiceID, amount, date, e.PaymentID); err != nil {
		logger.Error("failed to record payment", "amount", amount, "error", err)
		return errors.ErrRemoteFailure.WithCause(fmt.Errorf("record payment: %w", err))
	}

	if err := s.invoices.SetInvoiceStatus(ctx, e.InvoiceID, sgtypes.InvoiceStatePaid); err != nil {
		logger.Error("payment recorded but invoice could not be marked paid", "amount", amount, "error", err)
		return errors.ErrRemoteFailure.WithCause(fmt.Errorf("set invoice status: %w", err))
	}

	s.publish(ctx, events.NewInvoicePaidEvent(e.InvoiceID, e.PaymentID, amount, date))

	logger.Info("invoice marked paid", "amount", amount, "payment_date", date)
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	// Subscribers run after the response is written.
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func metricLabel(event whtypes.Event) string {
	if _, ok := event.(whtypes.Unknown); ok {
		return "UNKNOWN"
	}
	return string(event.Type())
}

func outcome(result *Result, err error) string {
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		if !ok {
			return metrics.OutcomeFailed
		}
		switch appErr.Type {
		case errors.ErrorTypeUnauthorized:
			return metrics.OutcomeUnauthorized
		case errors.ErrorTypeValidation:
			return metrics.OutcomeInvalid
		default:
			return metrics.OutcomeFailed
		}
	}
	switch result.Status {
	case StatusDuplicate:
		return metrics.OutcomeDuplicate
	case StatusIgnored:
		return metrics.OutcomeIgnored
	default:
		return metrics.OutcomeProcessed
	}
}
