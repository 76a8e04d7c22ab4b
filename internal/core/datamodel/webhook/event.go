// Package webhook models the Finverse webhook payload as a tagged union keyed by
// event_type. Each variant carries only the fields it needs, already validated.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	errors "github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/frahmantamala/finverse-reconciler/internal/core/common/validation"
)

type EventType string

const (
	EventTypePaymentExecuted           EventType = "PAYMENT_EXECUTED"
	EventTypePaymentFailed             EventType = "PAYMENT_FAILED"
	EventTypePaymentLinkSetupSucceeded EventType = "PAYMENT_LINK_SETUP_SUCCEEDED"
)

// MetadataInvoiceIDKey is the metadata entry that links a payment to a Storeganise invoice.
const MetadataInvoiceIDKey = "storeganise_invoice_id"

const maxIDLength = 256

// Envelope is the webhook body as delivered. Metadata values stay raw so a
// non-string invoice id can be told apart from a missing one.
type Envelope struct {
	EventType       string                     `json:"event_type"`
	EventTime       string                     `json:"event_time"`
	PaymentID       string                     `json:"payment_id"`
	PaymentMethodID string                     `json:"payment_method_id"`
	ExternalUserID  string                     `json:"external_user_id"`
	CustomerAppID   string                     `json:"customer_app_id"`
	Metadata        map[string]json.RawMessage `json:"metadata"`
}

// Decode parses a raw webhook body. Structural JSON problems are ErrMalformedWebhook.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := decodeStrict(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeCustomerAppID reads only customer_app_id so the tenant can be checked
// before any other field is trusted. A missing or non-string value yields "".
func DecodeCustomerAppID(raw []byte) (string, error) {
	var peek struct {
		CustomerAppID json.RawMessage `json:"customer_app_id"`
	}
	if err := decodeStrict(raw, &peek); err != nil {
		return "", err
	}

	var id string
	if err := json.Unmarshal(peek.CustomerAppID, &id); err != nil {
		return "", nil
	}
	return id, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return errors.ErrMalformedWebhook.WithCause(err)
	}
	if dec.More() {
		return errors.ErrMalformedWebhook.WithCause(fmt.Errorf("trailing data after JSON body"))
	}
	return nil
}

// Event is implemented by every variant of the union.
type Event interface {
	Type() EventType
	EventHeader() Header
}

// Header holds the fields every variant shares.
type Header struct {
	RawType       string
	CustomerAppID string
	PaymentID     string
}

func (h Header) EventHeader() Header { return h }

// PaymentExecuted settles an invoice.
type PaymentExecuted struct {
	Header
	InvoiceID       string
	EventTime       time.Time
	PaymentMethodID string
	ExternalUserID  string
}

func (PaymentExecuted) Type() EventType { return EventTypePaymentExecuted }

// EventDate is the calendar date part of the event time as sent.
func (e PaymentExecuted) EventDate() string {
	return e.EventTime.Format(time.DateOnly)
}

// PaymentFailed marks an invoice failed.
type PaymentFailed struct {
	Header
	InvoiceID string
}

func (PaymentFailed) Type() EventType { return EventTypePaymentFailed }

// PaymentLinkSetupSucceeded carries a newly mandated payment method for a user.
type PaymentLinkSetupSucceeded struct {
	Header
	PaymentMethodID string
	ExternalUserID  string
}

func (PaymentLinkSetupSucceeded) Type() EventType { return EventTypePaymentLinkSetupSucceeded }

// Unknown is any event type this service does not act on.
type Unknown struct {
	Header
}

func (u Unknown) Type() EventType { return EventType(u.RawType) }

// Event validates the per-variant required fields and returns the typed variant.
func (e *Envelope) Event() (Event, error) {
	header := Header{
		RawType:       e.EventType,
		CustomerAppID: e.CustomerAppID,
		PaymentID:     e.PaymentID,
	}

	switch EventType(e.EventType) {
	case EventTypePaymentExecuted:
		invoiceID, err := e.InvoiceID()
		if err != nil {
			return nil, err
		}

		v := validation.NewValidator()
		v.Field("payment_id", e.PaymentID).Required().MaxLength(maxIDLength)
		v.Field("event_time", e.EventTime).Required().Timestamp(errors.ErrCodeInvalidEventTime)
		v.Field("payment_method_id", e.PaymentMethodID).MaxLength(maxIDLength)
		if e.PaymentMethodID != "" {
			v.Field("external_user_id", e.ExternalUserID).Required().MaxLength(maxIDLength)
		}
		if appErr := v.Validate(); appErr != nil {
			return nil, appErr
		}

		eventTime, err := validation.ParseTimestamp(e.EventTime)
		if err != nil {
			return nil, errors.ErrInvalidEventTime.WithCause(err)
		}

		return PaymentExecuted{
			Header:          header,
			InvoiceID:       invoiceID,
			EventTime:       eventTime,
			PaymentMethodID: e.PaymentMethodID,
			ExternalUserID:  e.ExternalUserID,
		}, nil

	case EventTypePaymentFailed:
		invoiceID, err := e.InvoiceID()
		if err != nil {
			return nil, err
		}
		return PaymentFailed{Header: header, InvoiceID: invoiceID}, nil

	case EventTypePaymentLinkSetupSucceeded:
		v := validation.NewValidator()
		v.Field("payment_method_id", e.PaymentMethodID).Required().MaxLength(maxIDLength)
		v.Field("external_user_id", e.ExternalUserID).Required().MaxLength(maxIDLength)
		if appErr := v.Validate(); appErr != nil {
			return nil, appErr
		}

		return PaymentLinkSetupSucceeded{
			Header:          header,
			PaymentMethodID: e.PaymentMethodID,
			ExternalUserID:  e.ExternalUserID,
		}, nil

	default:
		return Unknown{Header: header}, nil
	}
}

// InvoiceID extracts metadata.storeganise_invoice_id. A missing key, a non-string
// value, or an empty string all fail with ErrMissingInvoiceID.
func (e *Envelope) InvoiceID() (string, error) {
	raw, ok := e.Metadata[MetadataInvoiceIDKey]
	if !ok {
		return "", errors.ErrMissingInvoiceID
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", errors.ErrMissingInvoiceID.WithCause(fmt.Errorf("%s is not a string", MetadataInvoiceIDKey))
	}
	if id == "" {
		return "", errors.ErrMissingInvoiceID
	}
	if len(id) > maxIDLength {
		return "", errors.ErrMissingInvoiceID.WithCause(fmt.Errorf("%s exceeds %d characters", MetadataInvoiceIDKey, maxIDLength))
	}
	return id, nil
}
