package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeInvoicePaid        = "invoice.paid"
	EventTypeInvoiceFailed      = "invoice.failed"
	EventTypePaymentMethodSaved = "payment_method.saved"
)

type InvoicePaidEvent struct {
	BaseEvent
	InvoiceID   string `json:"invoice_id"`
	PaymentID   string `json:"payment_id"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"`
}

func NewInvoicePaidEvent(invoiceID, paymentID, amount, paymentDate string) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeInvoicePaid,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"invoice_id":   invoiceID,
				"payment_id":   paymentID,
				"amount":       amount,
				"payment_date": paymentDate,
			},
		},
		InvoiceID:   invoiceID,
		PaymentID:   paymentID,
		Amount:      amount,
		PaymentDate: paymentDate,
	}
}

type InvoiceFailedEvent struct {
	BaseEvent
	InvoiceID string `json:"invoice_id"`
	PaymentID string `json:"payment_id"`
}

func NewInvoiceFailedEvent(invoiceID, paymentID string) *InvoiceFailedEvent {
	return &InvoiceFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeInvoiceFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"invoice_id": invoiceID,
				"payment_id": paymentID,
			},
		},
		InvoiceID: invoiceID,
		PaymentID: paymentID,
	}
}

type PaymentMethodSavedEvent struct {
	BaseEvent
	PaymentMethodID string `json:"payment_method_id"`
	UserID          string `json:"user_id"`
}

func NewPaymentMethodSavedEvent(paymentMethodID, userID string) *PaymentMethodSavedEvent {
	return &PaymentMethodSavedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentMethodSaved,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_method_id": paymentMethodID,
				"user_id":           userID,
			},
		},
		PaymentMethodID: paymentMethodID,
		UserID:          userID,
	}
}
