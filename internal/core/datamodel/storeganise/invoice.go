package storeganise

import "encoding/json"

type InvoiceState string

const (
	InvoiceStateDraft      InvoiceState = "draft"
	InvoiceStateSent       InvoiceState = "sent"
	InvoiceStatePending    InvoiceState = "pending"
	InvoiceStateOverdue    InvoiceState = "overdue"
	InvoiceStateProcessing InvoiceState = "processing"
	InvoiceStateFailed     InvoiceState = "failed"
	InvoiceStatePaid       InvoiceState = "paid"
)

// IsTerminal reports whether no further payment event may change the invoice.
func (s InvoiceState) IsTerminal() bool {
	return s == InvoiceStatePaid || s == InvoiceStateFailed
}

// IsPayable reports whether a payment outcome may still be applied.
func (s InvoiceState) IsPayable() bool {
	switch s {
	case InvoiceStateDraft, InvoiceStateSent, InvoiceStatePending, InvoiceStateOverdue, InvoiceStateProcessing:
		return true
	}
	return false
}

type Invoice struct {
	ID    string       `json:"id"`
	State InvoiceState `json:"state"`
	Total json.Number  `json:"total,omitempty"`
}

const (
	PaymentMethodOther = "other"
	PaymentTypeManual  = "manual"
)

// PaymentRecord is the body for POST invoices/{id}/payments. Amount is a
// json.Number so the decimal string is written as a JSON number verbatim.
type PaymentRecord struct {
	Amount json.Number `json:"amount"`
	Date   string      `json:"date"`
	Method string      `json:"method"`
	Notes  string      `json:"notes"`
	Type   string      `json:"type"`
}

// UserUpdate is the body for PUT users/{id}.
type UserUpdate struct {
	CustomFields map[string]string `json:"customFields"`
}

// PaymentMethodCustomField is the user custom field holding the Finverse mandate.
const PaymentMethodCustomField = "finverse_payment_method_id"

type InvoiceUpdate struct {
	State InvoiceState `json:"state"`
}
