package storeganise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	types "github.com/frahmantamala/finverse-reconciler/internal/core/datamodel/storeganise"
	"github.com/frahmantamala/finverse-reconciler/internal/metrics"
)

const maxErrorBody = 4096

// APIError is a non-2xx answer from Storeganise.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storeganise %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

type Config struct {
	BusinessCode string
	APIKey       string
	// BaseURL overrides https://{business_code}.storeganise.com/api/v1/admin.
	BaseURL string
	Timeout time.Duration
}

// Client calls the Storeganise admin API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.storeganise.com/api/v1/admin", config.BusinessCode)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetInvoice fetches an invoice by id.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*types.Invoice, error) {
	var invoice types.Invoice
	if err := c.call(ctx, "get_invoice", http.MethodGet, "invoices/"+url.PathEscape(invoiceID), nil, &invoice); err != nil {
		c.logger.Error("failed to fetch invoice", "invoice_id", invoiceID, "error", err)
		return nil, err
	}
	if invoice.ID == "" {
		invoice.ID = invoiceID
	}
	return &invoice, nil
}

// SetInvoiceStatus overwrites the invoice state. The call is unconditional.
func (c *Client) SetInvoiceStatus(ctx context.Context, invoiceID string, state types.InvoiceState) error {
	body := types.InvoiceUpdate{State: state}
	if err := c.call(ctx, "set_invoice_status", http.MethodPut, "invoices/"+url.PathEscape(invoiceID), body, nil); err != nil {
		c.logger.Error("failed to set invoice status", "invoice_id", invoiceID, "state", state, "error", err)
		return err
	}
	return nil
}

// RecordPayment adds a manual payment to an invoice. amount is a decimal
// major-unit string such as "123.45"; date is YYYY-MM-DD.
func (c *Client) RecordPayment(ctx context.Context, invoiceID, amount, date, paymentID string) error {
	body := types.PaymentRecord{
		Amount: json.Number(amount),
		Date:   date,
		Method: types.PaymentMethodOther,
		Notes:  "Finverse payment " + paymentID,
		Type:   types.PaymentTypeManual,
	}
	if err := c.call(ctx, "record_payment", http.MethodPost, "invoices/"+url.PathEscape(invoiceID)+"/payments", body, nil); err != nil {
		c.logger.Error("failed to record payment on invoice",
			"invoice_id", invoiceID,
			"payment_id", paymentID,
			"amount", amount,
			"error", err)
		return err
	}
	return nil
}

// SavePaymentMethod stores the Finverse payment method on the user's custom fields.
func (c *Client) SavePaymentMethod(ctx context.Context, paymentMethodID, userID string) error {
	body := types.UserUpdate{
		CustomFields: map[string]string{types.PaymentMethodCustomField: paymentMethodID},
	}
	if err := c.call(ctx, "save_payment_method", http.MethodPut, "users/"+url.PathEscape(userID), body, nil); err != nil {
		c.logger.Error("failed to save payment method", "user_id", userID, "payment_method_id", paymentMethodID, "error", err)
		return err
	}
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	httpReq.Header.Set("Authorization", "ApiKey "+c.apiKey)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RemoteCallErrorsTotal.WithLabelValues("storeganise", operation).Inc()
		return fmt.Errorf("storeganise %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteCallErrorsTotal.WithLabelValues("storeganise", operation).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		metrics.RemoteCallErrorsTotal.WithLabelValues("storeganise", operation).Inc()
		return fmt.Errorf("failed to decode storeganise %s response: %w", operation, err)
	}
	return nil
}
