package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeMalformedWebhook  ErrorCode = "MALFORMED_WEBHOOK"
	ErrCodeMissingInvoiceID  ErrorCode = "MISSING_INVOICE_ID"
	ErrCodeInvalidEventTime  ErrorCode = "INVALID_EVENT_TIME"
	ErrCodeMissingField      ErrorCode = "MISSING_FIELD"
	ErrCodeRouteNotFound     ErrorCode = "ROUTE_NOT_FOUND"
	ErrCodePayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	ErrCodeTenantMismatch    ErrorCode = "TENANT_MISMATCH"
	ErrCodeVerificationError ErrorCode = "SIGNATURE_VERIFICATION_ERROR"

	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeRemoteFailure     ErrorCode = "REMOTE_FAILURE"
	ErrCodeInvoiceNotPayable ErrorCode = "INVOICE_NOT_PAYABLE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy carrying cause, so package-level sentinels stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Is matches on type and code so wrapped copies still satisfy errors.Is against sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewExternalError reports a failed call to one of the remote services.
func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidSignature  = NewUnauthorizedError("invalid webhook signature", ErrCodeInvalidSignature)
	ErrTenantMismatch    = NewUnauthorizedError("webhook is not addressed to this customer app", ErrCodeTenantMismatch)
	ErrMalformedWebhook  = NewValidationError("malformed webhook payload", ErrCodeMalformedWebhook)
	ErrMissingInvoiceID  = NewValidationError("metadata.storeganise_invoice_id is required", ErrCodeMissingInvoiceID)
	ErrInvalidEventTime  = NewValidationError("event_time must be an ISO 8601 timestamp", ErrCodeInvalidEventTime)
	ErrPayloadTooLarge   = &AppError{Type: ErrorTypeValidation, Code: ErrCodePayloadTooLarge, Message: "webhook body exceeds the size limit", StatusCode: http.StatusRequestEntityTooLarge}
	ErrRouteNotFound     = NewNotFoundError("route not found", ErrCodeRouteNotFound)
	ErrInvalidAmount     = NewExternalError("payment amount is not an integer number of minor units", ErrCodeInvalidAmount, nil)
	ErrRemoteFailure     = NewExternalError("remote call failed", ErrCodeRemoteFailure, nil)
	ErrVerification      = &AppError{Type: ErrorTypeInternal, Code: ErrCodeVerificationError, Message: "signature verification failed unexpectedly", StatusCode: http.StatusInternalServerError}
	ErrInvoiceNotPayable = &AppError{Type: ErrorTypeInternal, Code: ErrCodeInvoiceNotPayable, Message: "invoice is not in a payable state", StatusCode: http.StatusInternalServerError}
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
