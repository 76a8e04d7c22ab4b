package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/finverse-reconciler/internal"
	sgtypes "github.com/frahmantamala/finverse-reconciler/internal/core/datamodel/storeganise"
	"github.com/frahmantamala/finverse-reconciler/internal/core/events"
	"github.com/frahmantamala/finverse-reconciler/internal/webhook"
)

var _ = Describe("Service", func() {
	var (
		verifier   *fakeVerifier
		backOffice *fakeBackOffice
		processor  *fakeProcessor
		tokens     *fakeTokens
		publisher  *fakePublisher
		service    *webhook.Service
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		verifier = &fakeVerifier{}
		backOffice = &fakeBackOffice{invoice: &sgtypes.Invoice{ID: "inv_1", State: sgtypes.InvoiceStatePending}}
		processor = &fakeProcessor{amount: "12345"}
		tokens = &fakeTokens{token: "bearer-token"}
		publisher = &fakePublisher{}
		service = webhook.NewService(webhook.Dependencies{
			Verifier:      verifier,
			Invoices:      backOffice,
			Payments:      processor,
			Tokens:        tokens,
			Events:        publisher,
			CustomerAppID: "app_1",
		}, discardLogger())
	})

	expectNoRemoteCalls := func() {
		Expect(backOffice.calls).To(BeEmpty())
		Expect(processor.calls).To(BeEmpty())
		Expect(tokens.calls).To(BeZero())
	}

	expectStatus := func(err error, status int) {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
		Expect(appErr.StatusCode).To(Equal(status))
	}

	Describe("authentication", func() {
		It("rejects an invalid signature with 401 before decoding", func() {
			result, err := service.Handle(ctx, []byte("not even json"), "bm9wZQ==")

			Expect(result).To(BeNil())
			Expect(errors.Is(err, internal.ErrInvalidSignature)).To(BeTrue())
			expectStatus(err, http.StatusUnauthorized)
			expectNoRemoteCalls()
		})

		It("rejects a missing signature with 401", func() {
			_, err := service.Handle(ctx, payload("PAYMENT_FAILED", "inv_1", nil), "")

			Expect(errors.Is(err, internal.ErrInvalidSignature)).To(BeTrue())
			expectNoRemoteCalls()
		})

		It("reports a verifier fault as 500 rather than accepting", func() {
			verifier.err = errors.New("no key loaded")

			_, err := service.Handle(ctx, payload("PAYMENT_FAILED", "inv_1", nil), validSignature)

			Expect(errors.Is(err, internal.ErrVerification)).To(BeTrue())
			expectStatus(err, http.StatusInternalServerError)
			expectNoRemoteCalls()
		})

		It("rejects another customer app with 401 and zero remote calls", func() {
			body := payload("PAYMENT_EXECUTED", "inv_1", map[string]interface{}{"customer_app_id": "app_2"})

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrTenantMismatch)).To(BeTrue())
			expectStatus(err, http.StatusUnauthorized)
			expectNoRemoteCalls()
		})

		It("rejects a body without customer_app_id", func() {
			body := payload("PAYMENT_FAILED", "inv_1", map[string]interface{}{"customer_app_id": nil})

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrTenantMismatch)).To(BeTrue())
		})

		DescribeTable("checks the tenant before trusting any other field",
			func(body string) {
				_, err := service.Handle(ctx, []byte(body), validSignature)

				Expect(errors.Is(err, internal.ErrTenantMismatch)).To(BeTrue())
				expectStatus(err, http.StatusUnauthorized)
				expectNoRemoteCalls()
			},
			Entry("numeric payment_id", `{"event_type":"PAYMENT_EXECUTED","customer_app_id":"app_2","payment_id":123}`),
			Entry("string metadata", `{"event_type":"PAYMENT_FAILED","customer_app_id":"app_2","metadata":"x"}`),
			Entry("numeric customer_app_id", `{"event_type":"PAYMENT_FAILED","customer_app_id":1,"payment_id":"pay_1"}`),
		)

		It("still answers 400 for a mistyped field from the right tenant", func() {
			body := `{"event_type":"PAYMENT_EXECUTED","customer_app_id":"app_1","payment_id":123}`

			_, err := service.Handle(ctx, []byte(body), validSignature)

			Expect(errors.Is(err, internal.ErrMalformedWebhook)).To(BeTrue())
			expectStatus(err, http.StatusBadRequest)
			expectNoRemoteCalls()
		})
	})

	Describe("validation", func() {
		It("rejects malformed JSON with 400", func() {
			_, err := service.Handle(ctx, []byte(`{"event_type":`), validSignature)

			Expect(errors.Is(err, internal.ErrMalformedWebhook)).To(BeTrue())
			expectStatus(err, http.StatusBadRequest)
			expectNoRemoteCalls()
		})

		DescribeTable("missing or unusable invoice id gives 400 with zero remote calls",
			func(eventType string, invoiceID interface{}) {
				_, err := service.Handle(ctx, payload(eventType, invoiceID, nil), validSignature)

				Expect(errors.Is(err, internal.ErrMissingInvoiceID)).To(BeTrue())
				expectStatus(err, http.StatusBadRequest)
				expectNoRemoteCalls()
			},
			Entry("executed, no metadata", "PAYMENT_EXECUTED", nil),
			Entry("executed, empty id", "PAYMENT_EXECUTED", ""),
			Entry("executed, numeric id", "PAYMENT_EXECUTED", 42),
			Entry("failed, no metadata", "PAYMENT_FAILED", nil),
			Entry("failed, empty id", "PAYMENT_FAILED", ""),
			Entry("failed, object id", "PAYMENT_FAILED", map[string]string{"id": "inv_1"}),
		)

		It("rejects an unparseable event_time on PAYMENT_EXECUTED", func() {
			body := payload("PAYMENT_EXECUTED", "inv_1", map[string]interface{}{"event_time": "yesterday"})

			_, err := service.Handle(ctx, body, validSignature)

			expectStatus(err, http.StatusBadRequest)
			expectNoRemoteCalls()
		})

		It("rejects a link setup without external_user_id", func() {
			body := payload("PAYMENT_LINK_SETUP_SUCCEEDED", nil, map[string]interface{}{"payment_method_id": "pm_1"})

			_, err := service.Handle(ctx, body, validSignature)

			expectStatus(err, http.StatusBadRequest)
			expectNoRemoteCalls()
		})
	})

	Describe("unrecognized event types", func() {
		It("acknowledges with zero remote calls", func() {
			result, err := service.Handle(ctx, payload("MANDATE_CREATED", nil, nil), validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusIgnored))
			Expect(result.EventType).To(Equal("MANDATE_CREATED"))
			expectNoRemoteCalls()
			Expect(publisher.Types()).To(BeEmpty())
		})
	})

	Describe("PAYMENT_EXECUTED", func() {
		var body []byte

		BeforeEach(func() {
			body = payload("PAYMENT_EXECUTED", "inv_1", map[string]interface{}{
				"payment_method_id": "pm_1",
				"external_user_id":  "user_1",
			})
		})

		It("records the converted amount and marks the invoice paid", func() {
			result, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusProcessed))
			Expect(result.InvoiceID).To(Equal("inv_1"))
			Expect(result.SideEffectErrors).To(BeEmpty())

			Expect(backOffice.calls).To(Equal([]string{
				"get_invoice:inv_1",
				"save_payment_method",
				"record_payment",
				"set_invoice_status:paid",
			}))
			Expect(backOffice.payments).To(ConsistOf(recordedPayment{
				InvoiceID: "inv_1",
				Amount:    "123.45",
				Date:      "2024-08-01",
				PaymentID: "pay_123",
			}))
			Expect(backOffice.methods).To(ConsistOf(savedMethod{PaymentMethodID: "pm_1", UserID: "user_1"}))
			Expect(processor.calls).To(Equal([]string{"pay_123"}))
			Expect(processor.tokens).To(Equal([]string{"bearer-token"}))
			Expect(publisher.Types()).To(Equal([]string{
				events.EventTypePaymentMethodSaved,
				events.EventTypeInvoicePaid,
			}))
		})

		It("skips the payment method when none is given", func() {
			body = payload("PAYMENT_EXECUTED", "inv_1", nil)

			_, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(backOffice.calls).To(Equal([]string{
				"get_invoice:inv_1",
				"record_payment",
				"set_invoice_status:paid",
			}))
		})

		It("is a no-op on an already paid invoice", func() {
			backOffice.invoice.State = sgtypes.InvoiceStatePaid

			result, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusDuplicate))
			Expect(backOffice.calls).To(Equal([]string{"get_invoice:inv_1"}))
			Expect(tokens.calls).To(BeZero())
			Expect(processor.calls).To(BeEmpty())
		})

		It("is a no-op on a failed invoice", func() {
			backOffice.invoice.State = sgtypes.InvoiceStateFailed

			result, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusDuplicate))
			Expect(backOffice.calls).To(HaveLen(1))
		})

		It("handles a redelivery without a second payment", func() {
			_, err := service.Handle(ctx, body, validSignature)
			Expect(err).ToNot(HaveOccurred())
			backOffice.invoice.State = backOffice.states[len(backOffice.states)-1]

			result, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusDuplicate))
			Expect(backOffice.payments).To(HaveLen(1))
		})

		It("alerts on an invoice in a state it cannot settle", func() {
			backOffice.invoice.State = "void"

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrInvoiceNotPayable)).To(BeTrue())
			expectStatus(err, http.StatusInternalServerError)
			Expect(backOffice.calls).To(Equal([]string{"get_invoice:inv_1"}))
			Expect(processor.calls).To(BeEmpty())
		})

		It("fails with 500 when the invoice cannot be fetched", func() {
			backOffice.getInvoiceErr = errors.New("storeganise down")

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			expectStatus(err, http.StatusInternalServerError)
			Expect(backOffice.calls).To(HaveLen(1))
		})

		It("continues when saving the payment method fails", func() {
			backOffice.savePaymentErr = errors.New("user locked")

			result, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusProcessed))
			Expect(result.SideEffectErrors).To(HaveLen(1))
			Expect(result.SideEffectErrors[0].Error()).To(ContainSubstring("user locked"))
			Expect(backOffice.states).To(Equal([]sgtypes.InvoiceState{sgtypes.InvoiceStatePaid}))
			Expect(publisher.Types()).To(Equal([]string{events.EventTypeInvoicePaid}))
		})

		It("does not touch the invoice when the token cannot be obtained", func() {
			tokens.err = errors.New("bad client secret")

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			Expect(processor.calls).To(BeEmpty())
			Expect(backOffice.payments).To(BeEmpty())
			Expect(backOffice.states).To(BeEmpty())
		})

		It("does not touch the invoice when the payment cannot be fetched", func() {
			processor.err = errors.New("finverse down")

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			Expect(backOffice.payments).To(BeEmpty())
			Expect(backOffice.states).To(BeEmpty())
		})

		DescribeTable("rejects amounts that are not integer minor units before any mutation",
			func(amount string) {
				processor.amount = json.Number(amount)

				_, err := service.Handle(ctx, body, validSignature)

				Expect(errors.Is(err, internal.ErrInvalidAmount)).To(BeTrue())
				expectStatus(err, http.StatusInternalServerError)
				Expect(backOffice.payments).To(BeEmpty())
				Expect(backOffice.states).To(BeEmpty())
			},
			Entry("fractional", "123.5"),
			Entry("not a number", "abc"),
			Entry("empty", ""),
		)

		It("does not mark the invoice paid when recording the payment fails", func() {
			backOffice.recordErr = errors.New("validation error")

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			Expect(backOffice.states).To(BeEmpty())
			Expect(publisher.Types()).ToNot(ContainElement(events.EventTypeInvoicePaid))
		})

		It("reports a failure to mark the invoice paid after the payment was recorded", func() {
			backOffice.setStatusErr = errors.New("conflict")

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			Expect(backOffice.payments).To(HaveLen(1))
		})

		It("converts small amounts exactly", func() {
			processor.amount = "5"

			_, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(backOffice.payments[0].Amount).To(Equal("0.05"))
		})
	})

	Describe("PAYMENT_FAILED", func() {
		It("marks a payable invoice failed and nothing else", func() {
			result, err := service.Handle(ctx, payload("PAYMENT_FAILED", "inv_1", nil), validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusProcessed))
			Expect(backOffice.calls).To(Equal([]string{
				"get_invoice:inv_1",
				"set_invoice_status:failed",
			}))
			Expect(tokens.calls).To(BeZero())
			Expect(processor.calls).To(BeEmpty())
			Expect(publisher.Types()).To(Equal([]string{events.EventTypeInvoiceFailed}))
		})

		It("is a no-op on a paid invoice", func() {
			backOffice.invoice.State = sgtypes.InvoiceStatePaid

			result, err := service.Handle(ctx, payload("PAYMENT_FAILED", "inv_1", nil), validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusDuplicate))
			Expect(backOffice.states).To(BeEmpty())
		})

		It("fails with 500 when the status update fails", func() {
			backOffice.setStatusErr = errors.New("storeganise down")

			_, err := service.Handle(ctx, payload("PAYMENT_FAILED", "inv_1", nil), validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			expectStatus(err, http.StatusInternalServerError)
		})
	})

	Describe("PAYMENT_LINK_SETUP_SUCCEEDED", func() {
		var body []byte

		BeforeEach(func() {
			body = payload("PAYMENT_LINK_SETUP_SUCCEEDED", nil, map[string]interface{}{
				"payment_method_id": "pm_9",
				"external_user_id":  "user_9",
			})
		})

		It("saves the payment method on the user", func() {
			result, err := service.Handle(ctx, body, validSignature)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(webhook.StatusProcessed))
			Expect(backOffice.calls).To(Equal([]string{"save_payment_method"}))
			Expect(backOffice.methods).To(ConsistOf(savedMethod{PaymentMethodID: "pm_9", UserID: "user_9"}))
			Expect(tokens.calls).To(BeZero())
			Expect(publisher.Types()).To(Equal([]string{events.EventTypePaymentMethodSaved}))
		})

		It("fails with 500 when the save fails", func() {
			backOffice.savePaymentErr = errors.New("storeganise down")

			_, err := service.Handle(ctx, body, validSignature)

			Expect(errors.Is(err, internal.ErrRemoteFailure)).To(BeTrue())
			Expect(publisher.Types()).To(BeEmpty())
		})
	})
})
