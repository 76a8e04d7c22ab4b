package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/finverse-reconciler/api"
	"github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/frahmantamala/finverse-reconciler/internal/transport"
	"github.com/frahmantamala/finverse-reconciler/internal/transport/rest"
	"github.com/frahmantamala/finverse-reconciler/internal/webhook"
)

type stubService struct {
	bodies     []string
	signatures []string
	err        error
}

func (s *stubService) Handle(ctx context.Context, rawBody []byte, signature string) (*webhook.Result, error) {
	s.bodies = append(s.bodies, string(rawBody))
	s.signatures = append(s.signatures, signature)
	if s.err != nil {
		return nil, s.err
	}
	return &webhook.Result{Status: webhook.StatusProcessed, EventType: "PAYMENT_FAILED"}, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

var _ = Describe("Router", func() {
	var (
		service *stubService
		router  *chi.Mux
		pinger  stubPinger
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("fv-signature", "c2ln")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	JustBeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		router = chi.NewRouter()
		doc, err := api.Load(context.Background())
		Expect(err).ToNot(HaveOccurred())
		rest.RegisterAllRoutes(router, rest.RouterConfig{
			OpenAPI:        doc,
			WebhookHandler: webhook.NewHandler(transport.NewBaseHandler(logger), service),
			HealthHandler:  rest.NewHealthHandler(map[string]rest.Pinger{"redis": pinger}),
			MetricsPath:    "/metrics",
			Logger:         logger,
		})
	})

	BeforeEach(func() {
		service = &stubService{}
		pinger = stubPinger{}
	})

	DescribeTable("serves every webhook path with the same engine",
		func(path string) {
			rec := do(http.MethodPost, path, `{"event_type":"PAYMENT_FAILED"}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("OK"))
			Expect(service.bodies).To(Equal([]string{`{"event_type":"PAYMENT_FAILED"}`}))
			Expect(service.signatures).To(Equal([]string{"c2ln"}))
			Expect(rec.Header().Get("X-Trace-ID")).ToNot(BeEmpty())
		},
		Entry("payments", "/webhooks/finverse/payments"),
		Entry("payment links", "/webhooks/finverse/payment_links"),
		Entry("catch-all", "/webhooks/finverse"),
	)

	It("answers 404 for an unknown webhook path without calling the engine", func() {
		rec := do(http.MethodPost, "/webhooks/finverse/refunds", `{}`)

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(service.bodies).To(BeEmpty())
	})

	It("passes the body through the logging middleware unchanged", func() {
		body := `{"event_type":"X","padding":"` + strings.Repeat("p", 100<<10) + `"}`

		rec := do(http.MethodPost, "/webhooks/finverse/payments", body)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(service.bodies).To(Equal([]string{body}))
	})

	It("maps engine errors to their status", func() {
		service.err = internal.ErrTenantMismatch

		rec := do(http.MethodPost, "/webhooks/finverse/payments", `{}`)

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("answers 500 on an unexpected error", func() {
		service.err = errors.New("boom")

		rec := do(http.MethodPost, "/webhooks/finverse/payments", `{}`)

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).ToNot(ContainSubstring("boom"))
	})

	It("serves liveness", func() {
		rec := do(http.MethodGet, "/api/v1/ping", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"status":"OK"}`))
	})

	Describe("readiness", func() {
		It("is healthy when every component answers", func() {
			rec := do(http.MethodGet, "/api/v1/health", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp rest.HealthResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Status).To(Equal(rest.HealthHealthy))
			Expect(resp.Components).To(HaveKey("redis"))
		})

		Context("when a component is down", func() {
			BeforeEach(func() {
				pinger = stubPinger{err: errors.New("connection refused")}
			})

			It("answers 503", func() {
				rec := do(http.MethodGet, "/api/v1/health", "")

				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
				var resp rest.HealthResponse
				Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp.Components["redis"].Message).To(Equal("connection refused"))
			})
		})
	})

	It("serves the embedded OpenAPI document", func() {
		rec := do(http.MethodGet, "/openapi.yml", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("/webhooks/finverse/payments"))
	})

	It("serves the validated document as JSON", func() {
		rec := do(http.MethodGet, "/openapi.json", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

		served, err := api.Parse(context.Background(), rec.Body.Bytes())
		Expect(err).ToNot(HaveOccurred())
		Expect(served.Paths.Find("/webhooks/finverse/payments")).ToNot(BeNil())
	})

	It("exposes prometheus metrics", func() {
		do(http.MethodPost, "/webhooks/finverse/payments", `{}`)

		rec := do(http.MethodGet, "/metrics", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("reconciler_webhook_duration_seconds"))
	})
})
