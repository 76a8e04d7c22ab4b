package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/finverse-reconciler/api"
	"github.com/frahmantamala/finverse-reconciler/internal/transport/middleware"
	"github.com/frahmantamala/finverse-reconciler/internal/transport/swagger"
	"github.com/frahmantamala/finverse-reconciler/internal/webhook"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	WebhookHandler *webhook.Handler
	HealthHandler  *HealthHandler
	// OpenAPI is the validated document; /openapi.json is only served when set.
	OpenAPI *openapi3.T
	// MetricsPath is left unmounted when empty.
	MetricsPath string
	Logger      *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, cfg RouterConfig) {
	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = NewHealthHandler(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(cfg.Logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec)
	})
	if cfg.OpenAPI != nil {
		router.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			body, err := json.Marshal(cfg.OpenAPI)
			if err != nil {
				cfg.Logger.Error("failed to encode openapi document", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		})
	}
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	if cfg.MetricsPath != "" {
		router.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)
	})

	if cfg.WebhookHandler != nil {
		router.Route("/webhooks/finverse", func(r chi.Router) {
			r.Use(middleware.LoggingMiddleware(cfg.Logger))

			r.Post("/", cfg.WebhookHandler.HandleFinverseWebhook)
			r.Post("/payments", cfg.WebhookHandler.HandleFinverseWebhook)
			r.Post("/payment_links", cfg.WebhookHandler.HandleFinverseWebhook)
			r.NotFound(cfg.WebhookHandler.NotFound)
		})
	}
}
