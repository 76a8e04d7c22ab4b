package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/finverse-reconciler/api"
	"github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/frahmantamala/finverse-reconciler/internal/core/events"
	"github.com/frahmantamala/finverse-reconciler/internal/core/signature"
	"github.com/frahmantamala/finverse-reconciler/internal/finverse"
	"github.com/frahmantamala/finverse-reconciler/internal/storeganise"
	"github.com/frahmantamala/finverse-reconciler/internal/transport"
	"github.com/frahmantamala/finverse-reconciler/internal/transport/rest"
	"github.com/frahmantamala/finverse-reconciler/internal/webhook"
	"github.com/frahmantamala/finverse-reconciler/pkg/logger"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives Finverse webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	Redis          *redis.Client
	Router         *chi.Mux
	EventBus       *events.EventBus
	OpenAPI        *openapi3.T
	WebhookHandler *webhook.Handler
	HealthChecker  *rest.HealthHandler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := internal.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		// Audit subscribers may still be running for requests that already returned.
		if err := deps.EventBus.Close(ctx); err != nil {
			deps.Logger.Error("Event bus drain error", "error", err)
		}
		if deps.Redis != nil {
			if err := deps.Redis.Close(); err != nil {
				deps.Logger.Error("Redis close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	metricsPath := ""
	if deps.Config.Observability.Metrics.Enabled {
		metricsPath = deps.Config.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(deps.Router, rest.RouterConfig{
		WebhookHandler: deps.WebhookHandler,
		HealthHandler:  deps.HealthChecker,
		OpenAPI:        deps.OpenAPI,
		MetricsPath:    metricsPath,
		Logger:         deps.Logger,
	})
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	initLogger(config)
	log := logger.LoggerWrapper()

	doc, err := api.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}

	verifier, err := newVerifier(config.Finverse)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signature verifier: %w", err)
	}

	finverseClient := newFinverseClient(config.Finverse, log)

	tokenStore, redisClient, err := newTokenStore(config, finverseClient.ClientID())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}

	tokenSource := finverse.NewTokenSource(finverse.NewTokenCache(finverseClient, log), tokenStore, log)

	storeganiseClient := storeganise.NewClient(storeganise.Config{
		BusinessCode: config.Storeganise.BusinessCode,
		APIKey:       config.Storeganise.APIKey,
		BaseURL:      config.Storeganise.BaseURL,
		Timeout:      config.Storeganise.Timeout,
	}, log)

	eventBus := events.NewEventBus(log)
	webhook.NewEventHandler(log).RegisterEventHandlers(eventBus)

	service := webhook.NewService(webhook.Dependencies{
		Verifier:      verifier,
		Invoices:      storeganiseClient,
		Payments:      finverseClient,
		Tokens:        tokenSource,
		Events:        eventBus,
		CustomerAppID: config.Finverse.CustomerAppID,
	}, log)

	components := map[string]rest.Pinger{}
	if store, ok := tokenStore.(*finverse.RedisTokenStore); ok {
		components["redis"] = store
	}

	return &Dependencies{
		Config:         config,
		Redis:          redisClient,
		Router:         chi.NewRouter(),
		EventBus:       eventBus,
		OpenAPI:        doc,
		WebhookHandler: webhook.NewHandler(transport.NewBaseHandler(log), service),
		HealthChecker:  rest.NewHealthHandler(components),
		Logger:         log,
	}, nil
}

func newVerifier(cfg internal.FinverseConfig) (*signature.Verifier, error) {
	if cfg.PublicKey != "" {
		return signature.NewVerifier(cfg.PublicKey)
	}
	return signature.NewFinverseVerifier()
}

func newFinverseClient(cfg internal.FinverseConfig, log *slog.Logger) *finverse.Client {
	return finverse.NewClient(finverse.Config{
		BaseURL:      cfg.BaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Timeout:      cfg.Timeout,
	}, log)
}

// newTokenStore returns the configured store and, for redis, the client so the
// caller can close it on shutdown.
func newTokenStore(cfg *internal.Config, clientID string) (finverse.TokenStore, *redis.Client, error) {
	if cfg.TokenStore.Driver != internal.TokenStoreRedis {
		return finverse.NewMemoryTokenStore(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.TokenStore.Redis.Addr,
		Password: cfg.TokenStore.Redis.Password,
		DB:       cfg.TokenStore.Redis.DB,
	})

	ctx, cancel := internal.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.TokenStore.Redis.Addr, err)
	}

	return finverse.NewRedisTokenStore(client, cfg.TokenStore.Redis.KeyPrefix, clientID), client, nil
}
