// Package main is the entry point for the tutoring session server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightpath-edu/tutoring-platform/internal/config"
	"github.com/brightpath-edu/tutoring-platform/internal/contextstore"
	"github.com/brightpath-edu/tutoring-platform/internal/handler"
	"github.com/brightpath-edu/tutoring-platform/internal/history"
	"github.com/brightpath-edu/tutoring-platform/internal/llm"
	"github.com/brightpath-edu/tutoring-platform/internal/middleware"
	natsclient "github.com/brightpath-edu/tutoring-platform/internal/nats"
	"github.com/brightpath-edu/tutoring-platform/internal/prompt"
	"github.com/brightpath-edu/tutoring-platform/internal/service"
	"github.com/brightpath-edu/tutoring-platform/internal/transport"
	"github.com/brightpath-edu/tutoring-platform/internal/usage"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Infow("starting tutoring session server")

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "tutoring-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warnw("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Errorw("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	// Session hub with the cross-instance broadcast relay
	relay := natsclient.NewRelay(natsClient, log)
	hub := transport.NewHub(relay, log)
	if err := relay.Subscribe(hub); err != nil {
		log.Errorw("failed to start broadcast relay", "error", err)
		os.Exit(1)
	}
	defer relay.Close()

	// Initialize the LLM gateway
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	gateway, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Errorw("failed to create LLM client", "provider", provider, "error", err)
		os.Exit(1)
	}

	composer := prompt.NewComposer(prompt.NewStaticStore(nil), log)

	// Background workers share one context that is cancelled on shutdown.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	usageQueue := usage.NewQueue(usage.NewLogSink(log), cfg.UsageQueueSize, log)
	usageQueue.Start(workerCtx)

	var snapshots contextstore.LessonSnapshotProvider
	if cfg.ContentSnapshotDir != "" {
		snapshots = contextstore.NewFileSnapshotProvider(cfg.ContentSnapshotDir)
	}
	store := contextstore.NewMemoryStore(snapshots, cfg.ContextTTL, cfg.ContextSweepInterval, log)
	store.StartJanitor(workerCtx)

	historyMgr := history.NewManager(gateway, composer, usageQueue, history.Config{
		HistoryCharLimit:   cfg.HistoryCharLimit,
		RequestTokenBudget: cfg.RequestTokenBudget,
		SummaryModel:       cfg.SummaryModel,
		SummaryTemperature: cfg.SummaryTemperature,
		SummaryMaxTokens:   cfg.SummaryMaxTokens,
	}, log)

	chatCfg := service.ChatConfig{
		AssistantID: cfg.AssistantID,
		Model:       cfg.ChatModel,
		Temperature: cfg.ChatTemperature,
		MaxTokens:   cfg.ChatMaxTokens,
	}
	chatSvc := service.NewChatService(gateway, composer, historyMgr, usageQueue, hub, chatCfg, log)
	interactionSvc := service.NewInteractionService(store, gateway, composer, usageQueue, hub, service.NewRegistry(), chatCfg, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient, relay)
	sessionHandler := transport.NewHandler(hub, chatSvc, interactionSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Session endpoint with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeSession))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Handle("/session", sessionHandler)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	// Stop the workers and let the usage queue drain what it holds.
	stopWorkers()
	usageQueue.Wait()

	log.Infow("server stopped")
}
