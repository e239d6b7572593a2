// Package main is the entry point for the group chat orchestrator.
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
	"go.uber.org/zap"

	"github.com/ensemble-chat/ensemble/internal/config"
	"github.com/ensemble-chat/ensemble/internal/gateway"
	"github.com/ensemble-chat/ensemble/internal/model"
	"github.com/ensemble-chat/ensemble/internal/natsx"
	"github.com/ensemble-chat/ensemble/internal/orchestrator"
	"github.com/ensemble-chat/ensemble/internal/persona"
	"github.com/ensemble-chat/ensemble/internal/provider"
	"github.com/ensemble-chat/ensemble/internal/store"
	"github.com/ensemble-chat/ensemble/internal/turn"
	"github.com/ensemble-chat/ensemble/pkg/logger"
	"github.com/ensemble-chat/ensemble/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting orchestrator")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ensemble-orchestrator", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Personas are load-time state; a malformed file prevents startup.
	personas, err := config.LoadPersonas(cfg.PersonasFile)
	if err != nil {
		log.Error("failed to load personas", zap.Error(err))
		os.Exit(1)
	}
	registry, err := persona.NewRegistry(personas)
	if err != nil {
		log.Error("invalid persona configuration", zap.Error(err))
		os.Exit(1)
	}
	log.Info("personas loaded", zap.Int("count", registry.Len()))

	if cfg.ActivationSecret == "" {
		log.Warn("ACTIVATION_SECRET is empty; no chat can be activated")
	}

	natsClient, err := natsx.Connect(ctx, natsx.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	transcripts := natsx.NewTranscripts(natsClient)
	if err := transcripts.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure transcript stream", zap.Error(err))
		os.Exit(1)
	}

	opts := provider.Options{
		Temperature: &cfg.ProviderTemperature,
		MaxTokens:   cfg.ProviderMaxTokens,
		HTTPClient:  &http.Client{Timeout: cfg.ProviderCallTimeout},
	}
	adapters := map[model.ProviderKind]provider.Adapter{
		model.ProviderOpenAICompatible:    provider.NewOpenAIAdapter(opts),
		model.ProviderAnthropicCompatible: provider.NewAnthropicAdapter(opts),
	}

	conversations := store.New(cfg.HistoryRetention)
	selector := turn.NewSelector(registry)
	orch := orchestrator.New(conversations, selector, adapters, transcripts, orchestrator.Config{
		CallTimeout:    cfg.ProviderCallTimeout,
		MaxRetries:     uint64(cfg.ProviderMaxRetries),
		FailureNotices: cfg.FailureNotices,
	}, log)

	eventHandler := gateway.NewEventHandler(orch, conversations, cfg.ActivationSecret, log)
	healthHandler := gateway.NewHealthHandler(natsClient)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(gateway.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(gateway.Auth(cfg.JWTSecret))
		r.Use(gateway.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/events", eventHandler.HandleInbound)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
