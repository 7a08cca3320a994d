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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise-email/platform/config"
	"github.com/enterprise-email/platform/provider"
	"github.com/enterprise-email/platform/routerapi"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger := log.With().Str("service", "router").Logger()
	logger.Info().Msg("Starting LLM Provider Router")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	logger.Info().Msg("Connected to Redis")

	router := provider.NewRouter(provider.RouterConfig{
		FallbackChain:             cfg.Provider.FallbackChain,
		DefaultAnalysisProvider:   cfg.Provider.DefaultAnalysis,
		DefaultEmbeddingProvider:  cfg.Provider.DefaultEmbedding,
		DefaultSmartReplyProvider: cfg.Provider.DefaultSmartReply,
	}, redisClient, logger)

	router.RegisterProvider(provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:              cfg.Provider.OpenAIAPIKey,
		Organization:        cfg.Provider.OpenAIOrg,
		BaseURL:             cfg.Provider.OpenAIBaseURL,
		Model:               cfg.Provider.OpenAIModel,
		EmbeddingModel:      cfg.Provider.OpenAIEmbedModel,
		Timeout:             cfg.Provider.TimeoutChat,
		EmbedTimeout:        cfg.Provider.TimeoutEmbed,
		AvailabilityTimeout: cfg.Provider.TimeoutAvailability,
	}, logger))

	router.RegisterProvider(provider.NewAnthropicProvider(provider.AnthropicConfig{
		APIKey:              cfg.Provider.AnthropicAPIKey,
		BaseURL:             cfg.Provider.AnthropicBaseURL,
		Model:               cfg.Provider.AnthropicModel,
		Timeout:             cfg.Provider.TimeoutChat,
		AvailabilityTimeout: cfg.Provider.TimeoutAvailability,
	}, logger))

	router.RegisterProvider(provider.NewOllamaProvider(provider.OllamaConfig{
		BaseURL:             cfg.Provider.OllamaBaseURL,
		Model:               cfg.Provider.OllamaModel,
		Timeout:             cfg.Provider.TimeoutChat,
		MaxInFlight:         cfg.Provider.MaxInFlightLocal,
		AvailabilityTimeout: cfg.Provider.TimeoutAvailability,
	}, logger))

	router.StartHealthChecker(ctx, cfg.Provider.HealthInterval)

	handler := routerapi.NewHandler(router, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	r.Mount("/", handler.Router())
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown error")
		}

		cancel()
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Server failed")
	}

	logger.Info().Msg("Server stopped")
}
