package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/compose"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/convlog"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/gateway"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/orchestrator"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/pipeline"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/resilience"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/stream"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/tts"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// healthChecker is implemented by every external dependency
type healthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}

type backend interface {
	compose.Backend
	healthChecker
}

type ttsProvider interface {
	tts.Provider
	healthChecker
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.Backend).
		Str("tts_provider", cfg.TTSProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("conversation_log", cfg.ConversationLogEnabled).
		Msg("Reply Gateway Service starting")

	catalog := voice.DefaultCatalog()
	if cfg.VoiceCatalogPath != "" {
		catalog, err = voice.LoadCatalog(cfg.VoiceCatalogPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.VoiceCatalogPath).Msg("Failed to load voice catalog")
		}
	}
	defaults := voice.Defaults{
		Enabled:   cfg.TTSDefaultEnabled,
		VoiceID:   cfg.DefaultVoiceID,
		VoiceName: cfg.DefaultVoiceName,
	}
	resolver := voice.NewResolver(catalog, defaults)

	answerer, closeBackend, err := newBackend(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create language backend")
	}
	defer closeBackend()

	provider := newTTSProvider(cfg)
	synthesizer := tts.NewSynthesizer(provider, newBreaker(cfg, "tts", logger), tts.Options{
		Timeout:  cfg.TTSTimeout(),
		MaxChars: cfg.TTSMaxChars,
		MinChars: cfg.TTSMinChars,
	}, logger)

	stages := pipeline.Stages{
		Normalizer:  request.NewNormalizer(),
		Resolver:    resolver,
		Composer:    compose.NewComposer(answerer, compose.Options{SummaryThreshold: cfg.SummaryThreshold, Timeout: cfg.BackendTimeoutDuration()}, logger),
		Synthesizer: synthesizer,
		Assembler:   reply.NewAssembler(defaults),
		Selector:    stream.NewSelector(cfg.BlockTags()),
		ChunkSize:   cfg.StreamChunkSize,
	}

	checks := map[string]observability.HealthCheckFunc{
		"backend": answerer.HealthCheck,
		"tts":     provider.HealthCheck,
	}

	var conversations gateway.ConversationReader
	if cfg.ConversationLogEnabled {
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.RetryMaxAttempts
		retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

		store, err := convlog.Open(cfg.ConversationDBPath, retry, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ConversationDBPath).Msg("Failed to open conversation log")
		}
		defer store.Close()

		stages.Recorder = store
		conversations = store
		checks["conversation_log"] = store.Ping
	}

	// Create HTTP server
	mux := http.NewServeMux()
	gateway.NewServer(pipeline.New(stages), resolver, conversations, logger).Routes(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. A turn may wait on the backend and then
	// on synthesis before the first byte is written.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      gateway.WithCORS(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendTimeoutDuration() + cfg.TTSTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/chat", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	logger.Info().Msg("Server exited gracefully")
}

func newBackend(cfg *config.Config, logger zerolog.Logger) (backend, func(), error) {
	switch cfg.Backend {
	case config.BackendOrchestrator:
		client, err := orchestrator.NewOrchestratorClient(cfg, newBreaker(cfg, "orchestrator", logger), logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	default:
		return compose.NewOpenAIBackend(cfg), func() {}, nil
	}
}

func newTTSProvider(cfg *config.Config) ttsProvider {
	if cfg.TTSProvider == config.TTSProviderPolly {
		return tts.NewPollyClient(cfg)
	}
	return tts.NewElevenLabsClient(cfg)
}

func newBreaker(cfg *config.Config, name string, logger zerolog.Logger) *resilience.CircuitBreaker {
	breaker := resilience.NewCircuitBreaker(
		name,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})
	return breaker
}
