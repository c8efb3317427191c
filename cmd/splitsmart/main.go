package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/splitsmart/splitsmart-go/internal/config"
	"github.com/splitsmart/splitsmart-go/internal/debugserver"
	"github.com/splitsmart/splitsmart-go/internal/infra/client"
	"github.com/splitsmart/splitsmart-go/internal/infra/observability"
	"github.com/splitsmart/splitsmart-go/internal/infra/resilience"
	"github.com/splitsmart/splitsmart-go/internal/infra/secrets"
	"github.com/splitsmart/splitsmart-go/internal/querycache"
	"github.com/splitsmart/splitsmart-go/internal/service"
	"github.com/splitsmart/splitsmart-go/internal/ui"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = godotenv.Load()

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
		zap.String("debug_addr", cfg.DebugAddr),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "splitsmart")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Credential store ---
	tokenDir := cfg.TokenDir
	if tokenDir == "" {
		tokenDir, err = secrets.DefaultDir()
		if err != nil {
			logger.Fatal("failed to resolve token dir", zap.Error(err))
		}
	}
	tokenStore, err := secrets.NewFileStore(tokenDir)
	if err != nil {
		logger.Fatal("failed to open token store", zap.Error(err))
	}

	// --- Resilience ---
	cb := resilience.NewCircuitBreaker("splitsmart-api")
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- API client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	tokens := service.NewTokenHolder()
	api := client.New(httpClient, cfg.APIBaseURL, tokens, cb, bulkhead, metrics, logger)

	// --- Query cache ---
	cache := querycache.New(logger, metrics, cfg.FetchTimeout)

	// --- Services ---
	session := service.NewSession(api, tokens, tokenStore, logger)
	app := service.NewApp(api, cache, logger)

	// --- Debug server (/metrics, /healthz) ---
	var debug *debugserver.Server
	if cfg.DebugAddr != "" {
		debug = debugserver.New(cfg.DebugAddr, metrics, logger)
		go debug.Start()
	}

	// --- UI ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ui.New(session, app, metrics, logger, os.Stdin, os.Stdout).Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("ui failed", zap.Error(err))
	}

	if debug != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := debug.Shutdown(shutdownCtx); err != nil {
			logger.Warn("debug server shutdown", zap.Error(err))
		}
	}

	logger.Info("goodbye")
}
