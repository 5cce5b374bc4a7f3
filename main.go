package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"imagestudio/config"
	"imagestudio/generator"
	"imagestudio/handlers"
	"imagestudio/imagehost"
	"imagestudio/metrics"
	"imagestudio/middleware"
	"imagestudio/providers"
	"imagestudio/storage"
	"imagestudio/workspace"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON or YAML); defaults to conf.json if present")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	backend, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()
	logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("imagestudio", reg, logger)

	// Without a NodeImage key, image-conditioned Pollinations calls go straight to text-only.
	var host providers.ImageHost
	if cfg.ImageHost.APIKey != "" {
		host = imagehost.NewNodeImageClient(cfg.ImageHost)
	} else {
		logger.Warn("NODEIMAGE_API_KEY is not set; Pollinations will ignore reference images")
	}

	adapter := providers.NewAdapter(logger, collector,
		providers.NewPollinationsAIProvider(cfg.Pollinations, host, collector, logger),
		providers.NewGeminiProvider(cfg.Gemini, nil, logger),
	)

	registry := workspace.NewRegistry(backend, adapter, collector, logger, workspace.Options{
		DefaultSettings: cfg.DefaultSettings(),
		Session:         generator.Options{MaxUploadBytes: cfg.Server.MaxUploadBytes},
		IdleTTL:         cfg.Server.WorkspaceIdleTTL,
		MaxWorkspaces:   cfg.Server.MaxWorkspaces,
	})
	defer registry.Close()
	go registry.Janitor(ctx, time.Minute)

	health := handlers.NewHealthHandler(logger)
	health.RegisterCheck(handlers.NewPingCheck("storage", backend.Ping))

	// Uploads travel base64-encoded inside JSON, about 4/3 of the raw size.
	maxJSON := cfg.Server.MaxUploadBytes*4/3 + 64<<10
	routes := &handlers.Routes{
		Generate: handlers.NewGenerateHandler(adapter, maxJSON, logger),
		Session:  handlers.NewSessionHandler(registry, cfg.Server.MaxUploadBytes, logger),
		Settings: handlers.NewSettingsHandler(registry, logger),
		Gallery:  handlers.NewGalleryHandler(registry, handlers.HTTPDownloader(&http.Client{Timeout: 60 * time.Second}), logger),
		Catalog:  handlers.NewCatalogHandler(adapter),
		Health:   health,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}

	mux := http.NewServeMux()
	routes.Register(mux, middleware.RateLimiter(ctx, cfg.RateLimit, logger))

	sessions := middleware.NewSessions(cfg.Session, logger)
	handler := middleware.Chain(mux,
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		middleware.Metrics(collector),
		sessions.Middleware,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// gctx ends on a signal or when the listener fails.
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
