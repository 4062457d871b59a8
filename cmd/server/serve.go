package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ai-text-analyzer-go/internal/handlers"
	"github.com/ai-text-analyzer-go/internal/i18n"
	"github.com/ai-text-analyzer-go/internal/middleware"
	"github.com/ai-text-analyzer-go/internal/services/ai"
	"github.com/ai-text-analyzer-go/internal/services/cache"
	"github.com/ai-text-analyzer-go/internal/services/quota"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	log.Info("Starting text analyzer...")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize quota ledger
	ledger, err := quota.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize quota ledger")
		return err
	}
	defer ledger.Close()

	// Initialize model invoker
	invoker, err := ai.NewInvokerFromConfig(ctx, &cfg.Models, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize model invoker")
		return err
	}
	defer invoker.Close()
	if !invoker.Configured() {
		log.Warn("No model API key configured; analyze requests will fail until one is set")
	}

	// Initialize cache
	cacheService := cache.NewCache(&cfg.Cache, log)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	defer rateLimiter.Stop()

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Error("Failed to initialize i18n")
		return err
	}

	// Initialize metrics
	metrics := middleware.NewMetrics()

	go ledger.StartCleanup(ctx, cfg.Storage.CleanupInterval, metrics.SetActiveCallers)

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		metricsServer := middleware.NewMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path)
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	analyzer := handlers.NewAnalyzer(cfg, ledger, invoker, cacheService, rateLimiter, metrics, log)
	server := handlers.NewServer(cfg, analyzer, localizer, metrics, log)

	if err := server.Run(ctx); err != nil {
		log.WithError(err).Error("HTTP server stopped")
		return err
	}

	log.Info("Text analyzer stopped")
	return nil
}
