package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volcanowatch/volcano-risk/internal/api"
	"github.com/volcanowatch/volcano-risk/internal/cache"
	"github.com/volcanowatch/volcano-risk/internal/config"
	"github.com/volcanowatch/volcano-risk/internal/engine"
	"github.com/volcanowatch/volcano-risk/internal/extractors"
	"github.com/volcanowatch/volcano-risk/internal/metrics"
	"github.com/volcanowatch/volcano-risk/internal/present"
	"github.com/volcanowatch/volcano-risk/internal/query"
	"github.com/volcanowatch/volcano-risk/internal/refresh"
	"github.com/volcanowatch/volcano-risk/internal/repo"
	"github.com/volcanowatch/volcano-risk/internal/services"
	"github.com/volcanowatch/volcano-risk/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting volcano-risk",
		slog.String("address", cfg.Server.Address),
		slog.String("backend", cfg.Backend.BaseURL),
		slog.String("fanout_mode", cfg.Fanout.Mode),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	backend := repo.NewBackendClient(repo.BackendOptions{
		BaseURL:       cfg.Backend.BaseURL,
		SearchPath:    cfg.Backend.SearchPath,
		VolcanoesPath: cfg.Backend.VolcanoesPath,
		RiskMapPath:   cfg.Backend.RiskMapPath,
		Timeout:       cfg.Backend.Timeout,
		MaxRetries:    cfg.Backend.MaxRetries,
		RetryBase:     cfg.Backend.RetryBase,
		Logger:        logger,
	})

	pipeline := engine.NewPipeline(backend, engine.Options{
		Logger: logger,
		Cache: cache.Options{
			TTLs: map[cache.Kind]time.Duration{
				cache.KindSearch:     cfg.Cache.SearchTTL,
				cache.KindIndicators: cfg.Cache.IndicatorsTTL,
				cache.KindEvents:     cfg.Cache.EventsTTL,
				cache.KindRiskMap:    cfg.Cache.RiskMapTTL,
				cache.KindCatalog:    cfg.Cache.CatalogTTL,
			},
			MaxEntries: cfg.Cache.MaxEntries,
		},
		CallTimeout: cfg.Fanout.CallTimeout,
		MapMode:     cfg.Fanout.Mode,
		Extractor:   extractors.NewEventExtractor(logger),
	})

	riskService := services.NewRiskService(
		logger,
		pipeline,
		query.NewResolver(cfg.Query.MaxSpanDays, cfg.Query.DefaultSpanDays),
		query.MapDefaults{
			Days:        cfg.Fanout.Days,
			RadiusKm:    cfg.Fanout.RadiusKm,
			MinMag:      cfg.Fanout.MinMag,
			Limit:       cfg.Fanout.Limit,
			Concurrency: cfg.Fanout.Concurrency,
		},
		nil,
	)

	healthSrv, err := api.NewHealthServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC health server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		snapshots api.SnapshotSource
		status    api.RefreshStatus
	)
	if cfg.Refresh.Enabled {
		sink := present.NewMemorySink()
		scheduler := refresh.NewScheduler(logger, riskService, sink, refresh.Config{
			Interval:       cfg.Refresh.Interval,
			Watch:          cfg.Refresh.Watch,
			RadiusKm:       cfg.Query.RadiusKm,
			MinMag:         cfg.Query.MinMag,
			MapEnabled:     cfg.Refresh.Map,
			UnhealthyAfter: cfg.Refresh.UnhealthyAfter,
		}, healthSrv.SetServing)
		snapshots, status = sink, scheduler
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("refresh scheduler exited", slog.Any("error", err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(logger, riskService, snapshots, status, api.Widgets{
		RadiusKm: cfg.Query.RadiusKm,
		MinMag:   cfg.Query.MinMag,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Backend.Timeout + 30*time.Second,
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("http server listening", slog.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		logger.Info("gRPC health server listening", slog.String("address", healthSrv.Addr()))
		if serveErr := healthSrv.Serve(ctx); serveErr != nil {
			logger.Error("gRPC health server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	<-healthDone

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("volcano-risk stopped")
}
