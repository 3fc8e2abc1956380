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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/KingRain/octrix/internal/api"
	"github.com/KingRain/octrix/internal/cache"
	"github.com/KingRain/octrix/internal/classifier"
	"github.com/KingRain/octrix/internal/config"
	"github.com/KingRain/octrix/internal/detector"
	"github.com/KingRain/octrix/internal/escalation"
	"github.com/KingRain/octrix/internal/healer"
	"github.com/KingRain/octrix/internal/metrics"
	"github.com/KingRain/octrix/internal/notify"
	"github.com/KingRain/octrix/internal/repo"
	"github.com/KingRain/octrix/internal/scheduler"
	"github.com/KingRain/octrix/internal/services"
	"github.com/KingRain/octrix/internal/store"
	"github.com/KingRain/octrix/internal/utils"
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
	logger.Info("starting octrix", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	var sink notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger)
	} else {
		sink = notify.LogSink{Logger: logger}
	}

	incidents := store.NewIncidentStore()
	cooldowns := store.NewCooldownTracker(cfg.Detection.CooldownWindow)
	events := store.NewEventLog(cfg.Healing.EventLogSize)

	rules := store.NewRuleRegistry()
	if cfg.Healing.RulePackPath != "" {
		if err := rules.LoadRulePack(cfg.Healing.RulePackPath); err != nil {
			logger.Error("failed to load rule pack", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if cfg.Healing.SeedDefaults && len(rules.List()) == 0 {
		rules.SeedDefaults()
	}

	cls := classifier.New(utils.Component(logger, "classifier"))
	det := detector.New(utils.Component(logger, "detector"), thresholdsFromConfig(cfg.Detection), incidents, cooldowns, cls, sink)
	escalations := escalation.NewManager(utils.Component(logger, "escalation"), sink)
	healerLogger := utils.Component(logger, "healer")
	engine := healer.NewEngine(healerLogger, incidents, rules, events, escalations, healer.DryRunExecutor{Logger: healerLogger})

	var source services.SignalSource
	if cfg.Fleet.BaseURL != "" {
		source = repo.NewFleetClient(cfg.Fleet.BaseURL, cfg.Fleet.SnapshotPath, cfg.Fleet.Timeout, cacheProvider, cfg.Cache.SnapshotTTL)
	} else {
		logger.Warn("no fleet backend configured, running on injected incidents only")
	}

	orchestrator := services.NewOrchestrator(logger, source, det, engine, escalations, incidents, rules, events)

	server := api.NewServer(cfg.Server, orchestrator, logger)
	detectionLoop := scheduler.NewLoop("detection", cfg.Detection.Interval, orchestrator.DetectionPass, logger)
	healingLoop := scheduler.NewLoop("healing", cfg.Healing.Interval, orchestrator.HealingPass, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

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
		group.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		logger.Info("api server listening", slog.String("address", cfg.Server.Address))
		return server.Start()
	})
	group.Go(func() error {
		detectionLoop.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		healingLoop.Run(groupCtx)
		return nil
	})

	<-groupCtx.Done()
	logger.Info("shutdown signal received")

	detectionLoop.Stop()
	healingLoop.Stop()
	orchestrator.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component exited", slog.Any("error", err))
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("octrix stopped")
}

func thresholdsFromConfig(cfg config.DetectionConfig) detector.Thresholds {
	thresholds := detector.DefaultThresholds()
	if cfg.CPUWarning > 0 {
		thresholds.CPUPercent = detector.Threshold{Warning: cfg.CPUWarning, Critical: cfg.CPUCritical}
	}
	if cfg.MemoryWarning > 0 {
		thresholds.MemoryPercent = detector.Threshold{Warning: cfg.MemoryWarning, Critical: cfg.MemoryCritical}
	}
	if cfg.DiskWarning > 0 {
		thresholds.DiskPercent = detector.Threshold{Warning: cfg.DiskWarning, Critical: cfg.DiskCritical}
	}
	if cfg.RestartsWarning > 0 {
		thresholds.Restarts = detector.Threshold{Warning: cfg.RestartsWarning, Critical: cfg.RestartsCritical}
	}
	return thresholds
}
