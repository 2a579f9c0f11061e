package main

// Package main is the entry point of the kubilitics-forecast service.
//
// Responsibilities:
//   - Load and validate configuration from YAML, .env files and FORECAST_* variables
//   - Build the logger, tracer provider, record store and optional record cache
//   - Wire the analytics orchestrator behind the HTTP, WebSocket and gRPC health servers
//   - Run the report-warming and retention scheduler when enabled
//   - Shut everything down in reverse order on SIGINT/SIGTERM

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/scoring"
	"github.com/kubilitics/kubilitics-forecast/internal/cache"
	"github.com/kubilitics/kubilitics-forecast/internal/config"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/logging"
	"github.com/kubilitics/kubilitics-forecast/internal/scheduler"
	"github.com/kubilitics/kubilitics-forecast/internal/server"
	"github.com/kubilitics/kubilitics-forecast/internal/tracing"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		configPath string
		envFiles   []string
	)
	cmd := &cobra.Command{
		Use:           "forecast-server",
		Short:         "Predictive analytics service for logistics tenants",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, envFiles)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to the YAML configuration file")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files loaded before reading the environment")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "forecast-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, envFiles []string) error {
	mgr, err := config.NewConfigManager(configPath, envFiles...)
	if err != nil {
		return err
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	cfg := mgr.Get(ctx)

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", "kubilitics-forecast"), zap.String("version", version))
	logger.Info("starting", zap.String("config", configPath))

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		Protocol:     cfg.Tracing.Protocol,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, err := db.Open(ctx, db.Config{
		Type:         cfg.Database.Type,
		SQLitePath:   cfg.Database.SQLitePath,
		PostgresURL:  cfg.Database.PostgresURL,
		MaxOpenConns: cfg.Database.MaxOpenConn,
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Type, err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("record store ready", zap.String("type", cfg.Database.Type))

	var (
		provider    analytics.RecordProvider = store
		invalidator server.Invalidator
	)
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	recordCache, err := cache.New(ctx, cache.Config{
		Backend:       cfg.Cache.Backend,
		TTL:           ttl,
		MaxEntries:    cfg.Cache.MaxEntries,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}
	if recordCache != nil {
		defer func() { _ = recordCache.Close() }()
		cp := cache.NewCachingProvider(store, recordCache, ttl, logger.Named("cache"))
		provider, invalidator = cp, cp
		logger.Info("record cache enabled", zap.String("backend", recordCache.Name()), zap.Duration("ttl", ttl))
	}

	orch := analytics.NewOrchestrator(provider, orchestratorOptions(cfg, logger))

	srv, err := server.New(server.Config{
		Port:               cfg.Server.Port,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		ReadTimeout:        time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:       time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
	}, server.Deps{
		Runner:      orch,
		Registry:    orch.Registry(),
		Store:       store,
		Invalidator: invalidator,
		Logger:      logger.Named("http"),
	})
	if err != nil {
		return err
	}
	server.Version = version
	grpcSrv := server.NewGRPCServer(cfg.Server.GRPCPort, store, logger.Named("grpc"))

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(orch, store, scheduler.Options{
			Spec:          cfg.Scheduler.Spec,
			Tenants:       cfg.Scheduler.Tenants,
			Domains:       cfg.Scheduler.Domains,
			Horizon:       cfg.Scheduler.Horizon,
			RetentionDays: cfg.Scheduler.RetentionDays,
		}, logger.Named("scheduler"))
		if err != nil {
			return err
		}
		sched.OnReport(srv.Hub().BroadcastReport)
		sched.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error { return grpcSrv.Serve(gctx) })
	g.Go(func() error {
		changes := mgr.Watch(gctx)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-changes:
				logger.Info("configuration file changed; restart to apply")
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if sched != nil {
			if err := sched.Stop(sctx); err != nil {
				errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
			}
		}
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func orchestratorOptions(cfg *config.Config, logger *zap.Logger) analytics.Options {
	a := cfg.Analytics
	return analytics.Options{
		Registry:           forecasting.DefaultRegistry(),
		Engine:             recommendation.NewEngine(a.Thresholds, recommendation.WithPrioritySort(a.PrioritySort)),
		Quality:            scoring.NewQualityAssessor(a.QualityAssessor),
		Accuracy:           scoring.NewAccuracyEstimator(a.AccuracyEstimator),
		DefaultHorizon:     a.DefaultHorizon,
		MaxHorizon:         a.MaxHorizon,
		LookbackMultiplier: a.LookbackMultiplier,
		Noise: analytics.NoiseOptions{
			Enabled: a.NoiseEnabled,
			Scale:   a.NoiseScale,
			Seed:    a.NoiseSeed,
		},
		Logger: logger.Named("analytics"),
	}
}
