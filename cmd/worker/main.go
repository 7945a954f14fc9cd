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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/paygate/internal/infrastructure/database"
	"github.com/orris-inc/paygate/internal/infrastructure/metrics"
	"github.com/orris-inc/paygate/internal/infrastructure/paymentstack"
	"github.com/orris-inc/paygate/internal/infrastructure/scheduler"
	"github.com/orris-inc/paygate/internal/infrastructure/telemetry"
	"github.com/orris-inc/paygate/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/paygate/internal/shared/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

// run drives the expiry and recovery sweep jobs until SIGINT or SIGTERM.
// WORKER_METRICS_ADDR, when set, serves /metrics for scraping.
func run() error {
	env := "development"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}

	e, err := bootstrap.Load(env, os.Getenv("PAYGATE_CONFIG"))
	if err != nil {
		return err
	}
	cfg, log := e.Config, e.Log
	log.Infow("starting payment worker", "environment", e.Name, "version", version.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version.String(), log.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	if err := e.OpenDatabase(); err != nil {
		return err
	}
	defer database.Close()

	var redisClient *redis.Client
	if paymentstack.NeedsRedis(cfg) {
		redisClient, err = paymentstack.ConnectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		log.Infow("redis connection established", "address", cfg.Redis.GetAddr())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	stack, err := paymentstack.Build(cfg, database.Get(), redisClient, m, log)
	if err != nil {
		return err
	}
	defer stack.Close()

	jobs, err := scheduler.NewSchedulerManager(log.Named("scheduler"))
	if err != nil {
		return err
	}
	jobs.SetObserver(m)
	if err := jobs.RegisterExpiryJob(stack.Expire, cfg.Payment.ExpiryInterval()); err != nil {
		return err
	}
	if err := jobs.RegisterRecoverySweepJob(stack.RecoverySweep, cfg.Payment.SweepInterval()); err != nil {
		return err
	}
	jobs.Start()
	defer func() {
		if err := jobs.Stop(); err != nil {
			log.Warnw("scheduler stop failed", "error", err)
		}
	}()

	var metricsSrv *http.Server
	if addr := os.Getenv("WORKER_METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
		log.Infow("serving worker metrics", "address", addr)
	}

	log.Infow("payment worker started",
		"expiry_interval", cfg.Payment.ExpiryInterval(),
		"sweep_interval", cfg.Payment.SweepInterval())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received signal, shutting down", "signal", sig)

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Infow("payment worker stopped")
	return nil
}
