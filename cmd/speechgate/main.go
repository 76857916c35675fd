package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/eduassist/speechgate/pkg/gateway"
	"github.com/eduassist/speechgate/pkg/logging"
	"github.com/eduassist/speechgate/pkg/metrics"
	"github.com/eduassist/speechgate/pkg/redact"
	"github.com/eduassist/speechgate/pkg/runner"
	"github.com/eduassist/speechgate/pkg/server"
)

func main() {
	configPath := flag.String("config", "speechgate.yaml", "path to config file")
	flag.Parse()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		})
		if err != nil {
			logger.Warn("sentry init failed", slog.String("error", err.Error()))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	obs, closeObs, err := buildObserver(cfg.Observability)
	if err != nil {
		logger.Error("metrics init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeObs()

	factory, err := gateway.BuildFactory(cfg.Vendor)
	if err != nil {
		logger.Error("vendor config invalid", slog.String("error", err.Error()))
		sentry.CaptureException(err)
		os.Exit(1)
	}

	srv := server.New(cfg.Server, factory, obs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lr := runner.NewLifecycleRunner(srv, runner.Hooks{
		OnStart: func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("server start failed", slog.String("error", err.Error()))
				sentry.CaptureException(err)
				stop()
			}
		},
		OnStop: func() {
			logger.Info("gateway stopped")
		},
	}, 10*time.Second)

	if err := lr.Run(ctx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func buildObserver(cfg gateway.ObservabilityConfig) (metrics.Observer, func(), error) {
	if cfg.MetricsFile == "" {
		return metrics.NoopObserver{}, func() {}, nil
	}
	f, err := os.OpenFile(cfg.MetricsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	async := metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 512)
	obs := metrics.SampleFrames(async, cfg.FrameSampleRate)
	return obs, func() {
		async.Close()
		_ = f.Close()
	}, nil
}
