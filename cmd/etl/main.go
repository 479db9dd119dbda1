package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/weather-mail-etl/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/weather-mail-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-mail-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-mail-etl/internal/adapter/mailbox"
	"github.com/couchcryptid/weather-mail-etl/internal/adapter/weather"
	"github.com/couchcryptid/weather-mail-etl/internal/config"
	"github.com/couchcryptid/weather-mail-etl/internal/observability"
	"github.com/couchcryptid/weather-mail-etl/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := filestore.New(cfg.EnergyHistoryDir, cfg.WeatherDir, cfg.WeatherStagingDir)
	if err != nil {
		logger.Error("failed to prepare output directories", "error", err)
		return 1
	}

	weatherClient := weather.NewClient(cfg.WeatherBaseURL, cfg.WeatherUsername, cfg.WeatherPassword,
		cfg.WeatherTimeout, cfg.WeatherLocation, logger, metrics)
	dispatcher := pipeline.NewDispatcher(
		pipeline.NewEnergyHistoryConverter(store),
		pipeline.NewIrradianceConverter(store, weatherClient, cfg.WeatherLocation, logger),
		pipeline.NewForecastConverter(store),
		pipeline.NewObservedConverter(store),
	)

	// Notifications are feature-flagged via KAFKA_BROKERS.
	var notifier pipeline.Notifier
	if cfg.NotificationsEnabled() {
		kn := kafkaadapter.NewNotifier(cfg, logger)
		defer func() {
			if err := kn.Close(); err != nil {
				logger.Error("kafka notifier close error", "error", err)
			}
		}()
		notifier = kn
		logger.Info("conversion notifications enabled", "topic", cfg.KafkaTopic)
	}

	source := mailbox.NewClient(cfg.MailHost, cfg.MailPort, cfg.MailUsername, cfg.MailPassword,
		cfg.MailTLS, cfg.MailFolder, cfg.MailFrom, logger)
	p := pipeline.New(source, dispatcher, notifier, logger, metrics, cfg.MessageDelay)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	report, err := p.Run(ctx)
	if report != nil {
		report.Print(os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stdout, "Run aborted:\n%v\n", err)
		return 1
	}
	return report.ExitCode()
}
