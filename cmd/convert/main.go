// Command convert runs attachments saved in a local directory through the
// same conversions as a mailbox run. It is used to replay files left in the
// staging directory after a failed run, or to check a new report by hand.
//
// Usage:
//
//	go run ./cmd/convert \
//	  -in /srv/data/weather_temp \
//	  -out /srv/data \
//	  -weather-url https://weather.example.com/griddly
//
// Weather credentials are read from WEATHER_USERNAME and WEATHER_PASSWORD.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/weather-mail-etl/internal/adapter/filestore"
	"github.com/couchcryptid/weather-mail-etl/internal/adapter/weather"
	"github.com/couchcryptid/weather-mail-etl/internal/observability"
	"github.com/couchcryptid/weather-mail-etl/internal/pipeline"
)

func main() {
	inDir := flag.String("in", "", "directory holding the attachments to convert")
	outDir := flag.String("out", "", "root output directory (energyHistory, weather, weather_temp)")
	weatherURL := flag.String("weather-url", sharedcfg.EnvOrDefault("WEATHER_BASE_URL", ""), "weather service base URL")
	tz := flag.String("timezone", sharedcfg.EnvOrDefault("WEATHER_TIMEZONE", "UTC"), "IANA zone of naive timestamps")
	timeout := flag.Duration("timeout", 30*time.Second, "weather request timeout, 0 for none")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *inDir == "" || *outDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*inDir, *outDir, strings.TrimRight(*weatherURL, "/"), *tz, *timeout, *verbose))
}

func run(inDir, outDir, weatherURL, tz string, timeout time.Duration, verbose bool) int {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetrics()

	loc, err := time.LoadLocation(tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: timezone %q: %v\n", tz, err)
		return 1
	}

	// Replaying from the staging directory must not write back into it.
	staging := filepath.Join(outDir, "weather_temp")
	if same(inDir, staging) {
		staging = filepath.Join(outDir, "weather_replay")
	}
	store, err := filestore.New(filepath.Join(outDir, "energyHistory"), filepath.Join(outDir, "weather"), staging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	converters := []pipeline.Converter{
		pipeline.NewEnergyHistoryConverter(store),
		pipeline.NewForecastConverter(store),
		pipeline.NewObservedConverter(store),
	}
	if weatherURL != "" {
		client := weather.NewClient(weatherURL, os.Getenv("WEATHER_USERNAME"), os.Getenv("WEATHER_PASSWORD"),
			timeout, loc, logger, metrics)
		converters = append(converters, pipeline.NewIrradianceConverter(store, client, loc, logger))
	} else {
		fmt.Println("Note: no weather URL, csv uploads are skipped")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(filestore.NewDirSource(inDir), pipeline.NewDispatcher(converters...), nil, logger, metrics, 0)
	report, err := p.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		if report == nil {
			return 1
		}
	}

	fmt.Printf("Converted %d, skipped %d, failed %d\n", report.Converted, report.Skipped, len(report.Failures))
	report.Print(os.Stdout)
	if err != nil {
		return 1
	}
	return report.ExitCode()
}

func same(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
