// Command icephys-ingest scans the configured stores for sessions and cells
// that are missing derived recordings and ingests them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"icephys/internal/adapter"
	"icephys/internal/archive"
	"icephys/internal/config"
	"icephys/internal/ingest"
	"icephys/internal/store"
)

var exitFunc = os.Exit

func main() {
	configPath := flag.String("config", "icephys.toml", "path to TOML configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		exitFunc(1)
		return
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, log); err != nil {
		log.Errorw("ingest failed", "error", err)
		exitFunc(1)
	}
}

func run(ctx context.Context, configPath string, log *zap.SugaredLogger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	adapters, err := adapter.New(adapter.Config{
		SessionDir: cfg.Paths.SessionStore,
		SeriesDir:  cfg.Paths.SeriesStore,
	})
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Prefix: cfg.Database.Prefix,
	}, adapters)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	arch, err := archive.Open(ctx, archive.Config{
		Driver: archive.Driver(cfg.Archive.Driver),
		Root:   cfg.Archive.Root,
		S3: archive.S3Config{
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			Endpoint:  cfg.Archive.Endpoint,
			PathStyle: cfg.Archive.PathStyle,
		},
	})
	if err != nil {
		return err
	}

	metrics := ingest.NewMetrics(prometheus.DefaultRegisterer)
	pipeline := ingest.New(st, adapters, cfg.Paths.SessionData, arch, log, metrics)

	tally, err := pipeline.Populate(ctx)
	if err != nil {
		return err
	}
	log.Infow("populate finished", "succeeded", tally.Succeeded, "failed", tally.Failed)
	if tally.Failed > 0 {
		return fmt.Errorf("%d ingest operations failed", tally.Failed)
	}
	return nil
}
