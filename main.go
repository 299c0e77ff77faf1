package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/vegardkv/travelpredict/config"
	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/processor"
	"github.com/vegardkv/travelpredict/reader/entur"
	"github.com/vegardkv/travelpredict/snapshot"
	"github.com/vegardkv/travelpredict/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	mode := flag.String("mode", "collect", "Run mode: collect, reconcile, migrate or archive")
	deleteExports := flag.Bool("delete-exports", false, "Delete flat-file exports after a fully successful migration")

	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Travelpredict.Name,
		"version": cfg.Travelpredict.Version,
		"mode":    *mode,
	}).Info("starting travelpredict")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	switch strings.ToLower(*mode) {
	case "collect":
		runCollect(ctx, cfg, log)
	case "reconcile":
		runReconcile(ctx, cfg, log)
	case "migrate":
		runMigrate(ctx, cfg, log, *deleteExports)
	case "archive":
		runArchive(ctx, cfg, log)
	default:
		log.WithFields(logger.Fields{"mode": *mode}).Error("unknown mode")
		os.Exit(1)
	}

	log.Info("travelpredict stopped")
}

func runCollect(ctx context.Context, cfg *appconfig.Config, log *logger.Log) {
	store, err := snapshot.NewStore(cfg.Storage.Snapshots.Dir, cfg.Storage.Snapshots.ProcessedDir)
	if err != nil {
		log.WithError(err).Error("failed to open snapshot store")
		os.Exit(1)
	}

	sched, err := entur.NewScheduler(cfg, entur.NewClient(cfg), store)
	if err != nil {
		log.WithError(err).Error("failed to create scheduler")
		os.Exit(1)
	}

	summary, err := sched.Run(ctx)
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("collection run failed")
		os.Exit(1)
	}
	if summary != nil {
		log.WithFields(logger.Fields{
			"fetches":   summary.Fetches,
			"failures":  summary.Failures,
			"snapshots": summary.Snapshots,
		}).Info("collection finished")
	}
}

func runReconcile(ctx context.Context, cfg *appconfig.Config, log *logger.Log) {
	store, err := snapshot.NewStore(cfg.Storage.Snapshots.Dir, cfg.Storage.Snapshots.ProcessedDir)
	if err != nil {
		log.WithError(err).Error("failed to open snapshot store")
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		log.WithError(err).Error("failed to load feed timezone")
		os.Exit(1)
	}

	records, consumed, summary, err := processor.NewAggregator(store, loc).Run()
	if err != nil {
		log.WithError(err).Error("reconciliation failed")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{
		"pending": summary.Pending,
		"parsed":  summary.Parsed,
		"skipped": summary.Skipped,
		"records": summary.Records,
	}).Info("reconciliation finished")

	if _, err := writer.ExportCSV(records, cfg.Storage.Snapshots.DeviationsDir); err != nil {
		log.WithError(err).Error("export failed")
		os.Exit(1)
	}

	if cfg.Storage.Postgres.Enabled {
		repo, err := writer.NewRepository(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("failed to open deviation repository")
			os.Exit(1)
		}
		defer repo.Close()

		if err := repo.CreateSchema(ctx); err != nil {
			log.WithError(err).Error("failed to create schema")
			os.Exit(1)
		}

		report, err := repo.Upsert(ctx, records, cfg.Writer.BatchSize)
		if err != nil {
			log.WithError(err).Error("upsert failed")
			os.Exit(1)
		}
		if len(report.FailedBatches) > 0 {
			// Snapshots stay pending so the failed rows are retried next run.
			log.WithFields(logger.Fields{"failed_batches": report.FailedBatches}).Warn("upsert incomplete, keeping snapshots pending")
			return
		}
	}

	if err := store.Archive(consumed); err != nil {
		log.WithError(err).Error("failed to archive snapshots")
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg *appconfig.Config, log *logger.Log, deleteExports bool) {
	if !cfg.Storage.Postgres.Enabled {
		log.Error("migration requires storage.postgres.enabled")
		os.Exit(1)
	}

	repo, err := writer.NewRepository(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to open deviation repository")
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.CreateSchema(ctx); err != nil {
		log.WithError(err).Error("failed to create schema")
		os.Exit(1)
	}

	migrator := writer.NewMigrator(repo, cfg.Storage.Snapshots.DeviationsDir, cfg.Writer.BatchSize)
	if _, err := migrator.Run(ctx, deleteExports); err != nil {
		log.WithError(err).Error("migration failed")
		os.Exit(1)
	}
}

func runArchive(ctx context.Context, cfg *appconfig.Config, log *logger.Log) {
	archiver, err := snapshot.NewArchiver(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create archiver")
		os.Exit(1)
	}
	if err := archiver.Run(ctx); err != nil {
		log.WithError(err).Error("archiving failed")
		os.Exit(1)
	}
}
