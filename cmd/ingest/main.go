package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/config"
	"github.com/ledgerkeep/ledgerkeep/internal/events"
	"github.com/ledgerkeep/ledgerkeep/internal/events/kafka"
	"github.com/ledgerkeep/ledgerkeep/internal/ingest"
	"github.com/ledgerkeep/ledgerkeep/internal/logger"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/ledgerkeep/ledgerkeep/internal/storage/bigquery"
	"github.com/ledgerkeep/ledgerkeep/internal/storage/postgres"
)

func main() {
	log := logger.New()

	batchURI := flag.String("batch", "", "Batch file to ingest: a local path or gs://bucket/object")
	flag.Parse()

	if *batchURI == "" {
		log.Fatal().Msg("Error: --batch is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer cleanup()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	log.Info().Str("batch", *batchURI).Msg("Starting ingestion")

	batch, err := ingest.LoadBatch(ctx, *batchURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load batch")
	}

	service := ingest.NewService(store, cfg.Recon, publisher, log)
	report, err := service.Run(ctx, batch)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode report")
	}
	fmt.Println(string(out))

	if !report.Applied {
		// Account selection or disambiguation is still pending.
		os.Exit(2)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		store, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreBigQuery:
		store, err := bigquery.NewStore(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("openStore: STORE_DRIVER %q has no durable backend for CLI ingestion", cfg.StoreDriver)
	}
}
