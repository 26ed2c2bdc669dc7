// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ledgerkeep/ledgerkeep/internal/recon"
)

// Store drivers selectable via STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBigQuery = "bigquery"
)

type Config struct {
	HTTPAddr string

	StoreDriver     string
	PostgresURL     string
	BigQueryProject string
	BigQueryDataset string

	KafkaBrokers []string
	KafkaTopic   string

	Recon recon.Config
}

// Load reads configuration from the environment. A .env file is
// loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:     getEnv("STORE_DRIVER", StoreMemory),
		PostgresURL:     getEnv("DATABASE_URL", ""),
		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "ledger"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "batch_reconciled"),
		Recon:           recon.DefaultConfig(),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.Recon.WindowBufferDays, err = getEnvInt("RECON_WINDOW_BUFFER_DAYS", cfg.Recon.WindowBufferDays); err != nil {
		return nil, err
	}
	if cfg.Recon.NearDuplicateDays, err = getEnvInt("RECON_NEAR_DUPLICATE_DAYS", cfg.Recon.NearDuplicateDays); err != nil {
		return nil, err
	}
	if cfg.Recon.PendingWindowDays, err = getEnvInt("RECON_PENDING_WINDOW_DAYS", cfg.Recon.PendingWindowDays); err != nil {
		return nil, err
	}
	if cfg.Recon.TransferWindowDays, err = getEnvInt("RECON_TRANSFER_WINDOW_DAYS", cfg.Recon.TransferWindowDays); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL is required with STORE_DRIVER=postgres")
		}
	case StoreBigQuery:
		if cfg.BigQueryProject == "" {
			return nil, fmt.Errorf("config: BIGQUERY_PROJECT is required with STORE_DRIVER=bigquery")
		}
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}
