package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Storage     StorageConfig
	Consumption ConsumptionConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	EventExchange    string
	EventRoutingKey  string
	DLQQueue         string
	PrefetchCount    int
}

// StorageConfig holds the blob-storage endpoint and the upload limits
// enforced before any upload is attempted.
type StorageConfig struct {
	BaseURL          string
	APIKey           string
	MaxFileSizeBytes int64
	AllowedMimeTypes []string
}

// ConsumptionConfig holds consumption-rate tuning.
type ConsumptionConfig struct {
	// BootstrapAmortizationDays is the window the first-ever reading of a
	// meter is amortized over when computing its daily rate.
	BootstrapAmortizationDays int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "water-metering-worker"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "water-metering.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "water-metering.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "water.command"),
			EventExchange:    getEnv("RABBITMQ_EVENT_EXCHANGE", "water-metering.events.exchange"),
			EventRoutingKey:  getEnv("RABBITMQ_EVENT_ROUTING_KEY", "water.reading.recorded"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "water-metering.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Storage: StorageConfig{
			BaseURL:          getEnv("STORAGE_BASE_URL", ""),
			APIKey:           getEnv("STORAGE_API_KEY", ""),
			MaxFileSizeBytes: getEnvAsInt64("STORAGE_MAX_FILE_SIZE_BYTES", 10*1024*1024),
			AllowedMimeTypes: getEnvAsList("STORAGE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp"),
		},
		Consumption: ConsumptionConfig{
			BootstrapAmortizationDays: getEnvAsInt("CONSUMPTION_BOOTSTRAP_DAYS", 365),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Storage.BaseURL == "" {
		return nil, fmt.Errorf("STORAGE_BASE_URL is required but not set in environment variables")
	}
	if cfg.Consumption.BootstrapAmortizationDays <= 0 {
		return nil, fmt.Errorf("CONSUMPTION_BOOTSTRAP_DAYS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
