package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration for the index synchronization
// service.
type Config struct {
	ElasticURLs      []string `env:"ELASTIC_URLS,notEmpty" envSeparator:","`
	ElasticPrefix    string   `env:"ELASTIC_INDEX_PREFIX" envDefault:""`
	KafkaBrokers     []string `env:"KAFKA_BROKERS,notEmpty" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"changes"`

	// DocumentTypes lists the document types the daemon runs on startup.
	DocumentTypes []string `env:"DOCUMENT_TYPES" envSeparator:","`

	BatchSize   int    `env:"BATCH_SIZE" envDefault:"500"`
	WorkerCount int    `env:"WORKER_COUNT" envDefault:"5"`
	RunLockName string `env:"RUN_LOCK_NAME" envDefault:"indexing-run"`

	SuppressInsignificantProgress bool          `env:"SUPPRESS_INSIGNIFICANT_PROGRESS" envDefault:"true"`
	ProgressInterval              time.Duration `env:"PROGRESS_INTERVAL" envDefault:"2s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &cfg, nil
}
