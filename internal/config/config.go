// Package config loads application configuration from an optional YAML file
// with environment variable overrides. All values are fixed at process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultExportPassword is used when no export password is configured.
// Deployments are expected to override it.
const DefaultExportPassword = "change-me"

// KeystoreConfig selects and configures the credential store backend.
type KeystoreConfig struct {
	// Type is "sqlite" (default) or "postgres".
	Type string `yaml:"type"`
	// Path is the SQLite database path.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// ArchiveConfig configures optional snapshot archiving to S3-compatible
// storage. Archiving is disabled unless Endpoint and Bucket are set.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	UseSSL    bool   `yaml:"use-ssl"`
}

// Config is the full application configuration.
type Config struct {
	// Port is the HTTP listening port.
	Port int `yaml:"port"`
	// ExportPassword gates the unmasked key export endpoint.
	ExportPassword string `yaml:"export-password"`
	// UsageURL is the remote usage-metering endpoint.
	UsageURL string `yaml:"usage-url"`
	// RefreshInterval is the period of the background snapshot refresh.
	RefreshInterval time.Duration `yaml:"refresh-interval"`
	// FetchConcurrency bounds concurrent fetches within one batch chunk.
	FetchConcurrency int `yaml:"fetch-concurrency"`
	// BatchPause is the pacing delay between batch chunks.
	BatchPause time.Duration `yaml:"batch-pause"`
	// FetchTimeout caps a single remote fetch.
	FetchTimeout time.Duration `yaml:"fetch-timeout"`
	// LogFile enables rotating file output when set.
	LogFile string `yaml:"log-file"`

	Keystore KeystoreConfig `yaml:"keystore"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

func defaults() *Config {
	return &Config{
		Port:             3000,
		ExportPassword:   DefaultExportPassword,
		UsageURL:         "https://api.metering.example.com/v1/usage",
		RefreshInterval:  60 * time.Second,
		FetchConcurrency: 10,
		BatchPause:       100 * time.Millisecond,
		FetchTimeout:     30 * time.Second,
		Keystore: KeystoreConfig{
			Type: "sqlite",
			Path: "./data/keys.db",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.WithField("path", path).Info("Loaded config file")
	}

	applyEnv(cfg)

	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 10
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 60 * time.Second
	}
	if cfg.ExportPassword == "" {
		cfg.ExportPassword = DefaultExportPassword
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		} else {
			log.WithField("value", v).Warn("Invalid PORT, keeping previous value")
		}
	}
	if v := os.Getenv("EXPORT_PASSWORD"); v != "" {
		cfg.ExportPassword = v
	}
	if v := os.Getenv("USAGE_URL"); v != "" {
		cfg.UsageURL = v
	}
	envDuration("REFRESH_INTERVAL", &cfg.RefreshInterval)
	envDuration("BATCH_PAUSE", &cfg.BatchPause)
	envDuration("FETCH_TIMEOUT", &cfg.FetchTimeout)
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchConcurrency = n
		}
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("KEYSTORE_TYPE"); v != "" {
		cfg.Keystore.Type = v
	}
	if v := os.Getenv("KEYSTORE_PATH"); v != "" {
		cfg.Keystore.Path = v
	}
	if v := os.Getenv("KEYSTORE_DSN"); v != "" {
		cfg.Keystore.DSN = v
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("ARCHIVE_USE_SSL"); v != "" {
		cfg.Archive.UseSSL = v == "true" || v == "1"
	}
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.WithFields(log.Fields{"name": name, "value": v}).Warn("Invalid duration, keeping previous value")
		return
	}
	*dst = d
}
