package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Travelpredict TravelpredictConfig `yaml:"travelpredict"`
	Feed          FeedConfig          `yaml:"feed"`
	Collector     CollectorConfig     `yaml:"collector"`
	Storage       StorageConfig       `yaml:"storage"`
	Writer        WriterConfig        `yaml:"writer"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type TravelpredictConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	URL                string          `yaml:"url"`
	ClientName         string          `yaml:"client_name"`
	StopPlaceID        string          `yaml:"stop_place_id"`
	NumberOfDepartures int             `yaml:"number_of_departures"`
	QueryFile          string          `yaml:"query_file"`
	Timezone           string          `yaml:"timezone"`
	Timeout            time.Duration   `yaml:"timeout"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type CollectorConfig struct {
	StartTime       string        `yaml:"start_time"`
	EndTime         string        `yaml:"end_time"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	IdlePoll        time.Duration `yaml:"idle_poll"`
}

type StorageConfig struct {
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type SnapshotsConfig struct {
	Dir           string `yaml:"dir"`
	ProcessedDir  string `yaml:"processed_dir"`
	DeviationsDir string `yaml:"deviations_dir"`
}

type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

type ArchiveConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type WriterConfig struct {
	BatchSize int `yaml:"batch_size"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			Timezone:           "Europe/Oslo",
			Timeout:            30 * time.Second,
			NumberOfDepartures: 50,
			RateLimit:          RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1},
		},
		Collector: CollectorConfig{
			IdlePoll: 30 * time.Second,
		},
		Storage: StorageConfig{
			Snapshots: SnapshotsConfig{
				Dir:           "data",
				ProcessedDir:  "processed",
				DeviationsDir: "deviations",
			},
			Postgres: PostgresConfig{Table: "deviations"},
		},
		Writer: WriterConfig{BatchSize: 1000},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override credentials from environment variables if available
	if v := os.Getenv("ENTUR_CLIENT_NAME"); v != "" {
		config.Feed.ClientName = strings.TrimSpace(v)
	}
	if config.Storage.Postgres.Enabled {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			config.Storage.Postgres.URL = strings.TrimSpace(v)
		}
		if v := os.Getenv("PGPASSWORD"); v != "" {
			config.Storage.Postgres.Password = strings.TrimSpace(v)
		}
	}
	if config.Storage.Archive.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.Archive.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.Archive.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.Archive.S3.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Travelpredict.Name == "" {
		return fmt.Errorf("travelpredict.name is required")
	}

	if cfg.Travelpredict.Version == "" {
		return fmt.Errorf("travelpredict.version is required")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}

	if cfg.Feed.ClientName == "" {
		return fmt.Errorf("feed.client_name is required")
	}

	if cfg.Feed.StopPlaceID == "" && cfg.Feed.QueryFile == "" {
		return fmt.Errorf("one of feed.stop_place_id or feed.query_file is required")
	}

	if _, err := time.LoadLocation(cfg.Feed.Timezone); err != nil {
		return fmt.Errorf("feed.timezone '%s' is invalid: %w", cfg.Feed.Timezone, err)
	}

	if err := validateTimeOfDay(cfg.Collector.StartTime); err != nil {
		return fmt.Errorf("collector.start_time: %w", err)
	}
	if err := validateTimeOfDay(cfg.Collector.EndTime); err != nil {
		return fmt.Errorf("collector.end_time: %w", err)
	}

	if cfg.Collector.IntervalSeconds <= 0 {
		return fmt.Errorf("collector.interval_seconds must be greater than 0")
	}
	if cfg.Collector.IdlePoll <= 0 {
		return fmt.Errorf("collector.idle_poll must be greater than 0")
	}

	if cfg.Writer.BatchSize <= 0 {
		return fmt.Errorf("writer.batch_size must be greater than 0")
	}

	if cfg.Storage.Snapshots.Dir == "" || cfg.Storage.Snapshots.ProcessedDir == "" {
		return fmt.Errorf("storage.snapshots.dir and storage.snapshots.processed_dir are required")
	}

	if cfg.Storage.Postgres.Enabled {
		pg := cfg.Storage.Postgres
		if pg.URL == "" && (pg.Host == "" || pg.Database == "" || pg.User == "" || pg.Password == "") {
			return fmt.Errorf("storage.postgres requires url or host/database/user/password when enabled")
		}
		if pg.Table == "" {
			return fmt.Errorf("storage.postgres.table is required when enabled")
		}
	}

	if cfg.Storage.Archive.S3.Enabled {
		s3 := cfg.Storage.Archive.S3
		if s3.Bucket == "" {
			return fmt.Errorf("storage.archive.s3.bucket is required when S3 is enabled")
		}
		if s3.Region == "" {
			return fmt.Errorf("storage.archive.s3.region is required when S3 is enabled")
		}
	}

	return nil
}

// ParseTimeOfDay splits an "HH:MM" string into hour and minute. A single
// digit hour like "7:00" is accepted the same way the collector's original
// window inputs were.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day '%s', expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in '%s'", s)
	}
	return hour, minute, nil
}

func validateTimeOfDay(s string) error {
	if s == "" {
		return fmt.Errorf("value is required")
	}
	_, _, err := ParseTimeOfDay(s)
	return err
}
