// Package config loads teammatchd settings from defaults, an optional
// config.yaml and the environment.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daemon.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        string `mapstructure:"PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Snapshot storage
	StorageDriver    string        `mapstructure:"STORAGE_DRIVER"`
	WorkbookPath     string        `mapstructure:"WORKBOOK_PATH"`
	SQLitePath       string        `mapstructure:"SQLITE_PATH"`
	PostgresDSN      string        `mapstructure:"POSTGRES_DSN"`
	SnapshotInterval time.Duration `mapstructure:"SNAPSHOT_INTERVAL"`
	SnapshotOnCommit bool          `mapstructure:"SNAPSHOT_ON_COMMIT"`
	SnapshotArchive  bool          `mapstructure:"SNAPSHOT_ARCHIVE"`

	// Blob storage for uploads and archived snapshots
	BlobDriver         string `mapstructure:"BLOB_DRIVER"`
	BlobFSRoot         string `mapstructure:"BLOB_FS_ROOT"`
	BlobS3Bucket       string `mapstructure:"BLOB_S3_BUCKET"`
	BlobS3Region       string `mapstructure:"BLOB_S3_REGION"`
	BlobS3Endpoint     string `mapstructure:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle    bool   `mapstructure:"BLOB_S3_PATH_STYLE"`
	BlobS3AccessKey    string `mapstructure:"BLOB_S3_ACCESS_KEY_ID"`
	BlobS3SecretKey    string `mapstructure:"BLOB_S3_SECRET_ACCESS_KEY"`
	BlobS3SessionToken string `mapstructure:"BLOB_S3_SESSION_TOKEN"`

	// HTTP
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`
	MaxUploadBytes int64    `mapstructure:"MAX_UPLOAD_BYTES"`
}

var (
	storageDrivers = []string{"workbook", "sqlite", "postgres", "memory"}
	blobDrivers    = []string{"fs", "s3", "memory"}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

// Load reads configuration using a fresh viper instance. Config files are
// searched in dirs, or in "." and "./config" when none are given.
func Load(dirs ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(dirs) == 0 {
		dirs = []string{".", "./config"}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORAGE_DRIVER", "workbook")
	v.SetDefault("WORKBOOK_PATH", "data/teammatch.xlsx")
	v.SetDefault("SQLITE_PATH", "data/teammatch.db")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("SNAPSHOT_INTERVAL", "1h")
	v.SetDefault("SNAPSHOT_ON_COMMIT", false)
	v.SetDefault("SNAPSHOT_ARCHIVE", false)

	v.SetDefault("BLOB_DRIVER", "fs")
	v.SetDefault("BLOB_FS_ROOT", "data/blobs")
	v.SetDefault("BLOB_S3_BUCKET", "")
	v.SetDefault("BLOB_S3_REGION", "us-east-1")
	v.SetDefault("BLOB_S3_ENDPOINT", "")
	v.SetDefault("BLOB_S3_PATH_STYLE", false)
	v.SetDefault("BLOB_S3_ACCESS_KEY_ID", "")
	v.SetDefault("BLOB_S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("BLOB_S3_SESSION_TOKEN", "")

	v.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
}

func validate(cfg *Config) error {
	if !slices.Contains(storageDrivers, cfg.StorageDriver) {
		return fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "postgres" && cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for the postgres storage driver")
	}
	if cfg.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive")
	}
	if !slices.Contains(blobDrivers, cfg.BlobDriver) {
		return fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
	}
	if cfg.BlobDriver == "s3" && cfg.BlobS3Bucket == "" {
		return fmt.Errorf("BLOB_S3_BUCKET is required for the s3 blob driver")
	}
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return fmt.Errorf("unknown LOG_LEVEL %q", cfg.LogLevel)
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
