package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("PORT", "")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "workbook", cfg.StorageDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.SnapshotInterval)
	assert.Equal(t, "fs", cfg.BlobDriver)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadBytes)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/var/lib/teammatch/state.db")
	t.Setenv("SNAPSHOT_INTERVAL", "15m")
	t.Setenv("SNAPSHOT_ON_COMMIT", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "/var/lib/teammatch/state.db", cfg.SQLitePath)
	assert.Equal(t, 15*time.Minute, cfg.SnapshotInterval)
	assert.True(t, cfg.SnapshotOnCommit)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "STORAGE_DRIVER: postgres\nPOSTGRES_DSN: postgres://u:p@db/teammatch\nBLOB_DRIVER: memory\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("BLOB_DRIVER", "")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, "postgres://u:p@db/teammatch", cfg.PostgresDSN)
	assert.Equal(t, "memory", cfg.BlobDriver)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"unknown storage":  {map[string]string{"STORAGE_DRIVER": "tape"}, "unknown STORAGE_DRIVER"},
		"postgres dsn":     {map[string]string{"STORAGE_DRIVER": "postgres", "POSTGRES_DSN": ""}, "POSTGRES_DSN is required"},
		"zero interval":    {map[string]string{"SNAPSHOT_INTERVAL": "0s"}, "SNAPSHOT_INTERVAL must be positive"},
		"unknown blob":     {map[string]string{"BLOB_DRIVER": "ftp"}, "unknown BLOB_DRIVER"},
		"s3 bucket":        {map[string]string{"BLOB_DRIVER": "s3", "BLOB_S3_BUCKET": ""}, "BLOB_S3_BUCKET is required"},
		"bad log level":    {map[string]string{"LOG_LEVEL": "loud"}, "unknown LOG_LEVEL"},
		"bad upload limit": {map[string]string{"MAX_UPLOAD_BYTES": "0"}, "MAX_UPLOAD_BYTES must be positive"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
