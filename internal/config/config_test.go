package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

log:
  level: debug
  redact_pii: false

dispatch:
  chunk_size: 40
  batch_width: 8
  chunk_delay_ms: 1500
  session_id: "ops-console"

quota:
  daily_limit: 500
  timezone: "America/New_York"

checkpoint:
  driver: redis
  redis_url: "redis://localhost:6379/2"

transport:
  provider: ses
  from_email: "news@example.com"
  ses:
    region: eu-west-1
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.ShouldRedact())

	// Explicit tuning
	assert.Equal(t, 40, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 8, cfg.Dispatch.BatchWidth)
	assert.Equal(t, 1500*time.Millisecond, Millis(cfg.Dispatch.ChunkDelayMS))
	assert.Equal(t, "ops-console", cfg.Dispatch.SessionID)

	// Defaults for the rest
	assert.Equal(t, 3, cfg.Dispatch.AttachmentBatchWidth)
	assert.Equal(t, 5, cfg.Dispatch.DirectMaxRecipients)
	assert.Equal(t, 100, cfg.Dispatch.BatchedMaxRecipients)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 2000, cfg.Dispatch.RetryDelayMS)
	assert.Equal(t, 4000, cfg.Dispatch.AttachmentBatchDelayMS)

	assert.Equal(t, 500, cfg.Quota.DailyLimit)
	assert.Equal(t, "America/New_York", cfg.Quota.Location().String())

	assert.Equal(t, "redis", cfg.Checkpoint.Driver)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Checkpoint.RedisURL)

	assert.Equal(t, "ses", cfg.Transport.Provider)
	assert.Equal(t, "eu-west-1", cfg.Transport.SES.Region)
	assert.Equal(t, "https://gmail.googleapis.com", cfg.Transport.Gmail.BaseURL)
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.True(t, cfg.Log.ShouldRedact())
	assert.Equal(t, 50, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 6, cfg.Dispatch.BatchWidth)
	assert.Equal(t, 1000, cfg.Dispatch.DirectDelayMS)
	assert.Equal(t, 2000, cfg.Dispatch.ChunkDelayMS)
	assert.Equal(t, "default", cfg.Dispatch.SessionID)
	assert.Equal(t, "file", cfg.Checkpoint.Driver)
	assert.Equal(t, "gmail", cfg.Transport.Provider)
	assert.Equal(t, time.UTC, cfg.Quota.Location())
	assert.Equal(t, 30*time.Minute, cfg.Lock.TTL())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("dispatch: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("CHECKPOINT_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://dispatch@localhost/dispatch?sslmode=disable")
	t.Setenv("DISPATCH_DAILY_LIMIT", "1500")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "refresh-123")
	t.Setenv("MAIL_PROVIDER", "ses")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Checkpoint.Driver)
	assert.Equal(t, "postgres://dispatch@localhost/dispatch?sslmode=disable", cfg.Checkpoint.DatabaseURL)
	assert.Equal(t, 1500, cfg.Quota.DailyLimit)
	assert.Equal(t, "refresh-123", cfg.OAuth.RefreshToken)
	assert.Equal(t, "ses", cfg.Transport.Provider)
}

func TestLoadFromEnv_IgnoresBadDailyLimit(t *testing.T) {
	t.Setenv("DISPATCH_DAILY_LIMIT", "lots")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Quota.DailyLimit)
}

func TestQuotaLocation_InvalidFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, QuotaConfig{Timezone: "Mars/Olympus"}.Location())
}

func TestGetAWSProfile(t *testing.T) {
	c := CheckpointConfig{AWSProfile: "dev"}
	assert.Equal(t, "dev", c.GetAWSProfile())

	t.Setenv("AWS_PROFILE_OVERRIDE", "iam")
	assert.Equal(t, "", c.GetAWSProfile())
}
