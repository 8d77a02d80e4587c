package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadDevice_Defaults(t *testing.T) {
	t.Setenv("CAPTURE_DB", "")
	t.Setenv("CAPTURE_SERVER_URL", "")
	t.Setenv("CAPTURE_BATCH_LIMIT", "")
	t.Setenv("CAPTURE_CHUNK_SIZE", "")
	t.Setenv("CAPTURE_MAX_RETRIES", "")
	t.Setenv("CAPTURE_BACKOFF_BASE", "")

	cfg := LoadDevice()
	assert.Equal(t, "./capture.db", cfg.DatabasePath)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 800, cfg.BatchLimit)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
}

func TestLoadDevice_Overrides(t *testing.T) {
	t.Setenv("CAPTURE_SERVER_URL", "https://audit.example.com/")
	t.Setenv("CAPTURE_BATCH_LIMIT", "50")
	t.Setenv("CAPTURE_CHUNK_SIZE", "not-a-number")
	t.Setenv("CAPTURE_BACKOFF_BASE", "2s")

	cfg := LoadDevice()
	assert.Equal(t, "https://audit.example.com", cfg.ServerURL)
	assert.Equal(t, 50, cfg.BatchLimit)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
}

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { SetLogLevel("info") })

	SetLogLevel("debug")
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	SetLogLevel("nonsense")
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
}
