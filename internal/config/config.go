package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=inventario port=5432 sslmode=disable"

type Config struct {
	HTTPPort           string
	DatabaseDSN        string
	JWTSecret          string
	CORSOrigins        string
	RedisAddress       string // empty keeps the commit lock in process
	LogLevel           string
	CatalogLookupChunk int // max product codes per IN query
}

// DeviceConfig drives the capture CLI on a counting device.
type DeviceConfig struct {
	DatabasePath string
	ServerURL    string
	Token        string
	BatchLimit   int
	ChunkSize    int
	MaxRetries   int
	BackoffBase  time.Duration
	HTTPTimeout  time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:        getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSOrigins:        getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		RedisAddress:       getEnv("REDIS_ADDRESS", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CatalogLookupChunk: getEnvInt("CATALOG_LOOKUP_CHUNK", 1000),
	}

	SetLogLevel(cfg.LogLevel)
	logger := GetLogger()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	if cfg.DatabaseDSN == defaultDSN {
		logger.Warn("DATABASE_DSN is using the local default")
	}
	if cfg.RedisAddress == "" {
		logger.Warn("REDIS_ADDRESS is not set, the verification commit lock is local to this process")
	}

	return cfg
}

func LoadDevice() *DeviceConfig {
	_ = godotenv.Load()

	return &DeviceConfig{
		DatabasePath: getEnv("CAPTURE_DB", "./capture.db"),
		ServerURL:    strings.TrimRight(getEnv("CAPTURE_SERVER_URL", "http://localhost:8080"), "/"),
		Token:        getEnv("CAPTURE_TOKEN", ""),
		BatchLimit:   getEnvInt("CAPTURE_BATCH_LIMIT", 800),
		ChunkSize:    getEnvInt("CAPTURE_CHUNK_SIZE", 500),
		MaxRetries:   getEnvInt("CAPTURE_MAX_RETRIES", 3),
		BackoffBase:  getEnvDuration("CAPTURE_BACKOFF_BASE", 500*time.Millisecond),
		HTTPTimeout:  getEnvDuration("CAPTURE_HTTP_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
