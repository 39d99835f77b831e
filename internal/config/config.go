package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN          string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	HTTPAddr       string
	OperatorIDs    []string
	StorageTimeout time.Duration
	WriteRetries   int
	RetryBackoff   time.Duration
	PendingTTL     time.Duration
	AvailCacheTTL  time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		DBDSN:          os.Getenv("DB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		HTTPAddr:       envOr("HTTP_ADDR", ":8080"),
		OperatorIDs:    splitList(os.Getenv("OPERATOR_IDS")),
		StorageTimeout: envDuration("STORAGE_TIMEOUT", 5*time.Second),
		WriteRetries:   envInt("WRITE_RETRIES", 3),
		RetryBackoff:   envDuration("RETRY_BACKOFF", 100*time.Millisecond),
		PendingTTL:     envDuration("PENDING_TTL", 48*time.Hour),
		AvailCacheTTL:  envDuration("AVAIL_CACHE_TTL", 30*time.Second),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d == 0 {
		return def
	}
	return d
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
