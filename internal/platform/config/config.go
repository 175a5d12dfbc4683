package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// PageSizeCeiling caps query page sizes regardless of what callers request.
	PageSizeCeiling int
	// BulkRecordCeiling caps bulk action record counts; action descriptors may
	// lower it further, never raise it.
	BulkRecordCeiling int

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds connection settings for the primary stores.
type PostgresConfig struct {
	// DSN is empty when postgres is not configured; the server then runs on
	// in-memory stores (dev mode).
	DSN string
}

// RedisConfig holds connection settings for the best-effort evidence mirror.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the optional evidence event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("RECORDGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cfg := Server{
		Addr:              addr,
		JWTSigningKey:     jwtSigningKey,
		PageSizeCeiling:   envInt("RECORDGATE_PAGE_CEILING", 200),
		BulkRecordCeiling: envInt("RECORDGATE_BULK_CEILING", 100),
		Postgres: PostgresConfig{
			DSN: os.Getenv("RECORDGATE_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("RECORDGATE_REDIS_URL"),
			PoolSize:     envInt("RECORDGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RECORDGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}

	if brokers := os.Getenv("RECORDGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: splitCommas(brokers),
			Topic:   envString("RECORDGATE_KAFKA_TOPIC", "recordgate.evidence"),
		}
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitCommas(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
