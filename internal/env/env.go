package env

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port         int           `env:"PORT" envDefault:"4002"`
	ShardBaseURL string        `env:"SHARD_BASE_URL" envDefault:"data/shards"`
	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"0s"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass    string        `env:"REDIS_PASSWORD"`
	RedisDB      int           `env:"REDIS_DB" envDefault:"0"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"listing.db"`
	PostgresDSN  string        `env:"PG_DSN"`
	FetchRPS     float64       `env:"FETCH_RPS" envDefault:"5"`
	SessionIdle  time.Duration `env:"SESSION_IDLE" envDefault:"30m"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	AWSRegion    string        `env:"AWS_REGION" envDefault:"us-east-1"`
	RateLimit    int           `env:"RATE_LIMIT_PER_MIN" envDefault:"100"`
	RefreshQueue int           `env:"REFRESH_QUEUE" envDefault:"256"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

func Load() (Config, error) {
	var cfg Config
	if err := cenv.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.CacheBackend {
	case BackendMemory, BackendRedis, BackendSQLite, BackendNone:
	default:
		return Config{}, fmt.Errorf("CACHE_BACKEND %q: want memory, redis, sqlite or none", cfg.CacheBackend)
	}
	if cfg.FetchRPS < 0 {
		return Config{}, fmt.Errorf("FETCH_RPS must not be negative")
	}
	return cfg, nil
}

func Must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func Get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func GetInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
