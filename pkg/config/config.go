// Package config loads service configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"balance-ledger/pkg/store/postgres"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the service configuration.
type Config struct {
	Port  string
	Store string

	Postgres postgres.Config

	// RedisAddr enables the shared cache tier. Empty disables it.
	RedisAddr     string
	RedisPassword string

	CacheTTL      time.Duration
	L1Size        int
	BloomCapacity uint

	RequestTimeout   time.Duration
	MetricsNamespace string

	// SeedDemo creates a demo user and account at startup (memory store only).
	SeedDemo bool
}

// Load reads the given .env files (default ".env") when present and then the
// process environment. Real environment variables win over .env entries.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	pg := postgres.DefaultConfig()
	pg.Host = getEnv("POSTGRES_HOST", pg.Host)
	pg.User = getEnv("POSTGRES_USER", pg.User)
	pg.Password = getEnv("POSTGRES_PASSWORD", pg.Password)
	pg.Database = getEnv("POSTGRES_DB", pg.Database)
	pg.SSLMode = getEnv("POSTGRES_SSLMODE", pg.SSLMode)

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Store:            strings.ToLower(getEnv("LEDGER_STORE", StoreMemory)),
		Postgres:         pg,
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "ledger"),
	}

	var err error
	if cfg.Postgres.Port, err = getInt("POSTGRES_PORT", pg.Port); err != nil {
		return nil, err
	}
	if cfg.L1Size, err = getInt("CACHE_L1_SIZE", 10000); err != nil {
		return nil, err
	}
	capacity, err := getInt("CACHE_BLOOM_CAPACITY", 100000)
	if err != nil {
		return nil, err
	}
	cfg.BloomCapacity = uint(capacity)
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("LEDGER_REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SeedDemo, err = getBool("LEDGER_SEED_DEMO", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("config: LEDGER_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: LEDGER_REQUEST_TIMEOUT must be positive")
	}
	if c.L1Size < 0 || c.BloomCapacity == 0 {
		return fmt.Errorf("config: cache sizes must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
