package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LEDGER_STORE", "REDIS_ADDR", "CACHE_TTL", "LEDGER_REQUEST_TIMEOUT", "POSTGRES_PORT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "ledger", cfg.MetricsNamespace)
	assert.False(t, cfg.SeedDemo)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LEDGER_STORE", "Postgres")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LEDGER_SEED_DEMO", "true")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.SeedDemo)
}

func TestLoad_DotEnvFile(t *testing.T) {
	// godotenv never overrides a variable that is already set, even to "".
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9090\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LEDGER_STORE", "sqlite"},
		{"CACHE_TTL", "soon"},
		{"CACHE_TTL", "-1s"},
		{"POSTGRES_PORT", "port"},
		{"LEDGER_SEED_DEMO", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(missingEnvFile(t))
			assert.Error(t, err)
		})
	}
}
