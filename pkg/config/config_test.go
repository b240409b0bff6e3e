package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port        int           `env:"TEST_CFG_PORT" envDefault:"3000"`
	Host        string        `env:"TEST_CFG_HOST" envDefault:"0.0.0.0"`
	LogLevel    string        `env:"TEST_CFG_LOG_LEVEL" envDefault:"info"`
	SweepEvery  time.Duration `env:"TEST_CFG_SWEEP_EVERY" envDefault:"5m"`
	Brokers     []string      `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092"`
	OTELEnabled bool          `env:"TEST_CFG_OTEL_ENABLED" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.SweepEvery)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.False(t, cfg.OTELEnabled)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_HOST", "127.0.0.1")
	t.Setenv("TEST_CFG_LOG_LEVEL", "debug")
	t.Setenv("TEST_CFG_SWEEP_EVERY", "30s")
	t.Setenv("TEST_CFG_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("TEST_CFG_OTEL_ENABLED", "true")

	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.SweepEvery)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.True(t, cfg.OTELEnabled)
}

type requiredConfig struct {
	DBPassword string `env:"TEST_CFG_DB_PASSWORD,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RequiredFieldPresent(t *testing.T) {
	t.Setenv("TEST_CFG_DB_PASSWORD", "secret-123")

	var cfg requiredConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, "secret-123", cfg.DBPassword)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type validatedConfig struct {
	Workers int `env:"TEST_CFG_WORKERS" envDefault:"4"`
}

func (c *validatedConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	return nil
}

func TestLoad_RunsValidateHook(t *testing.T) {
	t.Setenv("TEST_CFG_WORKERS", "-2")

	var cfg validatedConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "workers must be > 0")
}

func TestLoad_ValidateHookPasses(t *testing.T) {
	t.Setenv("TEST_CFG_WORKERS", "8")

	var cfg validatedConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 8, cfg.Workers)
}
