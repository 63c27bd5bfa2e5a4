package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_ENV_FILE", "testdata/missing.env")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.AllowNegativeStock)
	require.True(t, cfg.PostJournals)
	require.Equal(t, "ledgercore.events", cfg.KafkaTopic)
	require.Equal(t, 10*time.Minute, cfg.BalanceCacheTTL)
	require.Equal(t, []int64{1}, cfg.Companies)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("LEDGER_ENV_FILE", "testdata/missing.env")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_ALLOW_NEGATIVE_STOCK", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.AllowNegativeStock)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfigRejectsBadCompanies(t *testing.T) {
	t.Setenv("LEDGER_ENV_FILE", "testdata/missing.env")
	t.Setenv("LEDGER_COMPANIES", "1,0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LEDGER_ENV_FILE", "testdata/missing.env")
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "log level")

	_, err = NewLogger(&Config{LogLevel: "verbose"})
	require.ErrorContains(t, err, "log level")
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "test"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1))
	require.True(t, logger.Core().Enabled(1))
}
