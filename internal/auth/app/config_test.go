package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"AUTH_ISSUER", "AUTH_ALGORITHM", "AUTH_RSA_BITS", "AUTH_ACCESS_TTL", "AUTH_REFRESH_TTL",
		"AUTH_SESSION_POLICY", "AUTH_DATABASE_DRIVER", "AUTH_SESSION_BACKEND", "AUDIT_SINK",
		"KAFKA_BROKERS", "PORT", "HOUSEKEEPING_INTERVAL",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "shopauth", cfg.Issuer)
	require.Equal(t, "EdDSA", cfg.Algorithm)
	require.Equal(t, 2048, cfg.RSABits)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, domain.SessionReplace, cfg.SessionPolicy)
	require.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	require.Equal(t, SessionBackendSQL, cfg.SessionBackend)
	require.Equal(t, AuditLog, cfg.AuditSink)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("AUTH_ALGORITHM", "ES256")
	t.Setenv("AUTH_ACCESS_TTL", "5m")
	t.Setenv("AUTH_REFRESH_TTL", "90") // minutes
	t.Setenv("AUTH_SESSION_POLICY", "REJECT")
	t.Setenv("AUDIT_SINK", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PORT", "not-a-number")

	cfg := LoadConfig()
	require.Equal(t, "ES256", cfg.Algorithm)
	require.Equal(t, 5*time.Minute, cfg.AccessTTL)
	require.Equal(t, 90*time.Minute, cfg.RefreshTTL)
	require.Equal(t, domain.SessionReject, cfg.SessionPolicy)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 8080, cfg.Port)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Algorithm:      "EdDSA",
			RSABits:        2048,
			AccessTTL:      time.Minute,
			RefreshTTL:     time.Hour,
			SessionPolicy:  domain.SessionReplace,
			DatabaseDriver: DriverSQLite,
			SessionBackend: SessionBackendSQL,
			AuditSink:      AuditNone,
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"unknown algorithm":   func(c *Config) { c.Algorithm = "HS256" },
		"small rsa key":       func(c *Config) { c.Algorithm, c.RSABits = "RS256", 1024 },
		"access outlives":     func(c *Config) { c.AccessTTL = 2 * time.Hour },
		"zero ttl":            func(c *Config) { c.RefreshTTL = 0 },
		"unknown policy":      func(c *Config) { c.SessionPolicy = "merge" },
		"postgres needs url":  func(c *Config) { c.DatabaseDriver = DriverPostgres },
		"unknown driver":      func(c *Config) { c.DatabaseDriver = "mysql" },
		"unknown backend":     func(c *Config) { c.SessionBackend = "memcached" },
		"kafka needs brokers": func(c *Config) { c.AuditSink = AuditKafka },
		"amqp needs url":      func(c *Config) { c.AuditSink = AuditAMQP },
		"unknown sink":        func(c *Config) { c.AuditSink = "syslog" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger_HonoursLevel(t *testing.T) {
	logger := NewLogger(Config{Env: "test", LogLevel: "warn", LogFormat: "text"})
	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	require.Equal(t, logger, slog.Default())
}
