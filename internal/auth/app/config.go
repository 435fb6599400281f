package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// Storage and audit backends selectable through the environment.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionBackendSQL   = "sql"
	SessionBackendRedis = "redis"

	AuditLog   = "log"
	AuditKafka = "kafka"
	AuditAMQP  = "amqp"
	AuditNone  = "none"
)

type Config struct {
	Issuer string // Optional: issuer claim for tokens (default: shopauth)

	Algorithm     string               // Optional: per-session key algorithm (EdDSA, ES256, RS256) (default: EdDSA)
	RSABits       int                  // Optional: RSA key size for RS256 (default: 2048)
	AccessTTL     time.Duration        // Optional: access token lifetime (default: 15m)
	RefreshTTL    time.Duration        // Optional: refresh token and session lifetime (default: 7 days)
	SessionPolicy domain.SessionPolicy // Optional: replace or reject a second login (default: replace)
	MasterKeyPath string               // Optional: file holding the key that seals session private keys
	PepperFile    string               // Optional: path to file containing pepper for password hashing (default: ./pepper)

	DatabaseDriver string // Optional: sqlite or postgres (default: sqlite)
	DatabaseFile   string // Optional: path to SQLite database file (default: ./auth.db)
	DatabaseURL    string // Required for postgres: connection string

	SessionBackend string // Optional: sql or redis (default: sql)
	RedisAddr      string // Optional: host:port (default: localhost:6379)
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string // Optional: key prefix (default: shopauth:)

	AuditSink    string   // Optional: log, kafka, amqp or none (default: log)
	KafkaBrokers []string // Required for kafka: comma separated broker list
	KafkaTopic   string   // Optional: (default: shop.security)
	AMQPURL      string   // Required for amqp
	AMQPExchange string   // Optional: (default: shop.security)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:        getEnvOrDefault("AUTH_ISSUER", ServiceName),
		Algorithm:     getEnvOrDefault("AUTH_ALGORITHM", cryptox.AlgorithmEdDSA),
		RSABits:       getEnvIntOrDefault("AUTH_RSA_BITS", cryptox.DefaultRSABits),
		AccessTTL:     getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		SessionPolicy: domain.SessionPolicy(strings.ToLower(getEnvOrDefault("AUTH_SESSION_POLICY", string(domain.SessionReplace)))),
		MasterKeyPath: os.Getenv("AUTH_MASTER_KEY_PATH"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		DatabaseDriver: strings.ToLower(getEnvOrDefault("AUTH_DATABASE_DRIVER", DriverSQLite)),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		DatabaseURL:    os.Getenv("AUTH_DATABASE_URL"),

		SessionBackend: strings.ToLower(getEnvOrDefault("AUTH_SESSION_BACKEND", SessionBackendSQL)),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:    getEnvOrDefault("REDIS_PREFIX", "shopauth:"),

		AuditSink:    strings.ToLower(getEnvOrDefault("AUDIT_SINK", AuditLog)),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "shop.security"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnvOrDefault("AMQP_EXCHANGE", "shop.security"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

// Validate reports every setting that can't be used, joined into one error.
func (c Config) Validate() error {
	var errs []error

	if err := cryptox.ValidateAlgorithm(c.Algorithm); err != nil {
		errs = append(errs, err)
	}
	if c.Algorithm == cryptox.AlgorithmRS256 && c.RSABits < cryptox.DefaultRSABits {
		errs = append(errs, fmt.Errorf("AUTH_RSA_BITS must be at least %d", cryptox.DefaultRSABits))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	} else if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("AUTH_ACCESS_TTL must be shorter than AUTH_REFRESH_TTL"))
	}
	if !c.SessionPolicy.Valid() {
		errs = append(errs, fmt.Errorf("unknown AUTH_SESSION_POLICY %q", c.SessionPolicy))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	switch c.SessionBackend {
	case SessionBackendSQL, SessionBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_SESSION_BACKEND %q", c.SessionBackend))
	}

	switch c.AuditSink {
	case AuditLog, AuditNone:
	case AuditKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka audit sink"))
		}
	case AuditAMQP:
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required for the amqp audit sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIT_SINK %q", c.AuditSink))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
