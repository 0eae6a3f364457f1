package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration values.
type Config struct {
	Secret         string
	DatabaseDriver string
	DatabaseDSN    string
	HTTPPort       string
	TokenTTL       time.Duration
	LogLevel       string
	LogFormat      string
	CORSOrigins    []string
	AuditDeletions bool
	RateLimitSize  int
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:8787"}

// Load reads configuration from environment variables with reasonable defaults.
// A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Secret:         getEnv("JWT_SECRET", "dev_secret_change_me"),
		DatabaseDriver: getEnv("DB_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "medicine_auth.db"),
		HTTPPort:       getEnv("HTTP_PORT", "3001"),
		TokenTTL:       24 * time.Hour,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		CORSOrigins:    defaultOrigins,
		RateLimitSize:  10000,
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		logrus.Warnf("invalid HTTP_PORT value %q, defaulting to 3001", cfg.HTTPPort)
		cfg.HTTPPort = "3001"
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			logrus.Warnf("invalid TOKEN_TTL value %q, defaulting to 24h", v)
		} else {
			cfg.TokenTTL = ttl
		}
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}

	if v := os.Getenv("AUDIT_DELETIONS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			logrus.Warnf("invalid AUDIT_DELETIONS value %q, leaving deletion auditing off", v)
		}
		cfg.AuditDeletions = on
	}

	if v := os.Getenv("RATE_LIMIT_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			logrus.Warnf("invalid RATE_LIMIT_CAPACITY value %q, defaulting to %d", v, cfg.RateLimitSize)
		} else {
			cfg.RateLimitSize = n
		}
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		logrus.Warnf("unsupported DB_DRIVER %q, defaulting to sqlite", cfg.DatabaseDriver)
		cfg.DatabaseDriver = "sqlite"
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
