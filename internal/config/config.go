package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=cashbook port=5432 sslmode=disable"

type Config struct {
	HTTPPort       string
	AppEnv         string
	LogLevel       string
	DatabaseDriver string // postgres | mysql | sqlite
	DatabaseDSN    string
	JWTSecret      string
	CORSOrigins    string

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPSender string

	StorageBaseURL    string
	StorageSigningKey string

	// amounts at or below the limit skip verification; zero disables
	AutoApproveLimit decimal.Decimal
	AutoApproveRoles []string
}

// Load reads the environment (and a local .env when present). Fatal on an
// insecure configuration.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] .env not loaded, using process environment")
	}

	v := viper.New()
	v.AutomaticEnv()

	cfg, err := Parse(v)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is using the default value, set your own Postgres DSN for production.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the default value, set your own domain for production.")
	}
	if cfg.SMTPHost == "" {
		log.Println("[WARN] SMTP_HOST is empty, outgoing email will only be logged.")
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 465)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_SENDER", "")
	v.SetDefault("STORAGE_BASE_URL", "http://localhost:8080/files")
	v.SetDefault("STORAGE_SIGNING_KEY", "")
	v.SetDefault("AUTO_APPROVE_LIMIT", "0")
	v.SetDefault("AUTO_APPROVE_ROLES", "admin")
}

// Parse builds a Config from v, applying defaults first.
func Parse(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		HTTPPort:          v.GetString("HTTP_PORT"),
		AppEnv:            v.GetString("APP_ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		DatabaseDriver:    strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:       v.GetString("DATABASE_DSN"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		CORSOrigins:       v.GetString("CORS_ALLOWED_ORIGINS"),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		SMTPUser:          v.GetString("SMTP_USER"),
		SMTPPass:          v.GetString("SMTP_PASS"),
		SMTPSender:        v.GetString("SMTP_SENDER"),
		StorageBaseURL:    strings.TrimRight(v.GetString("STORAGE_BASE_URL"), "/"),
		StorageSigningKey: v.GetString("STORAGE_SIGNING_KEY"),
		AutoApproveRoles:  splitList(v.GetString("AUTO_APPROVE_ROLES")),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set, it is required in production")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("DATABASE_DRIVER %q is not supported (postgres|mysql|sqlite)", cfg.DatabaseDriver)
	}

	limit, err := decimal.NewFromString(v.GetString("AUTO_APPROVE_LIMIT"))
	if err != nil || limit.IsNegative() {
		return nil, fmt.Errorf("AUTO_APPROVE_LIMIT must be a non-negative number")
	}
	cfg.AutoApproveLimit = limit

	// storage URLs fall back to the JWT secret when no dedicated key is set
	if cfg.StorageSigningKey == "" {
		cfg.StorageSigningKey = cfg.JWTSecret
	}

	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
