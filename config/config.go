// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// PostgreSQL: either DatabaseURL or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// JWT signing secret (required in production).
	JWTSecret string

	// Server
	Debug      bool
	Port       string
	TLSDomains []string
	AdminUsers []string

	// Settlement
	SettleWorkers     int
	SettleLockTTL     time.Duration
	ScoringTable      string
	Timezone          string
	NotifyVoteSettled bool

	// cmd/settler schedules, six-field cron with seconds.
	MonthlyRefreshCron string
	SettleSweepCron    string

	// OTLP/gRPC collector URL for traces; empty disables export.
	OTLPEndpoint string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() *Config {
	cfg, err := load(newViper())
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func load(v *viper.Viper) (*Config, error) {
	// Defaults
	v.SetDefault("DB_USER", "votesettle")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "votesettle")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("PORT", ":9000")
	v.SetDefault("DEBUG", false)
	v.SetDefault("SETTLE_WORKERS", 8)
	v.SetDefault("SETTLE_LOCK_TTL", "10m")
	v.SetDefault("TIMEZONE", "Asia/Tokyo")
	v.SetDefault("NOTIFY_VOTE_SETTLED", false)
	v.SetDefault("MONTHLY_REFRESH_CRON", "0 5 0 1 * *")
	v.SetDefault("SETTLE_SWEEP_CRON", "0 */5 * * * *")

	cfg := &Config{
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBUser:             v.GetString("DB_USER"),
		DBPass:             v.GetString("DB_PASS"),
		DBHost:             v.GetString("DB_HOST"),
		DBPort:             v.GetString("DB_PORT"),
		DBName:             v.GetString("DB_NAME"),
		DBSSLMode:          v.GetString("DB_SSLMODE"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		Debug:              v.GetBool("DEBUG"),
		Port:               v.GetString("PORT"),
		TLSDomains:         splitTrimmed(v.GetString("TLS_DOMAINS")),
		AdminUsers:         splitTrimmed(v.GetString("ADMIN_USERS")),
		SettleWorkers:      v.GetInt("SETTLE_WORKERS"),
		SettleLockTTL:      v.GetDuration("SETTLE_LOCK_TTL"),
		ScoringTable:       v.GetString("SCORING_TABLE"),
		Timezone:           v.GetString("TIMEZONE"),
		NotifyVoteSettled:  v.GetBool("NOTIFY_VOTE_SETTLED"),
		MonthlyRefreshCron: v.GetString("MONTHLY_REFRESH_CRON"),
		SettleSweepCron:    v.GetString("SETTLE_SWEEP_CRON"),
		OTLPEndpoint:       v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// JWTKey returns the JWT signing key as a byte slice.
func (c *Config) JWTKey() []byte {
	return []byte(c.JWTSecret)
}

// Location resolves Timezone. validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" && c.DBPass == "" {
		errs = append(errs, errors.New("config: DATABASE_URL or DB_PASS must be set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET must be set"))
	}
	if c.SettleWorkers < 1 {
		errs = append(errs, fmt.Errorf("config: SETTLE_WORKERS must be at least 1, got %d", c.SettleWorkers))
	}
	if c.SettleLockTTL <= 0 {
		errs = append(errs, errors.New("config: SETTLE_LOCK_TTL must be a positive duration"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	// .env is optional; real env vars win.
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
