// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	Database DatabaseConfig
	JWT      JWTConfig
	R2       R2Config

	// Progression
	LevelPolicy      string
	DefaultProjectXP int64

	// Login throttling (per IP)
	LoginRateRPS   float64
	LoginRateBurst int

	// Background jobs
	CounterSyncInterval   time.Duration
	ProgressSweepInterval time.Duration

	UploadDir string
}

type DatabaseConfig struct {
	Driver string // postgres, sqlite
	DSN    string
}

type JWTConfig struct {
	Secret     string
	ExpireHour int
}

// R2Config holds Cloudflare R2 credentials. Uploads fall back to the local
// upload dir when Bucket is empty.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccountID != ""
}

// Load reads .env (if present) and then the process environment.
// It reports whether a .env file was found so main can log it.
func Load() (*Config, bool, error) {
	envLoaded := godotenv.Load() == nil

	cfg := &Config{
		Port:     getEnv("PORT", "5200"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
			DSN:    os.Getenv("DATABASE_URL"),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
		},
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
		LevelPolicy: getEnv("LEVEL_POLICY", "badge_tiers"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
	}

	for _, origin := range strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var err error
	if cfg.JWT.ExpireHour, err = getInt("JWT_EXPIRE_HOURS", 24); err != nil {
		return nil, envLoaded, err
	}
	if cfg.DefaultProjectXP, err = getInt64("DEFAULT_PROJECT_XP", 50); err != nil {
		return nil, envLoaded, err
	}
	if cfg.LoginRateRPS, err = getFloat("LOGIN_RATE_RPS", 0.1); err != nil {
		return nil, envLoaded, err
	}
	if cfg.LoginRateBurst, err = getInt("LOGIN_RATE_BURST", 10); err != nil {
		return nil, envLoaded, err
	}
	if cfg.CounterSyncInterval, err = getDuration("COUNTER_SYNC_INTERVAL", 10*time.Minute); err != nil {
		return nil, envLoaded, err
	}
	if cfg.ProgressSweepInterval, err = getDuration("PROGRESS_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, envLoaded, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, envLoaded, err
	}
	return cfg, envLoaded, nil
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if c.JWT.ExpireHour <= 0 {
		return fmt.Errorf("JWT_EXPIRE_HOURS must be positive")
	}
	switch c.LevelPolicy {
	case "badge_tiers", "legacy":
	default:
		return fmt.Errorf("unsupported LEVEL_POLICY %q", c.LevelPolicy)
	}
	if c.DefaultProjectXP < 0 {
		return fmt.Errorf("DEFAULT_PROJECT_XP cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
