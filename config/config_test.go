package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/devquest")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "5200" {
		t.Errorf("Port = %q, expected %q", cfg.Port, "5200")
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, expected postgres", cfg.Database.Driver)
	}
	if cfg.JWT.ExpireHour != 24 {
		t.Errorf("ExpireHour = %d, expected 24", cfg.JWT.ExpireHour)
	}
	if cfg.DefaultProjectXP != 50 {
		t.Errorf("DefaultProjectXP = %d, expected 50", cfg.DefaultProjectXP)
	}
	if cfg.LevelPolicy != "badge_tiers" {
		t.Errorf("LevelPolicy = %q, expected badge_tiers", cfg.LevelPolicy)
	}
	if cfg.CounterSyncInterval != 10*time.Minute {
		t.Errorf("CounterSyncInterval = %v, expected 10m", cfg.CounterSyncInterval)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.R2.Enabled() {
		t.Error("R2 should be disabled without a bucket")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("LEVEL_POLICY", "legacy")
	t.Setenv("PROGRESS_SWEEP_INTERVAL", "15m")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, expected sqlite", cfg.Database.Driver)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.LevelPolicy != "legacy" {
		t.Errorf("LevelPolicy = %q, expected legacy", cfg.LevelPolicy)
	}
	if cfg.ProgressSweepInterval != 15*time.Minute {
		t.Errorf("ProgressSweepInterval = %v, expected 15m", cfg.ProgressSweepInterval)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{"DATABASE_URL": ""}},
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"bad driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"bad policy", map[string]string{"LEVEL_POLICY": "random"}},
		{"bad int", map[string]string{"JWT_EXPIRE_HOURS": "day"}},
		{"bad duration", map[string]string{"COUNTER_SYNC_INTERVAL": "often"}},
		{"negative xp", map[string]string{"DEFAULT_PROJECT_XP": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, _, err := Load(); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}
