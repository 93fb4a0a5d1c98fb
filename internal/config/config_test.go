package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"line-monitor/internal/domain"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected DB_HOST default 'localhost', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected DB_PORT default 5432, got %d", cfg.Database.Port)
	}
	if cfg.Database.Database != "producao" {
		t.Errorf("Expected DB_NAME default 'producao', got '%s'", cfg.Database.Database)
	}
	if cfg.Database.MaxConns != 10 || cfg.Database.MinConns != 1 {
		t.Errorf("Expected pool 1..10, got %d..%d", cfg.Database.MinConns, cfg.Database.MaxConns)
	}
	if cfg.Database.QueryTimeout != 5*time.Second {
		t.Errorf("Expected query timeout 5s, got %s", cfg.Database.QueryTimeout)
	}
	if cfg.Shift.UnitsPerMinute != 90 || cfg.Shift.ShiftMinutes != 720 {
		t.Errorf("Expected shift 90/720, got %d/%d", cfg.Shift.UnitsPerMinute, cfg.Shift.ShiftMinutes)
	}
	if cfg.Shift.RefreshInterval != time.Minute {
		t.Errorf("Expected refresh interval 1m, got %s", cfg.Shift.RefreshInterval)
	}
	if cfg.Redis.Enabled || cfg.MQTT.Enabled {
		t.Errorf("Expected redis and mqtt disabled by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_NAME", "test-db")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_QUERY_TIMEOUT", "2s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("SHIFT_MINUTES", "480")
	t.Setenv("REFRESH_INTERVAL", "15s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Database.Host != "test-host" {
		t.Errorf("Expected DB_HOST 'test-host', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.Database != "test-db" {
		t.Errorf("Expected DB_NAME 'test-db', got '%s'", cfg.Database.Database)
	}
	if cfg.Database.MaxConns != 4 {
		t.Errorf("Expected DB_MAX_CONNS 4, got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.QueryTimeout != 2*time.Second {
		t.Errorf("Expected DB_QUERY_TIMEOUT 2s, got %s", cfg.Database.QueryTimeout)
	}
	if !cfg.Redis.Enabled {
		t.Errorf("Expected REDIS_ENABLED true")
	}
	if cfg.Shift.ShiftMinutes != 480 {
		t.Errorf("Expected SHIFT_MINUTES 480, got %d", cfg.Shift.ShiftMinutes)
	}
	if cfg.Shift.RefreshInterval != 15*time.Second {
		t.Errorf("Expected REFRESH_INTERVAL 15s, got %s", cfg.Shift.RefreshInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected LOG_LEVEL 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line-monitor.yaml")
	content := []byte("shift:\n  units_per_minute: 120\nmonitor:\n  listen_addr: \":9090\"\n  timezone: America/Sao_Paulo\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.Set("config", path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Shift.UnitsPerMinute != 120 {
		t.Errorf("Expected units_per_minute 120 from file, got %d", cfg.Shift.UnitsPerMinute)
	}
	if cfg.Shift.ShiftMinutes != 720 {
		t.Errorf("Expected default shift_minutes 720, got %d", cfg.Shift.ShiftMinutes)
	}
	if cfg.Monitor.ListenAddr != ":9090" {
		t.Errorf("Expected listen_addr ':9090', got '%s'", cfg.Monitor.ListenAddr)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "America/Sao_Paulo" {
		t.Errorf("Expected America/Sao_Paulo, got %v (%v)", loc, err)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	v := viper.New()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(v); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestValidate_ZeroShiftIsConfigurationError(t *testing.T) {
	t.Setenv("SHIFT_UNITS_PER_MINUTE", "0")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := cfg.Validate(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}

func TestValidate_PoolBounds(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cfg.Database.MinConns = 11
	if err := cfg.Validate(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for min > max, got %v", err)
	}

	cfg.Database.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected pool settings ignored when DB disabled, got %v", err)
	}
}

func TestValidate_UnknownTimezone(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cfg.Monitor.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}
