package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: presence
  user: presence
  password: secret
detector:
  ws_url: ws://detector:9000/ws
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Detector.HeartbeatInterval != 20*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 20s", cfg.Detector.HeartbeatInterval)
	}
	if cfg.Detector.StaleTimeout != 90*time.Second {
		t.Errorf("StaleTimeout = %v, want 90s", cfg.Detector.StaleTimeout)
	}
	if cfg.Attendance.RollupHour != 0 || cfg.Attendance.RollupMinute != 5 {
		t.Errorf("rollup schedule = %02d:%02d, want 00:05", cfg.Attendance.RollupHour, cfg.Attendance.RollupMinute)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  host: localhost
`)

	t.Setenv("PRESENCE_SERVER_PORT", "9090")
	t.Setenv("PRESENCE_DB_HOST", "pg.internal")
	t.Setenv("PRESENCE_DETECTOR_WS_URL", "ws://env-detector/ws")
	t.Setenv("PRESENCE_DETECTOR_HEARTBEAT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Database.Host != "pg.internal" {
		t.Errorf("Database.Host = %q", cfg.Database.Host)
	}
	if cfg.Detector.WSURL != "ws://env-detector/ws" {
		t.Errorf("Detector.WSURL = %q", cfg.Detector.WSURL)
	}
	if cfg.Detector.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 5s", cfg.Detector.HeartbeatInterval)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "presence", User: "u", Password: "p"}
	want := "postgres://u:p@db:5433/presence?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}
