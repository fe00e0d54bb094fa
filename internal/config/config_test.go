package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvServer, "")
	t.Setenv(EnvDB, "")

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != defaultServer {
		t.Fatalf("Server = %q, want %q", cfg.Server, defaultServer)
	}
	if cfg.EventsPath != "/api/v1/events/ws" {
		t.Fatalf("EventsPath = %q", cfg.EventsPath)
	}
	if cfg.RetryInterval != time.Second {
		t.Fatalf("RetryInterval = %v, want 1s", cfg.RetryInterval)
	}
	if len(cfg.Regions) != 1 || cfg.Regions[0] != "body" {
		t.Fatalf("Regions = %v, want [body]", cfg.Regions)
	}
	if !strings.HasPrefix(cfg.DBPath, home) {
		t.Fatalf("DBPath = %q, want it under HOME %q", cfg.DBPath, home)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvServer, "")
	t.Setenv(EnvDB, "")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server = "  http://music.lan:128  "
events_path = "api/v2/ws"
retry_interval = "3s"
debounce = "250ms"
blur_grace = "0s"
regions = ["#content", " ", "title-bar"]
db_path = "~/journal.db"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != "http://music.lan:128" {
		t.Fatalf("Server = %q", cfg.Server)
	}
	if cfg.EventsPath != "/api/v2/ws" {
		t.Fatalf("EventsPath = %q, want /api/v2/ws", cfg.EventsPath)
	}
	if cfg.RetryInterval != 3*time.Second || cfg.Debounce != 250*time.Millisecond || cfg.BlurGrace != 0 {
		t.Fatalf("durations = %v %v %v", cfg.RetryInterval, cfg.Debounce, cfg.BlurGrace)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[1] != "title-bar" {
		t.Fatalf("Regions = %v", cfg.Regions)
	}
	if cfg.DBPath != filepath.Join(home, "journal.db") {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte(`retry_interval = "soon"`), 0o600)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte(`server = "http://from-file"`), 0o600)

	t.Setenv(EnvServer, "http://from-env")
	t.Setenv(EnvDB, "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != "http://from-env" {
		t.Fatalf("Server = %q, want env value", cfg.Server)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("DBPath = %q, want env value", cfg.DBPath)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvServer, "")

	path := filepath.Join(t.TempDir(), "custom.toml")
	os.WriteFile(path, []byte(`server = "http://custom"`), 0o600)
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != "http://custom" {
		t.Fatalf("Server = %q, want http://custom", cfg.Server)
	}
}
