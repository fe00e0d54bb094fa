package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything the client needs to reach a sensibleHub server.
type Config struct {
	Server         string
	EventsPath     string
	RetryInterval  time.Duration
	Debounce       time.Duration
	BlurGrace      time.Duration
	RequestTimeout time.Duration
	Regions        []string
	DBPath         string
	LogDir         string
}

const (
	defaultConfigPath     = "~/.config/sensiblelive/config.toml"
	defaultServer         = "http://localhost:8080"
	defaultEventsPath     = "/api/v1/events/ws"
	defaultRetryInterval  = time.Second
	defaultDebounce       = 100 * time.Millisecond
	defaultBlurGrace      = 200 * time.Millisecond
	defaultRequestTimeout = 15 * time.Second
	defaultDBPath         = "~/.local/share/sensiblelive/journal.db"
	defaultLogDir         = "~/.local/share/sensiblelive"
)

// Environment variables that override the config file.
const (
	EnvServer = "SENSIBLELIVE_SERVER"
	EnvConfig = "SENSIBLELIVE_CONFIG"
	EnvDB     = "SENSIBLELIVE_DB"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server:         defaultServer,
		EventsPath:     defaultEventsPath,
		RetryInterval:  defaultRetryInterval,
		Debounce:       defaultDebounce,
		BlurGrace:      defaultBlurGrace,
		RequestTimeout: defaultRequestTimeout,
		Regions:        []string{"body"},
		DBPath:         mustExpand(defaultDBPath),
		LogDir:         mustExpand(defaultLogDir),
	}
}

// Load locates and parses the config file, falling back to defaults when it
// is missing. Environment overrides are applied last.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(EnvConfig)
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyEnv()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Server         string   `toml:"server"`
		EventsPath     string   `toml:"events_path"`
		RetryInterval  string   `toml:"retry_interval"`
		Debounce       string   `toml:"debounce"`
		BlurGrace      string   `toml:"blur_grace"`
		RequestTimeout string   `toml:"request_timeout"`
		Regions        []string `toml:"regions"`
		DBPath         string   `toml:"db_path"`
		LogDir         string   `toml:"log_dir"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if s := strings.TrimSpace(raw.Server); s != "" {
		cfg.Server = s
	}
	if s := strings.TrimSpace(raw.EventsPath); s != "" {
		if !strings.HasPrefix(s, "/") {
			s = "/" + s
		}
		cfg.EventsPath = s
	}

	durations := []struct {
		name string
		raw  string
		dest *time.Duration
	}{
		{"retry_interval", raw.RetryInterval, &cfg.RetryInterval},
		{"debounce", raw.Debounce, &cfg.Debounce},
		{"blur_grace", raw.BlurGrace, &cfg.BlurGrace},
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
	}
	for _, d := range durations {
		s := strings.TrimSpace(d.raw)
		if s == "" {
			continue
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		if v < 0 {
			return Config{}, fmt.Errorf("parse %s: negative duration %s", d.name, s)
		}
		*d.dest = v
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultRetryInterval
	}

	var regions []string
	for _, r := range raw.Regions {
		if r = strings.TrimSpace(r); r != "" {
			regions = append(regions, r)
		}
	}
	if len(regions) > 0 {
		cfg.Regions = regions
	}

	if s := strings.TrimSpace(raw.DBPath); s != "" {
		cfg.DBPath = mustExpand(s)
	}
	if s := strings.TrimSpace(raw.LogDir); s != "" {
		cfg.LogDir = mustExpand(s)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if s := strings.TrimSpace(os.Getenv(EnvServer)); s != "" {
		c.Server = s
	}
	if s := strings.TrimSpace(os.Getenv(EnvDB)); s != "" {
		c.DBPath = mustExpand(s)
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
