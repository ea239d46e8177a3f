package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all ivrflowd configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	WorkflowsDir string `json:"workflows_dir"`
	SessionStore string `json:"session_store"` // memory | redis
	RedisAddr    string `json:"redis_addr"`
	ArchivePath  string `json:"archive_path"` // empty disables the archive
	LogLevel     string `json:"log_level"`
	MaxSteps     int    `json:"max_steps"`
	SessionTTL   string `json:"session_ttl"`
	NodeTimeout  string `json:"node_timeout"`
	MaxSessions  int    `json:"max_sessions"`
}

func defaultConfig() Config {
	return Config{
		WorkflowsDir: filepath.Join(ivrflowDir(), "workflows"),
		SessionStore: "memory",
		RedisAddr:    "localhost:6379",
		LogLevel:     "info",
		MaxSteps:     1000,
		SessionTTL:   "1h",
		NodeTimeout:  "30s",
		MaxSessions:  256,
	}
}

func ivrflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ivrflow"
	}
	return filepath.Join(home, ".ivrflow")
}

func settingsPath() string {
	return filepath.Join(ivrflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("IVRFLOW_WORKFLOWS_DIR"); v != "" {
		cfg.WorkflowsDir = v
	}
	if v := os.Getenv("IVRFLOW_SESSION_STORE"); v != "" {
		cfg.SessionStore = v
	}
	if v := os.Getenv("IVRFLOW_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("IVRFLOW_ARCHIVE_PATH"); v != "" {
		cfg.ArchivePath = v
	}
	if v := os.Getenv("IVRFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("IVRFLOW_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := os.Getenv("IVRFLOW_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("IVRFLOW_NODE_TIMEOUT"); v != "" {
		cfg.NodeTimeout = v
	}
	if v := os.Getenv("IVRFLOW_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}

	return cfg
}

func (c Config) sessionTTL() time.Duration {
	if d, err := time.ParseDuration(c.SessionTTL); err == nil {
		return d
	}
	return time.Hour
}

func (c Config) nodeTimeout() time.Duration {
	if d, err := time.ParseDuration(c.NodeTimeout); err == nil {
		return d
	}
	return 30 * time.Second
}
