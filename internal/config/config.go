// Package config loads agent settings from the environment and builds the
// process logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "anvil.db"
	defaultLogFormat     = "json"
	defaultRunDir        = "/run/anvil"
	defaultCommandBuffer = 5

	envListenAddr    = "ANVIL_LISTEN_ADDR"
	envDBPath        = "ANVIL_DB_PATH"
	envLogLevel      = "ANVIL_LOG_LEVEL"
	envLogFormat     = "ANVIL_LOG_FORMAT"
	envRunDir        = "ANVIL_RUN_DIR"
	envCommandBuffer = "ANVIL_COMMAND_BUFFER"
	envManifest      = "ANVIL_MANIFEST"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	LogLevel      slog.Level
	LogFormat     string
	RunDir        string
	CommandBuffer int
	Manifest      string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric values are reported rather than silently replaced.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		LogFormat:     defaultLogFormat,
		RunDir:        defaultRunDir,
		CommandBuffer: defaultCommandBuffer,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv(envRunDir); v != "" {
		cfg.RunDir = v
	}
	if v := os.Getenv(envManifest); v != "" {
		cfg.Manifest = v
	}
	if v := os.Getenv(envCommandBuffer); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("%s must be a positive integer, got %q", envCommandBuffer, v)
		}
		cfg.CommandBuffer = n
	}

	return cfg, nil
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w at the given level.
// format "text" selects the text handler; anything else yields JSON.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
