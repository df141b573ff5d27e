// Package config provides the configuration schema, YAML/env loader, and
// hot-reload watcher for transcriberd.
package config

import "time"

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels. An empty
// LogLevel is not valid on its own; callers should substitute a default
// before validating.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// Config is the root configuration for transcriberd. ApplyEnv overlays
// Listen, RecordingsDir, WhisperModel, WhisperProcesses and WhisperServer
// from LISTEN, RECORDINGS_DIR, WHISPER_MODEL, WHISPER_PROCESSES and
// WHISPER_SERVER; LogLevel, AuditDSN, IdleTimeout and SessionTTL come only
// from the YAML file or the defaults.
type Config struct {
	Listen           string        `yaml:"listen"`
	RecordingsDir    string        `yaml:"recordings_dir"`
	WhisperModel     string        `yaml:"whisper_model"`
	WhisperProcesses int           `yaml:"whisper_processes"`
	WhisperServer    string        `yaml:"whisper_server"`
	LogLevel         LogLevel      `yaml:"log_level"`
	AuditDSN         string        `yaml:"audit_dsn"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

// Defaults mirrors spec.md §6's documented environment defaults.
func Defaults() *Config {
	return &Config{
		Listen:           "127.0.0.1:3030",
		WhisperModel:     "medium",
		WhisperProcesses: 0, // 0 means "compute from runtime.NumCPU() / 4" at startup
		LogLevel:         LogInfo,
		IdleTimeout:      15 * time.Second,
		SessionTTL:       24 * time.Hour,
	}
}

// ModelPath returns the on-disk path of the ggml model file for cfg's
// WhisperModel name, per spec.md §6 ("loaded from ../models/ggml-<model>.bin").
func (c *Config) ModelPath() string {
	return "../models/ggml-" + c.WhisperModel + ".bin"
}
