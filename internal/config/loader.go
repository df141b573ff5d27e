package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, starting from Defaults,
// overlays the documented environment variables via ApplyEnv, and
// validates the result. A missing file at path is not an error — defaults
// and environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decodeInto(cfg, f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case os.IsNotExist(err):
		slog.Info("config: no config file found, using defaults and environment", "path", path)
	default:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of Defaults, applies
// the environment overlay, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	if err := decodeInto(cfg, r); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ApplyEnv overlays the documented environment variables on top of cfg,
// exactly mirroring spec.md §6's env surface. Note the env var is LISTEN
// with no leading space, not the " LISTEN" name found in the original
// implementation — that leading space was a known bug, not a contract.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := os.LookupEnv("RECORDINGS_DIR"); ok {
		cfg.RecordingsDir = v
	}
	if v, ok := os.LookupEnv("WHISPER_MODEL"); ok {
		cfg.WhisperModel = v
	}
	if v, ok := os.LookupEnv("WHISPER_PROCESSES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WhisperProcesses = n
		} else {
			slog.Warn("config: WHISPER_PROCESSES is not a valid integer, ignoring", "value", v)
		}
	}
	if v, ok := os.LookupEnv("WHISPER_SERVER"); ok {
		cfg.WhisperServer = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.WhisperProcesses < 0 {
		errs = append(errs, fmt.Errorf("whisper_processes %d must be >= 0", cfg.WhisperProcesses))
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("idle_timeout %s must be > 0", cfg.IdleTimeout))
	}
	if cfg.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session_ttl %s must be > 0", cfg.SessionTTL))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}

	return errors.Join(errs...)
}
