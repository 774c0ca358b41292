// Package config loads reader bridge settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/wippyai/reader-bridge/errors"
)

// Log formats accepted by LogFormat.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds process-wide settings. Command-line flags override them.
type Config struct {
	LogLevel     string `env:"READER_BRIDGE_LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"READER_BRIDGE_LOG_FORMAT" envDefault:"console"`
	MetricsAddr  string `env:"READER_BRIDGE_METRICS_ADDR"`
	TargetFolder string `env:"READER_BRIDGE_TARGET_FOLDER"`
	ChunkSize    int    `env:"READER_BRIDGE_CHUNK_SIZE" envDefault:"65536"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("LogFormat").
			Value(c.LogFormat).
			Detail("log format must be %q or %q", FormatConsole, FormatJSON).
			Build()
	}
	if c.ChunkSize <= 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("ChunkSize").
			Value(c.ChunkSize).
			Detail("chunk size must be positive").
			Build()
	}
	return nil
}
