// Package config loads tagscan settings from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/tagscan/internal/fingerprint"
)

const (
	DefaultVersion   = "d2_bl"
	DefaultCachePath = "tagscan.cache"
)

// Config is the top-level tagscan configuration.
type Config struct {
	PackagesDir string `yaml:"packages_dir"`
	Version     string `yaml:"version"`
	CachePath   string `yaml:"cache_path"`
	Workers     int    `yaml:"workers"`     // 0 means one per CPU
	Fingerprint string `yaml:"fingerprint"` // full | quick
	Wordlist    string `yaml:"wordlist"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. Unset fields take defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath
	}
	if c.Fingerprint == "" {
		c.Fingerprint = fingerprint.Full.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if _, err := fingerprint.ParseMode(c.Fingerprint); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// FingerprintMode returns the parsed fingerprint mode. Call Validate first.
func (c *Config) FingerprintMode() fingerprint.Mode {
	m, _ := fingerprint.ParseMode(c.Fingerprint)
	return m
}

// ParseLevel maps debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
