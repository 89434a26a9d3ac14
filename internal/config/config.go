// Package config loads the packetscope YAML configuration and applies
// defaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig controls the capture source and the retention window.
type CaptureConfig struct {
	// Interface preselects a device; empty means the host default is
	// resolved at start time.
	Interface string `yaml:"interface"`
	// BPF is an optional kernel-side capture filter, e.g. "tcp port 443".
	BPF            string `yaml:"bpf"`
	SnapshotLen    int32  `yaml:"snapshot_len"`
	Promiscuous    *bool  `yaml:"promiscuous"`
	PollTimeoutMS  int    `yaml:"poll_timeout_ms"`
	BufferCapacity int    `yaml:"buffer_capacity"`
}

// PollTimeout is the pcap read timeout; it bounds how long a stop can
// take to be observed by the capture loop.
func (c CaptureConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMS) * time.Millisecond
}

// LoggingConfig controls the rotating log file. The terminal belongs to
// the UI, so there is no stdout sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Promisc reports the promiscuous-mode setting, defaulting to true when
// unset.
func (c CaptureConfig) Promisc() bool {
	if c.Promiscuous == nil {
		return true
	}
	return *c.Promiscuous
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing file is not an error; it
// yields the defaults so first runs need no setup.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Capture.SnapshotLen <= 0 {
		c.Capture.SnapshotLen = 65536
	}
	if c.Capture.PollTimeoutMS <= 0 {
		c.Capture.PollTimeoutMS = 500
	}
	if c.Capture.BufferCapacity <= 0 {
		c.Capture.BufferCapacity = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "packetscope.log"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 20
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
}
