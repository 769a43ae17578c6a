package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config defines the runtime configuration for the scheduler server.
type Config struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// ArtifactDir is the BadgerDB directory for the artifact registry.
	// Empty means in-memory only.
	ArtifactDir string `yaml:"artifact_dir"`

	// GeneratorURL is the text-to-audio endpoint used by the reference
	// music generator.
	GeneratorURL     string        `yaml:"generator_url"`
	GeneratorTimeout time.Duration `yaml:"generator_timeout"`

	// AnalyzerURL is the frame analysis endpoint. Empty runs the server
	// with a passthrough analyzer (frames echo back unlabeled).
	AnalyzerURL     string        `yaml:"analyzer_url"`
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout"`

	// FastInterval and SlowInterval are the emitter cadences. The slow
	// cadence maps to high priority, the fast one to low.
	FastInterval time.Duration `yaml:"fast_interval"`
	SlowInterval time.Duration `yaml:"slow_interval"`

	// SmoothingWindow is the observation history capacity per session.
	SmoothingWindow int `yaml:"smoothing_window"`

	// PushBuffer is the per-session outbound event buffer; events beyond
	// it are dropped rather than blocking the dispatcher.
	PushBuffer int `yaml:"push_buffer"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Addr:             ":8080",
		MetricsAddr:      ":9090",
		ArtifactDir:      "",
		GeneratorURL:     "http://localhost:8090/generate",
		GeneratorTimeout: 60 * time.Second,
		AnalyzerURL:      "",
		AnalyzerTimeout:  5 * time.Second,
		FastInterval:     500 * time.Millisecond,
		SlowInterval:     time.Second,
		SmoothingWindow:  10,
		PushBuffer:       4,
	}
}

// Load reads a YAML config file over the defaults. Unset fields keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	d := Default()
	if c.FastInterval <= 0 {
		c.FastInterval = d.FastInterval
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = d.SlowInterval
	}
	if c.SmoothingWindow <= 0 {
		c.SmoothingWindow = d.SmoothingWindow
	}
	if c.PushBuffer <= 0 {
		c.PushBuffer = d.PushBuffer
	}
	if c.GeneratorTimeout <= 0 {
		c.GeneratorTimeout = d.GeneratorTimeout
	}
	if c.AnalyzerTimeout <= 0 {
		c.AnalyzerTimeout = d.AnalyzerTimeout
	}
	return c
}
