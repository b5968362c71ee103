// Package config loads the optional YAML configuration file and fills
// unset fields with defaults; the cmd packages apply their CLI flags on
// top of the result. Nothing here is persisted back to disk; per
// §6, the system has no persisted state beyond this startup-time config.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the full set of user-tunable knobs for one endpoint. Zero
// values mean "use the built-in default" and are filled in by
// ApplyDefaults.
type Config struct {
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	FrameSamples int    `yaml:"frame_samples"`
	BlockSamples int    `yaml:"block_samples"`

	ReceivePort int `yaml:"receive_port"`
	SendPort    int `yaml:"send_port"`

	ReleaseThreshold  int `yaml:"release_threshold"`
	ConcealmentWindow int `yaml:"concealment_window"`

	DiscoveryInstanceName string `yaml:"discovery_instance_name"`

	LogFile string `yaml:"log_file"`
}

// Load reads and parses a YAML config file at path. A missing file is
// not an error; it returns an empty Config so ApplyDefaults can fill it.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills any zero-valued field with the nominal settings
// from §2.1: 48kHz mono, 20ms frame/block, the convention ports from §6,
// release threshold 20 and concealment window 50.
func (c Config) ApplyDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameSamples == 0 {
		c.FrameSamples = 960
	}
	if c.BlockSamples == 0 {
		c.BlockSamples = 960
	}
	if c.ReceivePort == 0 {
		c.ReceivePort = 18521
	}
	if c.SendPort == 0 {
		c.SendPort = 18522
	}
	if c.ReleaseThreshold == 0 {
		c.ReleaseThreshold = 20
	}
	if c.ConcealmentWindow == 0 {
		c.ConcealmentWindow = 50
	}
	return c
}
