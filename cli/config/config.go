package config

import (
	"fmt"
	"sort"
	"time"
)

// Config represents a hopper.yaml configuration file.
// All values are optional and act as defaults for hopper ingest flags.
// CLI flags always override config values.
type Config struct {
	Cluster         string        `yaml:"cluster"`
	Database        string        `yaml:"database"`
	Table           string        `yaml:"table"`
	Method          string        `yaml:"method"`
	Token           string        `yaml:"token"`
	Format          string        `yaml:"format"`
	HandleDir       string        `yaml:"handle_dir"`
	RefreshInterval Duration      `yaml:"refresh_interval"`
	Upload          UploadConfig  `yaml:"upload"`
	Managed         ManagedConfig `yaml:"managed"`
	Notify          NotifyConfig  `yaml:"notify"`
}

// UploadConfig holds blob upload tuning from the config file.
type UploadConfig struct {
	BlockSize      int64 `yaml:"block_size"`
	Concurrency    int   `yaml:"concurrency"`
	MaxPayloadSize int64 `yaml:"max_payload_size"`
}

// ManagedConfig holds managed ingestion defaults from the config file.
type ManagedConfig struct {
	ContinueWhenUnavailable bool    `yaml:"continue_when_unavailable"`
	DataSizeFactor          float64 `yaml:"data_size_factor"`
	MaxStreamingSize        int64   `yaml:"max_streaming_size"`
}

// NotifyConfig holds completion notification defaults from the config file.
type NotifyConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// HeaderList converts the map-keyed notify headers into a sorted slice of
// "Name: value" strings. Sorting by name ensures deterministic ordering.
func (n NotifyConfig) HeaderList() []string {
	if len(n.Headers) == 0 {
		return nil
	}

	names := make([]string, 0, len(n.Headers))
	for name := range n.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]string, 0, len(names))
	for _, name := range names {
		list = append(list, fmt.Sprintf("%s: %s", name, n.Headers[name]))
	}
	return list
}
