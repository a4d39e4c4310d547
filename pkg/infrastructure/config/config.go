// Package config loads the daemon's YAML configuration using
// gopkg.in/yaml.v3 to unmarshal and dario.cat/mergo to layer a config
// file's contents over defaults or flag-set values.
package config

import (
	"context"
	"os"

	"dario.cat/mergo"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"gopkg.in/yaml.v3"
)

// ProviderConfig is one named provider stanza from a providers config
// file — the provider_name/provider_type/templates/instance_templates
// triple the host provider interface reads at startup.
type ProviderConfig struct {
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type"`
	Region       string         `yaml:"region,omitempty"`
	Profile      string         `yaml:"profile,omitempty"`
	Endpoint     string         `yaml:"endpoint,omitempty"`
	TemplatesDir string         `yaml:"templates_dir,omitempty"`
	Enabled      bool           `yaml:"enabled"`
	APIs         []string       `yaml:"apis,omitempty"` // provider_api values this instance accepts
	Weight       int            `yaml:"weight,omitempty"`
	Extra        map[string]any `yaml:"extra,omitempty"`
}

// StorageConfig selects and configures the Unit-of-Work's persistence
// strategy.
type StorageConfig struct {
	Strategy string         `yaml:"strategy"` // "file", "sql", "cloudkv"
	DSN      string         `yaml:"dsn,omitempty"`
	BaseDir  string         `yaml:"base_dir,omitempty"`
	Table    string         `yaml:"table,omitempty"`
	Extra    map[string]any `yaml:"extra,omitempty"`
}

// AWSMetricsConfig controls the AWS API instrumentation middleware:
// whether it's attached at all, what fraction of calls it samples, and
// an optional service/operation allowlist.
type AWSMetricsConfig struct {
	Enabled            bool     `yaml:"aws_metrics_enabled"`
	SampleRate         float64  `yaml:"sample_rate,omitempty"`
	MonitoredServices  []string `yaml:"monitored_services,omitempty"`
	MonitoredOperations []string `yaml:"monitored_operations,omitempty"`
	TrackPayloadSizes  bool     `yaml:"track_payload_sizes,omitempty"`
}

// Config is the daemon's top-level configuration document.
type Config struct {
	LogLevel                string           `yaml:"log_level"`
	LogFile                 string           `yaml:"log_file,omitempty"`
	WorkDir                 string           `yaml:"work_dir"`
	Providers               []ProviderConfig `yaml:"providers"`
	Storage                 StorageConfig    `yaml:"storage"`
	PollIntervalSec         int              `yaml:"poll_interval_sec"`
	RequestTTLHours         int              `yaml:"request_ttl_hours"`
	DefaultProviderInstance string           `yaml:"default_provider_instance,omitempty"`
	SelectionPolicy         string           `yaml:"selection_policy,omitempty"` // FIRST_AVAILABLE, ROUND_ROBIN, WEIGHTED_ROUND_ROBIN, FASTEST_RESPONSE, CAPABILITY_BASED
	AWSMetrics              AWSMetricsConfig `yaml:"aws_metrics,omitempty"`
	MetricsAddr             string           `yaml:"metrics_addr,omitempty"` // "host:port" to serve /metrics on; empty disables it
}

// Default returns the zero-config baseline every loaded file is merged
// on top of.
func Default() Config {
	return Config{
		LogLevel:        "info",
		WorkDir:         "/var/run/hostfactoryd",
		Storage:         StorageConfig{Strategy: "file", BaseDir: "/var/run/hostfactoryd/data"},
		PollIntervalSec: 30,
		RequestTTLHours: 168,
		SelectionPolicy: "FIRST_AVAILABLE",
		AWSMetrics:      AWSMetricsConfig{Enabled: false, SampleRate: 1.0},
	}
}

// Load reads path (if non-empty) and merges its contents over base,
// base's values losing to anything the file sets explicitly.
func Load(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	var fromFile Config
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return base, err
	}
	if err := mergo.Merge(&base, fromFile, mergo.WithOverride); err != nil {
		return base, err
	}
	return base, nil
}

// ParseInto unmarshals path into T and merges it over opts, following
// the same override-merge shape as Load but for an arbitrary document
// type.
func ParseInto[T any](path string, opts T) (T, error) {
	if path == "" {
		return opts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	var parsed T
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return opts, err
	}
	if err := mergo.Merge(&opts, parsed, mergo.WithOverride); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadAWSConfig resolves an aws.Config for a provider stanza, honoring
// an explicit region/profile override before falling back to the
// environment's default credential chain.
func LoadAWSConfig(ctx context.Context, pc ProviderConfig) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if pc.Region != "" {
		opts = append(opts, config.WithRegion(pc.Region))
	}
	if pc.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(pc.Profile))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}
