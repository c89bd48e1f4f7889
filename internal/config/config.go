// Package config loads the mvextract configuration from a YAML file
// overlaid by MVCAPTURE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "MVCAPTURE_"

// Config represents the complete mvextract configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL"` // debug, info, warn, error
	Source    SourceConfig    `yaml:"source" envPrefix:"SOURCE_"`
	Output    OutputConfig    `yaml:"output" envPrefix:"OUTPUT_"`
	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing   TracingConfig   `yaml:"tracing" envPrefix:"TRACING_"`
	MQTT      MQTTConfig      `yaml:"mqtt" envPrefix:"MQTT_"`
	Bucket    BucketConfig    `yaml:"bucket" envPrefix:"BUCKET_"`
}

// SourceConfig selects and tunes the input.
type SourceConfig struct {
	URL           string        `yaml:"url" env:"URL"`   // file path or stream URL
	Name          string        `yaml:"name" env:"NAME"` // stream id in samples and telemetry
	RTSPTransport string        `yaml:"rtsp_transport" env:"RTSP_TRANSPORT"`
	OpenTimeout   time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	Threads       int           `yaml:"threads" env:"THREADS"` // 0 = every CPU
	SkipBudget    int           `yaml:"skip_budget" env:"SKIP_BUDGET"`
	MaxFrames     int           `yaml:"max_frames" env:"MAX_FRAMES"` // 0 = until end of stream
}

// OutputConfig controls the local dump.
type OutputConfig struct {
	Dir           string `yaml:"dir" env:"DIR"` // empty = out-<timestamp>
	Frames        bool   `yaml:"frames" env:"FRAMES"`
	MotionVectors bool   `yaml:"motion_vectors" env:"MOTION_VECTORS"`
	Overlay       bool   `yaml:"overlay" env:"OVERLAY"`
	JPEGQuality   int    `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
	Width         int    `yaml:"width" env:"WIDTH"`
}

// Enabled reports whether anything is dumped.
func (o OutputConfig) Enabled() bool { return o.Frames || o.MotionVectors }

// ReconnectConfig tunes live stream reconnection.
type ReconnectConfig struct {
	Disabled     bool          `yaml:"disabled" env:"DISABLED"`
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"` // empty = disabled
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"` // empty = disabled
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// MQTTConfig enables the motion summary publisher.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"BROKER"` // empty = disabled
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	Topic    string `yaml:"topic" env:"TOPIC"`
	QoS      byte   `yaml:"qos" env:"QOS"`
}

// BucketConfig enables the object storage sink.
type BucketConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
	Name      string `yaml:"name" env:"NAME"` // empty = disabled
	Prefix    string `yaml:"prefix" env:"PREFIX"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Source: SourceConfig{
			Name:          "default",
			RTSPTransport: "tcp",
			OpenTimeout:   10 * time.Second,
			ReadTimeout:   5 * time.Second,
			SkipBudget:    512,
		},
		Output: OutputConfig{
			Frames:        true,
			MotionVectors: true,
			Overlay:       true,
			JPEGQuality:   95,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
		Tracing: TracingConfig{ServiceName: "mv-capture"},
		MQTT: MQTTConfig{
			ClientID: "mv-capture",
			Topic:    "mvcapture/summaries",
		},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and section consistency.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", cfg.LogLevel))
	}

	if cfg.Source.Threads < 0 {
		errs = append(errs, fmt.Errorf("source.threads must be >= 0"))
	}
	if cfg.Source.SkipBudget < 0 {
		errs = append(errs, fmt.Errorf("source.skip_budget must be >= 0"))
	}
	if cfg.Source.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("source.max_frames must be >= 0"))
	}
	if cfg.Source.OpenTimeout < 0 || cfg.Source.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("source timeouts must be >= 0"))
	}

	if cfg.Output.JPEGQuality < 0 || cfg.Output.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("output.jpeg_quality must be in 0-100, got %d", cfg.Output.JPEGQuality))
	}
	if cfg.Output.Width < 0 {
		errs = append(errs, fmt.Errorf("output.width must be >= 0"))
	}

	if cfg.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts must be >= 0"))
	}
	if cfg.Reconnect.MaxDelay > 0 && cfg.Reconnect.InitialDelay > cfg.Reconnect.MaxDelay {
		errs = append(errs, fmt.Errorf("reconnect.initial_delay exceeds reconnect.max_delay"))
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			errs = append(errs, fmt.Errorf("mqtt.topic is required when mqtt.broker is set"))
		}
		if cfg.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2"))
		}
	}

	if cfg.Bucket.Name != "" && cfg.Bucket.Endpoint == "" {
		errs = append(errs, fmt.Errorf("bucket.endpoint is required when bucket.name is set"))
	}

	return errors.Join(errs...)
}
