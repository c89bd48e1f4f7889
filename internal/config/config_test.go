package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mvextract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Output.Enabled())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
source:
  url: rtsp://camera/stream
  name: cam-1
  read_timeout: 2s
output:
  overlay: false
  width: 640
reconnect:
  max_attempts: 3
mqtt:
  broker: localhost:1883
bucket:
  endpoint: minio:9000
  name: runs
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "rtsp://camera/stream", cfg.Source.URL)
	assert.Equal(t, "cam-1", cfg.Source.Name)
	assert.Equal(t, 2*time.Second, cfg.Source.ReadTimeout)
	assert.False(t, cfg.Output.Overlay)
	assert.Equal(t, 640, cfg.Output.Width)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "runs", cfg.Bucket.Name)

	// Unset keys keep their defaults.
	assert.Equal(t, 95, cfg.Output.JPEGQuality)
	assert.Equal(t, "tcp", cfg.Source.RTSPTransport)
	assert.Equal(t, "mvcapture/summaries", cfg.MQTT.Topic)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "source:\n  url: a.mp4\n")
	t.Setenv("MVCAPTURE_SOURCE_URL", "b.mp4")
	t.Setenv("MVCAPTURE_OUTPUT_JPEG_QUALITY", "80")
	t.Setenv("MVCAPTURE_RECONNECT_DISABLED", "true")
	t.Setenv("MVCAPTURE_METRICS_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "b.mp4", cfg.Source.URL)
	assert.Equal(t, 80, cfg.Output.JPEGQuality)
	assert.True(t, cfg.Reconnect.Disabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "source: [not, a, map"))
	assert.Error(t, err)

	t.Setenv("MVCAPTURE_SOURCE_THREADS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
		{"threads", func(c *Config) { c.Source.Threads = -1 }},
		{"max frames", func(c *Config) { c.Source.MaxFrames = -1 }},
		{"jpeg quality", func(c *Config) { c.Output.JPEGQuality = 101 }},
		{"width", func(c *Config) { c.Output.Width = -5 }},
		{"reconnect delays", func(c *Config) { c.Reconnect.InitialDelay = time.Minute }},
		{"mqtt topic", func(c *Config) { c.MQTT.Broker = "b:1883"; c.MQTT.Topic = "" }},
		{"mqtt qos", func(c *Config) { c.MQTT.Broker = "b:1883"; c.MQTT.QoS = 3 }},
		{"bucket endpoint", func(c *Config) { c.Bucket.Name = "runs" }},
	}

	require.NoError(t, Validate(Default()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
