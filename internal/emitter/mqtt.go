// Package emitter publishes per-frame motion summaries to an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// ErrNotConnected is returned by Publish before Connect or after the
// connection was lost.
var ErrNotConnected = errors.New("emitter: mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config addresses the broker and topic.
type Config struct {
	// Broker is host:port or a full URL (tcp://, ssl://, ws://).
	Broker   string
	ClientID string
	// Topic receives one message per frame.
	Topic string
	QoS   byte
}

// MotionSummary is the msgpack payload of one frame.
type MotionSummary struct {
	Seq           uint64  `msgpack:"seq"`
	SourceStream  string  `msgpack:"source_stream"`
	TraceID       string  `msgpack:"trace_id"`
	FrameType     string  `msgpack:"frame_type"`
	Timestamp     float64 `msgpack:"timestamp"`
	Rows          int     `msgpack:"rows"`
	MeanMagnitude float64 `msgpack:"mean_magnitude"`
}

// Summarize reduces a sample to its summary.
func Summarize(s mvcapture.Sample) MotionSummary {
	return MotionSummary{
		Seq:           s.Seq,
		SourceStream:  s.SourceStream,
		TraceID:       s.TraceID,
		FrameType:     s.FrameType.String(),
		Timestamp:     s.Timestamp,
		Rows:          s.MotionVectors.Rows(),
		MeanMagnitude: s.MotionVectors.MeanMagnitude(),
	}
}

// Marshal encodes a summary as msgpack.
func (m MotionSummary) Marshal() ([]byte, error) {
	return msgpack.Marshal(m)
}

// Unmarshal decodes a msgpack summary.
func Unmarshal(data []byte) (MotionSummary, error) {
	var m MotionSummary
	err := msgpack.Unmarshal(data, &m)
	return m, err
}

// MQTT publishes motion summaries.
type MQTT struct {
	cfg    Config
	log    *slog.Logger
	Client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// NewMQTT creates an emitter. Call Connect before Publish.
func NewMQTT(cfg Config, log *slog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("emitter: broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("emitter: topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("emitter: invalid qos %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "mv-capture"
	}
	if log == nil {
		log = slog.Default()
	}
	return &MQTT{cfg: cfg, log: log}, nil
}

func brokerURL(b string) string {
	if strings.Contains(b, "://") {
		return b
	}
	return "tcp://" + b
}

// Connect establishes the broker connection. The client reconnects on its
// own afterwards.
func (e *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.Info("mv-capture: mqtt connected", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("mv-capture: mqtt connection lost, will auto-reconnect", "broker", e.cfg.Broker, "error", err)
	}

	e.Client = mqtt.NewClient(opts)
	e.log.Info("mv-capture: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Publish sends the summary of s.
func (e *MQTT) Publish(s mvcapture.Sample) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := Summarize(s).Marshal()
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: marshal summary: %w", err)
	}

	token := e.Client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.log.Debug("mv-capture: summary published", "topic", e.cfg.Topic, "seq", s.Seq, "size", len(payload))
	return nil
}

// Run publishes every sample received on in until it closes or ctx ends.
// Publish errors are logged and do not stop the loop.
func (e *MQTT) Run(ctx context.Context, in <-chan mvcapture.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			if err := e.Publish(s); err != nil {
				e.log.Debug("mv-capture: publish failed", "seq", s.Seq, "error", err)
			}
		}
	}
}

// Disconnect closes the connection.
func (e *MQTT) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		e.log.Info("mv-capture: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics.
func (e *MQTT) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTT) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTT) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTT) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
