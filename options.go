package mvcapture

import (
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/decode"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/source"
)

// Option configures a VideoCap.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	observer      Observer
	threadCount   int
	skipBudget    int
	openTimeout   time.Duration
	readTimeout   time.Duration
	rtspTransport string
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		observer:      nopObserver{},
		skipBudget:    decode.DefaultSkipBudget,
		openTimeout:   source.DefaultSRTDialTimeout,
		readTimeout:   source.DefaultTimeout,
		rtspTransport: source.DefaultRTSPTransport,
	}
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver receives session events (metrics, tracing...).
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithThreadCount sets the decoder thread count. Zero uses every CPU.
func WithThreadCount(n int) Option {
	return func(o *options) { o.threadCount = n }
}

// WithSkipBudget sets how many packets a single Grab may skip before it
// reports a decode fault. Default 512.
func WithSkipBudget(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.skipBudget = n
		}
	}
}

// WithOpenTimeout bounds the SRT handshake. Default 10s.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) { o.openTimeout = d }
}

// WithReadTimeout sets the socket timeout of network sources. Default 5s.
// Zero leaves the demuxer default (which may block forever).
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithRTSPTransport sets the RTSP lower transport ("tcp", "udp",
// "udp_multicast", "http"). Default "tcp".
func WithRTSPTransport(t string) Option {
	return func(o *options) {
		if t != "" {
			o.rtspTransport = t
		}
	}
}
