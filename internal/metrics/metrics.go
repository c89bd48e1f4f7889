// Package metrics exports capture session events as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// Metrics implements mvcapture.Observer.
type Metrics struct {
	OpensTotal          *prometheus.CounterVec
	FramesTotal         *prometheus.CounterVec
	PacketsSkippedTotal prometheus.Counter
	MotionVectorRows    prometheus.Counter
	RetrieveDuration    prometheus.Histogram
	StreamsEndedTotal   *prometheus.CounterVec
	BytesReadTotal      prometheus.Counter
	SessionsOpen        prometheus.Gauge
}

var _ mvcapture.Observer = (*Metrics)(nil)

// New registers the capture metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		OpensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mvcapture_opens_total",
			Help: "Total number of open attempts, by result and error category",
		}, []string{"result", "category"}),

		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mvcapture_frames_total",
			Help: "Total number of retrieved pictures, by coding type",
		}, []string{"type"}),

		PacketsSkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "mvcapture_packets_skipped_total",
			Help: "Total number of packets consumed without producing a picture",
		}),

		MotionVectorRows: f.NewCounter(prometheus.CounterOpts{
			Name: "mvcapture_motion_vector_rows_total",
			Help: "Total number of motion vectors exported",
		}),

		RetrieveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mvcapture_retrieve_duration_seconds",
			Help:    "Duration of picture conversion and motion vector extraction",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),

		StreamsEndedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mvcapture_streams_ended_total",
			Help: "Total number of sessions that reached their end, by reason",
		}, []string{"reason"}),

		BytesReadTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "mvcapture_bytes_read_total",
			Help: "Total compressed bytes demuxed by released sessions",
		}),

		SessionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "mvcapture_sessions_open",
			Help: "Number of currently open capture sessions",
		}),
	}
}

func (m *Metrics) Opened(mvcapture.StreamInfo) {
	m.OpensTotal.WithLabelValues("ok", "").Inc()
	m.SessionsOpen.Inc()
}

func (m *Metrics) OpenFailed(_ string, err error) {
	m.OpensTotal.WithLabelValues("error", mvcapture.Classify(err).String()).Inc()
}

func (m *Metrics) FrameRetrieved(ft mvcapture.FrameType, rows int, elapsed time.Duration) {
	m.FramesTotal.WithLabelValues(ft.String()).Inc()
	m.MotionVectorRows.Add(float64(rows))
	m.RetrieveDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) PacketsSkipped(n uint64) {
	m.PacketsSkippedTotal.Add(float64(n))
}

func (m *Metrics) Ended(_ string, err error) {
	m.StreamsEndedTotal.WithLabelValues(endReason(err)).Inc()
}

func (m *Metrics) Released(_ string, stats mvcapture.CaptureStats) {
	m.BytesReadTotal.Add(float64(stats.BytesRead))
	m.SessionsOpen.Dec()
}

func endReason(err error) string {
	switch {
	case err == nil:
		return "eos"
	case errors.Is(err, mvcapture.ErrDecodeFault):
		return "decode_fault"
	case errors.Is(err, mvcapture.ErrInterrupted):
		return "interrupted"
	default:
		return "error"
	}
}
