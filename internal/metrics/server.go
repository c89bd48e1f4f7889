package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// NewServer returns a server exposing /metrics from g and a /healthz probe.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down.
func Serve(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("mv-capture: metrics server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// StreamCollector exposes the Stats of a running stream.
type StreamCollector struct {
	stats func() mvcapture.StreamStats

	frames     *prometheus.Desc
	dropped    *prometheus.Desc
	fps        *prometheus.Desc
	latency    *prometheus.Desc
	reconnects *prometheus.Desc
	connected  *prometheus.Desc
	errors     *prometheus.Desc
}

// NewStreamCollector reads stats on every scrape.
func NewStreamCollector(stats func() mvcapture.StreamStats) *StreamCollector {
	labels := []string{"source_stream"}
	return &StreamCollector{
		stats:      stats,
		frames:     prometheus.NewDesc("mvcapture_stream_samples_total", "Samples delivered by the stream", labels, nil),
		dropped:    prometheus.NewDesc("mvcapture_stream_samples_dropped_total", "Samples dropped on a full channel", labels, nil),
		fps:        prometheus.NewDesc("mvcapture_stream_fps", "Measured delivery rate", labels, nil),
		latency:    prometheus.NewDesc("mvcapture_stream_latency_seconds", "Time since the last sample", labels, nil),
		reconnects: prometheus.NewDesc("mvcapture_stream_reconnects_total", "Reconnection attempts", labels, nil),
		connected:  prometheus.NewDesc("mvcapture_stream_connected", "1 while a session is open", labels, nil),
		errors:     prometheus.NewDesc("mvcapture_stream_errors_total", "Session errors by category", append(labels, "category"), nil),
	}
}

func (c *StreamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frames
	ch <- c.dropped
	ch <- c.fps
	ch <- c.latency
	ch <- c.reconnects
	ch <- c.connected
	ch <- c.errors
}

func (c *StreamCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	name := s.SourceStream

	connected := 0.0
	if s.IsConnected {
		connected = 1
	}

	ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(s.FrameCount), name)
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.FramesDropped), name)
	ch <- prometheus.MustNewConstMetric(c.fps, prometheus.GaugeValue, s.FPSReal, name)
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, float64(s.LatencyMS)/1000, name)
	ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(s.Reconnects), name)
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected, name)

	for category, n := range map[string]uint64{
		"network":  s.ErrorsNetwork,
		"codec":    s.ErrorsCodec,
		"auth":     s.ErrorsAuth,
		"resource": s.ErrorsResource,
		"unknown":  s.ErrorsUnknown,
	} {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(n), name, category)
	}
}
