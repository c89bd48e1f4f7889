package mvcapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/reconnect"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/warmup"
)

const (
	defaultStreamBuffer = 10
	stopTimeout         = 3 * time.Second
)

// errLiveEnded ends a live session that reached its end of stream so that
// the reconnect loop opens it again.
var errLiveEnded = errors.New("mv-capture: live stream ended")

// Stream implements StreamProvider on top of VideoCap.
//
// File sources are delivered completely: sends block until the consumer
// is ready and the channel is closed at the end of the file. Live sources
// never block the decoder: samples are dropped when the channel is full
// and interrupted sessions are reopened with exponential backoff.
type Stream struct {
	// Configuration
	source        string
	sourceStream  string
	buffer        int
	autoReconnect bool
	opts          []Option
	log           *slog.Logger

	// Sample output
	samples chan Sample
	mu      sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cap    atomic.Pointer[VideoCap]

	// Statistics
	seq           atomic.Uint64
	frameCount    atomic.Uint64
	framesDropped atomic.Uint64
	bytesRead     atomic.Uint64
	mvRows        atomic.Uint64
	framesI       atomic.Uint64
	framesP       atomic.Uint64
	framesB       atomic.Uint64
	started       time.Time
	lastSampleAt  atomic.Int64
	resolution    atomic.Value // string
	live          atomic.Bool
	connected     atomic.Bool

	// Error telemetry
	errorsNetwork  atomic.Uint64
	errorsCodec    atomic.Uint64
	errorsAuth     atomic.Uint64
	errorsResource atomic.Uint64
	errorsUnknown  atomic.Uint64

	// Reconnection
	reconnectState *reconnect.State
	reconnectCfg   reconnect.Config

	samplesClosed atomic.Bool
}

// NewStream creates a stream with fail-fast validation. The source is not
// opened until Start.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("mv-capture: stream source is required")
	}
	if cfg.Buffer < 0 {
		return nil, fmt.Errorf("mv-capture: invalid buffer size %d", cfg.Buffer)
	}
	buffer := cfg.Buffer
	if buffer == 0 {
		buffer = defaultStreamBuffer
	}

	reconnectCfg := reconnect.DefaultConfig()
	reconnectCfg.Retryable = reconnect.Retryable
	if cfg.MaxReconnectAttempts > 0 {
		reconnectCfg.MaxRetries = cfg.MaxReconnectAttempts
	}
	if cfg.ReconnectInitialDelay > 0 {
		reconnectCfg.RetryDelay = cfg.ReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay > 0 {
		reconnectCfg.MaxRetryDelay = cfg.ReconnectMaxDelay
	}

	o := defaultOptions()
	for _, opt := range cfg.Options {
		opt(&o)
	}

	sourceStream := cfg.SourceStream
	if sourceStream == "" {
		sourceStream = cfg.Source
	}

	s := &Stream{
		source:         cfg.Source,
		sourceStream:   sourceStream,
		buffer:         buffer,
		autoReconnect:  !cfg.DisableReconnect,
		opts:           cfg.Options,
		log:            o.logger,
		reconnectCfg:   reconnectCfg,
		reconnectState: &reconnect.State{},
	}
	s.resolution.Store("")

	s.log.Info("mv-capture: stream created",
		"source", cfg.Source,
		"source_stream", sourceStream,
		"buffer", buffer,
		"reconnect", s.autoReconnect,
	)

	return s, nil
}

// Start opens the source and returns the sample channel.
//
// The first open is synchronous so that an unreachable or undecodable
// source is reported here. Decoding then runs in a background goroutine
// until the end of a file, Stop, ctx cancellation, or exhausted reconnect
// attempts on a live source. The channel is closed when decoding stops.
func (s *Stream) Start(ctx context.Context) (<-chan Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil, fmt.Errorf("mv-capture: stream already started")
	}

	vc := New(s.opts...)
	if err := vc.OpenContext(ctx, s.source); err != nil {
		s.countError(err)
		return nil, fmt.Errorf("mv-capture: start %s: %w", s.sourceStream, err)
	}

	info := vc.Info()
	s.live.Store(info.Live)
	s.resolution.Store(info.Resolution())
	s.connected.Store(true)
	s.cap.Store(vc)

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()
	s.samples = make(chan Sample, s.buffer)
	s.samplesClosed.Store(false)

	s.log.Info("mv-capture: stream started",
		"source", s.source,
		"source_stream", s.sourceStream,
		"resolution", info.Resolution(),
		"codec", info.Codec,
		"live", info.Live,
	)

	s.wg.Add(1)
	go s.run(s.ctx, s.samples, vc)

	return s.samples, nil
}

// run drives the capture sessions and closes out when they end.
func (s *Stream) run(ctx context.Context, out chan Sample, first *VideoCap) {
	defer s.wg.Done()
	defer func() {
		if s.samplesClosed.CompareAndSwap(false, true) {
			close(out)
		}
	}()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "mvcapture.Stream")
	span.SetAttributes(
		attribute.String("mvcapture.source_stream", s.sourceStream),
		attribute.Bool("mvcapture.live", s.live.Load()),
	)
	defer span.End()

	pending := first
	session := func(ctx context.Context) error {
		vc := pending
		pending = nil
		if vc == nil {
			vc = New(s.opts...)
			if err := vc.OpenContext(ctx, s.source); err != nil {
				s.countError(err)
				return err
			}
			s.cap.Store(vc)
			s.connected.Store(true)
		}
		defer func() {
			s.connected.Store(false)
			s.cap.CompareAndSwap(vc, nil)
			vc.Release()
		}()
		return s.capture(ctx, vc, out)
	}

	var err error
	if s.live.Load() && s.autoReconnect {
		err = reconnect.Run(ctx, session, s.reconnectCfg, s.reconnectState, s.log)
	} else {
		err = session(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("mv-capture: stream stopped",
			"error", err,
			"source_stream", s.sourceStream,
			"uptime", time.Since(s.started),
			"frames", s.frameCount.Load(),
			"reconnects", s.reconnectState.Reconnects.Load(),
		)
		return
	}
	s.log.Info("mv-capture: stream finished",
		"source_stream", s.sourceStream,
		"frames", s.frameCount.Load(),
		"dropped", s.framesDropped.Load(),
	)
}

// capture reads one session until it ends. It returns nil at the end of a
// file and an error for anything a live source should reconnect after.
func (s *Stream) capture(ctx context.Context, vc *VideoCap, out chan Sample) error {
	live := vc.Info().Live
	bytesBase := s.bytesRead.Load()
	produced := false

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res := vc.Read()
		s.bytesRead.Store(bytesBase + vc.Stats().BytesRead)
		if !res.OK {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err := vc.Err()
			if err != nil {
				s.countError(err)
			}
			if !live {
				return err
			}
			if err == nil {
				err = errLiveEnded
			}
			return err
		}

		if !produced {
			produced = true
			reconnect.Reset(s.reconnectState)
		}

		smp := Sample{
			Seq:          s.seq.Add(1),
			TraceID:      uuid.NewString(),
			SourceStream: s.sourceStream,
			Result:       res,
		}
		s.lastSampleAt.Store(time.Now().UnixNano())

		if live {
			select {
			case out <- smp:
				s.account(smp)
			default:
				s.framesDropped.Add(1)
				s.log.Debug("mv-capture: dropping sample, channel full",
					"seq", smp.Seq,
					"trace_id", smp.TraceID,
				)
			}
			continue
		}

		select {
		case out <- smp:
			s.account(smp)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) account(smp Sample) {
	s.frameCount.Add(1)
	s.mvRows.Add(uint64(smp.MotionVectors.Rows()))
	switch smp.FrameType {
	case FrameI:
		s.framesI.Add(1)
	case FrameP:
		s.framesP.Add(1)
	case FrameB:
		s.framesB.Add(1)
	}
}

func (s *Stream) countError(err error) {
	switch Classify(err) {
	case ErrCategoryNetwork:
		s.errorsNetwork.Add(1)
	case ErrCategoryCodec:
		s.errorsCodec.Add(1)
	case ErrCategoryAuth:
		s.errorsAuth.Add(1)
	case ErrCategoryResource:
		s.errorsResource.Add(1)
	default:
		s.errorsUnknown.Add(1)
	}
}

// Stop cancels decoding and waits up to 3 seconds for it to finish.
//
// Idempotent. A stopped Stream may be started again.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		s.log.Debug("mv-capture: stream not started, nothing to stop")
		return nil
	}

	s.log.Info("mv-capture: stopping stream", "source_stream", s.sourceStream)
	s.cancel()
	if vc := s.cap.Load(); vc != nil {
		vc.Interrupt()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.log.Debug("mv-capture: stream goroutine stopped cleanly")
	case <-time.After(stopTimeout):
		err = fmt.Errorf("mv-capture: stop timeout after %s", stopTimeout)
		s.log.Warn("mv-capture: stop timeout exceeded, decoder may still be running")
	}

	s.log.Info("mv-capture: stream stopped",
		"frames", s.frameCount.Load(),
		"dropped", s.framesDropped.Load(),
		"reconnects", s.reconnectState.Reconnects.Load(),
		"uptime", time.Since(s.started),
	)

	s.cancel = nil
	s.ctx = nil
	return err
}

// Stats returns current stream statistics. Safe to call from any goroutine.
func (s *Stream) Stats() StreamStats {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	frames := s.frameCount.Load()
	dropped := s.framesDropped.Load()

	var fps float64
	if !started.IsZero() {
		if up := time.Since(started).Seconds(); up > 0 {
			fps = float64(frames) / up
		}
	}

	var dropRate float64
	if total := frames + dropped; total > 0 {
		dropRate = float64(dropped) / float64(total) * 100
	}

	var latency int64
	if last := s.lastSampleAt.Load(); last != 0 {
		latency = time.Since(time.Unix(0, last)).Milliseconds()
	}

	resolution, _ := s.resolution.Load().(string)

	return StreamStats{
		FrameCount:       frames,
		FramesDropped:    dropped,
		DropRate:         dropRate,
		FPSReal:          fps,
		LatencyMS:        latency,
		SourceStream:     s.sourceStream,
		Resolution:       resolution,
		Reconnects:       s.reconnectState.Reconnects.Load(),
		BytesRead:        s.bytesRead.Load(),
		MotionVectorRows: s.mvRows.Load(),
		FramesI:          s.framesI.Load(),
		FramesP:          s.framesP.Load(),
		FramesB:          s.framesB.Load(),
		IsConnected:      s.connected.Load(),
		Live:             s.live.Load(),
		ErrorsNetwork:    s.errorsNetwork.Load(),
		ErrorsCodec:      s.errorsCodec.Load(),
		ErrorsAuth:       s.errorsAuth.Load(),
		ErrorsResource:   s.errorsResource.Load(),
		ErrorsUnknown:    s.errorsUnknown.Load(),
	}
}

// Warmup consumes samples for duration and reports whether they arrive at
// a stable rate. Consumed samples are not delivered to the channel reader.
//
// A file decodes as fast as the consumer reads it, so its rate says
// little; Warmup is meant for live sources.
func (s *Stream) Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error) {
	s.mu.RLock()
	samples := s.samples
	started := s.cancel != nil
	s.mu.RUnlock()

	if !started {
		return nil, fmt.Errorf("mv-capture: stream not started")
	}

	ws, err := warmup.WarmupWithAdapter(ctx, samples, duration, func(smp Sample) warmup.Frame {
		return warmup.Frame{Seq: smp.Seq, Timestamp: smp.Time()}
	}, s.log)
	if ws == nil {
		return nil, fmt.Errorf("mv-capture: %w", err)
	}

	stats := fromWarmup(ws)
	if err != nil {
		return stats, fmt.Errorf("mv-capture: %w", err)
	}
	return stats, nil
}
