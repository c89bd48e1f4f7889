package mvcapture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/convert"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/decode"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/motion"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/source"
)

const tracerName = "github.com/e7canasta/orion-care-sensor/modules/mv-capture"

// VideoCap is a capture session over one video source.
//
// It decodes pictures one at a time and exposes, for each of them, the
// BGR image, the motion vectors exported by the decoder, the coding type
// and a wall-clock timestamp. The access pattern is the classic two-phase
// one: Grab advances the decoder, Retrieve materializes the last grabbed
// picture. Read does both.
//
// A VideoCap is either closed (no native handles) or opened (demuxer,
// decoder and converter all held). Every operation on a closed VideoCap
// is a defined no-op.
//
// A VideoCap must be driven by one goroutine at a time. Interrupt is the
// only method safe to call concurrently.
type VideoCap struct {
	opts options

	state  State
	src    source.Source
	info   StreamInfo
	driver *decode.Driver
	conv   *convert.Converter
	srt    atomic.Pointer[source.SRTReader]

	grabbed bool
	ended   bool
	err     error

	frames      uint64
	lastSkipped uint64
	lastStamp   float64
}

// New returns a closed VideoCap.
func New(opts ...Option) *VideoCap {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &VideoCap{opts: o}
}

// Open opens source and reports whether it succeeded. Use OpenContext to
// get the reason of a failure.
func (c *VideoCap) Open(raw string) bool {
	return c.OpenContext(context.Background(), raw) == nil
}

// OpenContext opens a local file or a stream URL.
//
// This method:
//  1. Releases the current session, if any
//  2. Resolves the source transport (file, demuxer protocol or SRT)
//  3. Opens the demuxer and finds the first video stream
//  4. Opens a decoder that exports motion vectors as side data
//  5. Prepares the BGR converter and moves to StateOpened
//
// On failure every handle acquired so far is released and the VideoCap
// stays closed. Source failures wrap ErrOpen (and, when known,
// ErrNoVideoStream or ErrUnsupportedCodec); allocation failures wrap
// ErrResource instead.
//
// ctx bounds the SRT handshake. libav calls cannot be cancelled once
// started; network sources are bounded by WithReadTimeout instead.
func (c *VideoCap) OpenContext(ctx context.Context, raw string) (err error) {
	c.Release()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "mvcapture.Open")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.opts.observer.OpenFailed(raw, err)
			c.opts.logger.Warn("mv-capture: open failed",
				"source", raw,
				"error", err,
				"category", Classify(err).String(),
			)
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}

	src, err := source.Resolve(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	span.SetAttributes(
		attribute.String("mvcapture.source", raw),
		attribute.String("mvcapture.transport", src.Kind.String()),
	)

	cfg := decode.Config{
		Source: src,
		Options: source.Options{
			RTSPTransport: c.opts.rtspTransport,
			Timeout:       c.opts.readTimeout,
		},
		ThreadCount: c.opts.threadCount,
		SkipBudget:  c.opts.skipBudget,
		Logger:      c.opts.logger,
	}

	var srt *source.SRTReader
	if src.Kind == source.KindSRT {
		srt, err = source.DialSRT(ctx, src, c.opts.openTimeout, c.opts.logger)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpen, err)
		}
		cfg.Input = srt
	}

	driver, err := decode.Open(cfg)
	if err != nil {
		if srt != nil {
			srt.Close()
		}
		if errors.Is(err, decode.ErrResource) {
			return fmt.Errorf("mv-capture: open %s: %w", raw, err)
		}
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}

	di := driver.Info()
	c.src = src
	c.driver = driver
	c.conv = convert.NewConverter()
	c.srt.Store(srt)
	c.info = StreamInfo{
		Source:    raw,
		Transport: src.Kind.String(),
		Format:    di.Format,
		Codec:     di.Codec,
		Width:     di.Width,
		Height:    di.Height,
		Live:      di.Live,
	}
	c.state = StateOpened
	c.grabbed = false
	c.ended = false
	c.err = nil
	c.frames = 0
	c.lastSkipped = 0
	c.lastStamp = 0

	span.SetAttributes(
		attribute.String("mvcapture.codec", di.Codec),
		attribute.String("mvcapture.format", di.Format),
		attribute.Int("mvcapture.width", di.Width),
		attribute.Int("mvcapture.height", di.Height),
	)

	c.opts.logger.Info("mv-capture: source opened",
		"source", raw,
		"transport", c.info.Transport,
		"format", c.info.Format,
		"codec", c.info.Codec,
		"resolution", c.info.Resolution(),
		"live", c.info.Live,
	)
	c.opts.observer.Opened(c.info)

	return nil
}

// Grab decodes the next picture. It returns false at the end of the
// stream, on a decode fault or interrupted network read (both reported
// as the end), and immediately when the VideoCap is closed. Err tells
// these cases apart.
func (c *VideoCap) Grab() bool {
	c.grabbed = false
	if c.state != StateOpened {
		c.err = ErrClosed
		return false
	}

	err := c.driver.Next()
	c.reportSkipped()

	if err != nil {
		if errors.Is(err, io.EOF) {
			c.err = nil
		} else {
			c.err = err
		}
		if !c.ended {
			c.ended = true
			c.opts.observer.Ended(c.info.Source, c.err)
			c.opts.logger.Info("mv-capture: end of stream",
				"source", c.info.Source,
				"frames", c.frames,
				"error", c.err,
			)
		}
		return false
	}

	c.err = nil
	c.grabbed = true
	c.frames++
	return true
}

func (c *VideoCap) reportSkipped() {
	skipped := c.driver.Counters().PacketsSkipped
	if d := skipped - c.lastSkipped; d > 0 {
		c.opts.observer.PacketsSkipped(d)
	}
	c.lastSkipped = skipped
}

// Retrieve materializes the picture decoded by the last successful Grab.
//
// It returns FailedResult when the VideoCap is closed or when no picture
// was grabbed since the previous Retrieve. Otherwise it returns a newly
// allocated BGR frame, the motion vector table (possibly empty), the
// coding type and the current wall-clock time.
//
// A conversion failure is a resource fault: Retrieve returns FailedResult
// and Err wraps ErrResource.
func (c *VideoCap) Retrieve() Result {
	if c.state != StateOpened || !c.grabbed {
		return FailedResult()
	}
	c.grabbed = false

	start := time.Now()
	pic := c.driver.Frame()
	if pic == nil {
		return FailedResult()
	}

	img, err := c.conv.Convert(pic)
	if err != nil {
		c.err = fmt.Errorf("mv-capture: %w: %v", ErrResource, err)
		c.opts.logger.Error("mv-capture: frame conversion failed",
			"source", c.info.Source,
			"frame", c.frames,
			"error", err,
		)
		return FailedResult()
	}

	mvs := motion.FromFrame(pic)
	ft := FrameType(decode.PictureTypeLetter(pic.PictureType()))
	ts := c.stamp()

	c.opts.observer.FrameRetrieved(ft, mvs.Rows(), time.Since(start))

	return Result{
		OK:            true,
		Frame:         img,
		MotionVectors: mvs,
		FrameType:     ft,
		Timestamp:     ts,
	}
}

// stamp returns the wall-clock time in seconds, never less than the
// previous stamp of the session.
func (c *VideoCap) stamp() float64 {
	now := float64(time.Now().UnixNano()) / 1e9
	if now < c.lastStamp {
		now = c.lastStamp
	}
	c.lastStamp = now
	return now
}

// Read grabs and retrieves the next picture. If Grab fails it returns
// FailedResult without calling Retrieve.
func (c *VideoCap) Read() Result {
	if !c.Grab() {
		return FailedResult()
	}
	return c.Retrieve()
}

// Release frees every native handle and returns the VideoCap to
// StateClosed. Safe to call any number of times in any state.
func (c *VideoCap) Release() {
	if c.conv != nil {
		c.conv.Close()
		c.conv = nil
	}
	var stats CaptureStats
	if c.driver != nil {
		stats = c.stats()
		c.driver.Close()
		c.driver = nil
	}
	if srt := c.srt.Swap(nil); srt != nil {
		srt.Close()
	}

	wasOpen := c.state == StateOpened
	c.state = StateClosed
	c.grabbed = false

	if wasOpen {
		c.opts.logger.Debug("mv-capture: source released",
			"source", c.info.Source,
			"frames", stats.FramesRead,
		)
		c.opts.observer.Released(c.info.Source, stats)
	}
}

// Interrupt closes the live transport under an in-flight Grab so that it
// returns promptly. Safe to call from any goroutine. The VideoCap must
// still be released by its owner.
func (c *VideoCap) Interrupt() {
	if srt := c.srt.Load(); srt != nil {
		srt.Close()
	}
}

// State returns the lifecycle state.
func (c *VideoCap) State() State { return c.state }

// IsOpened reports whether the VideoCap holds an open source.
func (c *VideoCap) IsOpened() bool { return c.state == StateOpened }

// Err returns why the last Grab returned false: nil at a normal end of
// stream, an error wrapping ErrDecodeFault or ErrInterrupted when the
// stream ended abnormally, ErrClosed when the VideoCap was closed, or an
// error wrapping ErrResource after a failed Retrieve.
func (c *VideoCap) Err() error { return c.err }

// Info describes the open stream. It is the zero value when closed.
func (c *VideoCap) Info() StreamInfo {
	if c.state != StateOpened {
		return StreamInfo{}
	}
	return c.info
}

// Stats returns the session counters. They reset on every Open.
func (c *VideoCap) Stats() CaptureStats {
	if c.driver == nil {
		return CaptureStats{}
	}
	return c.stats()
}

func (c *VideoCap) stats() CaptureStats {
	dc := c.driver.Counters()
	return CaptureStats{
		FramesRead:     c.frames,
		PacketsRead:    dc.PacketsRead,
		PacketsSkipped: dc.PacketsSkipped,
		BytesRead:      dc.BytesRead,
		DecodeErrors:   dc.DecodeErrors,
	}
}
