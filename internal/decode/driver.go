// Package decode drives libavformat/libavcodec for one open source: it
// demuxes packets, feeds the video decoder and exposes each decoded
// picture with its motion vector side data.
package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/asticode/go-astiav"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/source"
)

const (
	// DefaultSkipBudget is the number of skipped packets (other streams,
	// packets that yield no picture, read/decode errors) tolerated by a
	// single Next call before it gives up with ErrDecodeFault.
	DefaultSkipBudget = 512

	// srtIOBufferSize is the AVIO buffer size used for SRT byte streams.
	srtIOBufferSize = 32 * 1024
)

// Config describes how to open a source.
type Config struct {
	Source  source.Source
	Options source.Options

	// Input, when set, replaces the demuxer's protocol layer: bytes are
	// pulled from it and parsed as InputFormat (mpegts if empty).
	Input       io.Reader
	InputFormat string

	// ThreadCount is the decoder thread count. Zero means runtime.NumCPU().
	ThreadCount int
	// SkipBudget overrides DefaultSkipBudget when positive.
	SkipBudget int

	Logger *slog.Logger
}

// Counters are cumulative driver statistics.
type Counters struct {
	PacketsRead    uint64
	PacketsSkipped uint64
	BytesRead      uint64
	Pictures       uint64
	DecodeErrors   uint64
}

// Info describes the opened video stream.
type Info struct {
	StreamIndex int
	Codec       string
	Format      string
	Width       int
	Height      int
	Live        bool
}

// demuxer and decoder are the parts of libavformat/libavcodec Next uses.
type demuxer interface {
	ReadFrame(p *astiav.Packet) error
}

type decoder interface {
	SendPacket(p *astiav.Packet) error
	ReceiveFrame(f *astiav.Frame) error
}

// Driver owns the demuxer and decoder handles of one open source.
//
// Handles are acquired together in Open and released together in Close.
// A Driver is not safe for concurrent use.
type Driver struct {
	log *slog.Logger

	fc    *astiav.FormatContext
	cc    *astiav.CodecContext
	ioCtx *astiav.IOContext
	pkt   *astiav.Packet
	frame *astiav.Frame

	demux demuxer
	dec   decoder

	info   Info
	budget int

	// pending is set while pkt was read but not yet accepted by the decoder.
	pending  bool
	draining bool
	done     bool
	cause    error
	hasPic   bool

	counters Counters
}

// Open opens cfg.Source, selects its first video stream and opens a decoder
// that exports motion vectors. On failure every handle acquired so far is
// released before returning.
func Open(cfg Config) (_ *Driver, err error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	d := &Driver{
		log:    log,
		budget: cfg.SkipBudget,
	}
	if d.budget <= 0 {
		d.budget = DefaultSkipBudget
	}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if err := d.openInput(cfg); err != nil {
		return nil, err
	}
	if err := d.openDecoder(cfg); err != nil {
		return nil, err
	}

	if d.pkt = astiav.AllocPacket(); d.pkt == nil {
		return nil, fmt.Errorf("%w: packet", ErrResource)
	}
	if d.frame = astiav.AllocFrame(); d.frame == nil {
		return nil, fmt.Errorf("%w: frame", ErrResource)
	}

	d.info.Live = cfg.Source.Kind == source.KindSRT || source.IsLiveFormat(d.info.Format)

	log.Debug("mv-capture: decoder ready",
		"source", cfg.Source.Raw,
		"format", d.info.Format,
		"codec", d.info.Codec,
		"stream_index", d.info.StreamIndex,
		"resolution", fmt.Sprintf("%dx%d", d.info.Width, d.info.Height),
		"live", d.info.Live,
	)

	return d, nil
}

func (d *Driver) openInput(cfg Config) error {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return fmt.Errorf("%w: format context", ErrResource)
	}

	dict := astiav.NewDictionary()
	defer dict.Free()

	opts := cfg.Source.DemuxOptions(cfg.Options)
	for _, k := range source.SortedKeys(opts) {
		if err := dict.Set(k, opts[k], 0); err != nil {
			fc.Free()
			return fmt.Errorf("%w: set demuxer option %s: %v", ErrResource, k, err)
		}
	}

	url := cfg.Source.Path
	var inputFormat *astiav.InputFormat
	if cfg.Input != nil {
		name := cfg.InputFormat
		if name == "" {
			name = "mpegts"
		}
		if inputFormat = astiav.FindInputFormat(name); inputFormat == nil {
			fc.Free()
			return fmt.Errorf("%w: input format %q not available", ErrOpenInput, name)
		}

		r := cfg.Input
		ioCtx, err := astiav.AllocIOContext(srtIOBufferSize, false, func(b []byte) (int, error) {
			n, err := r.Read(b)
			if err != nil && n == 0 {
				if errors.Is(err, io.EOF) {
					return 0, astiav.ErrEof
				}
				return 0, err
			}
			return n, nil
		}, nil, nil)
		if err != nil {
			fc.Free()
			return fmt.Errorf("%w: io context: %v", ErrResource, err)
		}
		d.ioCtx = ioCtx
		fc.SetPb(ioCtx)
		url = ""
	}

	// OpenInput frees the context itself when it fails.
	if err := fc.OpenInput(url, inputFormat, dict); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpenInput, cfg.Source.Raw, err)
	}
	d.fc = fc
	d.demux = fc

	if err := fc.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("%w: stream info: %v", ErrOpenInput, err)
	}

	if ifmt := fc.InputFormat(); ifmt != nil {
		d.info.Format = ifmt.Name()
	}
	return nil
}

func (d *Driver) openDecoder(cfg Config) error {
	var stream *astiav.Stream
	for _, s := range d.fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			stream = s
			break
		}
	}
	if stream == nil {
		return ErrNoVideoStream
	}
	d.info.StreamIndex = stream.Index()

	par := stream.CodecParameters()
	codec := astiav.FindDecoder(par.CodecID())
	if codec == nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedCodec, par.CodecID())
	}
	d.info.Codec = codec.Name()

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return fmt.Errorf("%w: codec context", ErrResource)
	}
	d.cc = cc

	if err := par.ToCodecContext(cc); err != nil {
		return fmt.Errorf("%w: codec parameters: %v", ErrUnsupportedCodec, err)
	}

	threads := cfg.ThreadCount
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	cc.SetThreadCount(threads)
	cc.SetFlags2(cc.Flags2().Add(astiav.CodecFlag2ExportMvs))

	// Decoders that ignore flags2 read export_side_data instead.
	opts := astiav.NewDictionary()
	defer opts.Free()
	if err := opts.Set("export_side_data", "+mvs", 0); err != nil {
		return fmt.Errorf("%w: decoder options: %v", ErrResource, err)
	}

	if err := cc.Open(codec, opts); err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnsupportedCodec, codec.Name(), err)
	}
	d.dec = cc

	d.info.Width, d.info.Height = cc.Width(), cc.Height()
	return nil
}

// Info returns the opened stream description.
func (d *Driver) Info() Info { return d.info }

// Counters returns cumulative statistics.
func (d *Driver) Counters() Counters { return d.counters }

// Frame returns the last decoded picture, or nil if Next has not
// succeeded since the last failure. The frame is owned by the driver and
// is overwritten by the next call to Next.
func (d *Driver) Frame() *astiav.Frame {
	if !d.hasPic {
		return nil
	}
	return d.frame
}

// Next advances until one picture is decoded.
//
// It returns nil when a picture is available through Frame, io.EOF once
// the stream (including the decoder's delayed pictures) is exhausted, or
// an error wrapping ErrDecodeFault or ErrInterrupted when the stream cannot
// continue. After a non-nil return every later call returns the same
// kind of result.
func (d *Driver) Next() error {
	d.hasPic = false
	if d.demux == nil || d.dec == nil {
		return ErrClosed
	}
	if d.done {
		return d.endErr()
	}

	skipped := 0
	skip := func() error {
		skipped++
		d.counters.PacketsSkipped++
		if skipped > d.budget {
			d.done = true
			d.cause = fmt.Errorf("%w: %d packets without a picture", ErrDecodeFault, skipped)
			return d.cause
		}
		return nil
	}

	for {
		err := d.dec.ReceiveFrame(d.frame)
		switch {
		case err == nil:
			d.hasPic = true
			d.counters.Pictures++
			return nil
		case errors.Is(err, astiav.ErrEof):
			d.done = true
			return d.endErr()
		case !errors.Is(err, astiav.ErrEagain):
			d.counters.DecodeErrors++
			d.log.Debug("mv-capture: receive frame failed", "error", err)
			if err := skip(); err != nil {
				return err
			}
			continue
		}

		if d.draining {
			// The decoder wants input while flushing; nothing left.
			d.done = true
			return d.endErr()
		}

		if err := d.feed(skip); err != nil {
			return err
		}
	}
}

// feed reads packets until one video packet has been sent to the decoder
// or the demuxer ends, in which case the decoder is put in drain mode. A
// packet the decoder refuses with EAGAIN stays pending and is sent again
// by the next call.
func (d *Driver) feed(skip func() error) error {
	for {
		if !d.pending {
			d.pkt.Unref()
			err := d.demux.ReadFrame(d.pkt)
			if err != nil {
				if errors.Is(err, astiav.ErrEagain) {
					if err := skip(); err != nil {
						return err
					}
					continue
				}
				if !errors.Is(err, astiav.ErrEof) && !errors.Is(err, io.EOF) {
					d.cause = fmt.Errorf("%w: %v", ErrInterrupted, err)
					d.log.Debug("mv-capture: read packet failed, draining decoder", "error", err)
				}
				d.draining = true
				if err := d.dec.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					d.done = true
					return d.endErr()
				}
				return nil
			}

			d.counters.PacketsRead++
			d.counters.BytesRead += uint64(d.pkt.Size())

			if d.pkt.StreamIndex() != d.info.StreamIndex {
				if err := skip(); err != nil {
					return err
				}
				continue
			}
			d.pending = true
		}

		err := d.dec.SendPacket(d.pkt)
		if errors.Is(err, astiav.ErrEagain) {
			// Output queue full; the caller drains it first.
			return nil
		}
		d.pending = false
		if err != nil {
			d.counters.DecodeErrors++
			d.log.Debug("mv-capture: send packet failed", "error", err)
			if err := skip(); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

func (d *Driver) endErr() error {
	if d.cause != nil {
		return d.cause
	}
	return io.EOF
}

// Close releases every handle. Safe to call more than once and on a
// partially opened driver.
func (d *Driver) Close() {
	d.hasPic = false
	d.pending = false
	d.demux = nil
	d.dec = nil
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if d.fc != nil {
		d.fc.CloseInput()
		d.fc.Free()
		d.fc = nil
	}
	if d.ioCtx != nil {
		d.ioCtx.Free()
		d.ioCtx = nil
	}
}

// IsEndOfStream reports whether err means the stream ended, either
// normally or through a fault that is reported as an ending.
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrDecodeFault) || errors.Is(err, ErrInterrupted)
}

// PictureTypeLetter returns the single-letter coding type of a picture:
// I, P, B for the common types, S, i, p, b for the rarer ones and "?"
// when unknown.
func PictureTypeLetter(t astiav.PictureType) string {
	switch t {
	case astiav.PictureTypeI:
		return "I"
	case astiav.PictureTypeP:
		return "P"
	case astiav.PictureTypeB:
		return "B"
	case astiav.PictureTypeS:
		return "S"
	case astiav.PictureTypeSi:
		return "i"
	case astiav.PictureTypeSp:
		return "p"
	case astiav.PictureTypeBi:
		return "b"
	default:
		return "?"
	}
}
