// Package testvideo encodes small synthetic MPEG-4 Part 2 clips with
// libavcodec, for tests that need real demuxer and decoder input without
// shipping media files.
package testvideo

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astiav"
)

// Options describes the clip. Zero fields take the defaults.
type Options struct {
	// Frames is the number of pictures per stream (50).
	Frames int
	// Width and Height are the picture size (64x64).
	Width  int
	Height int
	// FPS is the frame rate (25).
	FPS int
	// GOP is the intra period (12).
	GOP int
	// Streams is the number of identical video streams (1).
	Streams int
	// Format is the container muxer name (mpegts).
	Format string
}

func (o Options) withDefaults() Options {
	if o.Frames <= 0 {
		o.Frames = 50
	}
	if o.Width <= 0 {
		o.Width = 64
	}
	if o.Height <= 0 {
		o.Height = 64
	}
	if o.FPS <= 0 {
		o.FPS = 25
	}
	if o.GOP <= 0 {
		o.GOP = 12
	}
	if o.Streams <= 0 {
		o.Streams = 1
	}
	if o.Format == "" {
		o.Format = "mpegts"
	}
	return o
}

// Encode returns the muxed clip. Every picture shows a bright square
// moving two pixels right per frame over a gradient, so P pictures carry
// non-zero motion vectors.
func Encode(o Options) ([]byte, error) {
	o = o.withDefaults()

	codec := astiav.FindEncoder(astiav.CodecIDMpeg4)
	if codec == nil {
		return nil, errors.New("testvideo: mpeg4 encoder not available")
	}

	fc, err := astiav.AllocOutputFormatContext(nil, o.Format, "")
	if err != nil {
		return nil, fmt.Errorf("testvideo: output context: %w", err)
	}
	defer fc.Free()

	var out bytes.Buffer
	ioCtx, err := astiav.AllocIOContext(4096, true, nil, nil, func(b []byte) (int, error) {
		return out.Write(b)
	})
	if err != nil {
		return nil, fmt.Errorf("testvideo: io context: %w", err)
	}
	defer ioCtx.Free()
	fc.SetPb(ioCtx)

	encoders := make([]*astiav.CodecContext, o.Streams)
	streams := make([]*astiav.Stream, o.Streams)
	defer func() {
		for _, cc := range encoders {
			if cc != nil {
				cc.Free()
			}
		}
	}()

	for i := range encoders {
		cc := astiav.AllocCodecContext(codec)
		if cc == nil {
			return nil, errors.New("testvideo: codec context allocation failed")
		}
		encoders[i] = cc

		cc.SetWidth(o.Width)
		cc.SetHeight(o.Height)
		cc.SetPixelFormat(astiav.PixelFormatYuv420P)
		cc.SetTimeBase(astiav.NewRational(1, o.FPS))
		cc.SetFramerate(astiav.NewRational(o.FPS, 1))
		cc.SetGopSize(o.GOP)
		cc.SetMaxBFrames(0)
		cc.SetThreadCount(1)
		if fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
			cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
		}
		if err := cc.Open(codec, nil); err != nil {
			return nil, fmt.Errorf("testvideo: open encoder: %w", err)
		}

		st := fc.NewStream(nil)
		if st == nil {
			return nil, errors.New("testvideo: stream allocation failed")
		}
		if err := st.CodecParameters().FromCodecContext(cc); err != nil {
			return nil, fmt.Errorf("testvideo: codec parameters: %w", err)
		}
		st.SetTimeBase(cc.TimeBase())
		streams[i] = st
	}

	if err := fc.WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("testvideo: write header: %w", err)
	}

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	write := func(i int, f *astiav.Frame) error {
		if err := encoders[i].SendFrame(f); err != nil {
			return fmt.Errorf("testvideo: send frame: %w", err)
		}
		for {
			if err := encoders[i].ReceivePacket(pkt); err != nil {
				if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
					return nil
				}
				return fmt.Errorf("testvideo: receive packet: %w", err)
			}
			pkt.SetStreamIndex(streams[i].Index())
			pkt.RescaleTs(encoders[i].TimeBase(), streams[i].TimeBase())
			if err := fc.WriteInterleavedFrame(pkt); err != nil {
				return fmt.Errorf("testvideo: write packet: %w", err)
			}
		}
	}

	frame := astiav.AllocFrame()
	defer frame.Free()
	frame.SetWidth(o.Width)
	frame.SetHeight(o.Height)
	frame.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := frame.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("testvideo: frame buffer: %w", err)
	}

	img := make([]byte, o.Width*o.Height*3/2)
	for n := 0; n < o.Frames; n++ {
		if err := frame.MakeWritable(); err != nil {
			return nil, fmt.Errorf("testvideo: frame writable: %w", err)
		}
		paint(img, o.Width, o.Height, n)
		if err := frame.Data().SetBytes(img, 1); err != nil {
			return nil, fmt.Errorf("testvideo: frame data: %w", err)
		}
		frame.SetPts(int64(n))
		for i := range encoders {
			if err := write(i, frame); err != nil {
				return nil, err
			}
		}
	}
	for i := range encoders {
		if err := write(i, nil); err != nil {
			return nil, err
		}
	}

	if err := fc.WriteTrailer(); err != nil {
		return nil, fmt.Errorf("testvideo: write trailer: %w", err)
	}
	return out.Bytes(), nil
}

// WriteFile encodes the clip into path.
func WriteFile(path string, o Options) error {
	b, err := Encode(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// paint fills a planar YUV 4:2:0 picture for frame n.
func paint(img []byte, w, h, n int) {
	luma := img[:w*h]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			luma[y*w+x] = byte(16 + (x+y)*2)
		}
	}

	const side = 16
	x0 := (2 * n) % (w - side)
	y0 := (h - side) / 2
	for y := y0; y < y0+side; y++ {
		for x := x0; x < x0+side; x++ {
			luma[y*w+x] = 235
		}
	}

	for i := w * h; i < len(img); i++ {
		img[i] = 128
	}
}
