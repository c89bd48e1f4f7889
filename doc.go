// Package mvcapture decodes video and extracts, for every picture, the
// motion vectors computed by the encoder.
//
// The decoder is libav (through go-astiav) configured to export motion
// vectors as frame side data, so no motion estimation is performed: the
// vectors are read back from the H.264, HEVC or MPEG-4 bitstream.
//
// # Quick Start
//
// Read a file picture by picture:
//
//	vc := mvcapture.New()
//	if !vc.Open("traffic.mp4") {
//	    log.Fatal("cannot open")
//	}
//	defer vc.Release()
//
//	for {
//	    res := vc.Read()
//	    if !res.OK {
//	        break // end of stream, see vc.Err()
//	    }
//	    h, w, _ := res.Frame.Shape()
//	    rows, _ := res.MotionVectors.Shape()
//	    fmt.Printf("%s %dx%d %d vectors at %.3f\n", res.FrameType, w, h, rows, res.Timestamp)
//	}
//
// The two-phase form is also available: Grab advances the decoder and
// Retrieve materializes the grabbed picture. Grab is cheap, so it can be
// used to skip pictures.
//
// # Results
//
// Every Retrieve or Read returns a Result:
//
//   - Frame: BGR, 8 bits per channel, height x width x 3, newly allocated
//   - MotionVectors: a (rows, 10) int32 table, possibly (0, 10)
//   - FrameType: "I", "P", "B" (or another libav letter), "?" on failure
//   - Timestamp: wall-clock seconds at Retrieve, non-decreasing per session
//
// The motion vector columns are source, block_width, block_height, src_x,
// src_y, dst_x, dst_y, motion_x, motion_y and motion_scale. source is
// negative for vectors pointing to a past reference and positive for a
// future one. The displacement in pixels is motion / motion_scale.
//
// # Sources
//
// Open accepts a local path or any URL the libav demuxers accept (rtsp://,
// rtmp://, http://, udp://...). RTSP defaults to TCP interleaved transport
// with a 5 second socket timeout. srt:// URLs are dialed in caller mode and
// demuxed as MPEG-TS.
//
// # Errors
//
// Open returns false when the source cannot be opened; OpenContext returns
// an error wrapping ErrOpen. Grab returns false at the end of the stream.
// When the stream ended through a decode fault or a broken network read,
// Err wraps ErrDecodeFault or ErrInterrupted. Calls on a released VideoCap
// are no-ops that return the failure result.
//
// # Continuous Capture
//
// Stream runs a VideoCap in a goroutine and delivers Samples on a channel:
//
//	stream, err := mvcapture.NewStream(mvcapture.StreamConfig{
//	    Source:       "rtsp://192.168.1.100/stream",
//	    SourceStream: "camera-1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Stop()
//
//	samples, err := stream.Start(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for smp := range samples {
//	    process(smp)
//	}
//
// Live sources never block the decoder: samples are dropped when the
// channel is full, and interrupted sessions are reopened with exponential
// backoff (1s, 2s, 4s, 8s, 16s, capped at 30s, 5 attempts). Auth and
// resource errors are not retried. File sources deliver every picture and
// close the channel at the end.
//
// # Thread Safety
//
// A VideoCap must be driven by a single goroutine; only Interrupt may be
// called concurrently. Stream methods are safe from any goroutine.
//
// # Command Line
//
// cmd/mvextract dumps frames, motion vectors (.npy), frame types and
// timestamps of a source to a directory or an S3 bucket.
package mvcapture
