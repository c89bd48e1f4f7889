package mvcapture

import (
	"context"
	"time"
)

// StreamProvider defines the contract for continuous motion-vector capture.
//
// Implementations must guarantee:
//   - Start() opens the source before returning and fails fast if it cannot
//   - Stop() is idempotent (safe to call multiple times)
//   - Stats() is thread-safe (can be called from any goroutine)
//   - The sample channel is closed once decoding stops
type StreamProvider interface {
	// Start opens the source and returns a read-only channel of samples.
	//
	// File sources deliver every decoded picture in order and close the
	// channel at the end of the file. Live sources deliver with a
	// non-blocking send (full channel means drop) and reconnect with
	// exponential backoff when interrupted.
	//
	// Example:
	//   stream, _ := NewStream(StreamConfig{Source: "rtsp://cam/stream"})
	//   samples, err := stream.Start(ctx)
	//   if err != nil {
	//       log.Fatal(err)
	//   }
	//   for smp := range samples {
	//       fmt.Println(smp.Seq, smp.FrameType, smp.MotionVectors.Rows())
	//   }
	Start(ctx context.Context) (<-chan Sample, error)

	// Stop cancels decoding and waits up to 3 seconds for it to finish.
	//
	// Returns an error if the timeout is exceeded. Safe to call when the
	// stream is not running.
	Stop() error

	// Stats returns current stream statistics.
	Stats() StreamStats

	// Warmup consumes samples for duration and measures their arrival
	// rate. It fails if fewer than 2 samples arrive or the rate is
	// unstable; in the latter case the stats are still returned.
	Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error)
}

var _ StreamProvider = (*Stream)(nil)
