// Package warmup measures the delivery rate of a sample stream before it
// is consumed for real.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnstable is returned when the measured rate is too irregular.
var ErrUnstable = errors.New("warmup: stream rate unstable")

// Frame is the part of a sample the warm-up needs.
type Frame struct {
	Seq uint64
	// Timestamp is the sample wall-clock time.
	Timestamp time.Time
}

// WarmupStats contains statistics collected during warm-up
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64 // Minimum instantaneous FPS
	FPSMax         float64 // Maximum instantaneous FPS
	IsStable       bool
	JitterMean     float64 // Mean deviation from the expected interval (seconds)
	JitterStdDev   float64
	JitterMax      float64
}

// WarmupStream consumes frames for duration and measures their rate.
//
// Returns an error if the channel closes, fewer than 2 frames arrive or
// the rate is unstable. The stats are returned together with ErrUnstable
// so that callers may still log them.
func WarmupStream(
	ctx context.Context,
	frames <-chan Frame,
	duration time.Duration,
	log *slog.Logger,
) (*WarmupStats, error) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("mv-capture: warm-up started", "duration", duration)

	start := time.Now()
	times := make([]time.Time, 0, 128)

	wctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

collect:
	for {
		select {
		case <-wctx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			break collect
		case f, ok := <-frames:
			if !ok {
				return nil, fmt.Errorf("warmup: stream closed after %d frames", len(times))
			}
			times = append(times, f.Timestamp)
			log.Debug("mv-capture: warm-up frame", "seq", f.Seq, "collected", len(times))
		}
	}

	if len(times) < 2 {
		return nil, fmt.Errorf("warmup: not enough frames (got %d, need at least 2)", len(times))
	}

	stats := CalculateFPSStats(times, time.Since(start))
	log.Info("mv-capture: warm-up complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)

	if !stats.IsStable {
		return stats, fmt.Errorf("%w (mean=%.2f Hz, stddev=%.2f, jitter=%.3fs)",
			ErrUnstable, stats.FPSMean, stats.FPSStdDev, stats.JitterMean)
	}
	return stats, nil
}

// WarmupWithAdapter runs WarmupStream over a channel of another sample type.
// convert maps each sample to a Frame.
func WarmupWithAdapter[T any](
	ctx context.Context,
	src <-chan T,
	duration time.Duration,
	convert func(T) Frame,
	log *slog.Logger,
) (*WarmupStats, error) {
	adapted := make(chan Frame, 16)

	actx, cancel := context.WithTimeout(ctx, duration+time.Second)
	defer cancel()

	go func() {
		defer close(adapted)
		for {
			select {
			case <-actx.Done():
				return
			case s, ok := <-src:
				if !ok {
					return
				}
				select {
				case adapted <- convert(s):
				case <-actx.Done():
					return
				}
			}
		}
	}()

	return WarmupStream(ctx, adapted, duration, log)
}
