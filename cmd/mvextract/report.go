package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/dump"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/fanout"
)

// retrieveClock accumulates Retrieve durations on top of another observer.
type retrieveClock struct {
	mvcapture.Observer
	total atomic.Int64
	count atomic.Int64
}

func (c *retrieveClock) FrameRetrieved(ft mvcapture.FrameType, rows int, elapsed time.Duration) {
	c.total.Add(int64(elapsed))
	c.count.Add(1)
	c.Observer.FrameRetrieved(ft, rows, elapsed)
}

// Mean returns the mean Retrieve duration.
func (c *retrieveClock) Mean() time.Duration {
	n := c.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(c.total.Load() / n)
}

func printBanner(cfg *config.Config, runName string, sinks []dump.Sink) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║          Motion Vector Extractor - Orion 2.0 Module       ║\n")
	fmt.Printf("║                      Version %s                       ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Source:        %s\n", cfg.Source.URL)
	fmt.Printf("  Stream ID:     %s\n", cfg.Source.Name)
	for _, s := range sinks {
		switch s := s.(type) {
		case *dump.Dir:
			fmt.Printf("  Output Dir:    %s\n", s.Root())
		case *dump.Bucket:
			fmt.Printf("  Bucket:        %s/%s\n", cfg.Bucket.Name, s.Key(""))
		}
	}
	if len(sinks) == 0 {
		fmt.Printf("  Output:        (none - nothing dumped)\n")
	}
	fmt.Printf("  Frames:        %v (overlay %v, quality %d)\n", cfg.Output.Frames, cfg.Output.Overlay, cfg.Output.JPEGQuality)
	fmt.Printf("  Motion Vecs:   %v\n", cfg.Output.MotionVectors)
	if cfg.Source.MaxFrames > 0 {
		fmt.Printf("  Max Frames:    %d\n", cfg.Source.MaxFrames)
	} else {
		fmt.Printf("  Max Frames:    until end of stream\n")
	}
	if cfg.MQTT.Broker != "" {
		fmt.Printf("  MQTT:          %s -> %s\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	if cfg.Metrics.Addr != "" {
		fmt.Printf("  Metrics:       %s\n", cfg.Metrics.Addr)
	}
	fmt.Printf("  Run:           %s\n", runName)
	fmt.Printf("\n")
	fmt.Printf("Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")
}

func printWarmup(ws *mvcapture.WarmupStats) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Warmup Complete\n")
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ Frames Received:    %6d frames\n", ws.FramesReceived)
	fmt.Printf("│ Duration:           %6.1f seconds\n", ws.Duration.Seconds())
	fmt.Printf("│ FPS Mean:           %6.2f fps\n", ws.FPSMean)
	fmt.Printf("│ FPS StdDev:         %6.2f fps\n", ws.FPSStdDev)
	fmt.Printf("│ FPS Range:          %6.1f - %.1f fps\n", ws.FPSMin, ws.FPSMax)
	fmt.Printf("│ Jitter Mean:        %6.3f s\n", ws.JitterMean)
	fmt.Printf("│ Jitter Max:         %6.3f s\n", ws.JitterMax)
	fmt.Printf("│ Stable:             %6v\n", ws.IsStable)
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
	if !ws.IsStable {
		fmt.Printf("\n⚠️  WARNING: Stream is unstable (high FPS variance or jitter)\n")
	}
	fmt.Printf("\n")
}

// reportStats prints stream statistics and the latest sample every
// interval until ctx ends.
func reportStats(ctx context.Context, interval time.Duration, start time.Time, stream *mvcapture.Stream, last *fanout.Latest[mvcapture.Sample]) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := stream.Stats()
		fmt.Printf("\n")
		fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
		fmt.Printf("│ Stream Statistics (Uptime: %s)\n", time.Since(start).Round(time.Second))
		fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
		fmt.Printf("│ Frames Decoded:     %6d (I %d / P %d / B %d)\n", stats.FrameCount, stats.FramesI, stats.FramesP, stats.FramesB)
		if stats.FramesDropped > 0 {
			fmt.Printf("│ Stream Drops:       %6d frames (%.1f%%)\n", stats.FramesDropped, stats.DropRate)
		}
		fmt.Printf("│ Real FPS:           %6.2f fps\n", stats.FPSReal)
		fmt.Printf("│ Resolution:         %s\n", stats.Resolution)
		fmt.Printf("│ MV Rows:            %d\n", stats.MotionVectorRows)
		fmt.Printf("│ Bytes Read:         %6.2f MB\n", float64(stats.BytesRead)/1024/1024)
		if stats.Live {
			fmt.Printf("│ Reconnects:         %6d\n", stats.Reconnects)
			fmt.Printf("│ Connected:          %6v\n", stats.IsConnected)
		}
		if s, ok := last.TryReceive(); ok {
			fmt.Printf("│ Last Sample:        seq %d, type %s, %d vectors, mean |mv| %.2f px\n",
				s.Seq, s.FrameType, s.MotionVectors.Rows(), s.MotionVectors.MeanMagnitude())
		}
		totalErrors := stats.ErrorsNetwork + stats.ErrorsCodec + stats.ErrorsAuth + stats.ErrorsResource + stats.ErrorsUnknown
		if totalErrors > 0 {
			fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
			fmt.Printf("│ Network Errors:     %6d\n", stats.ErrorsNetwork)
			fmt.Printf("│ Codec Errors:       %6d\n", stats.ErrorsCodec)
			fmt.Printf("│ Auth Errors:        %6d\n", stats.ErrorsAuth)
			fmt.Printf("│ Resource Errors:    %6d\n", stats.ErrorsResource)
			fmt.Printf("│ Unknown Errors:     %6d\n", stats.ErrorsUnknown)
		}
		fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
		fmt.Printf("\n")
	}
}

func printFinal(stats mvcapture.StreamStats, steps int, uptime time.Duration, clock *retrieveClock, bus fanout.BusStats, em *emitter.MQTT, verbose bool) {
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", uptime.Round(time.Millisecond))
	fmt.Printf("  Frames Decoded:     %d frames\n", stats.FrameCount)
	fmt.Printf("  Frames Extracted:   %d frames\n", steps)
	fmt.Printf("  Frame Types:        I %d / P %d / B %d\n", stats.FramesI, stats.FramesP, stats.FramesB)
	fmt.Printf("  Motion Vector Rows: %d\n", stats.MotionVectorRows)
	fmt.Printf("  Average FPS:        %.2f fps\n", stats.FPSReal)
	fmt.Printf("  Bytes Read:         %.2f MB\n", float64(stats.BytesRead)/1024/1024)
	if stats.Live {
		fmt.Printf("  Reconnection Count: %d\n", stats.Reconnects)
	}
	if em != nil {
		es := em.Stats()
		fmt.Printf("  MQTT Published:     %d (errors %d, bus drops %.1f%%)\n", es.Published, es.Errors, bus.Subscribers["mqtt"].DropRate()*100)
	}
	if verbose {
		fmt.Printf("  Mean Retrieve Time: %.3f ms\n", float64(clock.Mean().Microseconds())/1000)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
