package warmup

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"testing/quick"
	"time"
)

// TestStabilityThresholds checks the verdict on both sides of the jitter
// threshold.
func TestStabilityThresholds(t *testing.T) {
	t.Run("stable stream", func(t *testing.T) {
		stats := CalculateFPSStats(arrivals(30, 1.0, 0.05), 30*time.Second)
		if !stats.IsStable {
			t.Errorf("expected stable stream (FPS stddev %.2f%%, jitter %.2f%%)",
				stats.FPSStdDev/stats.FPSMean*100,
				stats.JitterMean*stats.FPSMean*100,
			)
		}
	})

	t.Run("unstable stream", func(t *testing.T) {
		stats := CalculateFPSStats(arrivals(30, 1.0, 0.25), 30*time.Second)
		if stats.IsStable {
			t.Errorf("expected unstable stream (jitter %.2f%%)", stats.JitterMean*stats.FPSMean*100)
		}
	})
}

// TestStabilityIsMonotonic checks that raising the jitter never turns an
// unstable stream back into a stable one.
func TestStabilityIsMonotonic(t *testing.T) {
	prevStable := true
	for _, jitter := range []float64{0.05, 0.10, 0.15, 0.20, 0.25} {
		stats := CalculateFPSStats(arrivals(50, 1.0, jitter), 50*time.Second)
		t.Logf("jitter %.0f%% -> stable=%v", jitter*100, stats.IsStable)
		if !prevStable && stats.IsStable {
			t.Errorf("stability flipped back to true at jitter %.0f%%", jitter*100)
		}
		prevStable = stats.IsStable
	}
}

func TestCalculateFPSStatsEdgeCases(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		times    []time.Time
		duration time.Duration
		frames   int
	}{
		{"no frames", nil, time.Second, 0},
		{"one frame", []time.Time{base}, time.Second, 1},
		{"two frames", []time.Time{base, base.Add(time.Second)}, time.Second, 2},
		{"same instant", []time.Time{base, base, base}, time.Second, 3},
		{"zero duration", []time.Time{base, base.Add(time.Second)}, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := CalculateFPSStats(tt.times, tt.duration)
			if stats == nil {
				t.Fatal("CalculateFPSStats returned nil")
			}
			if stats.FramesReceived != tt.frames {
				t.Errorf("FramesReceived = %d, want %d", stats.FramesReceived, tt.frames)
			}
			if stats.IsStable {
				t.Error("expected unstable verdict on too little data")
			}
			if stats.FPSStdDev < 0 || stats.JitterMean < 0 || stats.JitterMax < 0 {
				t.Errorf("negative statistic: %+v", stats)
			}
		})
	}
}

// TestStatsBounds checks min <= mean <= max and non-negative jitter on
// random rates and sample counts.
func TestStatsBounds(t *testing.T) {
	f := func(fps float64, n uint8) bool {
		if fps < 0.1 || fps > 30 || n < 10 || n > 100 {
			return true
		}
		times := arrivals(int(n), fps, 0.1)
		stats := CalculateFPSStats(times, time.Duration(float64(n)/fps*float64(time.Second)))

		const tol = 0.001
		if stats.FPSMin > stats.FPSMean*1.2+tol || stats.FPSMax < stats.FPSMean*0.8-tol {
			t.Logf("fps=%.2f n=%d: min %.2f mean %.2f max %.2f", fps, n, stats.FPSMin, stats.FPSMean, stats.FPSMax)
			return false
		}
		if stats.JitterMax < stats.JitterMean || stats.JitterStdDev < 0 {
			t.Logf("fps=%.2f n=%d: jitter max %.6f mean %.6f", fps, n, stats.JitterMax, stats.JitterMean)
			return false
		}
		return math.Abs(stats.FPSMean-fps) <= fps*0.10
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Error(err)
	}
}

func TestSuggestedRate(t *testing.T) {
	tests := []struct {
		name  string
		stats *WarmupStats
		max   float64
		want  float64
	}{
		{"no stats", nil, 5, 5},
		{"fast stream", &WarmupStats{FPSMean: 30}, 5, 5},
		{"slow stream", &WarmupStats{FPSMean: 2}, 5, 1.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestedRate(tt.stats, tt.max); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SuggestedRate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWarmupStreamClosed(t *testing.T) {
	frames := make(chan Frame)
	close(frames)

	if _, err := WarmupStream(context.Background(), frames, time.Second, nil); err == nil {
		t.Fatal("expected error on closed channel")
	}
}

func TestWarmupStreamNotEnoughFrames(t *testing.T) {
	frames := make(chan Frame, 1)
	frames <- Frame{Seq: 1, Timestamp: time.Now()}

	if _, err := WarmupStream(context.Background(), frames, 50*time.Millisecond, nil); err == nil {
		t.Fatal("expected error with a single frame")
	}
}

func TestWarmupStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WarmupStream(ctx, make(chan Frame), time.Second, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWarmupWithAdapter(t *testing.T) {
	const n = 20
	type sample struct {
		seq uint64
		at  time.Time
	}

	// n samples 10ms apart, all buffered: over a 200ms window the arrival
	// timestamps agree with the measured rate.
	src := make(chan sample, n)
	base := time.Now()
	for i := 0; i < n; i++ {
		src <- sample{seq: uint64(i), at: base.Add(time.Duration(i) * 10 * time.Millisecond)}
	}

	stats, err := WarmupWithAdapter(context.Background(), src, 200*time.Millisecond,
		func(s sample) Frame { return Frame{Seq: s.seq, Timestamp: s.at} }, nil)
	// A loaded machine may stretch the window enough to flag the rate.
	if err != nil && !errors.Is(err, ErrUnstable) {
		t.Fatalf("WarmupWithAdapter: %v", err)
	}
	if stats.FramesReceived != n {
		t.Errorf("FramesReceived = %d, want %d", stats.FramesReceived, n)
	}
}

// arrivals returns n arrival times at fps with a uniform jitter of
// ±jitter of the interval. The generator is seeded for reproducibility.
func arrivals(n int, fps, jitter float64) []time.Time {
	if n < 1 {
		return nil
	}
	interval := 1 / fps
	rng := rand.New(rand.NewSource(42))

	out := make([]time.Time, n)
	out[0] = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i < n; i++ {
		d := interval + (rng.Float64()*2-1)*jitter*interval
		out[i] = out[i-1].Add(time.Duration(d * float64(time.Second)))
	}
	return out
}

func BenchmarkCalculateFPSStats(b *testing.B) {
	times := arrivals(100, 1.0, 0.1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CalculateFPSStats(times, 100*time.Second)
	}
}
