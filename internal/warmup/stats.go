package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the largest instantaneous-FPS standard
	// deviation, as a fraction of the mean, of a stable stream.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the largest mean jitter, as a fraction of
	// the expected inter-frame interval, of a stable stream.
	jitterStabilityThreshold = 0.20
)

// CalculateFPSStats derives FPS and jitter statistics from sample arrival
// times observed over totalDuration.
//
// A stream is stable when the instantaneous FPS deviation stays under 15%
// of the mean and the mean jitter stays under 20% of the expected interval.
// At 30 FPS that is a stddev under 4.5 and a jitter under ~6.6ms.
func CalculateFPSStats(times []time.Time, totalDuration time.Duration) *WarmupStats {
	n := len(times)
	stats := &WarmupStats{FramesReceived: n, Duration: totalDuration}
	if n == 0 || totalDuration <= 0 {
		return stats
	}
	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	instant := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		if iv > 0 {
			instant = append(instant, 1/iv)
		}
	}
	if len(instant) == 0 {
		return stats
	}

	stats.FPSMin, stats.FPSMax = minMax(instant)
	stats.FPSStdDev = deviation(instant, stats.FPSMean)

	expected := 1 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expected)
	}
	stats.JitterMean = mean(jitters)
	stats.JitterStdDev = deviation(jitters, stats.JitterMean)
	_, stats.JitterMax = minMax(jitters)

	stats.IsStable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expected*jitterStabilityThreshold

	return stats
}

// SuggestedRate caps a consumer rate (e.g. motion analysis per second) to
// what the stream can feed. Below maxRate it keeps a 10% margin.
func SuggestedRate(stats *WarmupStats, maxRate float64) float64 {
	if stats == nil || stats.FPSMean >= maxRate {
		return maxRate
	}
	return stats.FPSMean * 0.9
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// deviation is the population standard deviation of xs around m.
func deviation(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := x - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
