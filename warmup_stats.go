package mvcapture

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/warmup"
)

// CalculateFPSStats derives FPS and jitter statistics from sample arrival
// times observed over totalDuration.
//
// Stability threshold:
//   - FPS: stddev < 15% of mean FPS
//   - Jitter: mean jitter < 20% of expected interval
func CalculateFPSStats(times []time.Time, totalDuration time.Duration) *WarmupStats {
	return fromWarmup(warmup.CalculateFPSStats(times, totalDuration))
}

func fromWarmup(ws *warmup.WarmupStats) *WarmupStats {
	return &WarmupStats{
		FramesReceived: ws.FramesReceived,
		Duration:       ws.Duration,
		FPSMean:        ws.FPSMean,
		FPSStdDev:      ws.FPSStdDev,
		FPSMin:         ws.FPSMin,
		FPSMax:         ws.FPSMax,
		IsStable:       ws.IsStable,
		JitterMean:     ws.JitterMean,
		JitterStdDev:   ws.JitterStdDev,
		JitterMax:      ws.JitterMax,
	}
}

// SampleTimes returns the wall-clock times of samples, in order.
func SampleTimes(samples []Sample) []time.Time {
	out := make([]time.Time, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Time())
	}
	return out
}
