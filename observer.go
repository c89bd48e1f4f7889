package mvcapture

import "time"

// Observer receives VideoCap events. Methods are called synchronously on
// the goroutine driving the session and must not block.
type Observer interface {
	// Opened is called after a successful open.
	Opened(info StreamInfo)
	// OpenFailed is called when open fails; err is the returned error.
	OpenFailed(source string, err error)
	// FrameRetrieved is called for every successful Retrieve.
	FrameRetrieved(ft FrameType, rows int, elapsed time.Duration)
	// PacketsSkipped reports packets consumed by a Grab without producing
	// a picture.
	PacketsSkipped(n uint64)
	// Ended is called once when Grab first reports the end of the stream.
	// err is nil for a normal end.
	Ended(source string, err error)
	// Released is called when an open session is released.
	Released(source string, stats CaptureStats)
}

type nopObserver struct{}

func (nopObserver) Opened(StreamInfo) {}
func (nopObserver) OpenFailed(string, error) {}
func (nopObserver) FrameRetrieved(FrameType, int, time.Duration) {}
func (nopObserver) PacketsSkipped(uint64) {}
func (nopObserver) Ended(string, error) {}
func (nopObserver) Released(string, CaptureStats) {}
