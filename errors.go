package mvcapture

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/decode"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/reconnect"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/warmup"
)

var (
	// ErrClosed is reported by Err after Grab on a closed VideoCap.
	ErrClosed = errors.New("mv-capture: capture is closed")

	// ErrOpen wraps every failure of OpenContext that is caused by the
	// source rather than the environment.
	ErrOpen = errors.New("mv-capture: cannot open source")

	// ErrNoVideoStream means the source has no video stream.
	ErrNoVideoStream = decode.ErrNoVideoStream

	// ErrUnsupportedCodec means no decoder is available for the video stream.
	ErrUnsupportedCodec = decode.ErrUnsupportedCodec

	// ErrDecodeFault means decoding stopped on undecodable input. Grab
	// reports it as the end of the stream.
	ErrDecodeFault = decode.ErrDecodeFault

	// ErrInterrupted means a network read failed mid-stream. Grab reports
	// it as the end of the stream.
	ErrInterrupted = decode.ErrInterrupted

	// ErrResource means a native allocation failed. It is never wrapped
	// by ErrOpen.
	ErrResource = decode.ErrResource

	// ErrWarmupUnstable is returned by Warmup when samples arrive at an
	// irregular rate. The stats are returned with it.
	ErrWarmupUnstable = warmup.ErrUnstable
)

// ErrorCategory classifies capture errors for telemetry.
type ErrorCategory = reconnect.Category

const (
	ErrCategoryNetwork  = reconnect.CategoryNetwork
	ErrCategoryCodec    = reconnect.CategoryCodec
	ErrCategoryAuth     = reconnect.CategoryAuth
	ErrCategoryResource = reconnect.CategoryResource
	ErrCategoryUnknown  = reconnect.CategoryUnknown
)

// Classify returns the category of err.
func Classify(err error) ErrorCategory {
	return reconnect.Classify(err)
}

// IsEndOfStream reports whether err describes a stream that ended through
// a fault that Grab reports as an ending (decode fault, interrupted read).
func IsEndOfStream(err error) bool {
	return decode.IsEndOfStream(err)
}
