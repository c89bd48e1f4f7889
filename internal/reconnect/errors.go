package reconnect

import (
	"context"
	"errors"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/decode"
)

// Category represents the classification of capture errors for telemetry
type Category int

const (
	// CategoryNetwork indicates network-related failures (connection, timeout, DNS)
	CategoryNetwork Category = iota
	// CategoryCodec indicates codec/stream failures (decode errors, format issues)
	CategoryCodec
	// CategoryAuth indicates authentication/authorization failures
	CategoryAuth
	// CategoryResource indicates native allocation failures
	CategoryResource
	// CategoryUnknown indicates unclassified errors
	CategoryUnknown
)

// String returns a human-readable string representation of the error category
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	case CategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Classify categorizes an error for telemetry and retry decisions.
//
// Sentinel errors from the decoder are matched first. libav reports most
// failures as short strings ("Connection refused", "Server returned 401
// Unauthorized"), so the rest falls back to keyword matching.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, decode.ErrResource):
		return CategoryResource
	case errors.Is(err, decode.ErrUnsupportedCodec),
		errors.Is(err, decode.ErrNoVideoStream),
		errors.Is(err, decode.ErrDecodeFault):
		return CategoryCodec
	case errors.Is(err, decode.ErrInterrupted),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())

	// Priority 1: authentication errors (most specific)
	if containsAny(msg, authKeywords) {
		return CategoryAuth
	}
	// Priority 2: codec/format errors
	if containsAny(msg, codecKeywords) {
		return CategoryCodec
	}
	// Priority 3: network errors (most common)
	if containsAny(msg, networkKeywords) {
		return CategoryNetwork
	}

	return CategoryUnknown
}

// Retryable reports whether reconnecting may help. Auth and resource
// failures need operator action.
func Retryable(err error) bool {
	switch Classify(err) {
	case CategoryAuth, CategoryResource:
		return false
	default:
		return true
	}
}

var authKeywords = []string{
	"unauthorized",
	"401",
	"403",
	"forbidden",
	"authentication",
	"credentials",
	"password",
}

var codecKeywords = []string{
	"codec",
	"decoding",
	"invalid data found",
	"h264",
	"h265",
	"hevc",
	"mpeg4",
	"no decoder",
	"unsupported",
}

var networkKeywords = []string{
	"connection",
	"timeout",
	"timed out",
	"unreachable",
	"network",
	"resolve",
	"socket",
	"broken pipe",
	"end of file",
	"i/o error",
	"not found",
	"srt",
	"rtsp",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
