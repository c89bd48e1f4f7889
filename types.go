package mvcapture

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/convert"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/motion"
)

// Frame is a decoded picture as a height x width x 3 BGR image with 8 bits
// per channel. It implements image.Image.
type Frame = convert.Image

// MotionVectors is the motion vector table of one picture: rows of 10
// int32 fields (source, block_width, block_height, src_x, src_y, dst_x,
// dst_y, motion_x, motion_y, motion_scale) in decoder emission order.
// The zero value is an empty (0, 10) table.
type MotionVectors = motion.Table

// MotionVector is one row of a MotionVectors table.
type MotionVector = motion.Row

// MotionVectorColumns is the fixed width of a MotionVectors row.
const MotionVectorColumns = motion.Columns

// NewMotionVectors builds a table from rows, keeping their order.
func NewMotionVectors(rows []MotionVector) MotionVectors {
	return motion.NewTable(rows)
}

// FrameType is the single-letter coding type of a decoded picture.
type FrameType string

const (
	// FrameI is an intra picture.
	FrameI FrameType = "I"
	// FrameP is a forward-predicted picture.
	FrameP FrameType = "P"
	// FrameB is a bi-predicted picture.
	FrameB FrameType = "B"
	// FrameS is an S(GMC)-VOP from MPEG-4 Part 2.
	FrameS FrameType = "S"
	// FrameSI is a switching intra picture.
	FrameSI FrameType = "i"
	// FrameSP is a switching predicted picture.
	FrameSP FrameType = "p"
	// FrameBI is a BI picture.
	FrameBI FrameType = "b"
	// FrameUnknown marks the absence of a decode result.
	FrameUnknown FrameType = "?"
)

// String implements fmt.Stringer.
func (t FrameType) String() string { return string(t) }

// State is the lifecycle state of a VideoCap.
type State int

const (
	// StateClosed is the initial state and the state after Release.
	StateClosed State = iota
	// StateOpened means demuxer, decoder and converter are all held.
	StateOpened
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	default:
		return "closed"
	}
}

// Result is the outcome of Retrieve or Read.
//
// On failure OK is false, Frame is nil, MotionVectors is an empty (0, 10)
// table, FrameType is "?" and Timestamp is 0.
type Result struct {
	OK            bool
	Frame         *Frame
	MotionVectors MotionVectors
	FrameType     FrameType
	// Timestamp is the wall-clock time of Retrieve in seconds since the
	// Unix epoch.
	Timestamp float64
}

// FailedResult returns the result reported when no picture is available.
func FailedResult() Result {
	return Result{FrameType: FrameUnknown}
}

// Time returns Timestamp as a time.Time. The zero Timestamp maps to the
// zero time.
func (r Result) Time() time.Time {
	if r.Timestamp == 0 {
		return time.Time{}
	}
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// StreamInfo describes the video stream of an open VideoCap.
type StreamInfo struct {
	// Source is the string given to Open.
	Source string
	// Transport is "file", "network" or "srt".
	Transport string
	// Format is the demuxer format name list (e.g. "mov,mp4,m4a,3gp,3g2,mj2").
	Format string
	// Codec is the decoder name (e.g. "h264").
	Codec string
	// Width and Height are the coded picture dimensions reported by the
	// decoder at open time.
	Width  int
	Height int
	// Live is true for real-time transports (RTSP, SRT...).
	Live bool
}

// Resolution returns "WxH".
func (i StreamInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// CaptureStats are cumulative counters of one VideoCap session.
type CaptureStats struct {
	// FramesRead is the number of successful Grab calls since Open.
	FramesRead uint64
	// PacketsRead is the number of demuxed packets, all streams.
	PacketsRead uint64
	// PacketsSkipped counts packets that produced no picture.
	PacketsSkipped uint64
	// BytesRead is the compressed payload size of all demuxed packets.
	BytesRead uint64
	// DecodeErrors counts packets the decoder rejected.
	DecodeErrors uint64
}

// Sample is one Result delivered by a Stream.
type Sample struct {
	// Seq is the monotonic sequence number within the Stream. The first
	// delivered sample has Seq 1.
	Seq uint64
	// TraceID is a unique identifier for distributed tracing
	TraceID string
	// SourceStream identifies the stream (e.g. "cam-1")
	SourceStream string
	Result
}

// StreamStats contains current stream statistics
type StreamStats struct {
	// FrameCount is the total number of samples produced
	FrameCount uint64
	// FramesDropped is the total number of samples dropped (channel full)
	FramesDropped uint64
	// DropRate is the percentage of samples dropped (0-100)
	DropRate float64
	// FPSReal is the measured real FPS
	FPSReal float64
	// LatencyMS is the time since last sample in milliseconds
	LatencyMS int64
	// SourceStream identifies the stream (e.g., "cam-1")
	SourceStream string
	// Resolution is the frame resolution (e.g., "1280x720")
	Resolution string
	// Reconnects is the number of reconnection attempts
	Reconnects uint32
	// BytesRead is the total compressed bytes demuxed
	BytesRead uint64
	// MotionVectorRows is the total number of motion vector rows produced
	MotionVectorRows uint64
	// FramesI, FramesP and FramesB count samples by coding type
	FramesI uint64
	FramesP uint64
	FramesB uint64
	// IsConnected indicates if the stream currently holds an open session
	IsConnected bool
	// Live is true for real-time transports
	Live bool

	// Error telemetry
	ErrorsNetwork  uint64
	ErrorsCodec    uint64
	ErrorsAuth     uint64
	ErrorsResource uint64
	ErrorsUnknown  uint64
}

// StreamConfig contains configuration for continuous capture
type StreamConfig struct {
	// Source is a file path or stream URL (required)
	Source string
	// SourceStream identifies the stream in samples and stats
	SourceStream string
	// Buffer is the sample channel capacity (default 10)
	Buffer int
	// DisableReconnect stops a live stream at its first interruption
	DisableReconnect bool
	// MaxReconnectAttempts overrides the default of 5 when positive
	MaxReconnectAttempts int
	// ReconnectInitialDelay overrides the default of 1s when positive
	ReconnectInitialDelay time.Duration
	// ReconnectMaxDelay overrides the default of 30s when positive
	ReconnectMaxDelay time.Duration
	// Options are applied to every VideoCap the stream opens
	Options []Option
}

// WarmupStats contains statistics collected during stream warm-up phase
type WarmupStats struct {
	// FramesReceived is the number of frames received during warm-up
	FramesReceived int
	// Duration is the actual warm-up duration
	Duration time.Duration
	// FPSMean is the mean FPS across all frames
	FPSMean float64
	// FPSStdDev is the standard deviation of FPS
	FPSStdDev float64
	// FPSMin is the minimum instantaneous FPS
	FPSMin float64
	// FPSMax is the maximum instantaneous FPS
	FPSMax float64
	// IsStable is true if FPS is stable (stddev < 15% of mean AND jitter < 20%)
	IsStable bool
	// JitterMean is the mean deviation from the expected interval (seconds)
	JitterMean float64
	// JitterStdDev is the standard deviation of jitter (seconds)
	JitterStdDev float64
	// JitterMax is the maximum jitter observed (seconds)
	JitterMax float64
}
