// Package dump writes capture results as the artifacts of an extraction
// run: JPEG frames, .npy motion vector tables, a frame type log and a
// timestamp log.
package dump

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// Artifact layout of a run.
const (
	FramesDir        = "frames"
	MotionVectorsDir = "motion_vectors"
	FrameTypesFile   = "frame_types.txt"
	TimestampsFile   = "timestamps.txt"
)

// DefaultJPEGQuality matches the libjpeg default used by most encoders.
const DefaultJPEGQuality = 95

// Options selects which artifacts are produced.
type Options struct {
	// Frames enables frames/frame-<n>.jpg.
	Frames bool
	// MotionVectors enables motion_vectors/mvs-<n>.npy.
	MotionVectors bool
	// Overlay draws the motion vectors on the dumped frames.
	Overlay bool
	// JPEGQuality ranges 1-100. Zero means DefaultJPEGQuality.
	JPEGQuality int
	// Width resizes dumped frames keeping the aspect ratio. Zero keeps
	// the native size.
	Width int
}

// Sink receives the results of a run in decode order.
type Sink interface {
	// Write stores the artifacts of result number step (0-based).
	Write(ctx context.Context, step int, r mvcapture.Result) error
	// Close flushes the logs. It must be called once after the last Write.
	Close(ctx context.Context) error
}

// Artifact is one encoded file of a run.
type Artifact struct {
	// Name is the slash-separated path relative to the run root.
	Name        string
	ContentType string
	Data        []byte
}

// FrameName returns the relative path of the JPEG of step.
func FrameName(step int) string {
	return path.Join(FramesDir, fmt.Sprintf("frame-%d.jpg", step))
}

// MotionVectorsName returns the relative path of the .npy of step.
func MotionVectorsName(step int) string {
	return path.Join(MotionVectorsDir, fmt.Sprintf("mvs-%d.npy", step))
}

// DefaultRunName returns out-<YYYY-MM-DDTHH-MM-SS> for t.
func DefaultRunName(t time.Time) string {
	return "out-" + t.Format("2006-01-02T15-04-05")
}

// Encode renders the per-step artifacts of r selected by o.
func Encode(step int, r mvcapture.Result, o Options) ([]Artifact, error) {
	if !r.OK {
		return nil, fmt.Errorf("dump: step %d has no picture", step)
	}
	var out []Artifact

	if o.Frames && r.Frame != nil {
		data, err := encodeFrame(r, o)
		if err != nil {
			return nil, fmt.Errorf("dump: encode frame %d: %w", step, err)
		}
		out = append(out, Artifact{Name: FrameName(step), ContentType: "image/jpeg", Data: data})
	}

	if o.MotionVectors {
		var buf bytes.Buffer
		if err := WriteNPY(&buf, r.MotionVectors); err != nil {
			return nil, fmt.Errorf("dump: encode motion vectors %d: %w", step, err)
		}
		out = append(out, Artifact{Name: MotionVectorsName(step), ContentType: "application/octet-stream", Data: buf.Bytes()})
	}

	return out, nil
}

func encodeFrame(r mvcapture.Result, o Options) ([]byte, error) {
	frame := r.Frame
	if o.Overlay {
		frame = DrawMotionVectors(frame, r.MotionVectors)
	}

	img := frame.NRGBA()
	if o.Width > 0 && o.Width != img.Bounds().Dx() {
		img = imaging.Resize(img, o.Width, 0, imaging.Lanczos)
	}

	quality := o.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TimestampLine formats a timestamp log line with the shortest
// representation that round-trips.
func TimestampLine(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64) + "\n"
}

// FrameTypeLine formats a frame type log line.
func FrameTypeLine(ft mvcapture.FrameType) string {
	return ft.String() + "\n"
}
