package mvcapture_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// testVideo returns the reference H.264 asset (337 frames, 1280x720) or
// skips the test.
func testVideo(t *testing.T) string {
	t.Helper()
	path := os.Getenv("MVCAPTURE_TEST_VIDEO")
	if path == "" {
		t.Skip("Skipping test: MVCAPTURE_TEST_VIDEO not set")
	}
	return path
}

func openVideo(t *testing.T, opts ...mvcapture.Option) *mvcapture.VideoCap {
	t.Helper()
	path := testVideo(t)
	vc := mvcapture.New(opts...)
	if err := vc.OpenContext(t.Context(), path); err != nil {
		t.Fatalf("OpenContext(%s) failed: %v", path, err)
	}
	t.Cleanup(vc.Release)
	return vc
}

func assertFailed(t *testing.T, r mvcapture.Result) {
	t.Helper()
	if r.OK {
		t.Errorf("OK = true, want false")
	}
	if r.Frame != nil {
		t.Errorf("Frame = %v, want nil", r.Frame)
	}
	if rows, cols := r.MotionVectors.Shape(); rows != 0 || cols != 10 {
		t.Errorf("MotionVectors shape = (%d, %d), want (0, 10)", rows, cols)
	}
	if r.FrameType != "?" {
		t.Errorf("FrameType = %q, want \"?\"", r.FrameType)
	}
	if r.Timestamp != 0 {
		t.Errorf("Timestamp = %v, want 0", r.Timestamp)
	}
}

// recorder is an Observer that records event names.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Opened(mvcapture.StreamInfo) { r.add("opened") }
func (r *recorder) OpenFailed(string, error) { r.add("open_failed") }
func (r *recorder) FrameRetrieved(mvcapture.FrameType, int, time.Duration) { r.add("frame") }
func (r *recorder) PacketsSkipped(uint64) {}
func (r *recorder) Ended(string, error) { r.add("ended") }
func (r *recorder) Released(string, mvcapture.CaptureStats) { r.add("released") }

func (r *recorder) count(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.events {
		if x == e {
			n++
		}
	}
	return n
}

func TestClosedCaptureReturnsFailureTuple(t *testing.T) {
	vc := mvcapture.New()

	if vc.State() != mvcapture.StateClosed {
		t.Fatalf("State() = %v, want closed", vc.State())
	}
	if vc.Grab() {
		t.Error("Grab() on closed capture = true")
	}
	if !errors.Is(vc.Err(), mvcapture.ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", vc.Err())
	}
	assertFailed(t, vc.Retrieve())
	assertFailed(t, vc.Read())

	info := vc.Info()
	if info != (mvcapture.StreamInfo{}) {
		t.Errorf("Info() on closed capture = %+v, want zero", info)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	rec := &recorder{}
	vc := mvcapture.New(mvcapture.WithObserver(rec))

	vc.Release()
	vc.Release()

	if vc.IsOpened() {
		t.Error("IsOpened() = true after Release")
	}
	if n := rec.count("released"); n != 0 {
		t.Errorf("Released called %d times for a never-opened capture", n)
	}
}

func TestOpenNonexistentFile(t *testing.T) {
	rec := &recorder{}
	vc := mvcapture.New(mvcapture.WithObserver(rec))
	missing := filepath.Join(t.TempDir(), "vid_not_existent.mp4")

	if vc.Open(missing) {
		t.Fatal("Open(missing file) = true")
	}
	if vc.State() != mvcapture.StateClosed {
		t.Errorf("State() = %v after failed open, want closed", vc.State())
	}
	assertFailed(t, vc.Read())

	err := vc.OpenContext(t.Context(), missing)
	if !errors.Is(err, mvcapture.ErrOpen) {
		t.Errorf("OpenContext error = %v, want ErrOpen", err)
	}
	if errors.Is(err, mvcapture.ErrResource) {
		t.Errorf("OpenContext error %v must not wrap ErrResource", err)
	}
	if n := rec.count("open_failed"); n != 2 {
		t.Errorf("OpenFailed called %d times, want 2", n)
	}
}

func TestOpenRejectsBadSource(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"unknown scheme", "gopher://example.invalid/video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc := mvcapture.New()
			if vc.Open(tt.source) {
				vc.Release()
				t.Fatalf("Open(%q) = true", tt.source)
			}
			if vc.IsOpened() {
				t.Errorf("IsOpened() = true after failed open")
			}
		})
	}
}

func TestFailedResult(t *testing.T) {
	assertFailed(t, mvcapture.FailedResult())
	if !mvcapture.FailedResult().Time().IsZero() {
		t.Error("FailedResult().Time() is not the zero time")
	}
}

func TestResultTime(t *testing.T) {
	r := mvcapture.Result{Timestamp: 1760695200.5}
	want := time.Unix(1760695200, 500_000_000)
	if got := r.Time(); !got.Equal(want) {
		t.Errorf("Time() = %v, want %v", got, want)
	}
}

func TestReadFirstIFrame(t *testing.T) {
	vc := openVideo(t)

	before := float64(time.Now().UnixNano()) / 1e9
	r := vc.Read()
	if !r.OK {
		t.Fatalf("Read() failed: %v", vc.Err())
	}
	if r.FrameType != mvcapture.FrameI {
		t.Errorf("FrameType = %q, want I", r.FrameType)
	}
	if r.Timestamp < before || r.Timestamp > before+10 {
		t.Errorf("Timestamp = %f, want close to %f", r.Timestamp, before)
	}
	if h, w, c := r.Frame.Shape(); h != 720 || w != 1280 || c != 3 {
		t.Errorf("Frame shape = (%d, %d, %d), want (720, 1280, 3)", h, w, c)
	}
	if rows, _ := r.MotionVectors.Shape(); rows != 0 {
		t.Errorf("I frame has %d motion vectors, want 0", rows)
	}

	info := vc.Info()
	if info.Codec != "h264" || info.Width != 1280 || info.Height != 720 || info.Live {
		t.Errorf("Info() = %+v", info)
	}
}

func TestReadFirstPFrame(t *testing.T) {
	vc := openVideo(t)
	vc.Read()

	r := vc.Read()
	if !r.OK {
		t.Fatalf("Read() failed: %v", vc.Err())
	}
	if r.FrameType != mvcapture.FrameP {
		t.Errorf("FrameType = %q, want P", r.FrameType)
	}
	if rows, cols := r.MotionVectors.Shape(); rows != 3665 || cols != 10 {
		t.Fatalf("MotionVectors shape = (%d, %d), want (3665, 10)", rows, cols)
	}

	want := make([]mvcapture.MotionVector, 10)
	for i := range want {
		x := int32(8 + 16*i)
		want[i] = mvcapture.MotionVector{-1, 16, 16, x, 8, x, 8, 0, 0, 4}
	}
	for i, row := range want {
		if got := r.MotionVectors.Row(i); got != row {
			t.Errorf("row %d = %v, want %v", i, got, row)
		}
	}
}

func TestReadFirstTenFrames(t *testing.T) {
	vc := openVideo(t)

	wantTypes := []mvcapture.FrameType{"I", "P", "P", "P", "P", "P", "P", "P", "P", "P"}
	wantRows := []int{0, 3665, 3696, 3722, 3807, 3953, 4155, 3617, 4115, 4192}

	for i := range 10 {
		r := vc.Read()
		if !r.OK {
			t.Fatalf("frame %d: Read() failed: %v", i, vc.Err())
		}
		if r.FrameType != wantTypes[i] {
			t.Errorf("frame %d: FrameType = %q, want %q", i, r.FrameType, wantTypes[i])
		}
		if rows, cols := r.MotionVectors.Shape(); rows != wantRows[i] || cols != 10 {
			t.Errorf("frame %d: MotionVectors shape = (%d, %d), want (%d, 10)", i, rows, cols, wantRows[i])
		}
		if h, w, c := r.Frame.Shape(); h != 720 || w != 1280 || c != 3 {
			t.Errorf("frame %d: Frame shape = (%d, %d, %d)", i, h, w, c)
		}
	}
}

func TestFrameCountAndTimestamps(t *testing.T) {
	rec := &recorder{}
	vc := openVideo(t, mvcapture.WithObserver(rec))

	count := 0
	last := 0.0
	for {
		r := vc.Read()
		if !r.OK {
			break
		}
		if r.Timestamp < last {
			t.Fatalf("frame %d: timestamp %f went back from %f", count, r.Timestamp, last)
		}
		last = r.Timestamp
		count++
	}

	if count != 337 {
		t.Errorf("frame count = %d, want 337", count)
	}
	if err := vc.Err(); err != nil {
		t.Errorf("Err() at end of file = %v, want nil", err)
	}
	if !vc.IsOpened() {
		t.Error("end of stream must not close the capture")
	}
	assertFailed(t, vc.Read())

	stats := vc.Stats()
	if stats.FramesRead != 337 {
		t.Errorf("Stats().FramesRead = %d, want 337", stats.FramesRead)
	}
	if stats.BytesRead == 0 {
		t.Error("Stats().BytesRead = 0")
	}
	if n := rec.count("frame"); n != 337 {
		t.Errorf("FrameRetrieved called %d times, want 337", n)
	}
	if n := rec.count("ended"); n != 1 {
		t.Errorf("Ended called %d times, want 1", n)
	}
}

func TestGrabRetrieve(t *testing.T) {
	vc := openVideo(t)

	if !vc.Grab() {
		t.Fatalf("Grab() failed: %v", vc.Err())
	}
	if r := vc.Retrieve(); !r.OK || r.FrameType != mvcapture.FrameI {
		t.Fatalf("Retrieve() = %v %q, want OK I", r.OK, r.FrameType)
	}
	// The picture is consumed by the first Retrieve.
	assertFailed(t, vc.Retrieve())

	// Grab without Retrieve skips a picture.
	vc.Grab()
	vc.Grab()
	r := vc.Retrieve()
	if rows := r.MotionVectors.Rows(); rows != 3696 {
		t.Errorf("third frame has %d motion vectors, want 3696", rows)
	}
}

func TestFramesAreNotAliased(t *testing.T) {
	vc := openVideo(t)

	first := vc.Read()
	snapshot := first.Frame.Clone()
	vc.Read()
	vc.Read()

	if string(first.Frame.Pix) != string(snapshot.Pix) {
		t.Error("later reads modified a retained frame")
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	path := testVideo(t)

	decodeAll := func() ([]mvcapture.FrameType, []mvcapture.MotionVectors) {
		vc := mvcapture.New()
		if !vc.Open(path) {
			t.Fatalf("Open(%s) failed", path)
		}
		defer vc.Release()

		var types []mvcapture.FrameType
		var tables []mvcapture.MotionVectors
		for r := vc.Read(); r.OK; r = vc.Read() {
			types = append(types, r.FrameType)
			tables = append(tables, r.MotionVectors)
		}
		return types, tables
	}

	types1, tables1 := decodeAll()
	types2, tables2 := decodeAll()

	if len(types1) != len(types2) {
		t.Fatalf("frame counts differ: %d vs %d", len(types1), len(types2))
	}
	for i := range types1 {
		if types1[i] != types2[i] {
			t.Errorf("frame %d: type %q vs %q", i, types1[i], types2[i])
		}
		if !tables1[i].Equal(tables2[i]) {
			t.Errorf("frame %d: motion vectors differ", i)
		}
	}
}

func TestReopen(t *testing.T) {
	path := testVideo(t)
	rec := &recorder{}
	vc := mvcapture.New(mvcapture.WithObserver(rec))
	defer vc.Release()

	if vc.Open(filepath.Join(t.TempDir(), "missing.mp4")) {
		t.Fatal("Open(missing) = true")
	}
	if !vc.Open(path) {
		t.Fatalf("Open(%s) after failed open: %v", path, vc.Err())
	}
	vc.Read()
	vc.Read()

	// Opening again releases the current session and starts over.
	if !vc.Open(path) {
		t.Fatalf("second Open(%s) failed", path)
	}
	if r := vc.Read(); r.FrameType != mvcapture.FrameI {
		t.Errorf("first frame after reopen = %q, want I", r.FrameType)
	}
	if n := rec.count("released"); n != 1 {
		t.Errorf("Released called %d times, want 1", n)
	}

	vc.Release()
	assertFailed(t, vc.Read())
	if n := rec.count("released"); n != 2 {
		t.Errorf("Released called %d times, want 2", n)
	}
}

func BenchmarkRead(b *testing.B) {
	path := os.Getenv("MVCAPTURE_TEST_VIDEO")
	if path == "" {
		b.Skip("MVCAPTURE_TEST_VIDEO not set")
	}
	vc := mvcapture.New()
	defer vc.Release()
	if !vc.Open(path) {
		b.Fatalf("Open(%s) failed", path)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if r := vc.Read(); !r.OK {
			b.StopTimer()
			vc.Open(path)
			b.StartTimer()
		}
	}
}
