package mvcapture_test

import (
	"fmt"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// ExampleVideoCap_Read shows the read loop over a video file.
func ExampleVideoCap_Read() {
	vc := mvcapture.New()
	defer vc.Release()

	if !vc.Open("vid_h264.mp4") {
		return
	}

	for {
		r := vc.Read()
		if !r.OK {
			break
		}
		rows, _ := r.MotionVectors.Shape()
		fmt.Printf("%s frame %dx%d with %d motion vectors\n", r.FrameType, r.Frame.Width(), r.Frame.Height(), rows)
	}
	if err := vc.Err(); err != nil {
		fmt.Println("stream ended early:", err)
	}
}

// ExampleVideoCap_Read_closed shows the result of reading a closed capture.
func ExampleVideoCap_Read_closed() {
	vc := mvcapture.New()

	r := vc.Read()
	rows, cols := r.MotionVectors.Shape()
	fmt.Println(r.OK, r.Frame == nil, rows, cols, r.FrameType, r.Timestamp)
	// Output: false true 0 10 ? 0
}

// ExampleNewMotionVectors shows the row layout of a motion vector table.
func ExampleNewMotionVectors() {
	mvs := mvcapture.NewMotionVectors([]mvcapture.MotionVector{
		{-1, 16, 16, 8, 8, 8, 8, 0, 0, 4},
		{-1, 16, 16, 24, 8, 28, 4, 16, -16, 4},
	})

	for _, mv := range mvs.All() {
		dx, dy := mv.Displacement()
		fmt.Printf("block %dx%d at (%d,%d) moved (%.0f,%.0f)\n", mv[1], mv[2], mv[5], mv[6], dx, dy)
	}
	// Output:
	// block 16x16 at (8,8) moved (0,0)
	// block 16x16 at (28,4) moved (4,-4)
}

// ExampleNewStream shows continuous capture from a live source.
func ExampleNewStream() {
	stream, err := mvcapture.NewStream(mvcapture.StreamConfig{
		Source:       "rtsp://192.168.1.100/stream",
		SourceStream: "camera-1",
	})
	if err != nil {
		return
	}

	// samples, _ := stream.Start(ctx)
	// defer stream.Stop()
	//
	// for s := range samples {
	// 	log.Printf("seq %d %s: %d vectors", s.Seq, s.FrameType, s.MotionVectors.Rows())
	// }
	_ = stream
}

// ExampleClassify shows error classification.
func ExampleClassify() {
	fmt.Println(mvcapture.Classify(mvcapture.ErrUnsupportedCodec))
	fmt.Println(mvcapture.Classify(nil))
}
