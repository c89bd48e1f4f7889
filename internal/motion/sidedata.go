package motion

//#cgo pkg-config: libavutil
//#include <libavutil/frame.h>
//#include <libavutil/motion_vector.h>
import "C"

import (
	"errors"
	"unsafe"

	"github.com/asticode/go-astiav"
)

// FromFrame reads the motion vector side data attached to a decoded frame.
//
// Frames without side data (intra pictures, decoders that were not asked
// to export vectors) yield an empty table.
func FromFrame(f *astiav.Frame) Table {
	if f == nil {
		return Table{}
	}
	cf := (*C.AVFrame)(f.UnsafePointer())
	if cf == nil {
		return Table{}
	}
	sd := C.av_frame_get_side_data(cf, C.AV_FRAME_DATA_MOTION_VECTORS)
	if sd == nil || sd.data == nil {
		return Table{}
	}
	n := int(sd.size / C.sizeof_AVMotionVector)
	if n == 0 {
		return Table{}
	}
	return fromRecords(unsafe.Slice((*C.AVMotionVector)(unsafe.Pointer(sd.data)), n))
}

// fromRecords copies decoder records into rows, keeping emission order.
func fromRecords(mvs []C.AVMotionVector) Table {
	rows := make([]Row, len(mvs))
	for i := range mvs {
		mv := &mvs[i]
		rows[i] = Row{
			int32(mv.source),
			int32(mv.w),
			int32(mv.h),
			int32(mv.src_x),
			int32(mv.src_y),
			int32(mv.dst_x),
			int32(mv.dst_y),
			int32(mv.motion_x),
			int32(mv.motion_y),
			int32(mv.motion_scale),
		}
	}
	return Table{rows: rows}
}

// Attach stores t as the motion vector side data of f, replacing any
// already present. An empty table only removes it.
func Attach(f *astiav.Frame, t Table) error {
	if f == nil {
		return errors.New("motion: nil frame")
	}
	cf := (*C.AVFrame)(f.UnsafePointer())
	C.av_frame_remove_side_data(cf, C.AV_FRAME_DATA_MOTION_VECTORS)
	if len(t.rows) == 0 {
		return nil
	}

	size := C.size_t(len(t.rows)) * C.sizeof_AVMotionVector
	sd := C.av_frame_new_side_data(cf, C.AV_FRAME_DATA_MOTION_VECTORS, size)
	if sd == nil {
		return errors.New("motion: side data allocation failed")
	}

	mvs := unsafe.Slice((*C.AVMotionVector)(unsafe.Pointer(sd.data)), len(t.rows))
	for i, r := range t.rows {
		mvs[i] = C.AVMotionVector{
			source:       C.int32_t(r[ColSource]),
			w:            C.uint8_t(r[ColBlockWidth]),
			h:            C.uint8_t(r[ColBlockHeight]),
			src_x:        C.int16_t(r[ColSrcX]),
			src_y:        C.int16_t(r[ColSrcY]),
			dst_x:        C.int16_t(r[ColDstX]),
			dst_y:        C.int16_t(r[ColDstY]),
			motion_x:     C.int32_t(r[ColMotionX]),
			motion_y:     C.int32_t(r[ColMotionY]),
			motion_scale: C.uint16_t(r[ColMotionScale]),
		}
	}
	return nil
}
