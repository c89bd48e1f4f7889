// Package motion materializes decoder motion-vector side data into a
// fixed-width int32 table.
package motion

import (
	"fmt"
	"math"
)

// Columns is the fixed width of every Table row.
const Columns = 10

// Column indexes, in row order.
const (
	ColSource = iota
	ColBlockWidth
	ColBlockHeight
	ColSrcX
	ColSrcY
	ColDstX
	ColDstY
	ColMotionX
	ColMotionY
	ColMotionScale
)

// ColumnNames lists the column labels in row order.
var ColumnNames = [Columns]string{
	"source",
	"block_width",
	"block_height",
	"src_x",
	"src_y",
	"dst_x",
	"dst_y",
	"motion_x",
	"motion_y",
	"motion_scale",
}

// Row is one motion vector record.
//
// Source is negative when the block predicts from a past reference and
// positive for a future one. Motion is expressed in 1/MotionScale pixel
// units, so the displacement in pixels is MotionX/MotionScale.
type Row [Columns]int32

// Source returns the reference direction indicator.
func (r Row) Source() int32 { return r[ColSource] }

// Block returns the block dimensions in pixels.
func (r Row) Block() (w, h int32) { return r[ColBlockWidth], r[ColBlockHeight] }

// Displacement returns the motion in pixels.
func (r Row) Displacement() (dx, dy float64) {
	scale := r[ColMotionScale]
	if scale == 0 {
		return 0, 0
	}
	return float64(r[ColMotionX]) / float64(scale), float64(r[ColMotionY]) / float64(scale)
}

// Table is an ordered set of motion vector rows for one picture.
//
// The zero value is an empty (0, 10) table. A Table is never "absent":
// pictures without inter prediction simply produce zero rows.
type Table struct {
	rows []Row
}

// NewTable wraps rows without copying.
func NewTable(rows []Row) Table {
	return Table{rows: rows}
}

// Rows returns the number of rows.
func (t Table) Rows() int { return len(t.rows) }

// Shape returns (rows, 10).
func (t Table) Shape() (rows, cols int) { return len(t.rows), Columns }

// Row returns row i. It panics if i is out of range.
func (t Table) Row(i int) Row { return t.rows[i] }

// All returns the backing rows. Callers must not modify them.
func (t Table) All() []Row { return t.rows }

// Empty reports whether the table has no rows.
func (t Table) Empty() bool { return len(t.rows) == 0 }

// Int32s flattens the table into row-major order.
func (t Table) Int32s() []int32 {
	out := make([]int32, 0, len(t.rows)*Columns)
	for _, r := range t.rows {
		out = append(out, r[:]...)
	}
	return out
}

// Equal reports whether both tables hold the same rows in the same order.
func (t Table) Equal(o Table) bool {
	if len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.rows {
		if t.rows[i] != o.rows[i] {
			return false
		}
	}
	return true
}

// MeanMagnitude returns the mean displacement length in pixels.
func (t Table) MeanMagnitude() float64 {
	if len(t.rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range t.rows {
		dx, dy := r.Displacement()
		sum += math.Hypot(dx, dy)
	}
	return sum / float64(len(t.rows))
}

// String implements fmt.Stringer.
func (t Table) String() string {
	return fmt.Sprintf("motion.Table(%d, %d)", len(t.rows), Columns)
}
