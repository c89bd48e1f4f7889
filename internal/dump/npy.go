package dump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/motion"
)

var npyMagic = []byte("\x93NUMPY")

// npyAlign is the alignment numpy pads the header to.
const npyAlign = 64

// WriteNPY writes t as a NumPy v1.0 .npy file holding a little-endian
// int32 array of shape (rows, 10). An empty table gives shape (0, 10).
func WriteNPY(w io.Writer, t motion.Table) error {
	rows, cols := t.Shape()
	header := fmt.Sprintf("{'descr': '<i4', 'fortran_order': False, 'shape': (%d, %d), }", rows, cols)

	// magic(6) + version(2) + header length(2) + header + padding + '\n'
	pre := len(npyMagic) + 2 + 2
	pad := npyAlign - (pre+len(header)+1)%npyAlign
	if pad == npyAlign {
		pad = 0
	}
	header += string(bytes.Repeat([]byte{' '}, pad)) + "\n"

	var buf bytes.Buffer
	buf.Grow(pre + len(header) + rows*cols*4)
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if err := binary.Write(&buf, binary.LittleEndian, t.Int32s()); err != nil {
		return fmt.Errorf("encode npy: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadNPY parses a file written by WriteNPY.
func ReadNPY(r io.Reader) (motion.Table, error) {
	var pre [10]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return motion.Table{}, fmt.Errorf("read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:6], npyMagic) || pre[6] != 1 {
		return motion.Table{}, fmt.Errorf("not a v1 npy file")
	}
	header := make([]byte, binary.LittleEndian.Uint16(pre[8:]))
	if _, err := io.ReadFull(r, header); err != nil {
		return motion.Table{}, fmt.Errorf("read npy header: %w", err)
	}
	if !bytes.Contains(header, []byte("'descr': '<i4'")) {
		return motion.Table{}, fmt.Errorf("unsupported npy dtype in %q", header)
	}

	var rows, cols int
	i := bytes.Index(header, []byte("'shape': ("))
	if i < 0 {
		return motion.Table{}, fmt.Errorf("npy header has no shape")
	}
	if _, err := fmt.Sscanf(string(header[i+len("'shape': ("):]), "%d, %d)", &rows, &cols); err != nil {
		return motion.Table{}, fmt.Errorf("parse npy shape: %w", err)
	}
	if cols != motion.Columns {
		return motion.Table{}, fmt.Errorf("npy shape (%d, %d): want %d columns", rows, cols, motion.Columns)
	}

	out := make([]motion.Row, rows)
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return motion.Table{}, fmt.Errorf("read npy data: %w", err)
	}
	return motion.NewTable(out), nil
}
