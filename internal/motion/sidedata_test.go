package motion

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFrameNil(t *testing.T) {
	assert.True(t, FromFrame(nil).Empty())
}

func TestFromFrameWithoutSideData(t *testing.T) {
	f := astiav.AllocFrame()
	require.NotNil(t, f)
	defer f.Free()

	tbl := FromFrame(f)
	rows, cols := tbl.Shape()
	assert.Equal(t, 0, rows)
	assert.Equal(t, Columns, cols)
}

func TestFromFrameKeepsOrderAndValues(t *testing.T) {
	f := astiav.AllocFrame()
	require.NotNil(t, f)
	defer f.Free()

	want := NewTable([]Row{
		{-1, 16, 16, 8, 8, 8, 8, 0, 0, 4},
		{-1, 16, 16, 24, 8, 24, 8, 0, 0, 4},
		{1, 8, 16, 33, 7, 36, 8, -12, 3, 4},
		{-1, 8, 8, -4, 1276, 4, 716, 32, -40, 4},
	})
	require.NoError(t, Attach(f, want))

	got := FromFrame(f)
	require.Equal(t, want.Rows(), got.Rows())
	for i := range want.All() {
		assert.Equal(t, want.Row(i), got.Row(i), "row %d", i)
	}
}

func TestAttachReplaces(t *testing.T) {
	f := astiav.AllocFrame()
	require.NotNil(t, f)
	defer f.Free()

	require.NoError(t, Attach(f, NewTable([]Row{
		{-1, 16, 16, 8, 8, 8, 8, 0, 0, 4},
		{-1, 16, 16, 24, 8, 24, 8, 0, 0, 4},
	})))
	require.NoError(t, Attach(f, NewTable([]Row{{1, 16, 8, 0, 0, 0, 0, 2, 2, 2}})))

	got := FromFrame(f)
	require.Equal(t, 1, got.Rows())
	assert.Equal(t, Row{1, 16, 8, 0, 0, 0, 0, 2, 2, 2}, got.Row(0))

	require.NoError(t, Attach(f, Table{}))
	assert.True(t, FromFrame(f).Empty())
}

func TestAttachNilFrame(t *testing.T) {
	assert.Error(t, Attach(nil, Table{}))
}
