package decode

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDemuxer returns one packet per entry of streams, tagged with its
// position as pts, then end (astiav.ErrEof when nil) forever.
type scriptedDemuxer struct {
	streams []int
	end     error
	reads   int
}

func (m *scriptedDemuxer) ReadFrame(p *astiav.Packet) error {
	if m.reads >= len(m.streams) {
		if m.end != nil {
			return m.end
		}
		return astiav.ErrEof
	}
	p.SetStreamIndex(m.streams[m.reads])
	p.SetPts(int64(m.reads))
	m.reads++
	return nil
}

// queueDecoder turns every accepted packet into one picture and holds
// back delay pictures until it is flushed.
type queueDecoder struct {
	delay  int
	eagain int
	reject error

	queued   int
	flushed  bool
	accepted []int64
}

func (q *queueDecoder) SendPacket(p *astiav.Packet) error {
	if p == nil {
		q.flushed = true
		return nil
	}
	if q.reject != nil {
		return q.reject
	}
	if q.eagain > 0 {
		q.eagain--
		return astiav.ErrEagain
	}
	q.accepted = append(q.accepted, p.Pts())
	q.queued++
	return nil
}

func (q *queueDecoder) ReceiveFrame(*astiav.Frame) error {
	switch {
	case q.queued > q.delay, q.flushed && q.queued > 0:
		q.queued--
		return nil
	case q.flushed:
		return astiav.ErrEof
	default:
		return astiav.ErrEagain
	}
}

func newScriptedDriver(t *testing.T, dm demuxer, dec decoder, budget int) *Driver {
	t.Helper()
	pkt := astiav.AllocPacket()
	require.NotNil(t, pkt)
	frame := astiav.AllocFrame()
	require.NotNil(t, frame)

	d := &Driver{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		pkt:    pkt,
		frame:  frame,
		demux:  dm,
		dec:    dec,
		budget: budget,
	}
	t.Cleanup(d.Close)
	return d
}

// pictures calls Next until it fails and returns how many pictures it got.
func pictures(t *testing.T, d *Driver) (int, error) {
	t.Helper()
	for n := 0; n < 10000; n++ {
		if err := d.Next(); err != nil {
			assert.Nil(t, d.Frame())
			return n, err
		}
		require.NotNil(t, d.Frame())
	}
	t.Fatal("Next never ended")
	return 0, nil
}

func TestNextDrainsDelayedPicturesAtEnd(t *testing.T) {
	dec := &queueDecoder{delay: 2}
	d := newScriptedDriver(t, &scriptedDemuxer{streams: []int{0, 0, 0, 0}}, dec, DefaultSkipBudget)

	n, err := pictures(t, d)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, dec.flushed)

	assert.ErrorIs(t, d.Next(), io.EOF)
	assert.Equal(t, uint64(4), d.Counters().Pictures)
}

func TestNextReportsInterruptedReadAfterDrain(t *testing.T) {
	dm := &scriptedDemuxer{streams: []int{0, 0, 0, 0}, end: errors.New("connection reset by peer")}
	d := newScriptedDriver(t, dm, &queueDecoder{delay: 2}, DefaultSkipBudget)

	n, err := pictures(t, d)
	assert.Equal(t, 4, n, "delayed pictures are returned before the interruption")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, IsEndOfStream(err))

	assert.ErrorIs(t, d.Next(), ErrInterrupted)
}

func TestNextSkipBudget(t *testing.T) {
	tests := []struct {
		name     string
		budget   int
		pictures int
		wantErr  error
	}{
		{name: "exceeded", budget: 1, pictures: 1, wantErr: ErrDecodeFault},
		{name: "within", budget: 2, pictures: 2, wantErr: io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := &scriptedDemuxer{streams: []int{0, 1, 1, 0}}
			d := newScriptedDriver(t, dm, &queueDecoder{}, tt.budget)

			n, err := pictures(t, d)
			assert.Equal(t, tt.pictures, n)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, uint64(2), d.Counters().PacketsSkipped)

			assert.ErrorIs(t, d.Next(), tt.wantErr)
		})
	}
}

func TestNextDecodeErrorsCountAgainstBudget(t *testing.T) {
	dm := &scriptedDemuxer{streams: []int{0, 0, 0, 0, 0}}
	d := newScriptedDriver(t, dm, &queueDecoder{reject: astiav.ErrInvaliddata}, 3)

	n, err := pictures(t, d)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrDecodeFault)
	assert.Equal(t, uint64(4), d.Counters().DecodeErrors)
}

func TestFeedResendsRefusedPacket(t *testing.T) {
	dec := &queueDecoder{eagain: 1}
	d := newScriptedDriver(t, &scriptedDemuxer{streams: []int{0, 0, 0}}, dec, DefaultSkipBudget)

	n, err := pictures(t, d)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []int64{0, 1, 2}, dec.accepted)
	assert.Equal(t, uint64(3), d.Counters().PacketsRead)
}
