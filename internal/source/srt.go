package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

const (
	// SRTReadBufferSize holds ten 1316-byte SRT payloads (7 TS packets each).
	SRTReadBufferSize = 1316 * 10

	// srtLatency is the SRT receiver latency in nanoseconds (120ms).
	srtLatency = 120_000_000

	// DefaultSRTDialTimeout bounds the SRT handshake.
	DefaultSRTDialTimeout = 10 * time.Second
)

// SRTReader pulls an MPEG-TS byte stream from a remote SRT listener.
type SRTReader struct {
	conn   *srtgo.Conn
	addr   string
	bytes  atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

// DialSRT connects to the SRT listener named by src in caller mode.
//
// The handshake runs in its own goroutine so ctx and timeout can abandon
// it; a connection that completes after the caller gave up is closed in
// the background.
func DialSRT(ctx context.Context, src Source, timeout time.Duration, log *slog.Logger) (*SRTReader, error) {
	if src.Kind != KindSRT {
		return nil, fmt.Errorf("source: %q is not an srt source", src.Raw)
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSRTDialTimeout
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatency
	if src.StreamID != "" {
		cfg.StreamID = src.StreamID
	}

	log.Info("mv-capture: dialing srt", "address", src.Address, "stream_id", src.StreamID)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(src.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("source: srt dial %s: %w", src.Address, res.err)
		}
		return &SRTReader{conn: res.conn, addr: src.Address}, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("source: srt dial %s timed out after %s", src.Address, timeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// Read implements io.Reader. After Close it returns io.EOF.
func (r *SRTReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}
	n, err := r.conn.Read(p)
	if n > 0 {
		r.bytes.Add(uint64(n))
	}
	if err != nil {
		if r.closed.Load() || errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, fmt.Errorf("source: srt read %s: %w", r.addr, err)
	}
	return n, nil
}

// BytesRead returns the number of payload bytes received.
func (r *SRTReader) BytesRead() uint64 { return r.bytes.Load() }

// Close closes the connection. Safe to call more than once.
func (r *SRTReader) Close() error {
	var err error
	r.once.Do(func() {
		r.closed.Store(true)
		err = r.conn.Close()
	})
	return err
}
