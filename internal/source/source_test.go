package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     Kind
		path     string
		scheme   string
		wantErr  bool
		network  bool
		rtsp     bool
		address  string
		streamID string
	}{
		{name: "relative path", raw: "vid_h264.mp4", kind: KindFile, path: "vid_h264.mp4"},
		{name: "absolute path", raw: "/data/in.mkv", kind: KindFile, path: "/data/in.mkv"},
		{name: "windows drive", raw: `C://videos/in.mp4`, kind: KindFile, path: `C://videos/in.mp4`},
		{name: "file url", raw: "file:///data/in.mp4", kind: KindFile, path: "/data/in.mp4", scheme: "file"},
		{name: "rtsp", raw: "rtsp://user:pw@10.0.0.5:554/stream1", kind: KindNetwork, path: "rtsp://user:pw@10.0.0.5:554/stream1", scheme: "rtsp", network: true, rtsp: true},
		{name: "rtsp upper", raw: "RTSP://cam/stream", kind: KindNetwork, path: "RTSP://cam/stream", scheme: "rtsp", network: true, rtsp: true},
		{name: "http", raw: "http://example.com/live.m3u8", kind: KindNetwork, path: "http://example.com/live.m3u8", scheme: "http", network: true},
		{name: "srt", raw: "srt://10.0.0.9:9000?streamid=live/cam1", kind: KindSRT, path: "srt://10.0.0.9:9000?streamid=live/cam1", scheme: "srt", network: true, address: "10.0.0.9:9000", streamID: "live/cam1"},
		{name: "srt without port", raw: "srt://10.0.0.9", wantErr: true},
		{name: "rtsp without host", raw: "rtsp:///stream", wantErr: true},
		{name: "path with surrounding spaces", raw: " clip 01.mp4 ", kind: KindFile, path: " clip 01.mp4 "},
		{name: "path containing scheme separator", raw: "/mnt/exports/cam://1/in.mp4", kind: KindFile, path: "/mnt/exports/cam://1/in.mp4"},
		{name: "relative path containing scheme separator", raw: "clips/a://b.mp4", kind: KindFile, path: "clips/a://b.mp4"},
		{name: "spaced prefix is not a scheme", raw: "my clip://x.mp4", kind: KindFile, path: "my clip://x.mp4"},
		{name: "empty", raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Resolve(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, src.Kind)
			assert.Equal(t, tt.path, src.Path)
			assert.Equal(t, tt.scheme, src.Scheme)
			assert.Equal(t, tt.network, src.IsNetwork())
			assert.Equal(t, tt.rtsp, src.IsRTSP())
			assert.Equal(t, tt.address, src.Address)
			assert.Equal(t, tt.streamID, src.StreamID)
		})
	}
}

func TestResolveEmpty(t *testing.T) {
	_, err := Resolve("")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestDemuxOptions(t *testing.T) {
	rtsp, _ := Resolve("rtsp://cam/stream")
	httpSrc, _ := Resolve("http://example.com/a.ts")
	file, _ := Resolve("in.mp4")
	srt, _ := Resolve("srt://host:9000")

	opts := rtsp.DemuxOptions(DefaultOptions())
	assert.Equal(t, map[string]string{"rtsp_transport": "tcp", "timeout": "5000000"}, opts)

	opts = rtsp.DemuxOptions(Options{RTSPTransport: "udp"})
	assert.Equal(t, map[string]string{"rtsp_transport": "udp"}, opts)

	opts = httpSrc.DemuxOptions(Options{Timeout: 2 * time.Second})
	assert.Equal(t, map[string]string{"rw_timeout": "2000000"}, opts)

	assert.Empty(t, file.DemuxOptions(DefaultOptions()))

	oddPath, _ := Resolve("/mnt/exports/cam://1/in.mp4")
	assert.Empty(t, oddPath.DemuxOptions(DefaultOptions()))
	assert.Empty(t, srt.DemuxOptions(DefaultOptions()))
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]string{"timeout": "1", "rtsp_transport": "tcp"})
	assert.Equal(t, []string{"rtsp_transport", "timeout"}, keys)
}

func TestIsLiveFormat(t *testing.T) {
	tests := []struct {
		names string
		want  bool
	}{
		{"rtsp", true},
		{"mov,mp4,m4a,3gp,3g2,mj2", false},
		{"sdp", true},
		{"h264", false},
		{"matroska,webm", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLiveFormat(tt.names), tt.names)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "srt", KindSRT.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestDialSRTRejectsNonSRT(t *testing.T) {
	src, _ := Resolve("in.mp4")
	_, err := DialSRT(context.Background(), src, time.Second, nil)
	assert.Error(t, err)
}

func TestDialSRTCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network dial in short mode")
	}
	src, err := Resolve("srt://127.0.0.1:1?streamid=none")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = DialSRT(ctx, src, 5*time.Second, nil)
	assert.Error(t, err)
}
