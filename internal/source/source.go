// Package source classifies capture sources and derives the demuxer
// options for each transport.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrEmpty is returned by Resolve for an empty source string.
var ErrEmpty = errors.New("source: empty source")

// Kind is the transport strategy selected for a source.
type Kind int

const (
	// KindFile is a local path or file:// URL read by the demuxer.
	KindFile Kind = iota
	// KindNetwork is a URL handed to the demuxer's protocol layer
	// (rtsp, rtmp, http, udp...).
	KindNetwork
	// KindSRT is an srt:// URL dialed in caller mode and fed to the
	// demuxer as an MPEG-TS byte stream.
	KindSRT
)

// String returns a human-readable kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindNetwork:
		return "network"
	case KindSRT:
		return "srt"
	default:
		return "unknown"
	}
}

// Default demuxer settings for network sources.
const (
	DefaultRTSPTransport = "tcp"
	DefaultTimeout       = 5 * time.Second
)

// Options tunes the demuxer for network sources.
type Options struct {
	// RTSPTransport is passed as rtsp_transport (tcp, udp, http...).
	RTSPTransport string
	// Timeout bounds socket operations during open and read.
	Timeout time.Duration
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{
		RTSPTransport: DefaultRTSPTransport,
		Timeout:       DefaultTimeout,
	}
}

// Source is a resolved capture source.
type Source struct {
	// Raw is the string given by the caller.
	Raw string
	// Kind is the selected transport.
	Kind Kind
	// Scheme is the lowercased URL scheme, empty for plain paths.
	Scheme string
	// Path is the demuxer input (the path for files, the URL otherwise).
	Path string
	// Address is host:port for SRT sources.
	Address string
	// StreamID is the SRT stream id, if any.
	StreamID string
}

var networkSchemes = map[string]bool{
	"rtsp":  true,
	"rtsps": true,
	"rtmp":  true,
	"rtmps": true,
	"rtp":   true,
	"http":  true,
	"https": true,
	"udp":   true,
	"tcp":   true,
	"hls":   true,
	"mms":   true,
}

// Resolve classifies raw into a Source.
//
// Strings that do not start with a URL scheme followed by "://" are files
// and are passed to the demuxer unchanged. A single-letter scheme is a
// Windows drive. file:// URLs are reduced to their path. srt:// URLs are
// dialed through the SRT transport. Anything else with a scheme is handed
// to the demuxer as-is.
func Resolve(raw string) (Source, error) {
	if strings.TrimSpace(raw) == "" {
		return Source{}, ErrEmpty
	}

	scheme, ok := splitScheme(raw)
	if !ok {
		return Source{Raw: raw, Kind: KindFile, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, fmt.Errorf("source: parse %q: %w", raw, err)
	}

	switch {
	case scheme == "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		return Source{Raw: raw, Kind: KindFile, Scheme: scheme, Path: p}, nil

	case scheme == "srt":
		if u.Host == "" || u.Port() == "" {
			return Source{}, fmt.Errorf("source: srt url %q needs host:port", raw)
		}
		return Source{
			Raw:      raw,
			Kind:     KindSRT,
			Scheme:   scheme,
			Path:     raw,
			Address:  u.Host,
			StreamID: u.Query().Get("streamid"),
		}, nil

	default:
		if u.Host == "" && networkSchemes[scheme] {
			return Source{}, fmt.Errorf("source: %s url %q has no host", scheme, raw)
		}
		return Source{Raw: raw, Kind: KindNetwork, Scheme: scheme, Path: raw}, nil
	}
}

// splitScheme returns the lowercased scheme when raw starts with
// scheme "://", the scheme being a letter followed by letters, digits,
// '+', '-' or '.'. Single-letter schemes are rejected.
func splitScheme(raw string) (string, bool) {
	i := strings.Index(raw, "://")
	if i <= 1 {
		return "", false
	}
	for j := 0; j < i; j++ {
		c := raw[j]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", false
		}
	}
	return strings.ToLower(raw[:i]), true
}

// IsNetwork reports whether reading the source goes over a network.
func (s Source) IsNetwork() bool { return s.Kind != KindFile }

// IsRTSP reports whether the source is an RTSP URL.
func (s Source) IsRTSP() bool { return s.Scheme == "rtsp" || s.Scheme == "rtsps" }

// DemuxOptions returns the demuxer dictionary entries for the source.
//
// RTSP gets the transport and a socket timeout (microseconds). Other
// network protocols get rw_timeout. Files get nothing.
func (s Source) DemuxOptions(o Options) map[string]string {
	opts := map[string]string{}
	if s.Kind != KindNetwork {
		return opts
	}

	us := strconv.FormatInt(o.Timeout.Microseconds(), 10)
	if s.IsRTSP() {
		transport := o.RTSPTransport
		if transport == "" {
			transport = DefaultRTSPTransport
		}
		opts["rtsp_transport"] = transport
		if o.Timeout > 0 {
			opts["timeout"] = us
		}
		return opts
	}

	if o.Timeout > 0 {
		opts["rw_timeout"] = us
	}
	return opts
}

// SortedKeys returns the keys of m in order, for stable logging.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsLiveFormat reports whether a demuxer format name list (comma
// separated, as libavformat reports it) names a live streaming format.
func IsLiveFormat(names string) bool {
	for _, n := range strings.Split(names, ",") {
		switch strings.TrimSpace(n) {
		case "rtsp", "rtp", "sdp", "rtmp", "flv_live", "srt":
			return true
		}
	}
	return false
}
