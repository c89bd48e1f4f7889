package decode

import "errors"

// Errors returned by Open and Next. The capture package re-exports them.
var (
	ErrOpenInput        = errors.New("decode: cannot open input")
	ErrNoVideoStream    = errors.New("decode: no video stream")
	ErrUnsupportedCodec = errors.New("decode: unsupported codec")
	ErrResource         = errors.New("decode: native allocation failed")
	ErrDecodeFault      = errors.New("decode: too many undecodable packets")
	ErrInterrupted      = errors.New("decode: stream interrupted")
	ErrClosed           = errors.New("decode: driver closed")
)
