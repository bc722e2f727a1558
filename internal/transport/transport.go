package transport

import (
	"io"

	"github.com/thermoctl/go-mecom-server/internal/mecom"
)

// FrameDecoder decodes a single MeCom frame from a stream.
type FrameDecoder interface {
	Decode(r io.Reader) (mecom.Frame, error)
}

// MultiFrameDecoder optionally drains multiple frames from a stream.
type MultiFrameDecoder interface {
	DecodeN(r io.Reader, max int, onFrame func(mecom.Frame)) (int, error)
}

// FrameBatchEncoder can encode batches efficiently (either to bytes or directly to writer).
type FrameBatchEncoder interface {
	Encode([]mecom.Frame) []byte
	EncodeTo(w io.Writer, frames []mecom.Frame) (int, error)
}

// FrameSink is a generic frame transmission target.
type FrameSink interface {
	SendFrame(mecom.Frame) error
}

// Compile-time assertions that *mecom.Codec satisfies the optional capabilities.
var (
	_ FrameDecoder      = (*mecom.Codec)(nil)
	_ MultiFrameDecoder = (*mecom.Codec)(nil)
	_ FrameBatchEncoder = (*mecom.Codec)(nil)
)
