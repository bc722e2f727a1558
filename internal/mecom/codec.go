package mecom

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/thermoctl/go-mecom-server/internal/metrics"
)

// Codec encodes/decodes MeCom ASCII frames. Stateless and safe for
// concurrent use.
//
// Wire format (all ASCII, CR terminated):
//
//	'#'|'!'  control character
//	AA       device address, 2 hex digits
//	SSSS     sequence number, 4 hex digits
//	...      payload, 0..MaxPayload characters
//	CCCC     CRC-16/CCITT over all preceding characters, 4 hex digits
//	<CR>
type Codec struct{}

// ErrInvalidHeader is returned when the control character or the hex
// header fields cannot be parsed.
var ErrInvalidHeader = errors.New("mecom: invalid frame header")

// ErrBadCRC is returned when the frame checksum does not match.
var ErrBadCRC = errors.New("mecom: crc mismatch")

// ErrFrameTooLong is returned when a frame exceeds MaxFrameLen before a CR
// is seen.
var ErrFrameTooLong = errors.New("mecom: frame too long")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("mecom: truncated frame")

const hexDigits = "0123456789ABCDEF"

func appendHex8(dst []byte, v uint8) []byte {
	return append(dst, hexDigits[v>>4], hexDigits[v&0xF])
}

func appendHex16(dst []byte, v uint16) []byte {
	return appendHex8(appendHex8(dst, uint8(v>>8)), uint8(v))
}

func hexNibble(b byte) (uint8, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

func parseHex(b []byte) (uint16, bool) {
	var v uint16
	for _, c := range b {
		n, ok := hexNibble(c)
		if !ok {
			return 0, false
		}
		v = v<<4 | uint16(n)
	}
	return v, true
}

// AppendFrame appends the wire representation of f (including CR) to dst.
func (c *Codec) AppendFrame(dst []byte, f Frame) []byte {
	start := len(dst)
	dst = append(dst, f.Control)
	dst = appendHex8(dst, f.Addr)
	dst = appendHex16(dst, f.Seq)
	dst = append(dst, f.Data[:f.Len]...)
	dst = appendHex16(dst, CRC16(dst[start:]))
	return append(dst, '\r')
}

// Encode packs frames into a single buffer.
func (c *Codec) Encode(frames []Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(frames)*MaxFrameLen)
	for _, f := range frames {
		buf = c.AppendFrame(buf, f)
	}
	return buf
}

// EncodeTo writes the wire representation of frames to w and returns bytes
// written.
func (c *Codec) EncodeTo(w io.Writer, frames []Frame) (int, error) {
	var total int
	var scratch [MaxFrameLen]byte
	for _, f := range frames {
		b := c.AppendFrame(scratch[:0], f)
		n, err := w.Write(b)
		total += n
		if err != nil {
			return total, fmt.Errorf("mecom encode: %w", err)
		}
	}
	return total, nil
}

// DecodeLine parses one frame from a line captured off the wire. A trailing
// CR is accepted but not required, so truncated lines forwarded by the
// serial receiver can be rejected here with a precise error.
func (c *Codec) DecodeLine(line []byte) (Frame, error) {
	var f Frame
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > MaxFrameLen-1 {
		metrics.IncMalformed()
		return f, ErrFrameTooLong
	}
	if len(line) < headerLen+crcLen {
		metrics.IncMalformed()
		return f, fmt.Errorf("%w: %d bytes", ErrTruncatedFrame, len(line))
	}
	if line[0] != ControlHost && line[0] != ControlDevice {
		metrics.IncMalformed()
		return f, fmt.Errorf("%w: control 0x%02X", ErrInvalidHeader, line[0])
	}
	addr, ok1 := parseHex(line[1:3])
	seq, ok2 := parseHex(line[3:7])
	crc, ok3 := parseHex(line[len(line)-crcLen:])
	if !ok1 || !ok2 || !ok3 {
		metrics.IncMalformed()
		return f, ErrInvalidHeader
	}
	if want := CRC16(line[:len(line)-crcLen]); want != crc {
		metrics.IncCRCError()
		return f, fmt.Errorf("%w: got %04X want %04X", ErrBadCRC, crc, want)
	}
	payload := line[headerLen : len(line)-crcLen]
	f.Control = line[0]
	f.Addr = uint8(addr)
	f.Seq = seq
	f.Len = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, nil
}

// Decode reads exactly one frame from r.
// It returns io.EOF if called at a clean frame boundary and no more data is
// available.
func (c *Codec) Decode(r io.Reader) (Frame, error) {
	var f Frame
	var line [MaxFrameLen]byte
	var b [1]byte
	n := 0
	for {
		m, err := r.Read(b[:])
		if m == 0 && err == nil {
			continue
		}
		if err != nil {
			if n == 0 {
				return f, err
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				metrics.IncMalformed()
				return f, fmt.Errorf("mecom decode: %w", ErrTruncatedFrame)
			}
			return f, fmt.Errorf("mecom decode: %w", err)
		}
		line[n] = b[0]
		n++
		if b[0] == '\r' {
			return c.DecodeLine(line[:n])
		}
		if n >= MaxFrameLen {
			metrics.IncMalformed()
			return f, ErrFrameTooLong
		}
	}
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0)
// invoking onFrame for each. It returns the number of frames decoded and
// the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}

// DecodeStream drains complete CR-terminated frames from in, emitting each
// via out. Malformed lines are skipped after counting. Incomplete trailing
// data stays buffered for the next call.
func (c *Codec) DecodeStream(in *bytes.Buffer, out func(Frame)) error {
	for {
		data := in.Bytes()
		i := bytes.IndexByte(data, '\r')
		if i < 0 {
			if len(data) >= MaxFrameLen {
				// No terminator within the bound; forward truncated.
				if f, err := c.DecodeLine(data[:MaxFrameLen]); err == nil {
					out(f)
				}
				in.Next(MaxFrameLen)
				continue
			}
			return nil
		}
		if f, err := c.DecodeLine(data[:i+1]); err == nil {
			out(f)
		}
		in.Next(i + 1)
	}
}
