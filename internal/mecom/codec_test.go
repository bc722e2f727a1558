package mecom

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func f(control byte, addr uint8, seq uint16, payload string) Frame {
	fr := Frame{Control: control, Addr: addr, Seq: seq, Len: uint8(len(payload))}
	copy(fr.Data[:], payload)
	return fr
}

func TestAppendFrameGolden(t *testing.T) {
	var c Codec
	cases := []struct {
		fr   Frame
		want string
	}{
		{f(ControlHost, 0, 0, "?IF"), "#000000?IF1AD8\r"},
		{f(ControlDevice, 0, 0, ""), "!0000002F7F\r"},
		{f(ControlHost, 5, 0x1234, "?VR03E801"), "#051234?VR03E801FB8A\r"},
	}
	for _, tc := range cases {
		got := c.AppendFrame(nil, tc.fr)
		if string(got) != tc.want {
			t.Errorf("AppendFrame(%+v) = %q, want %q", tc.fr, got, tc.want)
		}
	}
}

func TestDecodeLineRoundTrip(t *testing.T) {
	var c Codec
	want := []Frame{
		f(ControlHost, 0, 0, "?IF"),
		f(ControlDevice, 5, 0xAB, "+05"),
		f(ControlHost, 42, 0xC3, "?VR006400"),
		f(ControlDevice, 42, 0xC3, "8000"),
		f(ControlDevice, 1, 0xFFFF, ""),
	}
	for _, w := range want {
		wire := c.AppendFrame(nil, w)
		got, err := c.DecodeLine(wire)
		if err != nil {
			t.Fatalf("DecodeLine(%q): %v", wire, err)
		}
		if got.Control != w.Control || got.Addr != w.Addr || got.Seq != w.Seq ||
			string(got.Payload()) != string(w.Data[:w.Len]) {
			t.Fatalf("round trip mismatch\n got %+v\nwant %+v", got, w)
		}
	}
}

func TestDecodeLineLowercaseHex(t *testing.T) {
	var c Codec
	got, err := c.DecodeLine([]byte("#051234?VR03E801fb8a\r"))
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if got.Addr != 5 || got.Seq != 0x1234 {
		t.Fatalf("unexpected header: %+v", got)
	}
}

func TestDecodeLineErrors(t *testing.T) {
	var c Codec
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"bad crc", "#000000?IF1AD9\r", ErrBadCRC},
		{"bad control", "$000000?IF1AD8\r", ErrInvalidHeader},
		{"bad hex addr", "#zz0000?IF1AD8\r", ErrInvalidHeader},
		{"too short", "#0000\r", ErrTruncatedFrame},
		{"empty", "\r", ErrTruncatedFrame},
		{"overlong", "#000000" + strings.Repeat("A", MaxPayload+8) + "1AD8\r", ErrFrameTooLong},
	}
	for _, tc := range cases {
		if _, err := c.DecodeLine([]byte(tc.in)); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestDecodeReader(t *testing.T) {
	var c Codec
	want := []Frame{
		f(ControlHost, 1, 1, "?VR271201"),
		f(ControlDevice, 1, 1, "41A00000"),
	}
	var wire []byte
	for _, w := range want {
		wire = c.AppendFrame(wire, w)
	}
	r := bytes.NewReader(wire)
	for i, w := range want {
		got, err := c.Decode(r)
		if err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		if got.Addr != w.Addr || got.Seq != w.Seq || string(got.Payload()) != string(w.Data[:w.Len]) {
			t.Fatalf("frame %d mismatch: %+v", i, got)
		}
	}
	if _, err := c.Decode(r); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at clean boundary, got %v", err)
	}
}

func TestDecodeTruncatedStream(t *testing.T) {
	var c Codec
	wire := c.AppendFrame(nil, f(ControlHost, 1, 1, "?IF"))
	r := bytes.NewReader(wire[:len(wire)-3]) // cut mid-frame
	if _, err := c.Decode(r); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
}

func TestDecodeN(t *testing.T) {
	var c Codec
	var wire []byte
	for i := 0; i < 5; i++ {
		wire = c.AppendFrame(wire, f(ControlDevice, uint8(i), uint16(i), "00"))
	}
	var got []Frame
	n, err := c.DecodeN(bytes.NewReader(wire), 3, func(fr Frame) { got = append(got, fr) })
	if err != nil || n != 3 {
		t.Fatalf("DecodeN(3) = %d, %v", n, err)
	}
	got = got[:0]
	n, err = c.DecodeN(bytes.NewReader(wire), 0, func(fr Frame) { got = append(got, fr) })
	if !errors.Is(err, io.EOF) || n != 5 {
		t.Fatalf("DecodeN(0) = %d, %v; want 5, io.EOF", n, err)
	}
	for i, fr := range got {
		if fr.Addr != uint8(i) {
			t.Fatalf("frame %d out of order: addr=%d", i, fr.Addr)
		}
	}
}

func TestDecodeStreamChunked(t *testing.T) {
	var c Codec
	want := []Frame{
		f(ControlDevice, 1, 0x10, "41200000"),
		f(ControlDevice, 2, 0x11, ""),
		f(ControlDevice, 3, 0x12, "+03"),
		f(ControlHost, 4, 0x13, "?VR0BB801"),
	}
	var stream []byte
	for _, w := range want {
		stream = c.AppendFrame(stream, w)
	}
	// garbage between frames must not derail the scanner
	stream = append([]byte("noise\r"), stream...)

	var buf bytes.Buffer
	got := make([]Frame, 0, len(want))

	// Feed in irregular small chunks to stress partial delivery.
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	cs := 0
	for pos := 0; pos < len(stream); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		buf.Write(stream[pos : pos+n])
		pos += n

		if err := c.DecodeStream(&buf, func(fr Frame) {
			got = append(got, fr.CopyShallow())
		}); err != nil {
			t.Fatalf("DecodeStream error: %v", err)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Addr != want[i].Addr || got[i].Seq != want[i].Seq ||
			string(got[i].Payload()) != string(want[i].Data[:want[i].Len]) {
			t.Fatalf("frame %d mismatch\n got %+v\nwant %+v", i, got[i], want[i])
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("expected drained buffer, %d bytes left", buf.Len())
	}
}
