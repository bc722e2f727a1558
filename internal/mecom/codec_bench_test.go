package mecom

import "testing"

func BenchmarkAppendFrame(b *testing.B) {
	var c Codec
	fr := f(ControlHost, 5, 0x1234, "?VR03E801")
	var scratch [MaxFrameLen]byte
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = c.AppendFrame(scratch[:0], fr)
	}
}

func BenchmarkDecodeLine(b *testing.B) {
	var c Codec
	wire := c.AppendFrame(nil, f(ControlDevice, 5, 0x1234, "41A00000"))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.DecodeLine(wire); err != nil {
			b.Fatal(err)
		}
	}
}
