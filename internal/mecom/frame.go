package mecom

// Control characters starting a frame. A query originates from the host
// side ('#'); the device answers with the same address and sequence under
// the reply control character ('!').
const (
	ControlHost   = '#'
	ControlDevice = '!'
)

// BroadcastAddr addresses every device on the bus; devices do not reply.
const BroadcastAddr = 255

const (
	// MaxPayload bounds the ASCII payload of a single frame.
	MaxPayload = 100

	headerLen = 7 // control(1) + address(2 hex) + sequence(4 hex)
	crcLen    = 4 // CRC-16 as 4 hex digits

	// MaxFrameLen is the longest possible wire frame including the CR.
	MaxFrameLen = headerLen + MaxPayload + crcLen + 1
)

// Frame is a single MeCom frame used across the gateway. Only the first
// Len bytes of Data are valid. The CRC and CR terminator are wire-level
// artifacts handled by the codec.
type Frame struct {
	Control byte
	Addr    uint8
	Seq     uint16
	Len     uint8
	Data    [MaxPayload]byte
}

// Payload returns the valid portion of the frame data.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }

// IsReply reports whether the frame came from a device.
func (f Frame) IsReply() bool { return f.Control == ControlDevice }

func (f Frame) CopyShallow() Frame { // handy for tests
	var g Frame
	g.Control, g.Addr, g.Seq, g.Len = f.Control, f.Addr, f.Seq, f.Len
	copy(g.Data[:], f.Data[:])
	return g
}
