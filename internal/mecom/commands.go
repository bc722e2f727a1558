package mecom

// Parameter command payload builders. The gateway itself treats payloads as
// opaque; these helpers exist for clients and tests building well-formed
// traffic.

func appendHex32(dst []byte, v uint32) []byte {
	return appendHex16(appendHex16(dst, uint16(v>>16)), uint16(v))
}

// QueryFrame builds a "?VR" parameter query for paramID/instance.
func QueryFrame(addr uint8, seq uint16, paramID uint16, instance uint8) Frame {
	f := Frame{Control: ControlHost, Addr: addr, Seq: seq}
	p := append(f.Data[:0], '?', 'V', 'R')
	p = appendHex16(p, paramID)
	p = appendHex8(p, instance)
	f.Len = uint8(len(p))
	return f
}

// SetFrame builds a "VS" parameter set for paramID/instance carrying a raw
// 32-bit value.
func SetFrame(addr uint8, seq uint16, paramID uint16, instance uint8, value uint32) Frame {
	f := Frame{Control: ControlHost, Addr: addr, Seq: seq}
	p := append(f.Data[:0], 'V', 'S')
	p = appendHex16(p, paramID)
	p = appendHex8(p, instance)
	p = appendHex32(p, value)
	f.Len = uint8(len(p))
	return f
}

// IsACK reports whether f is a device acknowledge (reply with an empty
// payload).
func (f Frame) IsACK() bool { return f.IsReply() && f.Len == 0 }

// DeviceError extracts a device error code from a "+NN" reply payload.
func (f Frame) DeviceError() (code int, ok bool) {
	if !f.IsReply() || f.Len != 3 || f.Data[0] != '+' {
		return 0, false
	}
	v, valid := parseHex(f.Data[1:3])
	if !valid {
		return 0, false
	}
	return int(v), true
}
