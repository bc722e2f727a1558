package mecom

// CRC16 computes the CRC-16/CCITT checksum (polynomial 0x1021, initial
// value 0) over data. The checksum covers every frame character before the
// CRC field itself.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
