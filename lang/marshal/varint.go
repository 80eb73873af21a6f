package marshal

import "encoding/binary"

// lbInteger is LB_INTEGER: both the 5-byte varint form's lead byte and one of
// the general value lead bytes (§4.4 of the on-disk layout this package
// implements).
const lbInteger = 205

// writeVarint appends the varint encoding of x (§4.1) to buf: one byte for
// [0,128), two bytes for [-8192,8191], five bytes (lbInteger + 4 big-endian
// bytes) otherwise.
func writeVarint(buf []byte, x int32) []byte {
	switch {
	case x >= 0 && x < 128:
		return append(buf, byte(x))
	case x >= -8192 && x <= 8191:
		hi := byte(0x80 | ((x >> 8) & 0x3f))
		lo := byte(x & 0xff)
		return append(buf, hi, lo)
	default:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(x))
		buf = append(buf, lbInteger)
		return append(buf, b[:]...)
	}
}

// readVarint decodes a varint starting at data[off], returning the value and
// the offset of the first unread byte.
func readVarint(data []byte, off int) (int32, int, error) {
	if off >= len(data) {
		return 0, off, errUnexpectedEnd(off)
	}
	b0 := data[off]
	switch {
	case b0 < 0x80:
		return int32(b0), off + 1, nil
	case b0 < 0xc0:
		if off+1 >= len(data) {
			return 0, off, errUnexpectedEnd(off)
		}
		v := int32(b0&0x3f)<<8 | int32(data[off+1])
		// sign-extend the 14-bit two's-complement value
		v = (v << 18) >> 18
		return v, off + 2, nil
	case b0 == lbInteger:
		if off+5 > len(data) {
			return 0, off, errUnexpectedEnd(off)
		}
		v := int32(binary.BigEndian.Uint32(data[off+1 : off+5]))
		return v, off + 5, nil
	default:
		return 0, off, errExpectedInteger(off, b0)
	}
}
