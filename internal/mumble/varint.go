// Package mumble implements the Mumble wire-format primitives shared by the
// control and voice channels: the variable-length integer encoding, the
// 6-byte control frame header, and the voice datagram header.
package mumble

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrVarintTruncated is returned when a buffer ends inside a varint.
	ErrVarintTruncated = errors.New("mumble: truncated varint")
	// ErrVarintOverflow is returned for encodings that would exceed 64 bits.
	ErrVarintOverflow = errors.New("mumble: varint overflow")
)

// PutVarint appends the Mumble varint encoding of v to dst and returns the
// extended slice. The shortest valid form is always chosen.
func PutVarint(dst []byte, v int64) []byte {
	// Small negative numbers have a dedicated 2-bit form; larger negatives
	// are encoded as the inversion of their complement behind a 0xF8 prefix.
	if v < 0 {
		if v >= -4 {
			return append(dst, 0xFC|byte(^v&0x03))
		}
		dst = append(dst, 0xF8)
		return PutVarint(dst, ^v)
	}

	u := uint64(v)
	switch {
	case u < 0x80:
		return append(dst, byte(u))
	case u < 0x4000:
		return append(dst, 0x80|byte(u>>8), byte(u))
	case u < 0x200000:
		return append(dst, 0xC0|byte(u>>16), byte(u>>8), byte(u))
	case u < 0x10000000:
		return append(dst, 0xE0|byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u < 0x100000000:
		dst = append(dst, 0xF0)
		return binary.BigEndian.AppendUint32(dst, uint32(u))
	default:
		dst = append(dst, 0xF4)
		return binary.BigEndian.AppendUint64(dst, u)
	}
}

// Varint decodes a Mumble varint from the front of buf. It returns the value
// and the number of bytes consumed.
func Varint(buf []byte) (int64, int, error) {
	if len(buf) == 0 {
		return 0, 0, ErrVarintTruncated
	}

	b := buf[0]
	switch {
	case b&0x80 == 0x00:
		return int64(b & 0x7F), 1, nil
	case b&0xC0 == 0x80:
		if len(buf) < 2 {
			return 0, 0, ErrVarintTruncated
		}
		return int64(b&0x3F)<<8 | int64(buf[1]), 2, nil
	case b&0xE0 == 0xC0:
		if len(buf) < 3 {
			return 0, 0, ErrVarintTruncated
		}
		return int64(b&0x1F)<<16 | int64(buf[1])<<8 | int64(buf[2]), 3, nil
	case b&0xF0 == 0xE0:
		if len(buf) < 4 {
			return 0, 0, ErrVarintTruncated
		}
		return int64(b&0x0F)<<24 | int64(buf[1])<<16 | int64(buf[2])<<8 | int64(buf[3]), 4, nil
	case b&0xFC == 0xF0:
		if len(buf) < 5 {
			return 0, 0, ErrVarintTruncated
		}
		return int64(binary.BigEndian.Uint32(buf[1:5])), 5, nil
	case b&0xFC == 0xF4:
		if len(buf) < 9 {
			return 0, 0, ErrVarintTruncated
		}
		u := binary.BigEndian.Uint64(buf[1:9])
		return int64(u), 9, nil
	case b&0xFC == 0xF8:
		v, n, err := Varint(buf[1:])
		if err != nil {
			return 0, 0, err
		}
		return ^v, n + 1, nil
	case b&0xFC == 0xFC:
		return ^int64(b & 0x03), 1, nil
	}
	return 0, 0, ErrVarintOverflow
}
