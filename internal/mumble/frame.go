package mumble

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderSize is the length of a control frame header: type:u16 + length:u32,
// both big-endian.
const HeaderSize = 6

// MaxControlFrame bounds the payload of a single control frame. Matches the
// largest message a client may legitimately send (image text messages).
const MaxControlFrame = 8 * 1024 * 1024

// ErrFrameTooLarge is returned for control frames whose declared length
// exceeds MaxControlFrame.
var ErrFrameTooLarge = errors.New("mumble: control frame too large")

// WriteFrame writes one control frame (header + payload) to w.
func WriteFrame(w io.Writer, msgType uint16, payload []byte) error {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], msgType)
	binary.BigEndian.PutUint32(hdr[2:6], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one control frame from r. The returned payload is freshly
// allocated and owned by the caller.
func ReadFrame(r io.Reader) (msgType uint16, payload []byte, err error) {
	var hdr [HeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	msgType = binary.BigEndian.Uint16(hdr[0:2])
	n := binary.BigEndian.Uint32(hdr[2:6])
	if n > MaxControlFrame {
		return 0, nil, ErrFrameTooLarge
	}
	payload = make([]byte, n)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return msgType, payload, nil
}
