package mumble

import "errors"

// Voice datagram codec identifiers (top 3 bits of the header byte).
const (
	CodecCELTAlpha = 0
	CodecPing      = 1
	CodecSpeex     = 2
	CodecCELTBeta  = 3
	CodecOpus      = 4
)

// Voice target values (low 5 bits of the header byte).
const (
	TargetNormal         = 0
	TargetServerLoopback = 31
)

var ErrVoiceTruncated = errors.New("mumble: truncated voice packet")

// VoicePacket is a parsed client voice datagram. Payload is opaque to the
// router; for CodecPing it is the varint-encoded timestamp.
type VoicePacket struct {
	Codec   byte
	Target  byte
	Session uint32 // only present in server→client and edge-forwarded packets
	Seq     int64
	Payload []byte
}

// ParseVoice decodes the header byte and sequence varint of a client-sent
// voice datagram. The session field is left zero: clients never send it.
func ParseVoice(buf []byte) (VoicePacket, error) {
	if len(buf) < 2 {
		return VoicePacket{}, ErrVoiceTruncated
	}
	p := VoicePacket{
		Codec:  buf[0] >> 5,
		Target: buf[0] & 0x1F,
	}
	rest := buf[1:]

	if p.Codec == CodecPing {
		ts, n, err := Varint(rest)
		if err != nil {
			return VoicePacket{}, err
		}
		p.Seq = ts
		p.Payload = rest[n:]
		return p, nil
	}

	seq, n, err := Varint(rest)
	if err != nil {
		return VoicePacket{}, err
	}
	p.Seq = seq
	p.Payload = rest[n:]
	return p, nil
}

// EncodeVoice builds a server→client voice packet: header byte, session
// varint, sequence varint, payload. The target byte on outgoing packets
// carries the context the recipient should attribute the audio to.
func EncodeVoice(codec, target byte, session uint32, seq int64, payload []byte) []byte {
	out := make([]byte, 0, 1+10+10+len(payload))
	out = append(out, codec<<5|target&0x1F)
	out = PutVarint(out, int64(session))
	out = PutVarint(out, seq)
	return append(out, payload...)
}

// EncodePing builds a voice-channel ping datagram carrying ts.
func EncodePing(ts int64) []byte {
	out := make([]byte, 0, 11)
	out = append(out, CodecPing<<5)
	return PutVarint(out, ts)
}
