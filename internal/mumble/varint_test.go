package mumble

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	t.Parallel()

	values := []int64{
		0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x1FFFFF, 0x200000,
		0xFFFFFFF, 0x10000000, 0xFFFFFFFF, 0x100000000,
		1<<62 - 1, -1, -2, -4, -5, -1000, -1 << 40,
	}
	for _, v := range values {
		buf := PutVarint(nil, v)
		got, n, err := Varint(buf)
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d: got %d", v, got)
		}
		if n != len(buf) {
			t.Fatalf("decode %d consumed %d of %d bytes", v, n, len(buf))
		}
	}
}

func TestVarintShortestForm(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v    int64
		size int
	}{
		{0x7F, 1}, {0x80, 2}, {0x3FFF, 2}, {0x4000, 3},
		{0x1FFFFF, 3}, {0x200000, 4}, {0xFFFFFFF, 4},
		{0x10000000, 5}, {0xFFFFFFFF, 5}, {0x100000000, 9},
		{-1, 1}, {-4, 1}, {-5, 2},
	}
	for _, c := range cases {
		if got := len(PutVarint(nil, c.v)); got != c.size {
			t.Fatalf("encode %d: %d bytes, want %d", c.v, got, c.size)
		}
	}
}

func TestVarintTruncated(t *testing.T) {
	t.Parallel()

	for _, buf := range [][]byte{nil, {0x80}, {0xC0, 0x01}, {0xE0, 0, 0}, {0xF0, 0, 0, 0}, {0xF4, 1, 2, 3}, {0xF8}} {
		if _, _, err := Varint(buf); err == nil {
			t.Fatalf("expected error for %x", buf)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	payload := []byte("channel state")
	if err := WriteFrame(&b, 7, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	typ, got, err := ReadFrame(&b)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if typ != 7 || !bytes.Equal(got, payload) {
		t.Fatalf("got type=%d payload=%q", typ, got)
	}
}

func TestFrameRejectsOversize(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	b.Write([]byte{0, 1, 0xFF, 0xFF, 0xFF, 0xFF})
	if _, _, err := ReadFrame(&b); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestParseVoice(t *testing.T) {
	t.Parallel()

	payload := []byte{0xDE, 0xAD}
	buf := append([]byte{CodecOpus<<5 | 5}, PutVarint(nil, 42)...)
	buf = append(buf, payload...)

	p, err := ParseVoice(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Codec != CodecOpus || p.Target != 5 || p.Seq != 42 {
		t.Fatalf("unexpected header: %+v", p)
	}
	if !bytes.Equal(p.Payload, payload) {
		t.Fatalf("payload %x", p.Payload)
	}
}

func TestParseVoicePing(t *testing.T) {
	t.Parallel()

	p, err := ParseVoice(EncodePing(123456))
	if err != nil {
		t.Fatalf("parse ping: %v", err)
	}
	if p.Codec != CodecPing || p.Seq != 123456 {
		t.Fatalf("unexpected ping: %+v", p)
	}
}

func TestEncodeVoiceCarriesSession(t *testing.T) {
	t.Parallel()

	out := EncodeVoice(CodecOpus, TargetNormal, 9, 3, []byte{1})
	if out[0] != CodecOpus<<5 {
		t.Fatalf("header byte %x", out[0])
	}
	session, n, err := Varint(out[1:])
	if err != nil || session != 9 {
		t.Fatalf("session varint: %d %v", session, err)
	}
	seq, _, err := Varint(out[1+n:])
	if err != nil || seq != 3 {
		t.Fatalf("seq varint: %d %v", seq, err)
	}
}
