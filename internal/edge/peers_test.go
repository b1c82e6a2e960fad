package edge

import (
	"bytes"
	"crypto/aes"
	"testing"
)

func TestPeerPacketRoundTrip(t *testing.T) {
	t.Parallel()

	in := peerPacket{
		Sender: 42,
		Target: peerBroadcast,
		Seq:    7,
		Codec:  4,
		Inner:  []byte{0x80, 0x07, 0xaa, 0xbb},
	}
	out, err := decodePeerPacket(encodePeerPacket(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Sender != in.Sender || out.Target != in.Target || out.Seq != in.Seq || out.Codec != in.Codec {
		t.Fatalf("header mismatch: %+v != %+v", out, in)
	}
	if !bytes.Equal(out.Inner, in.Inner) {
		t.Fatalf("inner mismatch: %x != %x", out.Inner, in.Inner)
	}
}

func TestPeerPacketErrors(t *testing.T) {
	t.Parallel()

	if _, err := decodePeerPacket(make([]byte, peerHeaderLen-1)); err != errPeerShort {
		t.Fatalf("short datagram: got %v", err)
	}
	bad := make([]byte, peerHeaderLen)
	bad[0] = 99
	if _, err := decodePeerPacket(bad); err != errPeerVersion {
		t.Fatalf("bad version: got %v", err)
	}
}

func TestPeerSealPassthrough(t *testing.T) {
	t.Parallel()

	pm := &peerManager{}
	in := []byte("plaintext fleet")
	if got := pm.seal(in); !bytes.Equal(got, in) {
		t.Fatalf("seal changed data without a key")
	}
	got, err := pm.unseal(in)
	if err != nil || !bytes.Equal(got, in) {
		t.Fatalf("unseal without a key: %x, %v", got, err)
	}
}

func TestPeerSealRoundTrip(t *testing.T) {
	t.Parallel()

	block, err := aes.NewCipher(bytes.Repeat([]byte{0x42}, 16))
	if err != nil {
		t.Fatal(err)
	}
	pm := &peerManager{block: block}

	for _, size := range []int{1, 15, 16, 17, 100} {
		in := bytes.Repeat([]byte{0xab}, size)
		sealed := pm.seal(in)
		if bytes.Contains(sealed, in) && size >= aes.BlockSize {
			t.Fatalf("size %d: sealed output contains plaintext", size)
		}
		out, err := pm.unseal(sealed)
		if err != nil {
			t.Fatalf("size %d: unseal: %v", size, err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
	}
}

func TestPeerUnsealRejectsMalformed(t *testing.T) {
	t.Parallel()

	block, err := aes.NewCipher(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	pm := &peerManager{block: block}

	// Shorter than IV plus one block.
	if _, err := pm.unseal(make([]byte, aes.BlockSize)); err == nil {
		t.Fatal("accepted datagram with no ciphertext")
	}
	// Not block aligned.
	if _, err := pm.unseal(make([]byte, 2*aes.BlockSize+1)); err == nil {
		t.Fatal("accepted unaligned ciphertext")
	}
}
