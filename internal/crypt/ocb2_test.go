package crypt

import (
	"bytes"
	"testing"
)

// pair builds two states wired at each other: what a encrypts, b decrypts.
func pair(t *testing.T) (a, b *State) {
	t.Helper()
	a, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err = NewState(a.Key[:], a.DecryptIV[:], a.EncryptIV[:])
	if err != nil {
		t.Fatalf("peer state: %v", err)
	}
	return a, b
}

func seal(t *testing.T, s *State, plain []byte) []byte {
	t.Helper()
	out := make([]byte, len(plain)+Overhead)
	if err := s.Encrypt(out, plain); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return out
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	a, b := pair(t)
	for _, n := range []int{1, 15, 16, 17, 31, 32, 33, 500} {
		plain := make([]byte, n)
		for i := range plain {
			plain[i] = byte(i * 7)
		}
		frame := seal(t, a, plain)
		got := make([]byte, n)
		if res := b.Decrypt(got, frame); res != Ok {
			t.Fatalf("len %d: decrypt result %d", n, res)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
	if b.Good != 8 {
		t.Fatalf("good counter = %d", b.Good)
	}
}

func TestNonceAdvancesPerPacket(t *testing.T) {
	t.Parallel()

	a, _ := pair(t)
	before := a.EncryptIV
	seal(t, a, []byte("x"))
	if a.EncryptIV == before {
		t.Fatal("encrypt nonce did not advance")
	}
	f1 := seal(t, a, []byte("same plaintext"))
	f2 := seal(t, a, []byte("same plaintext"))
	if bytes.Equal(f1, f2) {
		t.Fatal("identical frames for consecutive packets")
	}
	if f2[0] != f1[0]+1 {
		t.Fatalf("nonce low byte not incremented: %x then %x", f1[0], f2[0])
	}
}

func TestDecryptHeaderCarriesNonceLowByte(t *testing.T) {
	t.Parallel()

	a, _ := pair(t)
	frame := seal(t, a, []byte("hello"))
	if frame[0] != a.EncryptIV[0] {
		t.Fatalf("frame[0]=%x, encrypt nonce low byte=%x", frame[0], a.EncryptIV[0])
	}
}

func TestTagMismatchRejectedAndNonceRestored(t *testing.T) {
	t.Parallel()

	a, b := pair(t)
	frame := seal(t, a, []byte("voice"))
	frame[len(frame)-1] ^= 0xFF

	before := b.DecryptIV
	got := make([]byte, 5)
	if res := b.Decrypt(got, frame); res != Invalid {
		t.Fatalf("result %d, want Invalid", res)
	}
	if b.DecryptIV != before {
		t.Fatal("decrypt nonce advanced on invalid packet")
	}

	// A clean retransmit of the true frame must still succeed.
	frame[len(frame)-1] ^= 0xFF
	if res := b.Decrypt(got, frame); res != Ok {
		t.Fatalf("result %d after restore, want Ok", res)
	}
}

func TestLateAndReplayWindow(t *testing.T) {
	t.Parallel()

	a, b := pair(t)
	first := seal(t, a, []byte("first"))
	second := seal(t, a, []byte("second"))

	buf := make([]byte, 16)
	if res := b.Decrypt(buf[:6], second); res != Ok {
		t.Fatalf("in-window skip: result %d", res)
	}
	if b.Lost != 1 {
		t.Fatalf("lost counter = %d, want 1", b.Lost)
	}
	if res := b.Decrypt(buf[:5], first); res != Late {
		t.Fatalf("late packet: result %d", res)
	}
	if b.Late != 1 {
		t.Fatalf("late counter = %d", b.Late)
	}
	// Same packet again within the window is a replay.
	if res := b.Decrypt(buf[:5], first); res != Replay {
		t.Fatalf("replayed packet: result %d", res)
	}
}

func TestDecryptRejectsShortFrames(t *testing.T) {
	t.Parallel()

	a, _ := pair(t)
	if res := a.Decrypt(make([]byte, 4), []byte{1, 2, 3}); res != Invalid {
		t.Fatalf("short frame result %d", res)
	}
}

func TestResyncInstallsFreshNonce(t *testing.T) {
	t.Parallel()

	a, b := pair(t)
	// Desynchronize the receiver, then install the sender's current nonce
	// the way a CryptSetup resync does.
	for i := 0; i < 200; i++ {
		seal(t, a, []byte("lost to the void"))
	}
	if err := b.SetDecryptIV(a.EncryptIV[:]); err != nil {
		t.Fatalf("set decrypt iv: %v", err)
	}
	frame := seal(t, a, []byte("after resync"))
	got := make([]byte, len(frame)-Overhead)
	if res := b.Decrypt(got, frame); res != Ok {
		t.Fatalf("post-resync decrypt: result %d", res)
	}
	if string(got) != "after resync" {
		t.Fatalf("post-resync plaintext %q", got)
	}
}
