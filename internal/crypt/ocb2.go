// Package crypt implements the OCB2-AES128 authenticated cipher used for
// Mumble voice datagrams. Each direction keeps a 128-bit nonce that advances
// by one per packet; the transport header carries the low nonce byte plus a
// 3-byte tag prefix, and the receiver reconstructs the full nonce within a
// ±30 packet window.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// BlockSize is the AES block size; keys and nonces are one block each.
const BlockSize = aes.BlockSize

// Overhead is the per-packet framing cost: nonce low byte + 3 tag bytes.
const Overhead = 4

// Result classifies the outcome of a Decrypt call.
type Result int

const (
	// Ok: packet authenticated on the expected or a recoverable nonce.
	Ok Result = iota
	// Late: packet authenticated but arrived behind the current nonce.
	Late
	// Replay: a packet with this nonce was already accepted.
	Replay
	// Invalid: tag mismatch or malformed framing.
	Invalid
)

var (
	ErrShortBuffer = errors.New("crypt: buffer too short")
	ErrKeySize     = errors.New("crypt: key and nonces must be 16 bytes")
)

// State holds one session's paired cipher directions. Callers must serialize
// access per state: every Encrypt and Decrypt mutates a nonce.
type State struct {
	block cipher.Block

	Key       [BlockSize]byte
	EncryptIV [BlockSize]byte
	DecryptIV [BlockSize]byte

	// One remembered second-nonce-byte per low-byte slot, for replay
	// detection inside the window.
	history [256]byte

	Good   uint32
	Late   uint32
	Lost   uint32
	Resync uint32
}

// NewState builds a State from an existing key and directional nonces.
func NewState(key, encryptIV, decryptIV []byte) (*State, error) {
	if len(key) != BlockSize || len(encryptIV) != BlockSize || len(decryptIV) != BlockSize {
		return nil, ErrKeySize
	}
	s := &State{}
	copy(s.Key[:], key)
	copy(s.EncryptIV[:], encryptIV)
	copy(s.DecryptIV[:], decryptIV)
	block, err := aes.NewCipher(s.Key[:])
	if err != nil {
		return nil, err
	}
	s.block = block
	return s, nil
}

// Generate creates a State with a fresh random key and nonces. The server
// side calls this once per client and ships the triple in CryptSetup.
func Generate() (*State, error) {
	var key, eiv, div [BlockSize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(eiv[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(div[:]); err != nil {
		return nil, err
	}
	return NewState(key[:], eiv[:], div[:])
}

// SetDecryptIV installs a new remote nonce after a resync exchange.
func (s *State) SetDecryptIV(iv []byte) error {
	if len(iv) != BlockSize {
		return ErrKeySize
	}
	copy(s.DecryptIV[:], iv)
	return nil
}

// Encrypt seals plain into a transport frame: nonce low byte, 3 tag bytes,
// ciphertext. dst must have room for len(plain)+Overhead; Encrypt appends to
// dst[:0] semantics are not used — the caller supplies the full buffer.
func (s *State) Encrypt(dst, plain []byte) error {
	if len(dst) < len(plain)+Overhead {
		return ErrShortBuffer
	}

	for i := range s.EncryptIV {
		s.EncryptIV[i]++
		if s.EncryptIV[i] != 0 {
			break
		}
	}

	var tag [BlockSize]byte
	s.ocbEncrypt(dst[Overhead:], plain, &s.EncryptIV, &tag)

	dst[0] = s.EncryptIV[0]
	dst[1] = tag[0]
	dst[2] = tag[1]
	dst[3] = tag[2]
	return nil
}

// Decrypt opens a transport frame into dst, which must have room for
// len(src)-Overhead bytes. The nonce is reconstructed from the low byte in
// src[0]; the in-order +1 case is the fast path, anything else is resolved
// within a 30-packet window.
func (s *State) Decrypt(dst, src []byte) Result {
	if len(src) < Overhead {
		return Invalid
	}
	if len(dst) < len(src)-Overhead {
		return Invalid
	}

	var saved [BlockSize]byte
	copy(saved[:], s.DecryptIV[:])

	ivbyte := src[0]
	restore := false
	late := false
	var lost int32

	if byte(s.DecryptIV[0]+1) == ivbyte {
		// In order.
		if ivbyte > s.DecryptIV[0] {
			s.DecryptIV[0] = ivbyte
		} else {
			s.DecryptIV[0] = ivbyte
			s.carryIncrement()
		}
	} else {
		diff := int32(ivbyte) - int32(s.DecryptIV[0])
		if diff > 128 {
			diff -= 256
		} else if diff < -128 {
			diff += 256
		}

		switch {
		case ivbyte < s.DecryptIV[0] && diff > -30 && diff < 0:
			// Late packet, no wraparound.
			late = true
			lost = -1
			s.DecryptIV[0] = ivbyte
			restore = true
		case ivbyte > s.DecryptIV[0] && diff > -30 && diff < 0:
			// Late packet from before a wraparound.
			late = true
			lost = -1
			s.DecryptIV[0] = ivbyte
			s.carryDecrement()
			restore = true
		case ivbyte > s.DecryptIV[0] && diff > 0:
			// Lost some packets, no wraparound.
			lost = diff - 1
			s.DecryptIV[0] = ivbyte
		case ivbyte < s.DecryptIV[0] && diff > 0:
			// Lost some packets and wrapped around.
			lost = diff - 1
			s.DecryptIV[0] = ivbyte
			s.carryIncrement()
		default:
			return Invalid
		}

		if s.history[s.DecryptIV[0]] == s.DecryptIV[1] {
			copy(s.DecryptIV[:], saved[:])
			return Replay
		}
	}

	var tag [BlockSize]byte
	s.ocbDecrypt(dst[:len(src)-Overhead], src[Overhead:], &s.DecryptIV, &tag)

	if subtle.ConstantTimeCompare(tag[:3], src[1:4]) != 1 {
		copy(s.DecryptIV[:], saved[:])
		return Invalid
	}
	s.history[s.DecryptIV[0]] = s.DecryptIV[1]

	s.Good++
	if late {
		s.Late++
	}
	if lost > 0 {
		s.Lost += uint32(lost)
	} else if lost < 0 && s.Lost > 0 {
		s.Lost--
	}

	if restore {
		copy(s.DecryptIV[:], saved[:])
	}
	if late {
		return Late
	}
	return Ok
}

// carryIncrement propagates a +1 carry into bytes 1..15 of the decrypt nonce.
func (s *State) carryIncrement() {
	for i := 1; i < BlockSize; i++ {
		s.DecryptIV[i]++
		if s.DecryptIV[i] != 0 {
			break
		}
	}
}

// carryDecrement borrows a -1 from bytes 1..15 of the decrypt nonce.
func (s *State) carryDecrement() {
	for i := 1; i < BlockSize; i++ {
		orig := s.DecryptIV[i]
		s.DecryptIV[i]--
		if orig != 0 {
			break
		}
	}
}

// times2 doubles a block in GF(2^128) with the 0x87 reduction polynomial.
func times2(b *[BlockSize]byte) {
	hi := binary.BigEndian.Uint64(b[0:8])
	lo := binary.BigEndian.Uint64(b[8:16])
	carry := hi >> 63
	hi = hi<<1 | lo>>63
	lo <<= 1
	lo ^= carry * 0x87
	binary.BigEndian.PutUint64(b[0:8], hi)
	binary.BigEndian.PutUint64(b[8:16], lo)
}

// times3 computes x ⊕ 2x.
func times3(b *[BlockSize]byte) {
	orig := *b
	times2(b)
	xorBlock(b, b, &orig)
}

func xorBlock(dst, a, b *[BlockSize]byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

func xorInto(dst []byte, a *[BlockSize]byte, b []byte) {
	for i := 0; i < BlockSize; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

func (s *State) ocbEncrypt(dst, plain []byte, nonce, tag *[BlockSize]byte) {
	var delta, checksum, tmp, pad [BlockSize]byte
	s.block.Encrypt(delta[:], nonce[:])

	off := 0
	for len(plain)-off > BlockSize {
		times2(&delta)
		xorInto(tmp[:], &delta, plain[off:])
		s.block.Encrypt(tmp[:], tmp[:])
		xorInto(dst[off:], &delta, tmp[:])
		for i := 0; i < BlockSize; i++ {
			checksum[i] ^= plain[off+i]
		}
		off += BlockSize
	}

	rem := len(plain) - off
	times2(&delta)
	tmp = [BlockSize]byte{}
	tmp[BlockSize-1] = byte(rem * 8)
	xorBlock(&tmp, &tmp, &delta)
	s.block.Encrypt(pad[:], tmp[:])
	copy(tmp[:], plain[off:])
	copy(tmp[rem:], pad[rem:])
	xorBlock(&checksum, &checksum, &tmp)
	xorBlock(&tmp, &tmp, &pad)
	copy(dst[off:], tmp[:rem])

	times3(&delta)
	xorBlock(&tmp, &delta, &checksum)
	s.block.Encrypt(tag[:], tmp[:])
}

func (s *State) ocbDecrypt(dst, encrypted []byte, nonce, tag *[BlockSize]byte) {
	var delta, checksum, tmp, pad [BlockSize]byte
	s.block.Encrypt(delta[:], nonce[:])

	off := 0
	for len(encrypted)-off > BlockSize {
		times2(&delta)
		xorInto(tmp[:], &delta, encrypted[off:])
		s.block.Decrypt(tmp[:], tmp[:])
		xorInto(dst[off:], &delta, tmp[:])
		for i := 0; i < BlockSize; i++ {
			checksum[i] ^= dst[off+i]
		}
		off += BlockSize
	}

	rem := len(encrypted) - off
	times2(&delta)
	tmp = [BlockSize]byte{}
	tmp[BlockSize-1] = byte(rem * 8)
	xorBlock(&tmp, &tmp, &delta)
	s.block.Encrypt(pad[:], tmp[:])
	tmp = [BlockSize]byte{}
	copy(tmp[:], encrypted[off:])
	xorBlock(&tmp, &tmp, &pad)
	xorBlock(&checksum, &checksum, &tmp)
	copy(dst[off:], tmp[:rem])

	times3(&delta)
	xorBlock(&tmp, &delta, &checksum)
	s.block.Encrypt(tag[:], tmp[:])
}
