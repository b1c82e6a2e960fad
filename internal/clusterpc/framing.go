// Package clusterpc is the hub/edge control link: length-prefixed MessagePack
// frames carrying requests, responses, notifications and keepalive pings over
// a single long-lived TLS connection.
package clusterpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrame bounds a single control frame. Full-sync payloads for large
// deployments stay well under this.
const MaxFrame = 16 << 20

var ErrFrameTooLarge = errors.New("clusterpc: frame too large")

// Kind discriminates the envelope variants.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindResponse
	KindNotification
	KindPing
	KindPong
)

// Envelope is the unit framed onto the wire.
type Envelope struct {
	Kind   Kind               `msgpack:"k"`
	ID     uint64             `msgpack:"i,omitempty"`
	Method string             `msgpack:"m,omitempty"`
	Body   msgpack.RawMessage `msgpack:"b,omitempty"`
	Error  string             `msgpack:"e,omitempty"`
}

// writeEnvelope frames env onto w: 4-byte big-endian length then the
// MessagePack body. The caller serializes writers.
func writeEnvelope(w io.Writer, env *Envelope) error {
	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("clusterpc: marshal envelope: %w", err)
	}
	if len(body) > MaxFrame {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readEnvelope reads one frame from r.
func readEnvelope(r io.Reader) (*Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrame {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	env := &Envelope{}
	if err := msgpack.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("clusterpc: unmarshal envelope: %w", err)
	}
	return env, nil
}
