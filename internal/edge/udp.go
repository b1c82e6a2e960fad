package edge

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"bramble/internal/crypt"
	"bramble/internal/mumble"
)

// browsePingLen is the unencrypted discovery ping clients use to measure
// latency and read server capacity before connecting.
const browsePingLen = 12

// serveUDP runs the client-facing voice socket on the same port as the TLS
// listener.
func (e *Edge) serveUDP(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", e.cfg.Listen)
	if err != nil {
		return fmt.Errorf("edge: resolve udp %s: %w", e.cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("edge: listen udp %s: %w", e.cfg.Listen, err)
	}
	e.udpMu.Lock()
	e.udpConn = conn
	e.udpMu.Unlock()
	e.log.Info("voice listening", "addr", conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	plain := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("edge: udp read: %w", err)
		}
		pkt := buf[:n]

		if n == browsePingLen && binary.BigEndian.Uint32(pkt[0:4]) == 0 {
			e.answerBrowsePing(conn, raddr, pkt)
			continue
		}
		if n < crypt.Overhead+1 {
			continue
		}

		c, plaintext := e.decryptFrom(raddr, pkt, plain)
		if c == nil {
			continue
		}
		c.udpPackets.Add(1)
		e.met.voiceRx.WithLabelValues("udp").Inc()

		if plaintext[0]>>5 == mumble.CodecPing {
			// Crypt-layer ping: echo it so the client validates the UDP
			// path in both directions.
			e.sendVoiceUDP(c, plaintext)
			continue
		}
		parsed, err := mumble.ParseVoice(plaintext)
		if err != nil {
			continue
		}
		e.routeVoice(c, parsed)
	}
}

// answerBrowsePing responds to the unencrypted discovery ping: version,
// echoed ident, user count, capacity, bandwidth.
func (e *Edge) answerBrowsePing(conn *net.UDPConn, raddr *net.UDPAddr, ping []byte) {
	cfg := e.serverConfig()
	var resp [24]byte
	binary.BigEndian.PutUint32(resp[0:4], protocolVersion)
	copy(resp[4:12], ping[4:12])
	binary.BigEndian.PutUint32(resp[12:16], uint32(e.dir.Len()))
	binary.BigEndian.PutUint32(resp[16:20], cfg.MaxUsers)
	binary.BigEndian.PutUint32(resp[20:24], cfg.MaxBandwidth)
	conn.WriteToUDP(resp[:], raddr)
}

// decryptFrom finds the client owning a datagram. Known source addresses hit
// their session directly; unknown ones are matched by trying each local
// client's cipher, which binds the address on success.
func (e *Edge) decryptFrom(raddr *net.UDPAddr, pkt, plain []byte) (*Client, []byte) {
	key := raddr.String()
	out := plain[:len(pkt)-crypt.Overhead]

	if session, ok := e.addrIndex.Load(key); ok {
		if c, ok := e.client(session); ok {
			if e.tryDecrypt(c, pkt, out) {
				return c, out
			}
			return nil, nil
		}
		e.addrIndex.Delete(key)
	}

	for _, c := range e.localClients() {
		if !c.isSynced() {
			continue
		}
		if e.tryDecrypt(c, pkt, out) {
			c.udpAddr.Store(raddr)
			e.addrIndex.Store(key, c.session)
			c.log.Debug("udp path established", "addr", key)
			return c, out
		}
	}
	return nil, nil
}

func (e *Edge) tryDecrypt(c *Client, pkt, out []byte) bool {
	c.cryptMu.Lock()
	defer c.cryptMu.Unlock()
	if c.crypt == nil {
		return false
	}
	switch c.crypt.Decrypt(out, pkt) {
	case crypt.Ok, crypt.Late:
		return true
	default:
		return false
	}
}

// sendVoiceUDP encrypts and sends one packet over the client's UDP path.
// Returns false when no path is established yet.
func (e *Edge) sendVoiceUDP(c *Client, packet []byte) bool {
	raddr := c.udpAddr.Load()
	if raddr == nil {
		return false
	}
	e.udpMu.Lock()
	conn := e.udpConn
	e.udpMu.Unlock()
	if conn == nil {
		return false
	}

	out := make([]byte, len(packet)+crypt.Overhead)
	c.cryptMu.Lock()
	if c.crypt == nil {
		c.cryptMu.Unlock()
		return false
	}
	err := c.crypt.Encrypt(out, packet)
	c.cryptMu.Unlock()
	if err != nil {
		return false
	}
	if _, err := conn.WriteToUDP(out, raddr); err != nil {
		return false
	}
	e.met.voiceTx.WithLabelValues("udp").Inc()
	return true
}

func (e *Edge) unbindUDP(c *Client) {
	if raddr := c.udpAddr.Load(); raddr != nil {
		e.addrIndex.Delete(raddr.String())
	}
}
