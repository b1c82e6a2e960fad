package edge

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"bramble/internal/clusterpc"
)

// Edge-to-edge voice datagram: version, sender session, target, sequence,
// codec, then the inner Mumble voice packet. When a cluster voice key is
// configured the whole datagram is wrapped in IV || AES-CBC ciphertext.
const (
	peerProtoVersion byte = 1
	peerHeaderLen         = 14

	// peerBroadcast asks the receiving edge to re-run normal-speech routing
	// for the sender among its own clients.
	peerBroadcast uint32 = 0xFFFFFFFF
	// peerSessionBit marks the target as a single session instead of a
	// channel.
	peerSessionBit uint32 = 0x80000000

	// peerFailWindow is how long sends to a peer may fail before the edge
	// asks the hub whether the peer is coming back.
	peerFailWindow = 3 * time.Second
)

var (
	errPeerShort   = errors.New("edge: short peer datagram")
	errPeerVersion = errors.New("edge: unknown peer datagram version")
)

type peerPacket struct {
	Sender uint32
	Target uint32
	Seq    uint32
	Codec  byte
	Inner  []byte
}

func encodePeerPacket(pp peerPacket) []byte {
	out := make([]byte, peerHeaderLen+len(pp.Inner))
	out[0] = peerProtoVersion
	binary.BigEndian.PutUint32(out[1:5], pp.Sender)
	binary.BigEndian.PutUint32(out[5:9], pp.Target)
	binary.BigEndian.PutUint32(out[9:13], pp.Seq)
	out[13] = pp.Codec
	copy(out[peerHeaderLen:], pp.Inner)
	return out
}

func decodePeerPacket(buf []byte) (peerPacket, error) {
	if len(buf) < peerHeaderLen {
		return peerPacket{}, errPeerShort
	}
	if buf[0] != peerProtoVersion {
		return peerPacket{}, errPeerVersion
	}
	return peerPacket{
		Sender: binary.BigEndian.Uint32(buf[1:5]),
		Target: binary.BigEndian.Uint32(buf[5:9]),
		Seq:    binary.BigEndian.Uint32(buf[9:13]),
		Codec:  buf[13],
		Inner:  buf[peerHeaderLen:],
	}, nil
}

// peerManager owns the edge-to-edge voice socket and the peer endpoint
// registry.
type peerManager struct {
	edge  *Edge
	block cipher.Block // nil: plaintext fleet
	peers *xsync.Map[string, *net.UDPAddr]
	conn  *net.UDPConn

	failMu    sync.Mutex
	failing   map[string]time.Time
	reporting map[string]bool
}

func newPeerManager(e *Edge) (*peerManager, error) {
	pm := &peerManager{
		edge:      e,
		peers:     xsync.NewMap[string, *net.UDPAddr](),
		failing:   make(map[string]time.Time),
		reporting: make(map[string]bool),
	}
	if k := e.cfg.Cluster.VoiceKey; k != "" {
		key, err := hex.DecodeString(k)
		if err != nil || len(key) != aes.BlockSize {
			return nil, fmt.Errorf("edge: cluster voice_key is not 32 hex chars")
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		pm.block = block
	}
	return pm, nil
}

func (pm *peerManager) add(p clusterpc.PeerInfo) {
	addr, err := net.ResolveUDPAddr("udp", p.VoiceAddr)
	if err != nil {
		pm.edge.log.Warn("bad peer voice addr", "peer", p.EdgeID, "addr", p.VoiceAddr, "error", err)
		return
	}
	pm.peers.Store(p.EdgeID, addr)
	pm.edge.log.Info("peer voice endpoint added", "peer", p.EdgeID, "addr", p.VoiceAddr)
}

func (pm *peerManager) remove(edgeID string) {
	pm.peers.Delete(edgeID)
	pm.edge.log.Info("peer voice endpoint removed", "peer", edgeID)
}

func (pm *peerManager) clear() {
	pm.peers.Range(func(id string, _ *net.UDPAddr) bool {
		pm.peers.Delete(id)
		return true
	})
}

// run binds the voice port (client port + 1) and pumps inbound datagrams.
func (pm *peerManager) run(ctx context.Context) error {
	port, err := pm.edge.cfg.VoicePort()
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(pm.edge.cfg.Listen)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return fmt.Errorf("edge: listen peer voice: %w", err)
	}
	pm.conn = conn
	pm.edge.log.Info("peer voice listening", "addr", conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("edge: peer voice read: %w", err)
		}
		payload, err := pm.unseal(buf[:n])
		if err != nil {
			continue
		}
		pp, err := decodePeerPacket(payload)
		if err != nil {
			continue
		}
		pm.edge.deliverPeerVoice(pp)
	}
}

// send ships one voice datagram to a peer edge.
func (pm *peerManager) send(edgeID string, sender, target, seq uint32, codec byte, inner []byte) {
	addr, ok := pm.peers.Load(edgeID)
	if !ok || pm.conn == nil {
		return
	}
	out := pm.seal(encodePeerPacket(peerPacket{
		Sender: sender,
		Target: target,
		Seq:    seq,
		Codec:  codec,
		Inner:  inner,
	}))
	if _, err := pm.conn.WriteToUDP(out, addr); err != nil {
		pm.noteFailure(edgeID)
		return
	}
	pm.noteSuccess(edgeID)
	pm.edge.met.voiceTx.WithLabelValues("peer").Inc()
}

func (pm *peerManager) noteFailure(edgeID string) {
	pm.failMu.Lock()
	first, ok := pm.failing[edgeID]
	if !ok {
		pm.failing[edgeID] = time.Now()
		pm.failMu.Unlock()
		return
	}
	if time.Since(first) < peerFailWindow || pm.reporting[edgeID] {
		pm.failMu.Unlock()
		return
	}
	pm.reporting[edgeID] = true
	pm.failMu.Unlock()
	go pm.arbitrate(edgeID)
}

func (pm *peerManager) noteSuccess(edgeID string) {
	pm.failMu.Lock()
	delete(pm.failing, edgeID)
	delete(pm.reporting, edgeID)
	pm.failMu.Unlock()
}

// arbitrate asks the hub whether an unreachable peer is expected back; if
// not, its endpoint is dropped until the hub announces a fresh join.
func (pm *peerManager) arbitrate(edgeID string) {
	e := pm.edge
	ctx, cancel := context.WithTimeout(context.Background(), clusterpc.CallTimeout)
	defer cancel()

	var result clusterpc.ReportPeerDisconnectResult
	err := e.hub.call(ctx, clusterpc.MethodReportPeerDisconnect, clusterpc.ReportPeerDisconnectParams{
		EdgeID:   e.cfg.EdgeID,
		PeerID:   edgeID,
		Sessions: len(e.localClients()),
	}, &result)

	pm.failMu.Lock()
	delete(pm.failing, edgeID)
	delete(pm.reporting, edgeID)
	pm.failMu.Unlock()

	if err != nil {
		e.log.Warn("peer disconnect report failed", "peer", edgeID, "error", err)
		return
	}
	if result.Action == clusterpc.PeerActionDisconnect {
		pm.remove(edgeID)
	}
}

// seal wraps a datagram in IV || AES-CBC(PKCS#7) when the fleet has a voice
// key; otherwise it passes through unchanged.
func (pm *peerManager) seal(plain []byte) []byte {
	if pm.block == nil {
		return plain
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	rand.Read(iv)
	cipher.NewCBCEncrypter(pm.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out
}

func (pm *peerManager) unseal(buf []byte) ([]byte, error) {
	if pm.block == nil {
		return buf, nil
	}
	if len(buf) < 2*aes.BlockSize || len(buf)%aes.BlockSize != 0 {
		return nil, errPeerShort
	}
	iv := buf[:aes.BlockSize]
	body := make([]byte, len(buf)-aes.BlockSize)
	cipher.NewCBCDecrypter(pm.block, iv).CryptBlocks(body, buf[aes.BlockSize:])

	pad := int(body[len(body)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(body) {
		return nil, errPeerShort
	}
	for _, b := range body[len(body)-pad:] {
		if int(b) != pad {
			return nil, errPeerShort
		}
	}
	return body[:len(body)-pad], nil
}
