package edge

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	proto "github.com/golang/protobuf/proto"

	"bramble/internal/clusterpc"
	"bramble/internal/crypt"
	"bramble/internal/mumble"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
	"bramble/internal/tlsutil"
)

// Protocol version announced to clients: 1.4.287 packed as
// major<<16 | minor<<8 | patch.
const protocolVersion = 1<<16 | 4<<8 | 31

// CELT bitstream versions announced in CodecVersion. All current clients
// speak Opus; these keep ancient ones from aborting the handshake.
const (
	celtAlphaVersion = -2147483637
	celtBetaVersion  = -2147483632
)

// sendQueueLen bounds the per-client control write queue. A client that
// cannot drain it is disconnected.
const sendQueueLen = 256

// Connection states.
const (
	stateVersion int32 = iota
	stateAuthenticate
	stateSynced
	stateClosed
)

type frame struct {
	typ     uint16
	payload []byte
}

// Client is one local Mumble connection.
type Client struct {
	edge *Edge
	conn net.Conn
	log  *slog.Logger

	session  uint32
	name     string
	userID   int
	certHash string
	address  string
	opus     bool
	version  uint32

	state atomic.Int32

	sendCh    chan frame
	closeOnce sync.Once
	closed    chan struct{}
	closeWhy  string

	cryptMu sync.Mutex
	crypt   *crypt.State

	udpAddr atomic.Pointer[net.UDPAddr]

	// preConnect holds a UserState received before authentication; its
	// self-state subset is applied right after admission.
	preConnect *mumbleproto.UserState

	connected  time.Time
	lastActive atomic.Int64
	tcpPackets atomic.Uint32
	udpPackets atomic.Uint32
}

// serveClient owns one connection from accept to teardown.
func (e *Edge) serveClient(ctx context.Context, nc net.Conn) {
	c := &Client{
		edge:      e,
		conn:      nc,
		log:       e.log.With("remote", nc.RemoteAddr().String()),
		userID:    -1,
		sendCh:    make(chan frame, sendQueueLen),
		closed:    make(chan struct{}),
		connected: time.Now(),
		address:   nc.RemoteAddr().String(),
	}
	c.lastActive.Store(time.Now().UnixNano())
	defer c.teardown()

	go c.writeLoop()

	// TLS handshake happens on first read; force it now so the peer
	// certificate is available for authentication.
	tc, ok := nc.(*tls.Conn)
	if !ok {
		c.log.Error("non-TLS connection reached serveClient")
		return
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		c.log.Debug("tls handshake failed", "error", err)
		return
	}
	c.certHash = tlsutil.PeerCertHash(tc.ConnectionState())

	c.sendMessage(&mumbleproto.Version{
		Version: proto.Uint32(protocolVersion),
		Release: proto.String("bramble " + Version),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}
		nc.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
		typ, payload, err := mumble.ReadFrame(nc)
		if err != nil {
			if !errors.Is(err, io.EOF) && c.state.Load() != stateClosed {
				c.log.Debug("read failed", "error", err)
			}
			return
		}
		c.lastActive.Store(time.Now().UnixNano())
		c.tcpPackets.Add(1)
		e.met.control.Inc()
		if err := c.handle(ctx, typ, payload); err != nil {
			c.log.Warn("message rejected", "type", typ, "error", err)
			return
		}
	}
}

// teardown detaches the client from the edge and tells the cluster.
func (c *Client) teardown() {
	c.close("")
	e := c.edge
	e.removeClient(c)
	e.unbindUDP(c)

	if c.state.Load() == stateSynced || c.session != 0 {
		if sess, ok := e.dir.Get(c.session); ok {
			e.dir.Remove(c.session)
			e.cache.DropSession(c.session)
			e.reportSessionRemoved(sess)
			out, err := proto.Marshal(&mumbleproto.UserRemove{Session: proto.Uint32(c.session)})
			if err == nil {
				e.broadcastRaw(mumbleproto.MessageUserRemove, out)
			}
		}
	}
	c.log.Info("client disconnected", "session", c.session, "name", c.name, "reason", c.closeWhy)
}

func (c *Client) close(why string) {
	c.closeOnce.Do(func() {
		c.closeWhy = why
		c.state.Store(stateClosed)
		close(c.closed)
		c.conn.Close()
	})
}

// disconnect pushes a final Reject-free close; reason lands in the log only.
func (c *Client) disconnect(reason string) {
	c.close(reason)
}

// kick sends UserRemove before closing so the client knows why.
func (c *Client) kick(actor uint32, reason string, ban bool) {
	msg := &mumbleproto.UserRemove{
		Session: proto.Uint32(c.session),
		Actor:   proto.Uint32(actor),
		Reason:  proto.String(reason),
		Ban:     proto.Bool(ban),
	}
	c.sendMessage(msg)
	// Give the writer a moment to flush.
	time.AfterFunc(100*time.Millisecond, func() { c.close(reason) })
}

func (c *Client) isSynced() bool { return c.state.Load() == stateSynced }

func (c *Client) writeLoop() {
	for {
		select {
		case f := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := mumble.WriteFrame(c.conn, f.typ, f.payload); err != nil {
				c.close("write failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

// sendMessage marshals and queues one control message. A full queue means the
// client cannot keep up and is dropped.
func (c *Client) sendMessage(msg proto.Message) {
	typ, payload, err := mumbleproto.Marshal(msg)
	if err != nil {
		c.log.Error("marshal failed", "error", err)
		return
	}
	c.sendRaw(typ, payload)
}

func (c *Client) sendRaw(typ uint16, payload []byte) {
	select {
	case c.sendCh <- frame{typ, payload}:
	case <-c.closed:
	default:
		c.close("send queue overflow")
	}
}

// sendVoiceTunnel queues a voice packet on the TCP control channel. Voice is
// droppable: a full queue loses the packet, not the connection.
func (c *Client) sendVoiceTunnel(packet []byte) {
	select {
	case c.sendCh <- frame{mumbleproto.MessageUDPTunnel, packet}:
		c.edge.met.voiceTx.WithLabelValues("tunnel").Inc()
	default:
	}
}

// reject refuses the connection during the handshake.
func (c *Client) reject(typ mumbleproto.Reject_RejectType, reason string) {
	c.sendMessage(&mumbleproto.Reject{
		Type:   typ.Enum(),
		Reason: proto.String(reason),
	})
	c.edge.met.rejected.WithLabelValues(reason).Inc()
	time.AfterFunc(100*time.Millisecond, func() { c.close("rejected: " + reason) })
}

// authenticate runs the admission sequence once Version and Authenticate have
// both arrived.
func (c *Client) authenticate(ctx context.Context, msg *mumbleproto.Authenticate) error {
	e := c.edge

	result, err := e.hub.authenticateUser(ctx, clusterpc.AuthenticateUserParams{
		EdgeID:   e.cfg.EdgeID,
		Username: msg.GetUsername(),
		Password: msg.GetPassword(),
		CertHash: c.certHash,
		Tokens:   msg.GetTokens(),
		Address:  c.address,
	})
	if err != nil {
		c.log.Warn("authentication unavailable", "error", err)
		c.reject(mumbleproto.Reject_AuthenticatorFail, "authentication unavailable")
		return nil
	}
	if result.Decision != clusterpc.AuthAllow {
		c.rejectFor(result)
		return nil
	}

	session, err := e.hub.allocateSessionID(ctx)
	if err != nil {
		c.reject(mumbleproto.Reject_AuthenticatorFail, "cluster unavailable")
		return nil
	}
	c.session = session
	c.name = msg.GetUsername()
	c.userID = result.UserID
	c.opus = msg.GetOpus()
	c.log = c.log.With("session", session, "name", c.name)

	cs, err := crypt.Generate()
	if err != nil {
		return err
	}
	c.cryptMu.Lock()
	c.crypt = cs
	c.cryptMu.Unlock()

	sess := &state.Session{
		ID:                session,
		UserID:            result.UserID,
		Name:              c.name,
		EdgeID:            e.cfg.EdgeID,
		ChannelID:         state.RootChannelID,
		Address:           c.address,
		CertHash:          c.certHash,
		Tokens:            msg.GetTokens(),
		ListeningChannels: make(map[uint32]bool),
	}
	if pc := c.preConnect; pc != nil {
		sess.SelfMute = pc.GetSelfMute()
		sess.SelfDeaf = pc.GetSelfDeaf()
		if sess.SelfDeaf {
			sess.SelfMute = true
		}
		if comment := pc.GetComment(); comment != "" && len(comment) <= inlineBlobLimit {
			sess.Comment = comment
		}
		c.preConnect = nil
	}
	e.dir.Put(sess)
	e.addClient(c)
	if err := e.reportSession(sess); err != nil {
		c.log.Warn("session report failed", "error", err)
	}
	// Local clients hear the join here; remote edges learn it through the
	// hub's session fan-out. The joiner is not yet synced, so it is skipped
	// and gets its own state at the end of the user snapshot.
	e.broadcast(sessionToUserState(sess))

	c.sendMessage(&mumbleproto.CryptSetup{
		Key:         cs.Key[:],
		ClientNonce: cs.DecryptIV[:],
		ServerNonce: cs.EncryptIV[:],
	})
	c.sendMessage(&mumbleproto.CodecVersion{
		Alpha:       proto.Int32(celtAlphaVersion),
		Beta:        proto.Int32(celtBetaVersion),
		PreferAlpha: proto.Bool(true),
		Opus:        proto.Bool(true),
	})

	c.sendChannelSnapshot()
	c.sendUserSnapshot()

	cfg := e.serverConfig()
	c.state.Store(stateSynced)
	c.sendMessage(&mumbleproto.ServerSync{
		Session:      proto.Uint32(session),
		MaxBandwidth: proto.Uint32(cfg.MaxBandwidth),
		WelcomeText:  proto.String(cfg.WelcomeText),
		Permissions:  proto.Uint64(uint64(e.effectivePerms(sess, state.RootChannelID))),
	})
	c.sendMessage(&mumbleproto.ServerConfig{
		MaxBandwidth:       proto.Uint32(cfg.MaxBandwidth),
		AllowHtml:          proto.Bool(cfg.AllowHTML),
		MessageLength:      proto.Uint32(cfg.MessageLength),
		ImageMessageLength: proto.Uint32(cfg.ImageMessageLength),
		MaxUsers:           proto.Uint32(cfg.MaxUsers),
	})

	c.log.Info("client joined", "user", c.userID)
	return nil
}

func (c *Client) rejectFor(result clusterpc.AuthenticateUserResult) {
	switch result.Decision {
	case clusterpc.AuthWrongPass:
		c.reject(mumbleproto.Reject_WrongUserPW, result.Reason)
	case clusterpc.AuthBanned:
		c.reject(mumbleproto.Reject_None, result.Reason)
	case clusterpc.AuthNameInUse:
		c.reject(mumbleproto.Reject_UsernameInUse, result.Reason)
	case clusterpc.AuthServerFull:
		c.reject(mumbleproto.Reject_ServerFull, result.Reason)
	case clusterpc.AuthBadUsername:
		c.reject(mumbleproto.Reject_InvalidUsername, result.Reason)
	default:
		c.reject(mumbleproto.Reject_None, result.Reason)
	}
}

// sendChannelSnapshot announces the tree parents-first, then the links.
func (c *Client) sendChannelSnapshot() {
	channels := c.edge.tree.All()
	for _, ch := range channels {
		c.sendMessage(channelToState(ch, false))
	}
	// Links go out after every channel exists on the client.
	for _, ch := range channels {
		if len(ch.Links) > 0 {
			c.sendMessage(channelToState(ch, true))
		}
	}
}

func (c *Client) sendUserSnapshot() {
	for _, s := range c.edge.dir.All() {
		if s.ID == c.session {
			continue
		}
		c.sendMessage(sessionToUserState(s))
	}
	if self, ok := c.edge.dir.Get(c.session); ok {
		c.sendMessage(sessionToUserState(self))
	}
}

// channelToState renders a replica channel as a ChannelState message.
func channelToState(ch state.Channel, linksOnly bool) *mumbleproto.ChannelState {
	msg := &mumbleproto.ChannelState{ChannelId: proto.Uint32(ch.ID)}
	if linksOnly {
		for id := range ch.Links {
			msg.Links = append(msg.Links, id)
		}
		return msg
	}
	if ch.ID != state.RootChannelID {
		msg.Parent = proto.Uint32(ch.ParentID)
	}
	msg.Name = proto.String(ch.Name)
	msg.Position = proto.Int32(ch.Position)
	msg.Temporary = proto.Bool(ch.Temporary)
	if ch.MaxUsers > 0 {
		msg.MaxUsers = proto.Uint32(ch.MaxUsers)
	}
	if len(ch.DescriptionHash) > 0 {
		msg.DescriptionHash = ch.DescriptionHash
	} else if ch.Description != "" {
		msg.Description = proto.String(ch.Description)
	}
	return msg
}

// sessionToUserState renders a directory session as a full UserState.
func sessionToUserState(s *state.Session) *mumbleproto.UserState {
	msg := &mumbleproto.UserState{
		Session:   proto.Uint32(s.ID),
		Name:      proto.String(s.Name),
		ChannelId: proto.Uint32(s.ChannelID),
	}
	if s.UserID >= 0 {
		msg.UserId = proto.Uint32(uint32(s.UserID))
	}
	if s.CertHash != "" {
		msg.Hash = proto.String(s.CertHash)
	}
	if s.Mute {
		msg.Mute = proto.Bool(true)
	}
	if s.Deaf {
		msg.Deaf = proto.Bool(true)
	}
	if s.Suppress {
		msg.Suppress = proto.Bool(true)
	}
	if s.SelfMute {
		msg.SelfMute = proto.Bool(true)
	}
	if s.SelfDeaf {
		msg.SelfDeaf = proto.Bool(true)
	}
	if s.PrioritySpeaker {
		msg.PrioritySpeaker = proto.Bool(true)
	}
	if s.Recording {
		msg.Recording = proto.Bool(true)
	}
	if len(s.CommentHash) > 0 {
		msg.CommentHash = s.CommentHash
	} else if s.Comment != "" {
		msg.Comment = proto.String(s.Comment)
	}
	if len(s.TextureHash) > 0 {
		msg.TextureHash = s.TextureHash
	}
	for ch := range s.ListeningChannels {
		msg.ListeningChannelAdd = append(msg.ListeningChannelAdd, ch)
	}
	return msg
}
