// Package client is a headless Mumble client used to exercise and probe a
// cluster: it completes the full handshake, mirrors the server's channel and
// user state, and can send text and voice over UDP or the control tunnel.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	proto "github.com/golang/protobuf/proto"

	"bramble/internal/crypt"
	"bramble/internal/mumble"
	"bramble/internal/mumbleproto"
)

const (
	clientVersion   = 1<<16 | 4<<8 | 31
	celtAlphaVersion int32 = -2147483637
	celtBetaVersion  int32 = -2147483632

	pingInterval = 20 * time.Second
	// udpProbeInterval paces crypt-layer pings until the UDP path is
	// confirmed in both directions.
	udpProbeInterval = 2 * time.Second
)

// Config describes one client connection.
type Config struct {
	Addr     string
	Username string
	Password string
	Tokens   []string
	// ForceTCPVoice keeps voice inside the control channel even when UDP
	// would work.
	ForceTCPVoice bool
	// InsecureSkipVerify accepts any server certificate.
	InsecureSkipVerify bool
	Log                *slog.Logger
}

// User is the client's view of one connected session.
type User struct {
	Session   uint32
	Name      string
	ChannelID uint32
}

// Channel is the client's view of one channel.
type Channel struct {
	ID       uint32
	ParentID uint32
	Name     string
}

// Client is a live connection. Callbacks run on the read goroutine; keep
// them short.
type Client struct {
	cfg  Config
	log  *slog.Logger
	conn net.Conn

	writeMu sync.Mutex

	cryptMu sync.Mutex
	crypt   *crypt.State

	udpMu sync.Mutex
	udp   *net.UDPConn
	udpOK atomic.Bool

	mu       sync.RWMutex
	session  uint32
	welcome  string
	perms    uint64
	users    map[uint32]User
	channels map[uint32]Channel

	seq atomic.Int64

	synced     chan struct{}
	syncedOnce sync.Once

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	// OnText fires for each received text message.
	OnText func(actor uint32, message string)
	// OnVoice fires for each received voice packet, tunneled or UDP.
	OnVoice func(session uint32, payload []byte)
}

// Dial connects, sends Version and Authenticate, and starts the read and
// ping loops. Use WaitSynced to block until the server finishes the
// handshake.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}}
	nc, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.Addr, err)
	}

	c := &Client{
		cfg:      cfg,
		log:      cfg.Log.With("component", "client", "user", cfg.Username),
		conn:     nc,
		users:    make(map[uint32]User),
		channels: make(map[uint32]Channel),
		synced:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := c.send(&mumbleproto.Version{
		Version:   proto.Uint32(clientVersion),
		Release:   proto.String("bramble-client"),
		Os:        proto.String(runtime.GOOS),
		OsVersion: proto.String(runtime.GOARCH),
	}); err != nil {
		nc.Close()
		return nil, err
	}
	if err := c.send(&mumbleproto.Authenticate{
		Username:     proto.String(cfg.Username),
		Password:     proto.String(cfg.Password),
		Tokens:       cfg.Tokens,
		CeltVersions: []int32{celtAlphaVersion, celtBetaVersion},
		Opus:         proto.Bool(true),
	}); err != nil {
		nc.Close()
		return nil, err
	}

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// WaitSynced blocks until ServerSync arrives, the connection fails, or ctx
// expires.
func (c *Client) WaitSynced(ctx context.Context) error {
	select {
	case <-c.synced:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended; nil before Done.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.fail(nil)
	return nil
}

func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		c.conn.Close()
		c.udpMu.Lock()
		if c.udp != nil {
			c.udp.Close()
		}
		c.udpMu.Unlock()
		close(c.done)
	})
}

// Session returns the server-assigned session ID; zero before sync.
func (c *Client) Session() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// WelcomeText returns the server's welcome message.
func (c *Client) WelcomeText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.welcome
}

// Users snapshots the known sessions.
func (c *Client) Users() []User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]User, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	return out
}

// Channels snapshots the known channel tree.
func (c *Client) Channels() []Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

func (c *Client) send(msg proto.Message) error {
	typ, ok := mumbleproto.TypeOf(msg)
	if !ok {
		return fmt.Errorf("client: unroutable message %T", msg)
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	return c.sendRaw(typ, payload)
}

func (c *Client) sendRaw(typ uint16, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return mumble.WriteFrame(c.conn, typ, payload)
}

// JoinChannel asks the server to move this client.
func (c *Client) JoinChannel(channel uint32) error {
	return c.send(&mumbleproto.UserState{
		Session:   proto.Uint32(c.Session()),
		ChannelId: proto.Uint32(channel),
	})
}

// SendText sends a text message to the given channels, or to the client's
// own channel when none are given.
func (c *Client) SendText(message string, channels ...uint32) error {
	if len(channels) == 0 {
		c.mu.RLock()
		if u, ok := c.users[c.session]; ok {
			channels = []uint32{u.ChannelID}
		} else {
			channels = []uint32{0}
		}
		c.mu.RUnlock()
	}
	return c.send(&mumbleproto.TextMessage{
		ChannelId: channels,
		Message:   proto.String(message),
	})
}

// SendVoice ships one opaque codec frame as normal speech, over UDP when the
// path is confirmed, otherwise through the control tunnel.
func (c *Client) SendVoice(codec byte, payload []byte) error {
	seq := c.seq.Add(1)
	pkt := make([]byte, 0, 1+10+len(payload))
	pkt = append(pkt, codec<<5)
	pkt = mumble.PutVarint(pkt, seq)
	pkt = append(pkt, payload...)

	if !c.cfg.ForceTCPVoice && c.udpOK.Load() {
		if c.sendVoiceUDP(pkt) {
			return nil
		}
	}
	return c.sendRaw(mumbleproto.MessageUDPTunnel, pkt)
}

func (c *Client) sendVoiceUDP(pkt []byte) bool {
	c.udpMu.Lock()
	conn := c.udp
	c.udpMu.Unlock()
	if conn == nil {
		return false
	}
	out := make([]byte, len(pkt)+crypt.Overhead)
	c.cryptMu.Lock()
	if c.crypt == nil {
		c.cryptMu.Unlock()
		return false
	}
	err := c.crypt.Encrypt(out, pkt)
	c.cryptMu.Unlock()
	if err != nil {
		return false
	}
	_, err = conn.Write(out)
	return err == nil
}

func (c *Client) readLoop() {
	for {
		typ, payload, err := mumble.ReadFrame(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.handle(typ, payload); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Client) handle(typ uint16, payload []byte) error {
	switch typ {
	case mumbleproto.MessageVersion, mumbleproto.MessageCodecVersion,
		mumbleproto.MessagePing, mumbleproto.MessageServerConfig,
		mumbleproto.MessagePermissionQuery:
		return nil

	case mumbleproto.MessageReject:
		var msg mumbleproto.Reject
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		return fmt.Errorf("client: rejected: %d: %s", msg.GetType(), msg.GetReason())

	case mumbleproto.MessageCryptSetup:
		var msg mumbleproto.CryptSetup
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		return c.applyCryptSetup(&msg)

	case mumbleproto.MessageChannelState:
		var msg mumbleproto.ChannelState
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		c.mu.Lock()
		ch := c.channels[msg.GetChannelId()]
		ch.ID = msg.GetChannelId()
		if msg.Parent != nil {
			ch.ParentID = msg.GetParent()
		}
		if msg.Name != nil {
			ch.Name = msg.GetName()
		}
		c.channels[ch.ID] = ch
		c.mu.Unlock()
		return nil

	case mumbleproto.MessageChannelRemove:
		var msg mumbleproto.ChannelRemove
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.channels, msg.GetChannelId())
		c.mu.Unlock()
		return nil

	case mumbleproto.MessageUserState:
		var msg mumbleproto.UserState
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		c.mu.Lock()
		u := c.users[msg.GetSession()]
		u.Session = msg.GetSession()
		if msg.Name != nil {
			u.Name = msg.GetName()
		}
		if msg.ChannelId != nil {
			u.ChannelID = msg.GetChannelId()
		}
		c.users[u.Session] = u
		c.mu.Unlock()
		return nil

	case mumbleproto.MessageUserRemove:
		var msg mumbleproto.UserRemove
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.users, msg.GetSession())
		if msg.GetSession() == c.session {
			c.mu.Unlock()
			return fmt.Errorf("client: removed by server: %s", msg.GetReason())
		}
		c.mu.Unlock()
		return nil

	case mumbleproto.MessageServerSync:
		var msg mumbleproto.ServerSync
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		c.mu.Lock()
		c.session = msg.GetSession()
		c.welcome = msg.GetWelcomeText()
		c.perms = msg.GetPermissions()
		c.mu.Unlock()
		c.log.Info("synced", "session", msg.GetSession())
		if !c.cfg.ForceTCPVoice {
			if err := c.openUDP(); err != nil {
				c.log.Warn("udp unavailable, tunneling voice", "error", err)
			}
		}
		c.syncedOnce.Do(func() { close(c.synced) })
		return nil

	case mumbleproto.MessageTextMessage:
		var msg mumbleproto.TextMessage
		if err := proto.Unmarshal(payload, &msg); err != nil {
			return err
		}
		if c.OnText != nil {
			c.OnText(msg.GetActor(), msg.GetMessage())
		}
		return nil

	case mumbleproto.MessageUDPTunnel:
		c.handleVoice(payload)
		return nil

	default:
		return nil
	}
}

// applyCryptSetup installs fresh key material, or on a nonce-only message
// completes a resync by adopting the server's new nonce.
func (c *Client) applyCryptSetup(msg *mumbleproto.CryptSetup) error {
	c.cryptMu.Lock()
	defer c.cryptMu.Unlock()
	if len(msg.Key) > 0 {
		// Our encrypt nonce is the server's decrypt nonce and vice versa.
		st, err := crypt.NewState(msg.Key, msg.ClientNonce, msg.ServerNonce)
		if err != nil {
			return err
		}
		c.crypt = st
		return nil
	}
	if c.crypt != nil && len(msg.ServerNonce) > 0 {
		return c.crypt.SetDecryptIV(msg.ServerNonce)
	}
	return nil
}

// handleVoice parses one server-form voice packet and dispatches OnVoice.
func (c *Client) handleVoice(pkt []byte) {
	if len(pkt) < 2 {
		return
	}
	if pkt[0]>>5 == mumble.CodecPing {
		// Echo of our crypt probe: the UDP path works in both directions.
		if c.udpOK.CompareAndSwap(false, true) {
			c.log.Debug("udp voice path confirmed")
		}
		return
	}
	rest := pkt[1:]
	session, n, err := mumble.Varint(rest)
	if err != nil {
		return
	}
	rest = rest[n:]
	if _, n, err = mumble.Varint(rest); err != nil {
		return
	}
	if c.OnVoice != nil {
		c.OnVoice(uint32(session), rest[n:])
	}
}

// openUDP dials the voice socket and starts its read loop. The path counts
// as usable only once a crypt ping echoes back.
func (c *Client) openUDP() error {
	raddr, err := net.ResolveUDPAddr("udp", c.cfg.Addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	c.udpMu.Lock()
	c.udp = conn
	c.udpMu.Unlock()

	go func() {
		buf := make([]byte, 2048)
		plain := make([]byte, 2048)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			if n < crypt.Overhead+1 {
				continue
			}
			out := plain[:n-crypt.Overhead]
			c.cryptMu.Lock()
			res := crypt.Invalid
			if c.crypt != nil {
				res = c.crypt.Decrypt(out, buf[:n])
			}
			c.cryptMu.Unlock()
			if res != crypt.Ok && res != crypt.Late {
				continue
			}
			c.handleVoice(out)
		}
	}()
	return nil
}

// pingLoop keeps the control connection alive and probes the UDP path.
func (c *Client) pingLoop() {
	control := time.NewTicker(pingInterval)
	probe := time.NewTicker(udpProbeInterval)
	defer control.Stop()
	defer probe.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-control.C:
			c.cryptMu.Lock()
			var good, late, lost, resync uint32
			if c.crypt != nil {
				good, late, lost, resync = c.crypt.Good, c.crypt.Late, c.crypt.Lost, c.crypt.Resync
			}
			c.cryptMu.Unlock()
			if err := c.send(&mumbleproto.Ping{
				Timestamp: proto.Uint64(uint64(time.Now().UnixMilli())),
				Good:      proto.Uint32(good),
				Late:      proto.Uint32(late),
				Lost:      proto.Uint32(lost),
				Resync:    proto.Uint32(resync),
			}); err != nil {
				c.fail(err)
				return
			}
		case <-probe.C:
			if c.cfg.ForceTCPVoice || c.udpOK.Load() {
				continue
			}
			c.sendVoiceUDP(mumble.EncodePing(time.Now().UnixMilli()))
		}
	}
}

// ErrNotSynced is returned by operations that need a completed handshake.
var ErrNotSynced = errors.New("client: not synced")
