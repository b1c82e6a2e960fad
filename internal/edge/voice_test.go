package edge

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"bramble/internal/clusterpc"
	"bramble/internal/config"
	"bramble/internal/mumble"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

func newTestEdge(t *testing.T) *Edge {
	t.Helper()
	cfg := &config.Edge{
		EdgeID:      "edge-test",
		Listen:      "127.0.0.1:64738",
		BlobDir:     t.TempDir(),
		IdleTimeout: time.Second,
	}
	e, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.setServerConfig(clusterpc.ServerConfigInfo{
		MaxUsers:      10,
		MaxBandwidth:  72000,
		MessageLength: 5000,
	})
	return e
}

// addTestClient registers a synced local client whose voice lands in its send
// queue (no UDP path, so everything tunnels).
func addTestClient(e *Edge, id, channel uint32, mods ...func(*state.Session)) *Client {
	sess := &state.Session{
		ID:                id,
		UserID:            -1,
		Name:              fmt.Sprintf("user-%d", id),
		EdgeID:            e.cfg.EdgeID,
		ChannelID:         channel,
		ListeningChannels: make(map[uint32]bool),
	}
	for _, mod := range mods {
		mod(sess)
	}
	e.dir.Put(sess)

	c := &Client{
		edge:    e,
		session: id,
		log:     e.log,
		sendCh:  make(chan frame, 16),
		closed:  make(chan struct{}),
	}
	c.state.Store(stateSynced)
	e.clientsMu.Lock()
	e.clients[id] = c
	e.clientsMu.Unlock()
	return c
}

// addRemoteSession registers a session owned by another edge.
func addRemoteSession(e *Edge, id, channel uint32, mods ...func(*state.Session)) {
	sess := &state.Session{
		ID:                id,
		UserID:            -1,
		Name:              fmt.Sprintf("remote-%d", id),
		EdgeID:            "edge-other",
		ChannelID:         channel,
		ListeningChannels: make(map[uint32]bool),
	}
	for _, mod := range mods {
		mod(sess)
	}
	e.dir.Put(sess)
}

// voiceFrames drains the client's queue and returns tunneled voice payloads.
func voiceFrames(t *testing.T, c *Client) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		select {
		case f := <-c.sendCh:
			if f.typ == mumbleproto.MessageUDPTunnel {
				out = append(out, f.payload)
			}
		default:
			return out
		}
	}
}

func testVoicePacket(target byte) mumble.VoicePacket {
	return mumble.VoicePacket{
		Codec:   mumble.CodecOpus,
		Target:  target,
		Seq:     1,
		Payload: []byte{0x01, 0x02, 0x03},
	}
}

func TestRouteVoiceNormalSpeech(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	if err := e.tree.Add(state.Channel{ID: 1, Name: "lounge", InheritACL: true}); err != nil {
		t.Fatal(err)
	}

	speaker := addTestClient(e, 10, 1)
	same := addTestClient(e, 11, 1)
	elsewhere := addTestClient(e, 12, 0)

	e.routeVoice(speaker, testVoicePacket(mumble.TargetNormal))

	if got := voiceFrames(t, same); len(got) != 1 {
		t.Fatalf("same-channel recipient: %d packets", len(got))
	}
	if got := voiceFrames(t, elsewhere); len(got) != 0 {
		t.Fatalf("other-channel client heard %d packets", len(got))
	}
	if got := voiceFrames(t, speaker); len(got) != 0 {
		t.Fatalf("speaker echoed %d packets", len(got))
	}
}

func TestRouteVoiceLinkedChannels(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "a", InheritACL: true})
	e.tree.Add(state.Channel{ID: 2, Name: "b", InheritACL: true})
	if err := e.tree.Link(1, 2); err != nil {
		t.Fatal(err)
	}

	speaker := addTestClient(e, 10, 1)
	linked := addTestClient(e, 11, 2)

	e.routeVoice(speaker, testVoicePacket(mumble.TargetNormal))

	if got := voiceFrames(t, linked); len(got) != 1 {
		t.Fatalf("linked-channel recipient: %d packets", len(got))
	}
}

func TestRouteVoiceListener(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "stage", InheritACL: true})

	speaker := addTestClient(e, 10, 1)
	listener := addTestClient(e, 11, 0, func(s *state.Session) {
		s.ListeningChannels[1] = true
	})

	e.routeVoice(speaker, testVoicePacket(mumble.TargetNormal))

	if got := voiceFrames(t, listener); len(got) != 1 {
		t.Fatalf("listener: %d packets", len(got))
	}
}

func TestRouteVoiceSkipsDeafAndMuted(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "x", InheritACL: true})

	speaker := addTestClient(e, 10, 1)
	deaf := addTestClient(e, 11, 1, func(s *state.Session) { s.SelfDeaf = true })

	e.routeVoice(speaker, testVoicePacket(mumble.TargetNormal))
	if got := voiceFrames(t, deaf); len(got) != 0 {
		t.Fatalf("deaf recipient heard %d packets", len(got))
	}

	muted := addTestClient(e, 20, 1, func(s *state.Session) { s.SelfMute = true })
	hearer := addTestClient(e, 21, 1)
	e.routeVoice(muted, testVoicePacket(mumble.TargetNormal))
	if got := voiceFrames(t, hearer); len(got) != 0 {
		t.Fatalf("muted speaker was heard: %d packets", len(got))
	}
}

func TestRouteVoiceLoopback(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	speaker := addTestClient(e, 10, 0)

	e.routeVoice(speaker, testVoicePacket(mumble.TargetServerLoopback))

	got := voiceFrames(t, speaker)
	if len(got) != 1 {
		t.Fatalf("loopback: %d packets", len(got))
	}
	parsed, err := mumble.ParseVoice(got[0])
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Target != ctxNormal {
		t.Fatalf("loopback context = %d", parsed.Target)
	}
}

func TestRouteVoiceDirectWhisper(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "y", InheritACL: true})

	speaker := addTestClient(e, 10, 0, func(s *state.Session) {
		s.Targets[3] = &state.WhisperTarget{Sessions: []uint32{11}}
	})
	target := addTestClient(e, 11, 1)
	bystander := addTestClient(e, 12, 1)

	e.routeVoice(speaker, testVoicePacket(3))

	got := voiceFrames(t, target)
	if len(got) != 1 {
		t.Fatalf("whisper target: %d packets", len(got))
	}
	if got[0][0]&0x1F != ctxDirectWhisper {
		t.Fatalf("whisper context byte = %d", got[0][0]&0x1F)
	}
	if got := voiceFrames(t, bystander); len(got) != 0 {
		t.Fatalf("bystander heard a direct whisper")
	}
}

func TestRouteVoiceChannelWhisper(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "ops", InheritACL: true})
	e.tree.Add(state.Channel{ID: 2, ParentID: 1, Name: "sub", InheritACL: true})

	speaker := addTestClient(e, 10, 0, func(s *state.Session) {
		s.Targets[5] = &state.WhisperTarget{ChannelID: 1, HasChannel: true, Children: true}
	})
	inChannel := addTestClient(e, 11, 1)
	inSub := addTestClient(e, 12, 2)
	outside := addTestClient(e, 13, 0)

	e.routeVoice(speaker, testVoicePacket(5))

	for _, tc := range []struct {
		name string
		c    *Client
		want int
	}{
		{"channel member", inChannel, 1},
		{"subchannel member", inSub, 1},
		{"outsider", outside, 0},
	} {
		if got := voiceFrames(t, tc.c); len(got) != tc.want {
			t.Fatalf("%s: %d packets, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestRouteVoiceWhisperRemoteSingleCopy(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "ops", InheritACL: true})
	e.tree.Add(state.Channel{ID: 2, ParentID: 1, Name: "sub", InheritACL: true})

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()
	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer local.Close()
	e.peers.conn = local
	e.peers.add(clusterpc.PeerInfo{EdgeID: "edge-other", VoiceAddr: peer.LocalAddr().String()})

	speaker := addTestClient(e, 10, 0, func(s *state.Session) {
		s.Targets[4] = &state.WhisperTarget{ChannelID: 1, HasChannel: true, Children: true}
	})
	// The remote user sits in one targeted channel and listens to the other;
	// both resolve to the same session on the same peer edge.
	addRemoteSession(e, 50, 1, func(s *state.Session) { s.ListeningChannels[2] = true })

	e.routeVoice(speaker, testVoicePacket(4))

	buf := make([]byte, 2048)
	peer.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("no peer datagram: %v", err)
	}
	pp, err := decodePeerPacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if pp.Target != peerSessionBit|50 {
		t.Fatalf("target = %#x", pp.Target)
	}
	peer.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if n, _, err := peer.ReadFromUDP(buf); err == nil {
		t.Fatalf("remote recipient sent %d duplicate bytes", n)
	}
}

func TestDeliverPeerVoiceBroadcast(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "z", InheritACL: true})
	addRemoteSession(e, 50, 1)
	local := addTestClient(e, 11, 1)

	inner := mumble.EncodeVoice(mumble.CodecOpus, ctxNormal, 50, 1, []byte{0xaa})
	e.deliverPeerVoice(peerPacket{Sender: 50, Target: peerBroadcast, Seq: 1, Codec: mumble.CodecOpus, Inner: inner})

	if got := voiceFrames(t, local); len(got) != 1 {
		t.Fatalf("broadcast relay: %d packets", len(got))
	}
}

func TestDeliverPeerVoiceDirectSession(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	target := addTestClient(e, 11, 0)
	other := addTestClient(e, 12, 0)

	inner := mumble.EncodeVoice(mumble.CodecOpus, ctxDirectWhisper, 50, 1, []byte{0xbb})
	e.deliverPeerVoice(peerPacket{Sender: 50, Target: peerSessionBit | 11, Seq: 1, Codec: mumble.CodecOpus, Inner: inner})

	if got := voiceFrames(t, target); len(got) != 1 {
		t.Fatalf("direct relay: %d packets", len(got))
	}
	if got := voiceFrames(t, other); len(got) != 0 {
		t.Fatalf("direct relay leaked to another session")
	}
}

func TestDeliverPeerVoiceChannel(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "w", InheritACL: true})
	member := addTestClient(e, 11, 1)
	deaf := addTestClient(e, 12, 1, func(s *state.Session) { s.Deaf = true })

	inner := mumble.EncodeVoice(mumble.CodecOpus, ctxChannelWhisper, 50, 1, []byte{0xcc})
	e.deliverPeerVoice(peerPacket{Sender: 50, Target: 1, Seq: 1, Codec: mumble.CodecOpus, Inner: inner})

	if got := voiceFrames(t, member); len(got) != 1 {
		t.Fatalf("channel relay: %d packets", len(got))
	}
	if got := voiceFrames(t, deaf); len(got) != 0 {
		t.Fatalf("deaf member heard a channel relay")
	}
}

func TestApplySnapshotReplacesReplica(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	addRemoteSession(e, 90, 0)
	addTestClient(e, 11, 0)

	snap := clusterpc.JoinResult{
		Channels: []clusterpc.ChannelInfo{
			{ID: 0, Name: "Root"},
			{ID: 5, ParentID: 0, Name: "fresh", InheritACL: true},
		},
		Sessions: []clusterpc.SessionInfo{
			{ID: 91, Name: "peer-user", EdgeID: "edge-other"},
		},
		Config: clusterpc.ServerConfigInfo{MaxUsers: 64, MaxBandwidth: 72000},
	}
	e.applySnapshot(snap)

	if !e.tree.Exists(5) {
		t.Fatal("snapshot channel missing")
	}
	if _, ok := e.dir.Get(90); ok {
		t.Fatal("stale remote session survived snapshot")
	}
	if _, ok := e.dir.Get(91); !ok {
		t.Fatal("snapshot remote session missing")
	}
	if _, ok := e.dir.Get(11); !ok {
		t.Fatal("local session dropped by snapshot")
	}
	if e.serverConfig().MaxUsers != 64 {
		t.Fatal("server config not installed")
	}
}
