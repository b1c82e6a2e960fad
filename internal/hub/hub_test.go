package hub

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	proto "github.com/golang/protobuf/proto"

	"bramble/internal/clusterpc"
	"bramble/internal/config"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

func newHub(t *testing.T) *Hub {
	t.Helper()
	alicePass := sha256.Sum256([]byte("s3cret"))
	cfg := &config.Hub{
		DataDir: t.TempDir(),
		Auth: config.AuthConfig{
			SuperUserPassword: saltedSHA1("salt", "root-pw"),
			Static: []config.StaticUser{
				{Username: "alice", Password: hex.EncodeToString(alicePass[:]), UserID: 1, Groups: []string{"admin"}},
			},
		},
	}
	// Mirror the defaulting LoadHub applies.
	cfg.Listen = ":0"
	cfg.AutoBan = config.AutoBanConfig{Attempts: 3, Window: time.Minute, Duration: time.Minute}
	cfg.Server = config.ServerConfig{
		MaxUsers: 3, MaxBandwidth: 72000, MessageLength: 5000,
		ImageMessageLength: 131072, RootChannelName: "Root",
	}
	cfg.Auth.CacheTTL = time.Minute

	h, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	t.Cleanup(func() { h.db.Close() })
	return h
}

func saltedSHA1(salt, password string) string {
	// Build the stored credential the way provisioning tooling does.
	sum := sha1.Sum([]byte(salt + password))
	return "sha1$" + salt + "$" + hex.EncodeToString(sum[:])
}

func auth(h *Hub, user, pass, addr string) clusterpc.AuthenticateUserResult {
	return h.authenticate(context.Background(), clusterpc.AuthenticateUserParams{
		EdgeID: "edge-a", Username: user, Password: pass, Address: addr,
	})
}

func TestAuthenticateStaticUser(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	res := auth(h, "alice", "s3cret", "10.0.0.1:100")
	if res.Decision != clusterpc.AuthAllow || res.UserID != 0 {
		// admin group elevates to SuperUser id 0
		t.Fatalf("result %+v", res)
	}

	res = auth(h, "alice", "wrong", "10.0.0.1:100")
	if res.Decision != clusterpc.AuthWrongPass {
		t.Fatalf("wrong password: %+v", res)
	}
}

func TestAuthenticateSuperUser(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	res := auth(h, "SuperUser", "root-pw", "10.0.0.1:100")
	if res.Decision != clusterpc.AuthAllow || res.UserID != 0 {
		t.Fatalf("result %+v", res)
	}
	if res := auth(h, "SuperUser", "nope", "10.0.0.1:100"); res.Decision != clusterpc.AuthWrongPass {
		t.Fatalf("wrong superuser password: %+v", res)
	}
}

func TestAuthenticateGuestAndCollision(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	res := auth(h, "wanderer", "", "10.0.0.2:100")
	if res.Decision != clusterpc.AuthAllow || res.UserID != -1 {
		t.Fatalf("guest: %+v", res)
	}

	h.dir.Put(&state.Session{ID: 1, Name: "wanderer", EdgeID: "edge-a"})
	if res := auth(h, "wanderer", "", "10.0.0.2:100"); res.Decision != clusterpc.AuthNameInUse {
		t.Fatalf("collision: %+v", res)
	}
}

func TestAuthenticateServerFull(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	for i := uint32(1); i <= 3; i++ {
		h.dir.Put(&state.Session{ID: i, Name: string(rune('a' + i)), EdgeID: "edge-a"})
	}
	if res := auth(h, "late", "", "10.0.0.3:100"); res.Decision != clusterpc.AuthServerFull {
		t.Fatalf("full server: %+v", res)
	}
}

func TestAuthenticateBadUsername(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	if res := auth(h, "", "", "10.0.0.4:100"); res.Decision != clusterpc.AuthBadUsername {
		t.Fatalf("empty name: %+v", res)
	}
	if res := auth(h, " leading", "", "10.0.0.4:100"); res.Decision != clusterpc.AuthBadUsername {
		t.Fatalf("bad name: %+v", res)
	}
}

func TestAutoBanAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	addr := "10.0.0.9:5000"
	for i := 0; i < 2; i++ {
		if res := auth(h, "alice", "wrong", addr); res.Decision != clusterpc.AuthWrongPass {
			t.Fatalf("attempt %d: %+v", i, res)
		}
	}
	if res := auth(h, "alice", "wrong", addr); res.Decision != clusterpc.AuthBanned {
		t.Fatalf("threshold attempt: %+v", res)
	}
	// Once banned, even good credentials are refused.
	if res := auth(h, "alice", "s3cret", addr); res.Decision != clusterpc.AuthBanned {
		t.Fatalf("post-ban: %+v", res)
	}
}

func TestAuthSuccessResetsFailureWindow(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	addr := "10.0.0.10:5000"
	auth(h, "alice", "wrong", addr)
	auth(h, "alice", "wrong", addr)
	if res := auth(h, "alice", "s3cret", addr); res.Decision != clusterpc.AuthAllow {
		t.Fatalf("good login: %+v", res)
	}
	// Window restarted: two more failures stay below the threshold.
	auth(h, "alice", "wrong", addr)
	if res := auth(h, "alice", "wrong", addr); res.Decision != clusterpc.AuthWrongPass {
		t.Fatalf("post-reset failure: %+v", res)
	}
}

func putSession(h *Hub, id uint32, userID int) *state.Session {
	s := &state.Session{ID: id, UserID: userID, Name: "u" + string(rune('0'+id)), EdgeID: "edge-a"}
	h.dir.Put(s)
	return s
}

func TestHandleChannelStateCreate(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 1, 0) // SuperUser

	payload, _ := proto.Marshal(&mumbleproto.ChannelState{
		Parent: proto.Uint32(0), Name: proto.String("Lounge"),
	})
	res, err := h.handleChannelState(clusterpc.HandleChannelParams{
		EdgeID: "edge-a", Session: 1, Payload: payload,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Denied != nil || res.ChannelID == 0 {
		t.Fatalf("result %+v", res)
	}
	if !h.tree.Exists(res.ChannelID) {
		t.Fatal("channel missing from tree")
	}
	// Persisted: a reload sees it.
	channels, err := h.db.LoadChannels()
	if err != nil || len(channels) != 2 {
		t.Fatalf("persisted channels: %d %v", len(channels), err)
	}
}

func TestHandleChannelStateCreateDeniedForGuest(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 2, -1)

	payload, _ := proto.Marshal(&mumbleproto.ChannelState{
		Parent: proto.Uint32(0), Name: proto.String("Nope"),
	})
	res, err := h.handleChannelState(clusterpc.HandleChannelParams{
		EdgeID: "edge-a", Session: 2, Payload: payload,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Denied == nil {
		t.Fatal("guest created a channel")
	}
	var dm mumbleproto.PermissionDenied
	if err := proto.Unmarshal(res.Denied, &dm); err != nil {
		t.Fatalf("denied payload: %v", err)
	}
	if dm.GetType() != mumbleproto.PermissionDenied_Permission {
		t.Fatalf("deny type %v", dm.GetType())
	}
}

func TestHandleChannelRemoveSubtree(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 1, 0)
	h.tree.Add(state.Channel{ID: 10, ParentID: 0, Name: "a"})
	h.tree.Add(state.Channel{ID: 11, ParentID: 10, Name: "b"})

	payload, _ := proto.Marshal(&mumbleproto.ChannelRemove{ChannelId: proto.Uint32(10)})
	res, err := h.handleChannelRemove(clusterpc.HandleChannelParams{
		EdgeID: "edge-a", Session: 1, Payload: payload,
	})
	if err != nil || res.Denied != nil {
		t.Fatalf("remove: %+v %v", res, err)
	}
	if h.tree.Exists(10) || h.tree.Exists(11) {
		t.Fatal("subtree survived")
	}
}

func TestTemporaryChannelReapedWhenEmpty(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 1, 0)
	link := &edgeLink{id: "edge-a"}
	report := func(channel uint32, removed bool) {
		t.Helper()
		if err := h.reportSession(link, clusterpc.ReportSessionParams{
			Session: clusterpc.SessionInfo{ID: 1, Name: "u1", EdgeID: "edge-a", ChannelID: channel},
			Removed: removed,
		}); err != nil {
			t.Fatalf("report: %v", err)
		}
	}
	makeTemp := func(name string) uint32 {
		t.Helper()
		payload, _ := proto.Marshal(&mumbleproto.ChannelState{
			Parent: proto.Uint32(0), Name: proto.String(name), Temporary: proto.Bool(true),
		})
		res, err := h.handleChannelState(clusterpc.HandleChannelParams{
			EdgeID: "edge-a", Session: 1, Payload: payload,
		})
		if err != nil || res.Denied != nil {
			t.Fatalf("create: %+v %v", res, err)
		}
		return res.ChannelID
	}

	huddle := makeTemp("huddle")
	report(huddle, false)
	if !h.tree.Exists(huddle) {
		t.Fatal("occupied temporary channel removed")
	}
	report(0, false)
	if h.tree.Exists(huddle) {
		t.Fatal("temporary channel survived its last occupant leaving")
	}

	// A disconnect empties the channel the same way.
	second := makeTemp("second")
	report(second, false)
	report(second, true)
	if h.tree.Exists(second) {
		t.Fatal("temporary channel survived its occupant disconnecting")
	}

	// Permanent channels are never reaped.
	h.tree.Add(state.Channel{ID: 40, ParentID: 0, Name: "keep"})
	putSession(h, 1, 0)
	report(40, false)
	report(0, false)
	if !h.tree.Exists(40) {
		t.Fatal("permanent channel reaped")
	}
}

func TestHandleACLQueryAndWrite(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	admin := putSession(h, 1, 0)
	_ = admin
	h.tree.Add(state.Channel{ID: 5, ParentID: 0, Name: "Sec", InheritACL: true})

	write, _ := proto.Marshal(&mumbleproto.ACL{
		ChannelId:   proto.Uint32(5),
		InheritAcls: proto.Bool(false),
		Acls: []*mumbleproto.ACL_ChanACL{{
			ApplyHere: proto.Bool(true),
			Group:     proto.String("auth"),
			Grant:     proto.Uint32(uint32(64)),
		}},
	})
	res, err := h.handleACL(clusterpc.HandleACLParams{EdgeID: "edge-a", Session: 1, Payload: write})
	if err != nil || res.Denied {
		t.Fatalf("write: %+v %v", res, err)
	}
	ch, _ := h.tree.Get(5)
	if ch.InheritACL || len(ch.Entries) != 1 || ch.Entries[0].Group != "auth" {
		t.Fatalf("channel acl: %+v", ch)
	}

	query, _ := proto.Marshal(&mumbleproto.ACL{ChannelId: proto.Uint32(5), Query: proto.Bool(true)})
	res, err = h.handleACL(clusterpc.HandleACLParams{EdgeID: "edge-a", Session: 1, Payload: query})
	if err != nil || res.Response == nil {
		t.Fatalf("query: %+v %v", res, err)
	}
	var back mumbleproto.ACL
	if err := proto.Unmarshal(res.Response, &back); err != nil {
		t.Fatalf("response: %v", err)
	}
	if back.GetChannelId() != 5 || len(back.Acls) != 1 || back.Acls[0].GetGroup() != "auth" {
		t.Fatalf("query response: %v", &back)
	}
}

func TestHandleACLDeniedWithoutWrite(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 3, -1)
	h.tree.Add(state.Channel{ID: 6, ParentID: 0, Name: "Locked", InheritACL: true})

	query, _ := proto.Marshal(&mumbleproto.ACL{ChannelId: proto.Uint32(6), Query: proto.Bool(true)})
	res, err := h.handleACL(clusterpc.HandleACLParams{EdgeID: "edge-a", Session: 3, Payload: query})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !res.Denied {
		t.Fatal("guest read channel ACLs")
	}
}

func TestBootstrapReloadsChannels(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 1, 0)
	payload, _ := proto.Marshal(&mumbleproto.ChannelState{
		Parent: proto.Uint32(0), Name: proto.String("Persist"),
	})
	res, err := h.handleChannelState(clusterpc.HandleChannelParams{EdgeID: "edge-a", Session: 1, Payload: payload})
	if err != nil || res.ChannelID == 0 {
		t.Fatalf("create: %+v %v", res, err)
	}

	h2 := &Hub{
		cfg: h.cfg, log: h.log, db: h.db,
		tree: state.NewTree("Root"), dir: state.NewDirectory(),
	}
	if err := h2.bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !h2.tree.Exists(res.ChannelID) {
		t.Fatal("channel lost across restart")
	}
	if h2.nextChannel.Load() != res.ChannelID {
		t.Fatalf("channel counter %d", h2.nextChannel.Load())
	}
}

func TestSnapshotShape(t *testing.T) {
	t.Parallel()

	h := newHub(t)
	putSession(h, 4, -1)
	snap := h.snapshot()
	if len(snap.Channels) == 0 || snap.Channels[0].ID != 0 {
		t.Fatalf("channels: %+v", snap.Channels)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("sessions: %+v", snap.Sessions)
	}
	if snap.Config.MaxUsers != 3 || snap.Config.MessageLength != 5000 {
		t.Fatalf("config: %+v", snap.Config)
	}
}

func TestUsernamePattern(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"alice", "Bob_2", "x.y-z@host", "A B"} {
		if !usernameRe.MatchString(ok) {
			t.Fatalf("rejected %q", ok)
		}
	}
	for _, bad := range []string{"", " lead", "névé\x00", strings.Repeat("a", 80)} {
		if usernameRe.MatchString(bad) {
			t.Fatalf("accepted %q", bad)
		}
	}
}
