package edge

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"

	proto "github.com/golang/protobuf/proto"
	"github.com/vmihailenco/msgpack/v5"

	"bramble/internal/acl"
	"bramble/internal/clusterpc"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

func framesOfType(t *testing.T, c *Client, typ uint16) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		select {
		case f := <-c.sendCh:
			if f.typ == typ {
				out = append(out, f.payload)
			}
		default:
			return out
		}
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"<b>bold</b>", "bold"},
		{`<a href="x">link</a> end`, "link end"},
		{"a < b", "a "},
		{"", ""},
	} {
		if got := stripHTML(tc.in); got != tc.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTextMessageChannelDelivery(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "general", InheritACL: true})

	sender := addTestClient(e, 10, 1)
	member := addTestClient(e, 11, 1)
	outsider := addTestClient(e, 12, 0)

	raw, err := proto.Marshal(&mumbleproto.TextMessage{
		ChannelId: []uint32{1},
		Message:   proto.String("hello"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.handleTextMessage(context.Background(), raw); err != nil {
		t.Fatalf("handleTextMessage: %v", err)
	}

	got := framesOfType(t, member, mumbleproto.MessageTextMessage)
	if len(got) != 1 {
		t.Fatalf("channel member got %d messages", len(got))
	}
	var msg mumbleproto.TextMessage
	if err := proto.Unmarshal(got[0], &msg); err != nil {
		t.Fatal(err)
	}
	if msg.GetActor() != 10 || msg.GetMessage() != "hello" {
		t.Fatalf("delivered message: actor=%d text=%q", msg.GetActor(), msg.GetMessage())
	}
	if got := framesOfType(t, outsider, mumbleproto.MessageTextMessage); len(got) != 0 {
		t.Fatalf("outsider got %d messages", len(got))
	}
	if got := framesOfType(t, sender, mumbleproto.MessageTextMessage); len(got) != 0 {
		t.Fatalf("sender echoed %d messages", len(got))
	}
}

func TestTextMessageTooLong(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)

	sender := addTestClient(e, 10, 0)
	addTestClient(e, 11, 0)

	long := make([]byte, 6000)
	for i := range long {
		long[i] = 'x'
	}
	raw, err := proto.Marshal(&mumbleproto.TextMessage{
		ChannelId: []uint32{0},
		Message:   proto.String(string(long)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.handleTextMessage(context.Background(), raw); err != nil {
		t.Fatalf("handleTextMessage: %v", err)
	}

	denials := framesOfType(t, sender, mumbleproto.MessagePermissionDenied)
	if len(denials) != 1 {
		t.Fatalf("sender got %d denials", len(denials))
	}
	var denied mumbleproto.PermissionDenied
	if err := proto.Unmarshal(denials[0], &denied); err != nil {
		t.Fatal(err)
	}
	if denied.GetType() != mumbleproto.PermissionDenied_TextTooLong {
		t.Fatalf("denial type = %v", denied.GetType())
	}
}

func TestCheckMoveChannelFull(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	e.tree.Add(state.Channel{ID: 1, Name: "booth", InheritACL: true, MaxUsers: 1})

	addTestClient(e, 11, 1)
	mover := addTestClient(e, 10, 0)
	sess, _ := e.dir.Get(10)

	if denied := mover.checkMove(sess, sess, 1, true); !denied {
		t.Fatal("move into a full channel was allowed")
	}
	denials := framesOfType(t, mover, mumbleproto.MessagePermissionDenied)
	if len(denials) != 1 {
		t.Fatalf("got %d denials", len(denials))
	}
	var denied mumbleproto.PermissionDenied
	if err := proto.Unmarshal(denials[0], &denied); err != nil {
		t.Fatal(err)
	}
	if denied.GetType() != mumbleproto.PermissionDenied_ChannelFull {
		t.Fatalf("denial type = %v", denied.GetType())
	}
}

func TestCheckMoveMissingChannel(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	mover := addTestClient(e, 10, 0)
	sess, _ := e.dir.Get(10)

	if denied := mover.checkMove(sess, sess, 99, true); !denied {
		t.Fatal("move into a missing channel was allowed")
	}
	denials := framesOfType(t, mover, mumbleproto.MessagePermissionDenied)
	if len(denials) != 1 {
		t.Fatalf("got %d denials", len(denials))
	}
	var denied mumbleproto.PermissionDenied
	if err := proto.Unmarshal(denials[0], &denied); err != nil {
		t.Fatal(err)
	}
	if acl.Perm(denied.GetPermission()) != acl.Enter {
		t.Fatalf("denied permission = %x", denied.GetPermission())
	}
}

// startStubHub wires the edge's hub link to an in-process responder that
// admits every user and allocates session ids from 100 up.
func startStubHub(t *testing.T, e *Edge) {
	t.Helper()
	edgeSide, hubSide := net.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hubConn := clusterpc.New(hubSide, logger)
	var next atomic.Uint32
	next.Store(99)
	hubConn.Handle(clusterpc.MethodAuthenticateUser, func(context.Context, msgpack.RawMessage) (any, error) {
		return clusterpc.AuthenticateUserResult{Decision: clusterpc.AuthAllow, UserID: -1}, nil
	})
	hubConn.Handle(clusterpc.MethodAllocateSessionID, func(context.Context, msgpack.RawMessage) (any, error) {
		return clusterpc.AllocateSessionIDResult{Session: next.Add(1)}, nil
	})
	hubConn.Handle(clusterpc.MethodReportSession, func(context.Context, msgpack.RawMessage) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	edgeConn := clusterpc.New(edgeSide, logger)
	go hubConn.Serve(ctx)
	go edgeConn.Serve(ctx)
	e.hub.setConn(edgeConn)
	t.Cleanup(func() {
		cancel()
		edgeConn.Close()
		hubConn.Close()
	})
}

func TestAuthenticateAnnouncesJoinLocally(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	startStubHub(t, e)

	observer := addTestClient(e, 11, 0)

	joiner := &Client{
		edge:   e,
		log:    e.log,
		userID: -1,
		sendCh: make(chan frame, sendQueueLen),
		closed: make(chan struct{}),
	}
	if err := joiner.authenticate(context.Background(), &mumbleproto.Authenticate{
		Username: proto.String("newcomer"),
		Opus:     proto.Bool(true),
	}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if joiner.session == 0 {
		t.Fatal("no session allocated")
	}

	// Clients already on this edge see the join without any hub round trip.
	seen := false
	for _, raw := range framesOfType(t, observer, mumbleproto.MessageUserState) {
		var us mumbleproto.UserState
		if err := proto.Unmarshal(raw, &us); err != nil {
			t.Fatal(err)
		}
		if us.GetSession() == joiner.session && us.GetName() == "newcomer" {
			seen = true
		}
	}
	if !seen {
		t.Fatal("observer never saw the join UserState")
	}

	// The joiner hears its own state exactly once, at the snapshot's end.
	self := 0
	for _, raw := range framesOfType(t, joiner, mumbleproto.MessageUserState) {
		var us mumbleproto.UserState
		if err := proto.Unmarshal(raw, &us); err != nil {
			t.Fatal(err)
		}
		if us.GetSession() == joiner.session {
			self++
		}
	}
	if self != 1 {
		t.Fatalf("joiner saw its own state %d times", self)
	}
}

func TestRefreshSuppress(t *testing.T) {
	t.Parallel()
	e := newTestEdge(t)
	// A channel whose ACL denies Speak to everyone.
	e.tree.Add(state.Channel{
		ID:         1,
		Name:       "quiet",
		InheritACL: true,
		Entries: []acl.Entry{{
			ApplyHere: true,
			Group:     "all",
			Deny:      acl.Speak,
		}},
	})
	muted := addTestClient(e, 10, 1)

	e.refreshSuppress()

	sess, _ := e.dir.Get(10)
	if !sess.Suppress {
		t.Fatal("session in no-speak channel not suppressed")
	}
	states := framesOfType(t, muted, mumbleproto.MessageUserState)
	if len(states) != 1 {
		t.Fatalf("got %d user state broadcasts", len(states))
	}
	var msg mumbleproto.UserState
	if err := proto.Unmarshal(states[0], &msg); err != nil {
		t.Fatal(err)
	}
	if !msg.GetSuppress() {
		t.Fatal("broadcast did not carry suppress")
	}
}
