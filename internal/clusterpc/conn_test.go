package clusterpc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"bramble/internal/state"
)

func linkedPair(t *testing.T) (a, b *Conn) {
	t.Helper()
	ca, cb := net.Pipe()
	a, b = New(ca, nil), New(cb, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Serve(ctx)
	go b.Serve(ctx)
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestEnvelopeFraming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	in := &Envelope{Kind: KindRequest, ID: 7, Method: MethodRegister, Body: []byte{0xC0}}
	if err := writeEnvelope(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := readEnvelope(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Kind != in.Kind || out.ID != in.ID || out.Method != in.Method {
		t.Fatalf("round trip: %+v", out)
	}
}

func TestReadRejectsOversizeFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := readEnvelope(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("got %v", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	t.Parallel()

	edge, hub := linkedPair(t)
	hub.Handle(MethodAllocateSessionID, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		var params AllocateSessionIDParams
		if err := msgpack.Unmarshal(body, &params); err != nil {
			return nil, err
		}
		if params.EdgeID != "edge-a" {
			return nil, errors.New("unexpected edge")
		}
		return AllocateSessionIDResult{Session: 42}, nil
	})

	var result AllocateSessionIDResult
	err := edge.Call(context.Background(), MethodAllocateSessionID,
		AllocateSessionIDParams{EdgeID: "edge-a"}, &result)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Session != 42 {
		t.Fatalf("session = %d", result.Session)
	}
}

func TestCallSurfacesHandlerError(t *testing.T) {
	t.Parallel()

	edge, hub := linkedPair(t)
	hub.Handle(MethodJoin, func(context.Context, msgpack.RawMessage) (any, error) {
		return nil, errors.New("not registered")
	})
	err := edge.Call(context.Background(), MethodJoin, JoinParams{EdgeID: "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("got %v", err)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	t.Parallel()

	edge, _ := linkedPair(t)
	err := edge.Call(context.Background(), "edge.bogus", struct{}{}, nil)
	if err == nil || !strings.Contains(err.Error(), "no such method") {
		t.Fatalf("got %v", err)
	}
}

func TestNotifyDelivery(t *testing.T) {
	t.Parallel()

	hub, edge := linkedPair(t)
	got := make(chan ForceDisconnectParams, 1)
	edge.OnNotify(NotifyForceDisconnect, func(body msgpack.RawMessage) {
		var p ForceDisconnectParams
		if err := msgpack.Unmarshal(body, &p); err == nil {
			got <- p
		}
	})

	if err := hub.Notify(NotifyForceDisconnect, ForceDisconnectParams{Session: 9, Reason: "banned", Ban: true}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	select {
	case p := <-got:
		if p.Session != 9 || !p.Ban {
			t.Fatalf("payload %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestCallFailsAfterClose(t *testing.T) {
	t.Parallel()

	edge, hub := linkedPair(t)
	hub.Close()
	edge.Close()
	err := edge.Call(context.Background(), MethodHeartbeat, HeartbeatParams{}, nil)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v", err)
	}
}

func TestCallHonorsContextCancel(t *testing.T) {
	t.Parallel()

	edge, hub := linkedPair(t)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	hub.Handle(MethodFullSync, func(context.Context, msgpack.RawMessage) (any, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := edge.Call(ctx, MethodFullSync, JoinParams{EdgeID: "x"}, nil)
	if err == nil {
		t.Fatal("expected cancellation")
	}
}

func TestSessionInfoConversion(t *testing.T) {
	t.Parallel()

	s := &state.Session{
		ID: 3, UserID: 7, Name: "alice", EdgeID: "edge-a", ChannelID: 2,
		SelfDeaf: true, PrioritySpeaker: true,
		ListeningChannels: map[uint32]bool{5: true},
		Tokens:            []string{"backstage"},
	}
	back := InfoToSession(SessionToInfo(s))
	if back.ID != 3 || back.Name != "alice" || !back.SelfDeaf || !back.PrioritySpeaker {
		t.Fatalf("round trip: %+v", back)
	}
	if !back.ListeningChannels[5] || back.Tokens[0] != "backstage" {
		t.Fatalf("collections lost: %+v", back)
	}
}

func TestChannelInfoConversion(t *testing.T) {
	t.Parallel()

	tr := state.NewTree("Root")
	tr.Add(state.Channel{ID: 1, ParentID: 0, Name: "Lobby", InheritACL: true, MaxUsers: 8})
	tr.Add(state.Channel{ID: 2, ParentID: 0, Name: "Side"})
	tr.Link(1, 2)

	ch, _ := tr.Get(1)
	back := InfoToChannel(ChannelToInfo(ch))
	if back.ID != 1 || back.Name != "Lobby" || back.MaxUsers != 8 || !back.InheritACL {
		t.Fatalf("round trip: %+v", back)
	}
	if !back.Links[2] {
		t.Fatal("links lost")
	}
}
