package edge

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	proto "github.com/golang/protobuf/proto"
	"github.com/vmihailenco/msgpack/v5"

	"bramble/internal/clusterpc"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

const (
	reconnectInterval = 2 * time.Second
	// reconnectWindow is how long the edge keeps its clients while the hub
	// is unreachable; past it, everyone is dropped and the edge rejoins
	// from scratch.
	reconnectWindow   = 10 * time.Second
	rejoinDelay       = 5 * time.Second
	heartbeatInterval = 30 * time.Second
)

var errHubUnavailable = errors.New("edge: hub link down")

func decode[T any](body msgpack.RawMessage) (T, error) {
	var v T
	err := msgpack.Unmarshal(body, &v)
	return v, err
}

// hubLink maintains the control connection to the hub across reconnects.
type hubLink struct {
	edge *Edge

	mu   sync.RWMutex
	conn *clusterpc.Conn

	resyncMu sync.Mutex
}

func newHubLink(e *Edge) *hubLink {
	return &hubLink{edge: e}
}

func (h *hubLink) setConn(conn *clusterpc.Conn) {
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
}

func (h *hubLink) getConn() *clusterpc.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

func (h *hubLink) call(ctx context.Context, method string, params, result any) error {
	conn := h.getConn()
	if conn == nil {
		return errHubUnavailable
	}
	return conn.Call(ctx, method, params, result)
}

// run keeps the hub session alive: reconnect every 2s, and after 10s of
// outage drop all clients and rejoin slowly.
func (h *hubLink) run(ctx context.Context) error {
	var downSince time.Time
	dropped := false

	for ctx.Err() == nil {
		joined, err := h.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if joined {
			downSince = time.Now()
			dropped = false
			h.edge.log.Warn("cluster link lost", "error", err)
			continue
		}
		if err != nil {
			h.edge.log.Warn("hub connect failed", "addr", h.edge.cfg.Hub.Addr, "error", err)
		}
		if downSince.IsZero() {
			downSince = time.Now()
		}
		if !dropped && time.Since(downSince) > reconnectWindow {
			h.edge.log.Error("hub unreachable, dropping clients", "down", time.Since(downSince))
			h.edge.fullDisconnect()
			dropped = true
		}
		wait := reconnectInterval
		if dropped {
			wait = rejoinDelay
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// session runs one hub connection from dial to link loss. joined reports
// whether the startup sequence completed.
func (h *hubLink) session(ctx context.Context) (joined bool, err error) {
	e := h.edge
	tlsCfg := &tls.Config{InsecureSkipVerify: e.cfg.Hub.InsecureSkipVerify}
	dialer := &tls.Dialer{Config: tlsCfg}
	nc, err := dialer.DialContext(ctx, "tcp", e.cfg.Hub.Addr)
	if err != nil {
		return false, err
	}

	conn := clusterpc.New(nc, e.log)
	h.registerNotifications(conn)
	serveErr := make(chan error, 1)
	go func() { serveErr <- conn.Serve(ctx) }()
	defer func() {
		h.setConn(nil)
		conn.Close()
	}()

	var reg clusterpc.RegisterResult
	if err := conn.Call(ctx, clusterpc.MethodRegister, clusterpc.RegisterParams{
		EdgeID:    e.cfg.EdgeID,
		VoiceAddr: e.cfg.PublicVoiceAddr,
		Version:   Version,
	}, &reg); err != nil {
		return false, err
	}
	for _, p := range reg.Peers {
		e.peers.add(p)
	}

	var snap clusterpc.JoinResult
	if err := conn.Call(ctx, clusterpc.MethodJoin, clusterpc.JoinParams{EdgeID: e.cfg.EdgeID}, &snap); err != nil {
		return false, err
	}
	e.applySnapshot(snap)
	h.setConn(conn)

	// After a rejoin the hub has forgotten our sessions; re-announce them.
	for _, c := range e.localClients() {
		if !c.isSynced() {
			continue
		}
		if sess, ok := e.dir.Get(c.session); ok {
			if err := conn.Call(ctx, clusterpc.MethodReportSession, clusterpc.ReportSessionParams{
				Session: clusterpc.SessionToInfo(sess),
			}, nil); err != nil {
				e.log.Warn("session re-report failed", "session", sess.ID, "error", err)
			}
		}
	}

	if err := conn.Call(ctx, clusterpc.MethodJoinComplete, clusterpc.JoinCompleteParams{EdgeID: e.cfg.EdgeID}, nil); err != nil {
		return false, err
	}
	e.log.Info("joined cluster", "channels", e.tree.Count(), "sessions", e.dir.Len())

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-serveErr:
			return true, err
		case <-ctx.Done():
			return true, nil
		case <-ticker.C:
			if err := conn.Call(ctx, clusterpc.MethodHeartbeat, clusterpc.HeartbeatParams{
				EdgeID:   e.cfg.EdgeID,
				Sessions: len(e.localClients()),
			}, nil); err != nil {
				e.log.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// resync refreshes the whole replica; used when ACLs change, since channel
// notifications do not carry ACL data.
func (h *hubLink) resync(ctx context.Context) {
	h.resyncMu.Lock()
	defer h.resyncMu.Unlock()
	var snap clusterpc.JoinResult
	if err := h.call(ctx, clusterpc.MethodFullSync, clusterpc.JoinParams{EdgeID: h.edge.cfg.EdgeID}, &snap); err != nil {
		h.edge.log.Warn("resync failed", "error", err)
		return
	}
	h.edge.applySnapshot(snap)
	h.edge.refreshSuppress()
}

func (h *hubLink) registerNotifications(conn *clusterpc.Conn) {
	e := h.edge

	conn.OnNotify(clusterpc.NotifyPeerJoined, func(body msgpack.RawMessage) {
		if p, err := decode[clusterpc.PeerInfo](body); err == nil {
			e.peers.add(p)
		}
	})
	conn.OnNotify(clusterpc.NotifyPeerLeft, func(body msgpack.RawMessage) {
		if p, err := decode[clusterpc.PeerInfo](body); err == nil {
			e.peers.remove(p.EdgeID)
		}
	})
	conn.OnNotify(clusterpc.NotifyForceDisconnect, func(body msgpack.RawMessage) {
		p, err := decode[clusterpc.ForceDisconnectParams](body)
		if err != nil {
			return
		}
		if p.Session == 0 {
			// Edge-level order: drop everything and rejoin from scratch.
			// Session ids start at 1, so zero is unambiguous.
			e.log.Warn("hub ordered full disconnect", "reason", p.Reason)
			e.fullDisconnect()
			conn.Close()
			return
		}
		if c, ok := e.client(p.Session); ok {
			e.log.Info("hub ordered disconnect", "session", p.Session, "ban", p.Ban)
			c.kick(0, p.Reason, p.Ban)
		}
	})
	conn.OnNotify(clusterpc.NotifyACLUpdated, func(body msgpack.RawMessage) {
		e.cache.Flush()
		go h.resync(context.Background())
	})
	conn.OnNotify(clusterpc.NotifyRemoteUserState, func(body msgpack.RawMessage) {
		p, err := decode[clusterpc.ReportSessionParams](body)
		if err != nil || p.Session.EdgeID == e.cfg.EdgeID {
			return
		}
		sess := clusterpc.InfoToSession(p.Session)
		e.dir.Put(sess)
		e.cache.DropSession(sess.ID)
		e.broadcast(sessionToUserState(sess))
	})
	conn.OnNotify(clusterpc.NotifyRemoteUserRemove, func(body msgpack.RawMessage) {
		p, err := decode[clusterpc.ReportSessionParams](body)
		if err != nil || p.Session.EdgeID == e.cfg.EdgeID {
			return
		}
		e.dir.Remove(p.Session.ID)
		e.cache.DropSession(p.Session.ID)
		e.broadcast(&mumbleproto.UserRemove{Session: proto.Uint32(p.Session.ID)})
	})
	conn.OnNotify(clusterpc.NotifyRemoteText, func(body msgpack.RawMessage) {
		p, err := decode[clusterpc.RelayTextParams](body)
		if err != nil {
			return
		}
		for _, id := range p.Sessions {
			if lc, ok := e.client(id); ok {
				lc.sendRaw(mumbleproto.MessageTextMessage, p.Payload)
			}
		}
	})
	conn.OnNotify(clusterpc.NotifyChannelState, func(body msgpack.RawMessage) {
		p, err := decode[clusterpc.RawMessageParams](body)
		if err != nil {
			return
		}
		var msg mumbleproto.ChannelState
		if err := proto.Unmarshal(p.Payload, &msg); err != nil {
			return
		}
		e.applyChannelState(&msg)
		e.broadcastRaw(mumbleproto.MessageChannelState, p.Payload)
	})
	conn.OnNotify(clusterpc.NotifyChannelRemove, func(body msgpack.RawMessage) {
		p, err := decode[clusterpc.RawMessageParams](body)
		if err != nil {
			return
		}
		var msg mumbleproto.ChannelRemove
		if err := proto.Unmarshal(p.Payload, &msg); err != nil {
			return
		}
		id := msg.GetChannelId()
		// Anyone left in a deleted channel falls back to the root.
		for _, s := range e.dir.InChannel(id) {
			e.dir.Update(s.ID, func(cur *state.Session) { cur.ChannelID = state.RootChannelID })
		}
		if err := e.tree.Remove(id); err != nil {
			e.log.Debug("replica channel remove", "channel", id, "error", err)
		}
		e.cache.Flush()
		e.broadcastRaw(mumbleproto.MessageChannelRemove, p.Payload)
	})
}

// applySnapshot installs a hub state snapshot into the replica.
func (e *Edge) applySnapshot(snap clusterpc.JoinResult) {
	channels := make([]state.Channel, 0, len(snap.Channels))
	for _, info := range snap.Channels {
		channels = append(channels, clusterpc.InfoToChannel(info))
	}
	e.tree.Replace(channels)

	keep := make(map[uint32]bool, len(snap.Sessions))
	for _, info := range snap.Sessions {
		if info.EdgeID == e.cfg.EdgeID {
			// Local sessions: this edge is the source of truth.
			continue
		}
		e.dir.Put(clusterpc.InfoToSession(info))
		keep[info.ID] = true
	}
	for _, s := range e.dir.All() {
		if s.EdgeID != e.cfg.EdgeID && !keep[s.ID] {
			e.dir.Remove(s.ID)
		}
	}

	e.setServerConfig(snap.Config)
	e.cache.Flush()
}

// applyChannelState folds a hub channel notification into the replica tree.
func (e *Edge) applyChannelState(msg *mumbleproto.ChannelState) {
	id := msg.GetChannelId()
	ch, exists := e.tree.Get(id)
	if !exists {
		ch = state.Channel{ID: id, InheritACL: true}
	}
	if msg.Parent != nil {
		ch.ParentID = msg.GetParent()
	}
	if msg.Name != nil {
		ch.Name = msg.GetName()
	}
	if msg.Description != nil {
		ch.Description = msg.GetDescription()
	}
	if msg.Position != nil {
		ch.Position = msg.GetPosition()
	}
	if msg.Temporary != nil {
		ch.Temporary = msg.GetTemporary()
	}
	if msg.MaxUsers != nil {
		ch.MaxUsers = msg.GetMaxUsers()
	}
	var err error
	if exists {
		err = e.tree.Update(ch)
	} else {
		err = e.tree.Add(ch)
	}
	if err != nil {
		e.log.Warn("replica channel apply failed", "channel", id, "error", err)
		return
	}
	for _, other := range msg.LinksAdd {
		e.tree.Link(id, other)
	}
	for _, other := range msg.LinksRemove {
		e.tree.Unlink(id, other)
	}
	e.cache.Flush()
}

// fullDisconnect clears all cluster state after a hopeless outage.
func (e *Edge) fullDisconnect() {
	e.disconnectAll("cluster link lost")
	e.peers.clear()
	for _, s := range e.dir.All() {
		e.dir.Remove(s.ID)
	}
	e.tree.Replace(nil)
	e.cache.Flush()
}

// RPC wrappers used by client handlers.

func (h *hubLink) authenticateUser(ctx context.Context, params clusterpc.AuthenticateUserParams) (clusterpc.AuthenticateUserResult, error) {
	var result clusterpc.AuthenticateUserResult
	err := h.call(ctx, clusterpc.MethodAuthenticateUser, params, &result)
	return result, err
}

func (h *hubLink) allocateSessionID(ctx context.Context) (uint32, error) {
	var result clusterpc.AllocateSessionIDResult
	err := h.call(ctx, clusterpc.MethodAllocateSessionID, clusterpc.AllocateSessionIDParams{EdgeID: h.edge.cfg.EdgeID}, &result)
	return result.Session, err
}

func (h *hubLink) handleACL(ctx context.Context, params clusterpc.HandleACLParams) (clusterpc.HandleACLResult, error) {
	var result clusterpc.HandleACLResult
	err := h.call(ctx, clusterpc.MethodHandleACL, params, &result)
	return result, err
}

func (h *hubLink) handleChannel(ctx context.Context, method string, params clusterpc.HandleChannelParams) (clusterpc.HandleChannelResult, error) {
	var result clusterpc.HandleChannelResult
	err := h.call(ctx, method, params, &result)
	return result, err
}

func (h *hubLink) handleList(ctx context.Context, method string, params clusterpc.HandleBanListParams) (clusterpc.HandleBanListResult, error) {
	var result clusterpc.HandleBanListResult
	err := h.call(ctx, method, params, &result)
	return result, err
}

func (h *hubLink) kickUser(ctx context.Context, params clusterpc.KickUserParams) (clusterpc.KickUserResult, error) {
	var result clusterpc.KickUserResult
	err := h.call(ctx, clusterpc.MethodKickUser, params, &result)
	return result, err
}

func (h *hubLink) registerUser(ctx context.Context, session uint32) (clusterpc.RegisterUserResult, error) {
	var result clusterpc.RegisterUserResult
	err := h.call(ctx, clusterpc.MethodRegisterUser, clusterpc.RegisterUserParams{
		EdgeID:  h.edge.cfg.EdgeID,
		Session: session,
	}, &result)
	return result, err
}

func (h *hubLink) relayText(ctx context.Context, params clusterpc.RelayTextParams) error {
	return h.call(ctx, clusterpc.MethodRelayText, params, nil)
}

// reportSession pushes a local session's full state to the hub.
func (e *Edge) reportSession(sess *state.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), clusterpc.CallTimeout)
	defer cancel()
	return e.hub.call(ctx, clusterpc.MethodReportSession, clusterpc.ReportSessionParams{
		Session: clusterpc.SessionToInfo(sess),
	}, nil)
}

func (e *Edge) reportSessionRemoved(sess *state.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), clusterpc.CallTimeout)
	defer cancel()
	if err := e.hub.call(ctx, clusterpc.MethodReportSession, clusterpc.ReportSessionParams{
		Session: clusterpc.SessionToInfo(sess),
		Removed: true,
	}, nil); err != nil && !errors.Is(err, errHubUnavailable) {
		e.log.Warn("session removal report failed", "session", sess.ID, "error", err)
	}
}
