package hub

import (
	"context"
	"errors"
	"fmt"
	"net"

	proto "github.com/golang/protobuf/proto"
	"github.com/vmihailenco/msgpack/v5"

	"bramble/internal/acl"
	"bramble/internal/clusterpc"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

func decode[T any](body msgpack.RawMessage) (T, error) {
	var v T
	err := msgpack.Unmarshal(body, &v)
	return v, err
}

// registerHandlers wires every cluster RPC method onto one edge link.
func (h *Hub) registerHandlers(conn *clusterpc.Conn, link *edgeLink) {
	handle := func(method string, fn clusterpc.RequestFunc) {
		conn.Handle(method, func(ctx context.Context, body msgpack.RawMessage) (any, error) {
			h.met.rpcServed.WithLabelValues(method).Inc()
			return fn(ctx, body)
		})
	}

	handle(clusterpc.MethodRegister, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.RegisterParams](body)
		if err != nil {
			return nil, err
		}
		if params.EdgeID == "" {
			return nil, errors.New("empty edge id")
		}
		link.id = params.EdgeID
		link.voiceAddr = params.VoiceAddr
		if replaced := h.edges.add(link); replaced != nil {
			h.log.Warn("edge re-registered, closing stale link", "edge", link.id)
			replaced.conn.Close()
		}
		h.updateGauges()
		h.log.Info("edge registered", "edge", link.id, "voice_addr", link.voiceAddr, "version", params.Version)
		return clusterpc.RegisterResult{Peers: h.edges.peers(link.id)}, nil
	})

	handle(clusterpc.MethodJoin, func(context.Context, msgpack.RawMessage) (any, error) {
		if link.id == "" {
			return nil, errors.New("not registered")
		}
		return h.snapshot(), nil
	})

	handle(clusterpc.MethodJoinComplete, func(context.Context, msgpack.RawMessage) (any, error) {
		link.markJoined()
		h.edges.notifyOthers(link.id, clusterpc.NotifyPeerJoined, clusterpc.PeerInfo{
			EdgeID: link.id, VoiceAddr: link.voiceAddr,
		})
		h.log.Info("edge joined", "edge", link.id)
		return nil, nil
	})

	handle(clusterpc.MethodHeartbeat, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.HeartbeatParams](body)
		if err != nil {
			return nil, err
		}
		link.touch(params.Sessions)
		h.updateGauges()
		return nil, nil
	})

	handle(clusterpc.MethodFullSync, func(context.Context, msgpack.RawMessage) (any, error) {
		if link.id == "" {
			return nil, errors.New("not registered")
		}
		return h.snapshot(), nil
	})

	handle(clusterpc.MethodAllocateSessionID, func(context.Context, msgpack.RawMessage) (any, error) {
		return clusterpc.AllocateSessionIDResult{Session: h.nextSession.Add(1)}, nil
	})

	handle(clusterpc.MethodReportSession, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.ReportSessionParams](body)
		if err != nil {
			return nil, err
		}
		return nil, h.reportSession(link, params)
	})

	handle(clusterpc.MethodAuthenticateUser, func(ctx context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.AuthenticateUserParams](body)
		if err != nil {
			return nil, err
		}
		result := h.authenticate(ctx, params)
		h.met.authTotal.WithLabelValues(result.Decision).Inc()
		return result, nil
	})

	handle(clusterpc.MethodHandleACL, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.HandleACLParams](body)
		if err != nil {
			return nil, err
		}
		return h.handleACL(params)
	})

	handle(clusterpc.MethodHandleChannelState, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.HandleChannelParams](body)
		if err != nil {
			return nil, err
		}
		return h.handleChannelState(params)
	})

	handle(clusterpc.MethodHandleChannelRemove, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.HandleChannelParams](body)
		if err != nil {
			return nil, err
		}
		return h.handleChannelRemove(params)
	})

	handle(clusterpc.MethodHandleBanList, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.HandleBanListParams](body)
		if err != nil {
			return nil, err
		}
		return h.handleBanList(params)
	})

	handle(clusterpc.MethodHandleUserList, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.HandleBanListParams](body)
		if err != nil {
			return nil, err
		}
		return h.handleUserList(params)
	})

	handle(clusterpc.MethodRelayText, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.RelayTextParams](body)
		if err != nil {
			return nil, err
		}
		h.relayText(link, params)
		return nil, nil
	})

	handle(clusterpc.MethodKickUser, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.KickUserParams](body)
		if err != nil {
			return nil, err
		}
		return h.kickUser(params)
	})

	handle(clusterpc.MethodRegisterUser, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.RegisterUserParams](body)
		if err != nil {
			return nil, err
		}
		return h.registerUser(params)
	})

	handle(clusterpc.MethodReportPeerDisconnect, func(_ context.Context, body msgpack.RawMessage) (any, error) {
		params, err := decode[clusterpc.ReportPeerDisconnectParams](body)
		if err != nil {
			return nil, err
		}
		// A peer still registered here is presumed transiently unreachable;
		// one we no longer track is gone for good.
		action := clusterpc.PeerActionDisconnect
		if _, ok := h.edges.get(params.PeerID); ok {
			action = clusterpc.PeerActionWait
		}
		h.log.Warn("edge reports unreachable peer",
			"edge", params.EdgeID, "peer", params.PeerID, "action", action)
		return clusterpc.ReportPeerDisconnectResult{Action: action}, nil
	})
}

// reportSession applies a session attach, update or detach from an edge and
// fans the change out to the rest of the fleet.
func (h *Hub) reportSession(link *edgeLink, params clusterpc.ReportSessionParams) error {
	if link.id == "" {
		return errors.New("not registered")
	}
	info := params.Session
	if info.EdgeID != link.id {
		return fmt.Errorf("session %d claims edge %q", info.ID, info.EdgeID)
	}
	prev, hadPrev := h.dir.Get(info.ID)

	if params.Removed {
		h.dir.Remove(info.ID)
		h.cache.DropSession(info.ID)
		if info.UserID > 0 {
			if err := h.db.TouchUser(int64(info.UserID), info.ChannelID); err != nil {
				h.log.Warn("touch user failed", "user", info.UserID, "error", err)
			}
		}
	} else {
		h.dir.Put(clusterpc.InfoToSession(info))
		h.cache.DropSession(info.ID)
	}
	h.updateGauges()

	method := clusterpc.NotifyRemoteUserState
	if params.Removed {
		method = clusterpc.NotifyRemoteUserRemove
	}
	h.edges.notifyOthers(link.id, method, params)

	// The channel the session vacated may have been temporary.
	if hadPrev && (params.Removed || prev.ChannelID != info.ChannelID) {
		h.reapTemporary(prev.ChannelID)
	}
	return nil
}

// authenticate is the single admission decision for a connecting client.
func (h *Hub) authenticate(ctx context.Context, params clusterpc.AuthenticateUserParams) clusterpc.AuthenticateUserResult {
	deny := func(decision, reason string) clusterpc.AuthenticateUserResult {
		return clusterpc.AuthenticateUserResult{Decision: decision, UserID: -1, Reason: reason}
	}

	host, _, err := net.SplitHostPort(params.Address)
	if err != nil {
		host = params.Address
	}
	ip := net.ParseIP(host)

	if banned, reason, err := h.db.IsBanned(ip, params.CertHash); err != nil {
		h.log.Error("ban lookup failed", "error", err)
	} else if banned {
		return deny(clusterpc.AuthBanned, reason)
	}

	v := h.auth.verify(ctx, params.Username, params.Password, params.CertHash, params.Address)
	if !v.ok {
		if v.reason == "invalid username" {
			return deny(clusterpc.AuthBadUsername, v.reason)
		}
		if h.auth.recordFailure(host, h.cfg.AutoBan) {
			h.log.Warn("auto-banning address", "address", host)
			if err := h.db.AddBan(clusterpc.BanInfo{
				Address:  ip,
				Mask:     128,
				Reason:   "too many failed logins",
				Duration: uint32(h.cfg.AutoBan.Duration.Seconds()),
			}); err != nil {
				h.log.Error("auto-ban insert failed", "error", err)
			}
			return deny(clusterpc.AuthBanned, "too many failed logins")
		}
		return deny(clusterpc.AuthWrongPass, v.reason)
	}
	h.auth.clearFailures(host)

	if h.dir.Len() >= int(h.cfg.Server.MaxUsers) {
		return deny(clusterpc.AuthServerFull, "server is full")
	}
	if h.dir.NameTaken(params.Username) {
		return deny(clusterpc.AuthNameInUse, "username already connected")
	}

	userID := v.userID
	if userID < 0 {
		// Cert-registered users reclaim their id without a password.
		if u, err := h.db.GetUserByName(params.Username); err == nil {
			if params.CertHash != "" && u.CertHash == params.CertHash {
				userID = int(u.ID)
			} else if u.CertHash != "" {
				return deny(clusterpc.AuthWrongPass, "registered name requires its certificate")
			}
		}
	}
	if v.superUser {
		userID = 0
	}
	return clusterpc.AuthenticateUserResult{
		Decision: clusterpc.AuthAllow,
		UserID:   userID,
		Groups:   v.groups,
	}
}

func (h *Hub) hasPerm(sess *state.Session, channel uint32, perm acl.Perm) bool {
	if sess.UserID == 0 {
		// SuperUser.
		return true
	}
	ctx, err := h.tree.ACLContext(channel)
	if err != nil {
		return false
	}
	return h.cache.Check(ctx, acl.User{
		Session:   sess.ID,
		UserID:    sess.UserID,
		CertHash:  sess.CertHash,
		Tokens:    sess.Tokens,
		ChannelID: sess.ChannelID,
	}, perm)
}

func denied(typ mumbleproto.PermissionDenied_DenyType, channel uint32, perm acl.Perm) []byte {
	msg := &mumbleproto.PermissionDenied{Type: typ.Enum()}
	if typ == mumbleproto.PermissionDenied_Permission {
		msg.ChannelId = proto.Uint32(channel)
		msg.Permission = proto.Uint32(uint32(perm))
	}
	out, _ := proto.Marshal(msg)
	return out
}

// handleACL arbitrates a forwarded client ACL message.
func (h *Hub) handleACL(params clusterpc.HandleACLParams) (clusterpc.HandleACLResult, error) {
	var msg mumbleproto.ACL
	if err := proto.Unmarshal(params.Payload, &msg); err != nil {
		return clusterpc.HandleACLResult{}, fmt.Errorf("bad ACL payload: %w", err)
	}
	sess, ok := h.dir.Get(params.Session)
	if !ok {
		return clusterpc.HandleACLResult{}, fmt.Errorf("unknown session %d", params.Session)
	}
	channelID := msg.GetChannelId()
	ch, ok := h.tree.Get(channelID)
	if !ok {
		return clusterpc.HandleACLResult{}, fmt.Errorf("unknown channel %d", channelID)
	}

	if !h.hasPerm(sess, channelID, acl.Write) && !h.hasPerm(sess, ch.ParentID, acl.Write) {
		return clusterpc.HandleACLResult{
			Response: denied(mumbleproto.PermissionDenied_Permission, channelID, acl.Write),
			Denied:   true,
		}, nil
	}

	if msg.GetQuery() {
		resp := aclToMessage(channelID, ch)
		out, err := proto.Marshal(resp)
		if err != nil {
			return clusterpc.HandleACLResult{}, err
		}
		return clusterpc.HandleACLResult{Response: out}, nil
	}

	applyACLMessage(&ch, &msg)
	if err := h.tree.Update(ch); err != nil {
		return clusterpc.HandleACLResult{}, err
	}
	if !ch.Temporary {
		if err := h.db.SaveChannel(clusterpc.ChannelToInfo(ch)); err != nil {
			h.log.Error("persist acl failed", "channel", channelID, "error", err)
		}
	}
	h.cache.Flush()
	h.edges.notifyAll(clusterpc.NotifyACLUpdated, clusterpc.ACLUpdatedParams{ChannelID: channelID})
	h.log.Info("acl updated", "channel", channelID, "actor", sess.ID)
	return clusterpc.HandleACLResult{}, nil
}

// aclToMessage renders a channel's own ACL data as a query response.
func aclToMessage(channelID uint32, ch state.Channel) *mumbleproto.ACL {
	resp := &mumbleproto.ACL{
		ChannelId:   proto.Uint32(channelID),
		InheritAcls: proto.Bool(ch.InheritACL),
	}
	for _, e := range ch.Entries {
		entry := &mumbleproto.ACL_ChanACL{
			ApplyHere: proto.Bool(e.ApplyHere),
			ApplySubs: proto.Bool(e.ApplySubs),
			Inherited: proto.Bool(false),
			Grant:     proto.Uint32(uint32(e.Grant)),
			Deny:      proto.Uint32(uint32(e.Deny)),
		}
		if e.Group != "" {
			entry.Group = proto.String(e.Group)
		} else {
			entry.UserId = proto.Uint32(uint32(e.UserID))
		}
		resp.Acls = append(resp.Acls, entry)
	}
	for _, g := range ch.Groups {
		group := &mumbleproto.ACL_ChanGroup{
			Name:        proto.String(g.Name),
			Inherit:     proto.Bool(g.Inherit),
			Inheritable: proto.Bool(g.Inheritable),
		}
		for id := range g.Add {
			group.Add = append(group.Add, uint32(id))
		}
		for id := range g.Remove {
			group.Remove = append(group.Remove, uint32(id))
		}
		resp.Groups = append(resp.Groups, group)
	}
	return resp
}

// applyACLMessage replaces a channel's ACL data from a client write.
func applyACLMessage(ch *state.Channel, msg *mumbleproto.ACL) {
	ch.InheritACL = msg.GetInheritAcls()
	ch.Entries = nil
	for _, e := range msg.Acls {
		if e.GetInherited() {
			continue
		}
		entry := acl.Entry{
			ApplyHere: e.GetApplyHere(),
			ApplySubs: e.GetApplySubs(),
			UserID:    -1,
			Grant:     acl.Perm(e.GetGrant()),
			Deny:      acl.Perm(e.GetDeny()),
		}
		if e.Group != nil {
			entry.Group = e.GetGroup()
		} else {
			entry.UserID = int(e.GetUserId())
		}
		ch.Entries = append(ch.Entries, entry)
	}
	ch.Groups = make(map[string]*acl.Group)
	for _, g := range msg.Groups {
		group := &acl.Group{
			Name:        g.GetName(),
			Inherit:     g.GetInherit(),
			Inheritable: g.GetInheritable(),
			Add:         make(map[int]bool),
			Remove:      make(map[int]bool),
		}
		for _, id := range g.Add {
			group.Add[int(id)] = true
		}
		for _, id := range g.Remove {
			group.Remove[int(id)] = true
		}
		ch.Groups[group.Name] = group
	}
}
