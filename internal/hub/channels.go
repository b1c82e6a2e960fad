package hub

import (
	"fmt"
	"net"
	"strings"

	proto "github.com/golang/protobuf/proto"

	"bramble/internal/acl"
	"bramble/internal/clusterpc"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

// handleChannelState arbitrates a forwarded ChannelState: create, edit, move
// or relink a channel.
func (h *Hub) handleChannelState(params clusterpc.HandleChannelParams) (clusterpc.HandleChannelResult, error) {
	var msg mumbleproto.ChannelState
	if err := proto.Unmarshal(params.Payload, &msg); err != nil {
		return clusterpc.HandleChannelResult{}, fmt.Errorf("bad ChannelState payload: %w", err)
	}
	sess, ok := h.dir.Get(params.Session)
	if !ok {
		return clusterpc.HandleChannelResult{}, fmt.Errorf("unknown session %d", params.Session)
	}

	if msg.ChannelId == nil {
		return h.createChannel(sess, &msg)
	}
	return h.editChannel(sess, &msg)
}

func (h *Hub) createChannel(sess *state.Session, msg *mumbleproto.ChannelState) (clusterpc.HandleChannelResult, error) {
	parent := msg.GetParent()
	name := strings.TrimSpace(msg.GetName())
	if name == "" {
		return clusterpc.HandleChannelResult{
			Denied: denied(mumbleproto.PermissionDenied_ChannelName, parent, 0),
		}, nil
	}
	need := acl.MakeChannel
	if msg.GetTemporary() {
		need = acl.TempChannel
	}
	if !h.hasPerm(sess, parent, need) {
		return clusterpc.HandleChannelResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, parent, need),
		}, nil
	}

	ch := state.Channel{
		ID:          h.allocateChannelID(),
		ParentID:    parent,
		Name:        name,
		Description: msg.GetDescription(),
		Position:    msg.GetPosition(),
		Temporary:   msg.GetTemporary(),
		MaxUsers:    msg.GetMaxUsers(),
		InheritACL:  true,
	}
	if err := h.tree.Add(ch); err != nil {
		return clusterpc.HandleChannelResult{
			Denied: deniedForTreeErr(err, parent),
		}, nil
	}
	if !ch.Temporary {
		if err := h.db.SaveChannel(clusterpc.ChannelToInfo(ch)); err != nil {
			h.log.Error("persist channel failed", "channel", ch.ID, "error", err)
		}
	}
	h.cache.Flush()

	msg.ChannelId = proto.Uint32(ch.ID)
	out, err := proto.Marshal(msg)
	if err != nil {
		return clusterpc.HandleChannelResult{}, err
	}
	h.edges.notifyAll(clusterpc.NotifyChannelState, clusterpc.RawMessageParams{Payload: out})
	h.log.Info("channel created", "channel", ch.ID, "name", ch.Name, "actor", sess.ID, "temporary", ch.Temporary)
	return clusterpc.HandleChannelResult{ChannelID: ch.ID}, nil
}

func (h *Hub) editChannel(sess *state.Session, msg *mumbleproto.ChannelState) (clusterpc.HandleChannelResult, error) {
	id := msg.GetChannelId()
	ch, ok := h.tree.Get(id)
	if !ok {
		return clusterpc.HandleChannelResult{}, fmt.Errorf("unknown channel %d", id)
	}

	linkChange := len(msg.LinksAdd) > 0 || len(msg.LinksRemove) > 0
	stateChange := msg.Name != nil || msg.Description != nil || msg.Position != nil ||
		msg.MaxUsers != nil || (msg.Parent != nil && msg.GetParent() != ch.ParentID)

	if stateChange && !h.hasPerm(sess, id, acl.Write) {
		return clusterpc.HandleChannelResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, id, acl.Write),
		}, nil
	}
	if linkChange && !h.hasPerm(sess, id, acl.LinkChannel) {
		return clusterpc.HandleChannelResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, id, acl.LinkChannel),
		}, nil
	}
	// Linking needs the permission on both ends.
	for _, other := range append(append([]uint32{}, msg.LinksAdd...), msg.LinksRemove...) {
		if !h.hasPerm(sess, other, acl.LinkChannel) {
			return clusterpc.HandleChannelResult{
				Denied: denied(mumbleproto.PermissionDenied_Permission, other, acl.LinkChannel),
			}, nil
		}
	}

	if msg.Name != nil {
		ch.Name = strings.TrimSpace(msg.GetName())
		if ch.Name == "" {
			return clusterpc.HandleChannelResult{
				Denied: denied(mumbleproto.PermissionDenied_ChannelName, id, 0),
			}, nil
		}
	}
	if msg.Description != nil {
		ch.Description = msg.GetDescription()
	}
	if msg.Position != nil {
		ch.Position = msg.GetPosition()
	}
	if msg.MaxUsers != nil {
		ch.MaxUsers = msg.GetMaxUsers()
	}
	if msg.Parent != nil {
		ch.ParentID = msg.GetParent()
	}
	if err := h.tree.Update(ch); err != nil {
		return clusterpc.HandleChannelResult{
			Denied: deniedForTreeErr(err, id),
		}, nil
	}
	for _, other := range msg.LinksAdd {
		if err := h.tree.Link(id, other); err != nil {
			h.log.Warn("link failed", "channel", id, "other", other, "error", err)
		}
	}
	for _, other := range msg.LinksRemove {
		if err := h.tree.Unlink(id, other); err != nil {
			h.log.Warn("unlink failed", "channel", id, "other", other, "error", err)
		}
	}

	ch, _ = h.tree.Get(id)
	if !ch.Temporary {
		if err := h.db.SaveChannel(clusterpc.ChannelToInfo(ch)); err != nil {
			h.log.Error("persist channel failed", "channel", id, "error", err)
		}
	}
	h.cache.Flush()

	out, err := proto.Marshal(msg)
	if err != nil {
		return clusterpc.HandleChannelResult{}, err
	}
	h.edges.notifyAll(clusterpc.NotifyChannelState, clusterpc.RawMessageParams{Payload: out})
	return clusterpc.HandleChannelResult{ChannelID: id}, nil
}

// handleChannelRemove deletes a channel subtree.
func (h *Hub) handleChannelRemove(params clusterpc.HandleChannelParams) (clusterpc.HandleChannelResult, error) {
	var msg mumbleproto.ChannelRemove
	if err := proto.Unmarshal(params.Payload, &msg); err != nil {
		return clusterpc.HandleChannelResult{}, fmt.Errorf("bad ChannelRemove payload: %w", err)
	}
	sess, ok := h.dir.Get(params.Session)
	if !ok {
		return clusterpc.HandleChannelResult{}, fmt.Errorf("unknown session %d", params.Session)
	}
	id := msg.GetChannelId()
	if id == state.RootChannelID {
		return clusterpc.HandleChannelResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, id, acl.Write),
		}, nil
	}
	if !h.hasPerm(sess, id, acl.Write) {
		return clusterpc.HandleChannelResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, id, acl.Write),
		}, nil
	}

	// Leaves first.
	subtree := h.tree.Subtree(id)
	for i := len(subtree) - 1; i >= 0; i-- {
		victim := subtree[i]
		if err := h.tree.Remove(victim); err != nil {
			h.log.Error("remove channel failed", "channel", victim, "error", err)
			continue
		}
		if err := h.db.DeleteChannel(victim); err != nil {
			h.log.Debug("channel not persisted", "channel", victim, "error", err)
		}
		out, err := proto.Marshal(&mumbleproto.ChannelRemove{ChannelId: proto.Uint32(victim)})
		if err == nil {
			h.edges.notifyAll(clusterpc.NotifyChannelRemove, clusterpc.RawMessageParams{Payload: out})
		}
	}
	h.cache.Flush()
	h.log.Info("channel removed", "channel", id, "actor", sess.ID, "subtree", len(subtree))
	return clusterpc.HandleChannelResult{ChannelID: id}, nil
}

// reapTemporary removes a just-emptied temporary channel, walking up while
// the parent chain is also temporary, childless and empty.
func (h *Hub) reapTemporary(id uint32) {
	for id != state.RootChannelID {
		ch, ok := h.tree.Get(id)
		if !ok || !ch.Temporary {
			return
		}
		if len(h.dir.InChannel(id)) > 0 || len(h.tree.Children(id)) > 0 {
			return
		}
		if err := h.tree.Remove(id); err != nil {
			h.log.Error("remove temporary channel failed", "channel", id, "error", err)
			return
		}
		h.cache.Flush()
		out, err := proto.Marshal(&mumbleproto.ChannelRemove{ChannelId: proto.Uint32(id)})
		if err == nil {
			h.edges.notifyAll(clusterpc.NotifyChannelRemove, clusterpc.RawMessageParams{Payload: out})
		}
		h.log.Info("empty temporary channel removed", "channel", id)
		id = ch.ParentID
	}
}

// deniedForTreeErr maps tree constraint violations onto the matching client
// denial.
func deniedForTreeErr(err error, channel uint32) []byte {
	switch {
	case err == state.ErrNestingLimit:
		return denied(mumbleproto.PermissionDenied_NestingLimit, channel, 0)
	case err == state.ErrChannelLimit:
		return denied(mumbleproto.PermissionDenied_ChannelCountLimit, channel, 0)
	case err == state.ErrDuplicateName:
		return denied(mumbleproto.PermissionDenied_ChannelName, channel, 0)
	default:
		return denied(mumbleproto.PermissionDenied_Permission, channel, acl.Write)
	}
}

// handleBanList serves a forwarded BanList query or replacement.
func (h *Hub) handleBanList(params clusterpc.HandleBanListParams) (clusterpc.HandleBanListResult, error) {
	var msg mumbleproto.BanList
	if err := proto.Unmarshal(params.Payload, &msg); err != nil {
		return clusterpc.HandleBanListResult{}, fmt.Errorf("bad BanList payload: %w", err)
	}
	sess, ok := h.dir.Get(params.Session)
	if !ok {
		return clusterpc.HandleBanListResult{}, fmt.Errorf("unknown session %d", params.Session)
	}
	if !h.hasPerm(sess, state.RootChannelID, acl.Ban) {
		return clusterpc.HandleBanListResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, state.RootChannelID, acl.Ban),
		}, nil
	}

	if msg.GetQuery() {
		bans, err := h.db.ListBans()
		if err != nil {
			return clusterpc.HandleBanListResult{}, err
		}
		resp := &mumbleproto.BanList{}
		for _, b := range bans {
			resp.Bans = append(resp.Bans, &mumbleproto.BanList_BanEntry{
				Address:  b.Address,
				Mask:     proto.Uint32(b.Mask),
				Name:     proto.String(b.Name),
				Hash:     proto.String(b.CertHash),
				Reason:   proto.String(b.Reason),
				Start:    proto.String(b.Start),
				Duration: proto.Uint32(b.Duration),
			})
		}
		out, err := proto.Marshal(resp)
		if err != nil {
			return clusterpc.HandleBanListResult{}, err
		}
		return clusterpc.HandleBanListResult{Response: out}, nil
	}

	var bans []clusterpc.BanInfo
	for _, b := range msg.Bans {
		bans = append(bans, clusterpc.BanInfo{
			Address:  b.Address,
			Mask:     b.GetMask(),
			Name:     b.GetName(),
			CertHash: b.GetHash(),
			Reason:   b.GetReason(),
			Start:    b.GetStart(),
			Duration: b.GetDuration(),
		})
	}
	if err := h.db.ReplaceBans(bans); err != nil {
		return clusterpc.HandleBanListResult{}, err
	}
	h.log.Info("ban list replaced", "actor", sess.ID, "entries", len(bans))
	return clusterpc.HandleBanListResult{}, nil
}

// handleUserList serves a forwarded UserList query or edit (rename, drop
// registration).
func (h *Hub) handleUserList(params clusterpc.HandleBanListParams) (clusterpc.HandleBanListResult, error) {
	var msg mumbleproto.UserList
	if err := proto.Unmarshal(params.Payload, &msg); err != nil {
		return clusterpc.HandleBanListResult{}, fmt.Errorf("bad UserList payload: %w", err)
	}
	sess, ok := h.dir.Get(params.Session)
	if !ok {
		return clusterpc.HandleBanListResult{}, fmt.Errorf("unknown session %d", params.Session)
	}
	if !h.hasPerm(sess, state.RootChannelID, acl.Register) {
		return clusterpc.HandleBanListResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, state.RootChannelID, acl.Register),
		}, nil
	}

	if len(msg.Users) == 0 {
		users, err := h.db.ListUsers()
		if err != nil {
			return clusterpc.HandleBanListResult{}, err
		}
		resp := &mumbleproto.UserList{}
		for _, u := range users {
			resp.Users = append(resp.Users, &mumbleproto.UserList_User{
				UserId:      proto.Uint32(uint32(u.ID)),
				Name:        proto.String(u.Name),
				LastChannel: proto.Uint32(u.LastChannel),
			})
		}
		out, err := proto.Marshal(resp)
		if err != nil {
			return clusterpc.HandleBanListResult{}, err
		}
		return clusterpc.HandleBanListResult{Response: out}, nil
	}

	for _, u := range msg.Users {
		id := int64(u.GetUserId())
		if u.Name == nil {
			if err := h.db.DeleteUser(id); err != nil {
				h.log.Warn("deregister failed", "user", id, "error", err)
			}
			continue
		}
		if err := h.db.RenameUser(id, u.GetName()); err != nil {
			h.log.Warn("rename failed", "user", id, "error", err)
		}
	}
	return clusterpc.HandleBanListResult{}, nil
}

// kickUser arbitrates a kick (and optional ban) of any user in the fleet,
// telling the owning edge to drop the connection.
func (h *Hub) kickUser(params clusterpc.KickUserParams) (clusterpc.KickUserResult, error) {
	actor, ok := h.dir.Get(params.Actor)
	if !ok {
		return clusterpc.KickUserResult{}, fmt.Errorf("unknown session %d", params.Actor)
	}
	target, ok := h.dir.Get(params.Target)
	if !ok {
		return clusterpc.KickUserResult{}, fmt.Errorf("unknown session %d", params.Target)
	}
	need := acl.Kick
	if params.Ban {
		need = acl.Ban
	}
	if !h.hasPerm(actor, state.RootChannelID, need) {
		return clusterpc.KickUserResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, state.RootChannelID, need),
		}, nil
	}

	if params.Ban {
		host, _, err := net.SplitHostPort(target.Address)
		if err != nil {
			host = target.Address
		}
		if err := h.db.AddBan(clusterpc.BanInfo{
			Address:  net.ParseIP(host),
			Mask:     128,
			Name:     target.Name,
			CertHash: target.CertHash,
			Reason:   params.Reason,
		}); err != nil {
			h.log.Error("kick-ban insert failed", "target", target.ID, "error", err)
		}
	}

	if e, ok := h.edges.get(target.EdgeID); ok {
		if err := e.conn.Notify(clusterpc.NotifyForceDisconnect, clusterpc.ForceDisconnectParams{
			Session: target.ID, Reason: params.Reason, Ban: params.Ban,
		}); err != nil {
			h.log.Warn("force disconnect notify failed", "edge", target.EdgeID, "error", err)
		}
	}
	h.log.Info("user kicked", "target", target.ID, "actor", actor.ID, "ban", params.Ban)
	return clusterpc.KickUserResult{}, nil
}

// registerUser self-registers a connected session under its certificate.
func (h *Hub) registerUser(params clusterpc.RegisterUserParams) (clusterpc.RegisterUserResult, error) {
	sess, ok := h.dir.Get(params.Session)
	if !ok {
		return clusterpc.RegisterUserResult{}, fmt.Errorf("unknown session %d", params.Session)
	}
	if sess.UserID >= 0 {
		return clusterpc.RegisterUserResult{UserID: sess.UserID}, nil
	}
	if sess.CertHash == "" {
		return clusterpc.RegisterUserResult{
			Denied: denied(mumbleproto.PermissionDenied_MissingCertificate, state.RootChannelID, 0),
		}, nil
	}
	if !h.hasPerm(sess, state.RootChannelID, acl.SelfRegister) {
		return clusterpc.RegisterUserResult{
			Denied: denied(mumbleproto.PermissionDenied_Permission, state.RootChannelID, acl.SelfRegister),
		}, nil
	}
	id, err := h.db.RegisterUser(sess.Name, sess.CertHash)
	if err != nil {
		return clusterpc.RegisterUserResult{}, err
	}
	h.dir.Update(sess.ID, func(s *state.Session) { s.UserID = int(id) })
	h.cache.DropSession(sess.ID)
	h.log.Info("user registered", "session", sess.ID, "name", sess.Name, "user", id)
	return clusterpc.RegisterUserResult{UserID: int(id)}, nil
}

// relayText fans a text message's recipients out to their owning edges.
func (h *Hub) relayText(link *edgeLink, params clusterpc.RelayTextParams) {
	byEdge := make(map[string][]uint32)
	for _, target := range params.Sessions {
		if s, ok := h.dir.Get(target); ok && s.EdgeID != link.id {
			byEdge[s.EdgeID] = append(byEdge[s.EdgeID], target)
		}
	}
	for edgeID, sessions := range byEdge {
		e, ok := h.edges.get(edgeID)
		if !ok {
			continue
		}
		if err := e.conn.Notify(clusterpc.NotifyRemoteText, clusterpc.RelayTextParams{
			EdgeID:   link.id,
			Actor:    params.Actor,
			Payload:  params.Payload,
			Sessions: sessions,
		}); err != nil {
			h.log.Warn("text relay failed", "edge", edgeID, "error", err)
		}
	}
}
