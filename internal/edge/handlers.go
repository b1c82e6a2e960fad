package edge

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	proto "github.com/golang/protobuf/proto"

	"bramble/internal/acl"
	"bramble/internal/blob"
	"bramble/internal/clusterpc"
	"bramble/internal/mumble"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
)

// inlineBlobLimit is the largest comment or description sent inline; anything
// bigger goes to the blob store and travels as a hash.
const inlineBlobLimit = 128

// handle dispatches one control frame according to the connection state.
func (c *Client) handle(ctx context.Context, typ uint16, payload []byte) error {
	switch c.state.Load() {
	case stateVersion:
		switch typ {
		case mumbleproto.MessageVersion:
			var msg mumbleproto.Version
			if err := proto.Unmarshal(payload, &msg); err != nil {
				return err
			}
			c.version = msg.GetVersion()
			c.state.Store(stateAuthenticate)
			return nil
		case mumbleproto.MessagePing:
			return nil
		default:
			return fmt.Errorf("message %d before Version", typ)
		}
	case stateAuthenticate:
		switch typ {
		case mumbleproto.MessageAuthenticate:
			var msg mumbleproto.Authenticate
			if err := proto.Unmarshal(payload, &msg); err != nil {
				return err
			}
			return c.authenticate(ctx, &msg)
		case mumbleproto.MessageUserState:
			// Clients may push self-mute/deaf/comment before authenticating;
			// stash it and apply after admission.
			var msg mumbleproto.UserState
			if err := proto.Unmarshal(payload, &msg); err != nil {
				return err
			}
			c.preConnect = &msg
			return nil
		case mumbleproto.MessagePing:
			return nil
		default:
			return fmt.Errorf("message %d before Authenticate", typ)
		}
	case stateSynced:
		return c.handleSynced(ctx, typ, payload)
	default:
		return nil
	}
}

func (c *Client) handleSynced(ctx context.Context, typ uint16, payload []byte) error {
	switch typ {
	case mumbleproto.MessageUDPTunnel:
		c.edge.met.voiceRx.WithLabelValues("tunnel").Inc()
		pkt, err := mumble.ParseVoice(payload)
		if err != nil {
			return nil
		}
		c.edge.routeVoice(c, pkt)
		return nil
	case mumbleproto.MessagePing:
		return c.handlePing(payload)
	case mumbleproto.MessageUserState:
		return c.handleUserState(ctx, payload)
	case mumbleproto.MessageUserRemove:
		return c.handleUserRemove(ctx, payload)
	case mumbleproto.MessageTextMessage:
		return c.handleTextMessage(ctx, payload)
	case mumbleproto.MessageACL:
		return c.forwardACL(ctx, payload)
	case mumbleproto.MessageChannelState:
		return c.forwardChannel(ctx, clusterpc.MethodHandleChannelState, payload)
	case mumbleproto.MessageChannelRemove:
		return c.forwardChannel(ctx, clusterpc.MethodHandleChannelRemove, payload)
	case mumbleproto.MessageBanList:
		return c.forwardList(ctx, clusterpc.MethodHandleBanList, payload, mumbleproto.MessageBanList)
	case mumbleproto.MessageUserList:
		return c.forwardList(ctx, clusterpc.MethodHandleUserList, payload, mumbleproto.MessageUserList)
	case mumbleproto.MessageVoiceTarget:
		return c.handleVoiceTarget(payload)
	case mumbleproto.MessageCryptSetup:
		return c.handleCryptSetup(payload)
	case mumbleproto.MessagePermissionQuery:
		return c.handlePermissionQuery(payload)
	case mumbleproto.MessageQueryUsers:
		return c.handleQueryUsers(payload)
	case mumbleproto.MessageUserStats:
		return c.handleUserStats(payload)
	case mumbleproto.MessageRequestBlob:
		return c.handleRequestBlob(payload)
	case mumbleproto.MessagePluginDataTransmission:
		return c.handlePluginData(payload)
	case mumbleproto.MessageVersion,
		mumbleproto.MessageAuthenticate,
		mumbleproto.MessageContextActionModify,
		mumbleproto.MessageContextAction:
		return nil
	default:
		c.log.Debug("unhandled message", "type", typ)
		return nil
	}
}

// permissionDenied sends the standard denial for a missing permission.
func (c *Client) permissionDenied(channel uint32, perm acl.Perm) {
	c.sendMessage(&mumbleproto.PermissionDenied{
		Type:       mumbleproto.PermissionDenied_Permission.Enum(),
		ChannelId:  proto.Uint32(channel),
		Permission: proto.Uint32(uint32(perm)),
	})
}

func (c *Client) denyType(typ mumbleproto.PermissionDenied_DenyType) {
	c.sendMessage(&mumbleproto.PermissionDenied{Type: typ.Enum()})
}

func (c *Client) handlePing(payload []byte) error {
	var msg mumbleproto.Ping
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	resp := &mumbleproto.Ping{
		Timestamp:  msg.Timestamp,
		UdpPackets: proto.Uint32(c.udpPackets.Load()),
		TcpPackets: proto.Uint32(c.tcpPackets.Load()),
	}
	c.cryptMu.Lock()
	if c.crypt != nil {
		resp.Good = proto.Uint32(c.crypt.Good)
		resp.Late = proto.Uint32(c.crypt.Late)
		resp.Lost = proto.Uint32(c.crypt.Lost)
		resp.Resync = proto.Uint32(c.crypt.Resync)
	}
	c.cryptMu.Unlock()
	c.sendMessage(resp)
	return nil
}

func (c *Client) handleUserState(ctx context.Context, payload []byte) error {
	var msg mumbleproto.UserState
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	e := c.edge
	target := c.session
	if msg.Session != nil {
		target = msg.GetSession()
	}
	actor, ok := e.dir.Get(c.session)
	if !ok {
		return fmt.Errorf("no directory entry for session %d", c.session)
	}
	tsess, ok := e.dir.Get(target)
	if !ok {
		return nil
	}

	out := &mumbleproto.UserState{
		Session: proto.Uint32(target),
		Actor:   proto.Uint32(c.session),
	}
	var apply []func(*state.Session)
	reportOnly := false

	if target != c.session {
		// Only moderation fields may touch someone else.
		if msg.Mute != nil || msg.Deaf != nil || msg.Suppress != nil || msg.PrioritySpeaker != nil {
			if !e.hasPerm(actor, tsess.ChannelID, acl.MuteDeafen) {
				c.permissionDenied(tsess.ChannelID, acl.MuteDeafen)
				return nil
			}
			if msg.Mute != nil {
				v := msg.GetMute()
				out.Mute = proto.Bool(v)
				apply = append(apply, func(s *state.Session) { s.Mute = v })
			}
			if msg.Deaf != nil {
				v := msg.GetDeaf()
				out.Deaf = proto.Bool(v)
				apply = append(apply, func(s *state.Session) {
					s.Deaf = v
					if v {
						s.Mute = true
					}
				})
				if msg.GetDeaf() {
					out.Mute = proto.Bool(true)
				}
			}
			if msg.Suppress != nil {
				v := msg.GetSuppress()
				out.Suppress = proto.Bool(v)
				apply = append(apply, func(s *state.Session) { s.Suppress = v })
			}
			if msg.PrioritySpeaker != nil {
				v := msg.GetPrioritySpeaker()
				out.PrioritySpeaker = proto.Bool(v)
				apply = append(apply, func(s *state.Session) { s.PrioritySpeaker = v })
			}
		}
		if msg.ChannelId != nil {
			if denied := c.checkMove(actor, tsess, msg.GetChannelId(), false); denied {
				return nil
			}
			dest := msg.GetChannelId()
			out.ChannelId = proto.Uint32(dest)
			apply = append(apply, func(s *state.Session) { s.ChannelID = dest })
		}
	} else {
		if msg.SelfMute != nil {
			v := msg.GetSelfMute()
			out.SelfMute = proto.Bool(v)
			apply = append(apply, func(s *state.Session) {
				s.SelfMute = v
				if !v {
					s.SelfDeaf = false
				}
			})
		}
		if msg.SelfDeaf != nil {
			v := msg.GetSelfDeaf()
			out.SelfDeaf = proto.Bool(v)
			apply = append(apply, func(s *state.Session) {
				s.SelfDeaf = v
				if v {
					s.SelfMute = true
				}
			})
		}
		if msg.Recording != nil {
			v := msg.GetRecording()
			out.Recording = proto.Bool(v)
			apply = append(apply, func(s *state.Session) { s.Recording = v })
		}
		if msg.ChannelId != nil {
			if denied := c.checkMove(actor, tsess, msg.GetChannelId(), true); denied {
				return nil
			}
			dest := msg.GetChannelId()
			out.ChannelId = proto.Uint32(dest)
			apply = append(apply, func(s *state.Session) { s.ChannelID = dest })
		}
		if msg.Comment != nil {
			comment := msg.GetComment()
			if len(comment) > inlineBlobLimit {
				key, err := e.blobs.Put([]byte(comment))
				if err != nil {
					return err
				}
				hash, _ := hex.DecodeString(key)
				out.CommentHash = hash
				apply = append(apply, func(s *state.Session) {
					s.Comment = comment
					s.CommentHash = hash
				})
			} else {
				out.Comment = proto.String(comment)
				apply = append(apply, func(s *state.Session) {
					s.Comment = comment
					s.CommentHash = nil
				})
			}
		}
		if msg.Texture != nil {
			texture := msg.Texture
			key, err := e.blobs.Put(texture)
			if err != nil {
				return err
			}
			hash, _ := hex.DecodeString(key)
			out.TextureHash = hash
			apply = append(apply, func(s *state.Session) {
				s.Texture = texture
				s.TextureHash = hash
			})
		}
		if len(msg.TemporaryAccessTokens) > 0 {
			tokens := msg.TemporaryAccessTokens
			apply = append(apply, func(s *state.Session) { s.Tokens = tokens })
			e.cache.DropSession(target)
			reportOnly = true
		}
		if msg.UserId != nil && tsess.UserID < 0 {
			if err := c.selfRegister(ctx, out, &apply); err != nil {
				return err
			}
		}
		if len(msg.ListeningChannelAdd) > 0 || len(msg.ListeningChannelRemove) > 0 {
			if denied := c.applyListenChanges(actor, tsess, &msg, out, &apply); denied {
				return nil
			}
		}
	}

	if len(apply) == 0 {
		return nil
	}
	if err := e.dir.Update(target, func(s *state.Session) {
		for _, fn := range apply {
			fn(s)
		}
	}); err != nil {
		return nil
	}
	e.cache.DropSession(target)

	if updated, ok := e.dir.Get(target); ok {
		if err := e.reportSession(updated); err != nil {
			c.log.Warn("session report failed", "error", err)
		}
	}
	if !reportOnly {
		raw, err := proto.Marshal(out)
		if err != nil {
			return err
		}
		e.broadcastRaw(mumbleproto.MessageUserState, raw)
	}
	return nil
}

// checkMove validates a channel move, sending the denial itself. self moves
// need Enter on the destination, moves of others need Move on both ends.
func (c *Client) checkMove(actor, target *state.Session, dest uint32, self bool) (denied bool) {
	e := c.edge
	ch, ok := e.tree.Get(dest)
	if !ok {
		c.permissionDenied(dest, acl.Enter)
		return true
	}
	if self {
		if !e.hasPerm(actor, dest, acl.Enter) {
			c.permissionDenied(dest, acl.Enter)
			return true
		}
	} else {
		if !e.hasPerm(actor, dest, acl.Move) {
			c.permissionDenied(dest, acl.Move)
			return true
		}
		if !e.hasPerm(actor, target.ChannelID, acl.Move) {
			c.permissionDenied(target.ChannelID, acl.Move)
			return true
		}
	}
	if ch.MaxUsers > 0 && target.UserID != 0 {
		if uint32(len(e.dir.InChannel(dest))) >= ch.MaxUsers {
			c.denyType(mumbleproto.PermissionDenied_ChannelFull)
			return true
		}
	}
	return false
}

func (c *Client) selfRegister(ctx context.Context, out *mumbleproto.UserState, apply *[]func(*state.Session)) error {
	result, err := c.edge.hub.registerUser(ctx, c.session)
	if err != nil {
		c.log.Warn("self-register failed", "error", err)
		return nil
	}
	if len(result.Denied) > 0 {
		c.sendRaw(mumbleproto.MessagePermissionDenied, result.Denied)
		return nil
	}
	id := result.UserID
	c.userID = id
	out.UserId = proto.Uint32(uint32(id))
	*apply = append(*apply, func(s *state.Session) { s.UserID = id })
	return nil
}

func (c *Client) applyListenChanges(actor, tsess *state.Session, msg *mumbleproto.UserState, out *mumbleproto.UserState, apply *[]func(*state.Session)) (denied bool) {
	e := c.edge
	cfg := e.serverConfig()

	listens := uint32(len(tsess.ListeningChannels))
	for _, ch := range msg.ListeningChannelAdd {
		if tsess.ListeningChannels[ch] {
			continue
		}
		if !e.tree.Exists(ch) {
			continue
		}
		if !e.hasPerm(actor, ch, acl.Listen) {
			c.permissionDenied(ch, acl.Listen)
			return true
		}
		if cfg.MaxListenersPerChannel > 0 &&
			uint32(len(e.dir.ListeningTo(ch))) >= cfg.MaxListenersPerChannel {
			c.denyType(mumbleproto.PermissionDenied_ChannelListenerLimit)
			return true
		}
		if cfg.MaxListensPerUser > 0 && listens >= cfg.MaxListensPerUser {
			c.denyType(mumbleproto.PermissionDenied_UserListenerLimit)
			return true
		}
		listens++
		id := ch
		out.ListeningChannelAdd = append(out.ListeningChannelAdd, id)
		*apply = append(*apply, func(s *state.Session) { s.ListeningChannels[id] = true })
	}
	for _, ch := range msg.ListeningChannelRemove {
		if !tsess.ListeningChannels[ch] {
			continue
		}
		id := ch
		out.ListeningChannelRemove = append(out.ListeningChannelRemove, id)
		*apply = append(*apply, func(s *state.Session) { delete(s.ListeningChannels, id) })
	}
	return false
}

// handleUserRemove is a kick or kick-ban; the hub arbitrates it for the whole
// fleet.
func (c *Client) handleUserRemove(ctx context.Context, payload []byte) error {
	var msg mumbleproto.UserRemove
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	result, err := c.edge.hub.kickUser(ctx, clusterpc.KickUserParams{
		EdgeID: c.edge.cfg.EdgeID,
		Actor:  c.session,
		Target: msg.GetSession(),
		Reason: msg.GetReason(),
		Ban:    msg.GetBan(),
	})
	if err != nil {
		c.log.Warn("kick failed", "target", msg.GetSession(), "error", err)
		return nil
	}
	if len(result.Denied) > 0 {
		c.sendRaw(mumbleproto.MessagePermissionDenied, result.Denied)
	}
	return nil
}

func (c *Client) handleTextMessage(ctx context.Context, payload []byte) error {
	var msg mumbleproto.TextMessage
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	e := c.edge
	actor, ok := e.dir.Get(c.session)
	if !ok {
		return fmt.Errorf("no directory entry for session %d", c.session)
	}

	cfg := e.serverConfig()
	text := msg.GetMessage()
	if !cfg.AllowHTML {
		text = stripHTML(text)
		msg.Message = proto.String(text)
	}
	limit := cfg.MessageLength
	if strings.Contains(text, "data:image") {
		limit = cfg.ImageMessageLength
	}
	if limit > 0 && uint32(len(text)) > limit {
		c.denyType(mumbleproto.PermissionDenied_TextTooLong)
		return nil
	}

	recipients := make(map[uint32]bool)
	addChannel := func(ch uint32) {
		for _, s := range e.dir.InChannel(ch) {
			recipients[s.ID] = true
		}
	}
	for _, ch := range msg.ChannelId {
		if !e.hasPerm(actor, ch, acl.TextMessage) {
			c.permissionDenied(ch, acl.TextMessage)
			return nil
		}
		addChannel(ch)
	}
	for _, root := range msg.TreeId {
		if !e.hasPerm(actor, root, acl.TextMessage) {
			c.permissionDenied(root, acl.TextMessage)
			return nil
		}
		for _, ch := range e.tree.Subtree(root) {
			addChannel(ch)
		}
	}
	for _, target := range msg.Session {
		if sess, ok := e.dir.Get(target); ok {
			if !e.hasPerm(actor, sess.ChannelID, acl.TextMessage) {
				c.permissionDenied(sess.ChannelID, acl.TextMessage)
				return nil
			}
			recipients[target] = true
		}
	}
	delete(recipients, c.session)
	if len(recipients) == 0 {
		return nil
	}

	msg.Actor = proto.Uint32(c.session)
	raw, err := proto.Marshal(&msg)
	if err != nil {
		return err
	}
	all := make([]uint32, 0, len(recipients))
	for id := range recipients {
		all = append(all, id)
		if lc, ok := e.client(id); ok {
			lc.sendRaw(mumbleproto.MessageTextMessage, raw)
		}
	}
	if err := e.hub.relayText(ctx, clusterpc.RelayTextParams{
		EdgeID:   e.cfg.EdgeID,
		Actor:    c.session,
		Payload:  raw,
		Sessions: all,
	}); err != nil {
		c.log.Warn("text relay failed", "error", err)
	}
	return nil
}

// stripHTML removes markup from text messages on servers that do not allow
// HTML.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *Client) forwardACL(ctx context.Context, payload []byte) error {
	result, err := c.edge.hub.handleACL(ctx, clusterpc.HandleACLParams{
		EdgeID:  c.edge.cfg.EdgeID,
		Session: c.session,
		Payload: payload,
	})
	if err != nil {
		c.log.Warn("acl request failed", "error", err)
		return nil
	}
	if result.Denied {
		c.sendRaw(mumbleproto.MessagePermissionDenied, result.Response)
	} else if len(result.Response) > 0 {
		c.sendRaw(mumbleproto.MessageACL, result.Response)
	}
	return nil
}

func (c *Client) forwardChannel(ctx context.Context, method string, payload []byte) error {
	result, err := c.edge.hub.handleChannel(ctx, method, clusterpc.HandleChannelParams{
		EdgeID:  c.edge.cfg.EdgeID,
		Session: c.session,
		Payload: payload,
	})
	if err != nil {
		c.log.Warn("channel request failed", "method", method, "error", err)
		return nil
	}
	if len(result.Denied) > 0 {
		c.sendRaw(mumbleproto.MessagePermissionDenied, result.Denied)
	}
	return nil
}

func (c *Client) forwardList(ctx context.Context, method string, payload []byte, respType uint16) error {
	result, err := c.edge.hub.handleList(ctx, method, clusterpc.HandleBanListParams{
		EdgeID:  c.edge.cfg.EdgeID,
		Session: c.session,
		Payload: payload,
	})
	if err != nil {
		c.log.Warn("list request failed", "method", method, "error", err)
		return nil
	}
	if len(result.Denied) > 0 {
		c.sendRaw(mumbleproto.MessagePermissionDenied, result.Denied)
	} else if len(result.Response) > 0 {
		c.sendRaw(respType, result.Response)
	}
	return nil
}

func (c *Client) handleVoiceTarget(payload []byte) error {
	var msg mumbleproto.VoiceTarget
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	id := msg.GetId()
	if id < 1 || id > state.MaxWhisperTargets {
		return nil
	}
	var wt *state.WhisperTarget
	if len(msg.Targets) > 0 {
		wt = &state.WhisperTarget{}
		for _, t := range msg.Targets {
			wt.Sessions = append(wt.Sessions, t.Session...)
			if t.ChannelId != nil {
				wt.ChannelID = t.GetChannelId()
				wt.HasChannel = true
				wt.Group = t.GetGroup()
				wt.Links = t.GetLinks()
				wt.Children = t.GetChildren()
			}
		}
	}
	return c.edge.dir.Update(c.session, func(s *state.Session) {
		s.Targets[id] = wt
	})
}

func (c *Client) handleCryptSetup(payload []byte) error {
	var msg mumbleproto.CryptSetup
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	c.cryptMu.Lock()
	defer c.cryptMu.Unlock()
	if c.crypt == nil {
		return nil
	}
	if len(msg.ClientNonce) == 0 {
		// Resync request: resend the full key material so both sides reset.
		c.sendMessage(&mumbleproto.CryptSetup{
			Key:         c.crypt.Key[:],
			ClientNonce: c.crypt.DecryptIV[:],
			ServerNonce: c.crypt.EncryptIV[:],
		})
		return nil
	}
	if err := c.crypt.SetDecryptIV(msg.ClientNonce); err != nil {
		return nil
	}
	c.crypt.Resync++
	return nil
}

func (c *Client) handlePermissionQuery(payload []byte) error {
	var msg mumbleproto.PermissionQuery
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	sess, ok := c.edge.dir.Get(c.session)
	if !ok {
		return nil
	}
	ch := msg.GetChannelId()
	c.sendMessage(&mumbleproto.PermissionQuery{
		ChannelId:   proto.Uint32(ch),
		Permissions: proto.Uint32(uint32(c.edge.effectivePerms(sess, ch))),
		Flush:       msg.Flush,
	})
	return nil
}

func (c *Client) handleQueryUsers(payload []byte) error {
	var msg mumbleproto.QueryUsers
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	resp := &mumbleproto.QueryUsers{}
	all := c.edge.dir.All()
	byID := make(map[uint32]string)
	byName := make(map[string]uint32)
	for _, s := range all {
		if s.UserID > 0 {
			byID[uint32(s.UserID)] = s.Name
			byName[s.Name] = uint32(s.UserID)
		}
	}
	for _, id := range msg.Ids {
		if name, ok := byID[id]; ok {
			resp.Ids = append(resp.Ids, id)
			resp.Names = append(resp.Names, name)
		}
	}
	for _, name := range msg.Names {
		if id, ok := byName[name]; ok {
			resp.Ids = append(resp.Ids, id)
			resp.Names = append(resp.Names, name)
		}
	}
	c.sendMessage(resp)
	return nil
}

func (c *Client) handleUserStats(payload []byte) error {
	var msg mumbleproto.UserStats
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	e := c.edge
	target := c.session
	if msg.Session != nil {
		target = msg.GetSession()
	}
	tsess, ok := e.dir.Get(target)
	if !ok {
		return nil
	}
	actor, ok := e.dir.Get(c.session)
	if !ok {
		return nil
	}
	extended := target == c.session || e.hasPerm(actor, state.RootChannelID, acl.Register)

	resp := &mumbleproto.UserStats{Session: proto.Uint32(target)}
	lc, local := e.client(target)
	if local {
		resp.Onlinesecs = proto.Uint32(uint32(time.Since(lc.connected).Seconds()))
		resp.Idlesecs = proto.Uint32(uint32(time.Since(time.Unix(0, lc.lastActive.Load())).Seconds()))
		resp.Opus = proto.Bool(lc.opus)
		if extended {
			lc.cryptMu.Lock()
			if lc.crypt != nil {
				resp.FromClient = &mumbleproto.UserStats_Stats{
					Good:   proto.Uint32(lc.crypt.Good),
					Late:   proto.Uint32(lc.crypt.Late),
					Lost:   proto.Uint32(lc.crypt.Lost),
					Resync: proto.Uint32(lc.crypt.Resync),
				}
			}
			lc.cryptMu.Unlock()
			resp.UdpPackets = proto.Uint32(lc.udpPackets.Load())
			resp.TcpPackets = proto.Uint32(lc.tcpPackets.Load())
			resp.Version = &mumbleproto.Version{Version: proto.Uint32(lc.version)}
			if host, _, err := net.SplitHostPort(tsess.Address); err == nil {
				if ip := net.ParseIP(host); ip != nil {
					resp.Address = ip.To16()
				}
			}
		}
	} else if extended && tsess.Address != "" {
		if host, _, err := net.SplitHostPort(tsess.Address); err == nil {
			if ip := net.ParseIP(host); ip != nil {
				resp.Address = ip.To16()
			}
		}
	}
	if msg.GetStatsOnly() {
		resp.Version = nil
		resp.Address = nil
	}
	c.sendMessage(resp)
	return nil
}

func (c *Client) handleRequestBlob(payload []byte) error {
	var msg mumbleproto.RequestBlob
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	e := c.edge
	for _, id := range msg.SessionTexture {
		sess, ok := e.dir.Get(id)
		if !ok || len(sess.TextureHash) == 0 {
			continue
		}
		content, err := e.blobs.Get(hex.EncodeToString(sess.TextureHash))
		if err != nil {
			if err != blob.ErrNotFound {
				c.log.Warn("texture blob read failed", "error", err)
			}
			continue
		}
		c.sendMessage(&mumbleproto.UserState{
			Session: proto.Uint32(id),
			Texture: content,
		})
	}
	for _, id := range msg.SessionComment {
		sess, ok := e.dir.Get(id)
		if !ok {
			continue
		}
		comment := sess.Comment
		if comment == "" && len(sess.CommentHash) > 0 {
			content, err := e.blobs.Get(hex.EncodeToString(sess.CommentHash))
			if err != nil {
				continue
			}
			comment = string(content)
		}
		if comment == "" {
			continue
		}
		c.sendMessage(&mumbleproto.UserState{
			Session: proto.Uint32(id),
			Comment: proto.String(comment),
		})
	}
	for _, id := range msg.ChannelDescription {
		ch, ok := e.tree.Get(id)
		if !ok || ch.Description == "" {
			continue
		}
		c.sendMessage(&mumbleproto.ChannelState{
			ChannelId:   proto.Uint32(id),
			Description: proto.String(ch.Description),
		})
	}
	return nil
}

// handlePluginData routes positional plugin payloads to local recipients.
func (c *Client) handlePluginData(payload []byte) error {
	var msg mumbleproto.PluginDataTransmission
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return err
	}
	msg.SenderSession = proto.Uint32(c.session)
	raw, err := proto.Marshal(&msg)
	if err != nil {
		return err
	}
	for _, id := range msg.ReceiverSessions {
		if lc, ok := c.edge.client(id); ok {
			lc.sendRaw(mumbleproto.MessagePluginDataTransmission, raw)
		}
	}
	return nil
}
