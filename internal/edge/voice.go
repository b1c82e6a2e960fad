package edge

import (
	"bramble/internal/acl"
	"bramble/internal/mumble"
	"bramble/internal/state"
)

// Voice context bytes on server→client packets: where the audio came from.
const (
	ctxNormal         byte = 0
	ctxChannelWhisper byte = 1
	ctxDirectWhisper  byte = 2
)

type recipient struct {
	sess *state.Session
	ctx  byte
}

// routeVoice fans one client voice packet out to its recipients, local and
// remote.
func (e *Edge) routeVoice(c *Client, pkt mumble.VoicePacket) {
	if pkt.Codec == mumble.CodecPing {
		c.sendVoice(mumble.EncodePing(pkt.Seq))
		return
	}
	sess, ok := e.dir.Get(c.session)
	if !ok {
		return
	}
	if pkt.Target == mumble.TargetServerLoopback {
		c.sendVoice(mumble.EncodeVoice(pkt.Codec, ctxNormal, c.session, pkt.Seq, pkt.Payload))
		return
	}
	if sess.Mute || sess.SelfMute || sess.Suppress {
		return
	}

	recipients := make(map[uint32]recipient)
	add := func(s *state.Session, ctx byte) {
		if s.ID == sess.ID || s.Deaf || s.SelfDeaf {
			return
		}
		if old, ok := recipients[s.ID]; !ok || ctx > old.ctx {
			recipients[s.ID] = recipient{s, ctx}
		}
	}

	if pkt.Target == mumble.TargetNormal {
		if !e.hasPerm(sess, sess.ChannelID, acl.Speak) {
			return
		}
		for _, r := range e.speechRecipients(sess) {
			add(r, ctxNormal)
		}
	} else {
		wt := sess.Targets[pkt.Target]
		if wt == nil {
			return
		}
		if wt.HasChannel {
			for _, ch := range e.whisperChannels(wt) {
				if !e.hasPerm(sess, ch, acl.Whisper) {
					continue
				}
				for _, r := range e.channelOccupants(ch) {
					if wt.Group != "" && !e.inGroup(ch, wt.Group, r) {
						continue
					}
					add(r, ctxChannelWhisper)
				}
			}
		}
		for _, id := range wt.Sessions {
			r, ok := e.dir.Get(id)
			if !ok {
				continue
			}
			if !e.hasPerm(sess, r.ChannelID, acl.Whisper) {
				continue
			}
			add(r, ctxDirectWhisper)
		}
	}

	// One encode per context byte, shared by every delivery path.
	encoded := make(map[byte][]byte, 2)
	enc := func(ctx byte) []byte {
		out, ok := encoded[ctx]
		if !ok {
			out = mumble.EncodeVoice(pkt.Codec, ctx, sess.ID, pkt.Seq, pkt.Payload)
			encoded[ctx] = out
		}
		return out
	}

	broadcastEdges := make(map[string]bool)
	for _, r := range recipients {
		if r.sess.EdgeID == e.cfg.EdgeID {
			if lc, ok := e.client(r.sess.ID); ok {
				lc.sendVoice(enc(r.ctx))
			}
			continue
		}
		if pkt.Target == mumble.TargetNormal {
			// Normal speech: one datagram per edge; the receiver re-runs
			// speech routing from its own replica.
			broadcastEdges[r.sess.EdgeID] = true
			continue
		}
		// Whisper recipients are fully resolved here, group filters included,
		// so each remote one is addressed by session. A listener under
		// several targeted channels on one peer edge gets exactly one copy.
		e.peers.send(r.sess.EdgeID, sess.ID, peerSessionBit|r.sess.ID, uint32(pkt.Seq), pkt.Codec, enc(r.ctx))
	}
	for edgeID := range broadcastEdges {
		e.peers.send(edgeID, sess.ID, peerBroadcast, uint32(pkt.Seq), pkt.Codec, enc(ctxNormal))
	}
}

// speechRecipients enumerates everyone who hears normal speech from sess:
// occupants and listeners of the linked-channel set, gated by Speak.
func (e *Edge) speechRecipients(sess *state.Session) []*state.Session {
	var out []*state.Session
	for _, ch := range e.tree.LinkedSet(sess.ChannelID) {
		if ch != sess.ChannelID && !e.hasPerm(sess, ch, acl.Speak) {
			continue
		}
		out = append(out, e.channelOccupants(ch)...)
	}
	return out
}

// channelOccupants is a channel's members plus its listeners.
func (e *Edge) channelOccupants(ch uint32) []*state.Session {
	out := e.dir.InChannel(ch)
	return append(out, e.dir.ListeningTo(ch)...)
}

// whisperChannels expands a channel-scoped whisper target.
func (e *Edge) whisperChannels(wt *state.WhisperTarget) []uint32 {
	seen := map[uint32]bool{wt.ChannelID: true}
	if wt.Links {
		for _, ch := range e.tree.LinkedSet(wt.ChannelID) {
			seen[ch] = true
		}
	}
	if wt.Children {
		for _, ch := range e.tree.Subtree(wt.ChannelID) {
			seen[ch] = true
		}
	}
	out := make([]uint32, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	return out
}

// inGroup answers group membership for a whisper group filter.
func (e *Edge) inGroup(channel uint32, group string, s *state.Session) bool {
	ctx, err := e.tree.ACLContext(channel)
	if err != nil {
		return false
	}
	return acl.InGroup(ctx, ctx, group, acl.User{
		Session:   s.ID,
		UserID:    s.UserID,
		CertHash:  s.CertHash,
		Tokens:    s.Tokens,
		ChannelID: s.ChannelID,
	})
}

// deliverPeerVoice handles one datagram from a peer edge.
func (e *Edge) deliverPeerVoice(pp peerPacket) {
	e.met.voiceRx.WithLabelValues("peer").Inc()
	switch {
	case pp.Target == peerBroadcast:
		sess, ok := e.dir.Get(pp.Sender)
		if !ok {
			return
		}
		for _, r := range e.speechRecipients(sess) {
			if r.ID == sess.ID || r.Deaf || r.SelfDeaf {
				continue
			}
			if lc, ok := e.client(r.ID); ok {
				lc.sendVoice(pp.Inner)
			}
		}
	case pp.Target&peerSessionBit != 0:
		if lc, ok := e.client(pp.Target &^ peerSessionBit); ok {
			if sess, ok := e.dir.Get(lc.session); ok && (sess.Deaf || sess.SelfDeaf) {
				return
			}
			lc.sendVoice(pp.Inner)
		}
	default:
		for _, r := range e.channelOccupants(pp.Target) {
			if r.Deaf || r.SelfDeaf {
				continue
			}
			if lc, ok := e.client(r.ID); ok {
				lc.sendVoice(pp.Inner)
			}
		}
	}
}

// sendVoice hands a server-form voice packet to the client, preferring the
// UDP path and falling back to the control tunnel.
func (c *Client) sendVoice(packet []byte) {
	if !c.edge.sendVoiceUDP(c, packet) {
		c.sendVoiceTunnel(packet)
	}
}
