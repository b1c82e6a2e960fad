package clusterpc

import (
	"bramble/internal/acl"
	"bramble/internal/state"
)

// Edge-to-hub request methods.
const (
	MethodRegister             = "edge.register"
	MethodHeartbeat            = "edge.heartbeat"
	MethodJoin                 = "edge.join"
	MethodJoinComplete         = "edge.joinComplete"
	MethodAllocateSessionID    = "edge.allocateSessionId"
	MethodReportSession        = "edge.reportSession"
	MethodAuthenticateUser     = "edge.authenticateUser"
	MethodHandleACL            = "edge.handleACL"
	MethodFullSync             = "edge.fullSync"
	MethodReportPeerDisconnect = "edge.reportPeerDisconnect"
	MethodHandleChannelState   = "edge.handleChannelState"
	MethodHandleChannelRemove  = "edge.handleChannelRemove"
	MethodHandleBanList        = "edge.handleBanList"
	MethodHandleUserList       = "edge.handleUserList"
	MethodRelayText            = "edge.relayText"
	MethodKickUser             = "edge.kickUser"
	MethodRegisterUser         = "edge.registerUser"
)

// Hub-to-edge notification methods.
const (
	NotifyPeerJoined      = "edge.peerJoined"
	NotifyPeerLeft        = "edge.peerLeft"
	NotifyForceDisconnect = "edge.forceDisconnect"
	NotifyACLUpdated      = "edge.aclUpdated"
	NotifyRemoteUserState  = "user.remoteUserState"
	NotifyRemoteUserRemove = "user.remoteUserRemove"
	NotifyRemoteText       = "user.remoteText"
	NotifyChannelState     = "user.channelState"
	NotifyChannelRemove    = "user.channelRemove"
)

// PeerInfo describes one edge to the rest of the fleet.
type PeerInfo struct {
	EdgeID    string `msgpack:"id"`
	VoiceAddr string `msgpack:"voice_addr"`
}

// GroupInfo mirrors acl.Group for the wire.
type GroupInfo struct {
	Name        string `msgpack:"name"`
	Inherit     bool   `msgpack:"inherit"`
	Inheritable bool   `msgpack:"inheritable"`
	Add         []int  `msgpack:"add,omitempty"`
	Remove      []int  `msgpack:"remove,omitempty"`
}

// EntryInfo mirrors acl.Entry for the wire.
type EntryInfo struct {
	ApplyHere bool   `msgpack:"apply_here"`
	ApplySubs bool   `msgpack:"apply_subs"`
	UserID    int    `msgpack:"user_id"`
	Group     string `msgpack:"group,omitempty"`
	Grant     uint32 `msgpack:"grant"`
	Deny      uint32 `msgpack:"deny"`
}

// ChannelInfo carries one channel, ACLs included, across the link.
type ChannelInfo struct {
	ID              uint32      `msgpack:"id"`
	ParentID        uint32      `msgpack:"parent"`
	Name            string      `msgpack:"name"`
	Description     string      `msgpack:"description,omitempty"`
	DescriptionHash []byte      `msgpack:"description_hash,omitempty"`
	Position        int32       `msgpack:"position,omitempty"`
	Temporary       bool        `msgpack:"temporary,omitempty"`
	MaxUsers        uint32      `msgpack:"max_users,omitempty"`
	InheritACL      bool        `msgpack:"inherit_acl"`
	Entries         []EntryInfo `msgpack:"entries,omitempty"`
	Groups          []GroupInfo `msgpack:"groups,omitempty"`
	Links           []uint32    `msgpack:"links,omitempty"`
}

// SessionInfo carries one session across the link.
type SessionInfo struct {
	ID              uint32   `msgpack:"id"`
	UserID          int      `msgpack:"user_id"`
	Name            string   `msgpack:"name"`
	EdgeID          string   `msgpack:"edge_id"`
	ChannelID       uint32   `msgpack:"channel_id"`
	Address         string   `msgpack:"address,omitempty"`
	CertHash        string   `msgpack:"cert_hash,omitempty"`
	Tokens          []string `msgpack:"tokens,omitempty"`
	Mute            bool     `msgpack:"mute,omitempty"`
	Deaf            bool     `msgpack:"deaf,omitempty"`
	Suppress        bool     `msgpack:"suppress,omitempty"`
	SelfMute        bool     `msgpack:"self_mute,omitempty"`
	SelfDeaf        bool     `msgpack:"self_deaf,omitempty"`
	PrioritySpeaker bool     `msgpack:"priority_speaker,omitempty"`
	Recording       bool     `msgpack:"recording,omitempty"`
	Comment         string   `msgpack:"comment,omitempty"`
	CommentHash     []byte   `msgpack:"comment_hash,omitempty"`
	TextureHash     []byte   `msgpack:"texture_hash,omitempty"`
	Listening       []uint32 `msgpack:"listening,omitempty"`
}

// BanInfo is one ban list entry.
type BanInfo struct {
	Address  []byte `msgpack:"address"`
	Mask     uint32 `msgpack:"mask"`
	Name     string `msgpack:"name,omitempty"`
	CertHash string `msgpack:"cert_hash,omitempty"`
	Reason   string `msgpack:"reason,omitempty"`
	Start    string `msgpack:"start,omitempty"`
	Duration uint32 `msgpack:"duration,omitempty"`
}

// ServerConfigInfo is the hub-owned settings an edge announces to clients.
type ServerConfigInfo struct {
	WelcomeText        string `msgpack:"welcome_text,omitempty"`
	MaxBandwidth       uint32 `msgpack:"max_bandwidth"`
	MaxUsers           uint32 `msgpack:"max_users"`
	MessageLength      uint32 `msgpack:"message_length"`
	ImageMessageLength uint32 `msgpack:"image_message_length"`
	AllowHTML          bool   `msgpack:"allow_html"`
	MaxListenersPerChannel uint32 `msgpack:"max_listeners_per_channel"`
	MaxListensPerUser      uint32 `msgpack:"max_listens_per_user"`
}

type RegisterParams struct {
	EdgeID    string `msgpack:"edge_id"`
	VoiceAddr string `msgpack:"voice_addr"`
	Version   string `msgpack:"version"`
}

type RegisterResult struct {
	Peers []PeerInfo `msgpack:"peers,omitempty"`
}

type HeartbeatParams struct {
	EdgeID   string `msgpack:"edge_id"`
	Sessions int    `msgpack:"sessions"`
}

type JoinParams struct {
	EdgeID string `msgpack:"edge_id"`
}

// JoinResult is the full state snapshot; edge.fullSync returns the same shape.
type JoinResult struct {
	Channels []ChannelInfo    `msgpack:"channels"`
	Sessions []SessionInfo    `msgpack:"sessions,omitempty"`
	Bans     []BanInfo        `msgpack:"bans,omitempty"`
	Config   ServerConfigInfo `msgpack:"config"`
}

type JoinCompleteParams struct {
	EdgeID string `msgpack:"edge_id"`
}

type AllocateSessionIDParams struct {
	EdgeID string `msgpack:"edge_id"`
}

type AllocateSessionIDResult struct {
	Session uint32 `msgpack:"session"`
}

type ReportSessionParams struct {
	Session SessionInfo `msgpack:"session"`
	Removed bool        `msgpack:"removed,omitempty"`
}

type AuthenticateUserParams struct {
	EdgeID   string   `msgpack:"edge_id"`
	Username string   `msgpack:"username"`
	Password string   `msgpack:"password,omitempty"`
	CertHash string   `msgpack:"cert_hash,omitempty"`
	Tokens   []string `msgpack:"tokens,omitempty"`
	Address  string   `msgpack:"address"`
}

// Auth decisions, mapped by the edge onto Reject types.
const (
	AuthAllow       = "allow"
	AuthWrongPass   = "wrong_password"
	AuthBanned      = "banned"
	AuthNameInUse   = "name_in_use"
	AuthServerFull  = "server_full"
	AuthBadUsername = "bad_username"
)

type AuthenticateUserResult struct {
	Decision string   `msgpack:"decision"`
	UserID   int      `msgpack:"user_id"`
	Groups   []string `msgpack:"groups,omitempty"`
	Reason   string   `msgpack:"reason,omitempty"`
}

// HandleACLParams forwards a client ACL message verbatim; Payload is the
// marshaled protobuf body.
type HandleACLParams struct {
	EdgeID  string `msgpack:"edge_id"`
	Session uint32 `msgpack:"session"`
	Payload []byte `msgpack:"payload"`
}

type HandleACLResult struct {
	// Response, when set, is a marshaled ACL message to return to the
	// requesting client (query replies).
	Response []byte `msgpack:"response,omitempty"`
	Denied   bool   `msgpack:"denied,omitempty"`
}

// HandleChannelParams forwards a client ChannelState or ChannelRemove
// message verbatim for the hub to arbitrate.
type HandleChannelParams struct {
	EdgeID  string `msgpack:"edge_id"`
	Session uint32 `msgpack:"session"`
	Payload []byte `msgpack:"payload"`
}

type HandleChannelResult struct {
	// Denied, when set, is a marshaled PermissionDenied to return to the
	// requesting client.
	Denied    []byte `msgpack:"denied,omitempty"`
	ChannelID uint32 `msgpack:"channel_id,omitempty"`
}

// HandleBanListParams forwards a client BanList message.
type HandleBanListParams struct {
	EdgeID  string `msgpack:"edge_id"`
	Session uint32 `msgpack:"session"`
	Payload []byte `msgpack:"payload"`
}

type HandleBanListResult struct {
	Denied   []byte `msgpack:"denied,omitempty"`
	Response []byte `msgpack:"response,omitempty"`
}

// RelayTextParams carries a cross-edge text message: the marshaled
// TextMessage plus the resolved recipient sessions grouped per edge by the
// hub.
type RelayTextParams struct {
	EdgeID   string   `msgpack:"edge_id"`
	Actor    uint32   `msgpack:"actor"`
	Payload  []byte   `msgpack:"payload"`
	Sessions []uint32 `msgpack:"sessions,omitempty"`
}

type ReportPeerDisconnectParams struct {
	EdgeID   string `msgpack:"edge_id"`
	PeerID   string `msgpack:"peer_id"`
	Sessions int    `msgpack:"sessions"`
}

// Peer disconnect arbitration: the hub tells the reporting edge whether the
// peer is expected back.
const (
	PeerActionWait       = "wait"
	PeerActionDisconnect = "disconnect"
)

type ReportPeerDisconnectResult struct {
	Action string `msgpack:"action"`
}

// KickUserParams asks the hub to remove (and optionally ban) a user
// anywhere in the fleet.
type KickUserParams struct {
	EdgeID string `msgpack:"edge_id"`
	Actor  uint32 `msgpack:"actor"`
	Target uint32 `msgpack:"target"`
	Reason string `msgpack:"reason,omitempty"`
	Ban    bool   `msgpack:"ban,omitempty"`
}

type KickUserResult struct {
	Denied []byte `msgpack:"denied,omitempty"`
}

// RegisterUserParams self-registers a connected session under its
// certificate.
type RegisterUserParams struct {
	EdgeID  string `msgpack:"edge_id"`
	Session uint32 `msgpack:"session"`
}

type RegisterUserResult struct {
	Denied []byte `msgpack:"denied,omitempty"`
	UserID int    `msgpack:"user_id,omitempty"`
}

type ForceDisconnectParams struct {
	Session uint32 `msgpack:"session"`
	Reason  string `msgpack:"reason,omitempty"`
	Ban     bool   `msgpack:"ban,omitempty"`
}

type ACLUpdatedParams struct {
	ChannelID uint32 `msgpack:"channel_id"`
}

// RawMessageParams wraps a marshaled Mumble control message fanned out to
// other edges (UserState, UserRemove, TextMessage, ChannelState, ...).
type RawMessageParams struct {
	OriginEdge string `msgpack:"origin"`
	Payload    []byte `msgpack:"payload"`
}

// SessionToInfo converts a state session for the wire.
func SessionToInfo(s *state.Session) SessionInfo {
	info := SessionInfo{
		ID:              s.ID,
		UserID:          s.UserID,
		Name:            s.Name,
		EdgeID:          s.EdgeID,
		ChannelID:       s.ChannelID,
		Address:         s.Address,
		CertHash:        s.CertHash,
		Tokens:          s.Tokens,
		Mute:            s.Mute,
		Deaf:            s.Deaf,
		Suppress:        s.Suppress,
		SelfMute:        s.SelfMute,
		SelfDeaf:        s.SelfDeaf,
		PrioritySpeaker: s.PrioritySpeaker,
		Recording:       s.Recording,
		Comment:         s.Comment,
		CommentHash:     s.CommentHash,
		TextureHash:     s.TextureHash,
	}
	for ch := range s.ListeningChannels {
		info.Listening = append(info.Listening, ch)
	}
	return info
}

// InfoToSession converts a wire session back into the state form.
func InfoToSession(info SessionInfo) *state.Session {
	s := &state.Session{
		ID:              info.ID,
		UserID:          info.UserID,
		Name:            info.Name,
		EdgeID:          info.EdgeID,
		ChannelID:       info.ChannelID,
		Address:         info.Address,
		CertHash:        info.CertHash,
		Tokens:          info.Tokens,
		Mute:            info.Mute,
		Deaf:            info.Deaf,
		Suppress:        info.Suppress,
		SelfMute:        info.SelfMute,
		SelfDeaf:        info.SelfDeaf,
		PrioritySpeaker: info.PrioritySpeaker,
		Recording:       info.Recording,
		Comment:         info.Comment,
		CommentHash:     info.CommentHash,
		TextureHash:     info.TextureHash,
		ListeningChannels: make(map[uint32]bool, len(info.Listening)),
	}
	for _, ch := range info.Listening {
		s.ListeningChannels[ch] = true
	}
	return s
}

// ChannelToInfo converts a state channel for the wire.
func ChannelToInfo(ch state.Channel) ChannelInfo {
	info := ChannelInfo{
		ID:              ch.ID,
		ParentID:        ch.ParentID,
		Name:            ch.Name,
		Description:     ch.Description,
		DescriptionHash: ch.DescriptionHash,
		Position:        ch.Position,
		Temporary:       ch.Temporary,
		MaxUsers:        ch.MaxUsers,
		InheritACL:      ch.InheritACL,
	}
	for _, e := range ch.Entries {
		info.Entries = append(info.Entries, EntryInfo{
			ApplyHere: e.ApplyHere,
			ApplySubs: e.ApplySubs,
			UserID:    e.UserID,
			Group:     e.Group,
			Grant:     uint32(e.Grant),
			Deny:      uint32(e.Deny),
		})
	}
	for _, g := range ch.Groups {
		gi := GroupInfo{Name: g.Name, Inherit: g.Inherit, Inheritable: g.Inheritable}
		for id := range g.Add {
			gi.Add = append(gi.Add, id)
		}
		for id := range g.Remove {
			gi.Remove = append(gi.Remove, id)
		}
		info.Groups = append(info.Groups, gi)
	}
	for id := range ch.Links {
		info.Links = append(info.Links, id)
	}
	return info
}

// InfoToChannel converts a wire channel back into the state form.
func InfoToChannel(info ChannelInfo) state.Channel {
	ch := state.Channel{
		ID:              info.ID,
		ParentID:        info.ParentID,
		Name:            info.Name,
		Description:     info.Description,
		DescriptionHash: info.DescriptionHash,
		Position:        info.Position,
		Temporary:       info.Temporary,
		MaxUsers:        info.MaxUsers,
		InheritACL:      info.InheritACL,
		Links:           make(map[uint32]bool, len(info.Links)),
	}
	for _, e := range info.Entries {
		ch.Entries = append(ch.Entries, acl.Entry{
			ApplyHere: e.ApplyHere,
			ApplySubs: e.ApplySubs,
			UserID:    e.UserID,
			Group:     e.Group,
			Grant:     acl.Perm(e.Grant),
			Deny:      acl.Perm(e.Deny),
		})
	}
	if len(info.Groups) > 0 {
		ch.Groups = make(map[string]*acl.Group, len(info.Groups))
		for _, gi := range info.Groups {
			g := &acl.Group{
				Name:        gi.Name,
				Inherit:     gi.Inherit,
				Inheritable: gi.Inheritable,
				Add:         make(map[int]bool, len(gi.Add)),
				Remove:      make(map[int]bool, len(gi.Remove)),
			}
			for _, id := range gi.Add {
				g.Add[id] = true
			}
			for _, id := range gi.Remove {
				g.Remove[id] = true
			}
			ch.Groups[gi.Name] = g
		}
	}
	for _, id := range info.Links {
		ch.Links[id] = true
	}
	return ch
}
