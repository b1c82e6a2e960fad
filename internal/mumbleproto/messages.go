// Package mumbleproto defines the Mumble control-channel message set and a
// table-driven codec keyed by the wire type id. Field numbers follow the
// Mumble protocol definition; serialization is proto2 via the reflection
// marshaler, the same family the grumble servers use.
package mumbleproto

import (
	proto "github.com/golang/protobuf/proto"
)

type Version struct {
	Version          *uint32 `protobuf:"varint,1,opt,name=version" json:"version,omitempty"`
	Release          *string `protobuf:"bytes,2,opt,name=release" json:"release,omitempty"`
	Os               *string `protobuf:"bytes,3,opt,name=os" json:"os,omitempty"`
	OsVersion        *string `protobuf:"bytes,4,opt,name=os_version" json:"os_version,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *Version) Reset()         { *m = Version{} }
func (m *Version) String() string { return proto.CompactTextString(m) }
func (*Version) ProtoMessage()    {}

type UDPTunnel struct {
	Packet           []byte `protobuf:"bytes,1,opt,name=packet" json:"packet,omitempty"`
	XXX_unrecognized []byte `json:"-"`
}

func (m *UDPTunnel) Reset()         { *m = UDPTunnel{} }
func (m *UDPTunnel) String() string { return proto.CompactTextString(m) }
func (*UDPTunnel) ProtoMessage()    {}

type Authenticate struct {
	Username         *string  `protobuf:"bytes,1,opt,name=username" json:"username,omitempty"`
	Password         *string  `protobuf:"bytes,2,opt,name=password" json:"password,omitempty"`
	Tokens           []string `protobuf:"bytes,3,rep,name=tokens" json:"tokens,omitempty"`
	CeltVersions     []int32  `protobuf:"varint,4,rep,name=celt_versions" json:"celt_versions,omitempty"`
	Opus             *bool    `protobuf:"varint,5,opt,name=opus" json:"opus,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *Authenticate) Reset()         { *m = Authenticate{} }
func (m *Authenticate) String() string { return proto.CompactTextString(m) }
func (*Authenticate) ProtoMessage()    {}

type Ping struct {
	Timestamp        *uint64  `protobuf:"varint,1,opt,name=timestamp" json:"timestamp,omitempty"`
	Good             *uint32  `protobuf:"varint,2,opt,name=good" json:"good,omitempty"`
	Late             *uint32  `protobuf:"varint,3,opt,name=late" json:"late,omitempty"`
	Lost             *uint32  `protobuf:"varint,4,opt,name=lost" json:"lost,omitempty"`
	Resync           *uint32  `protobuf:"varint,5,opt,name=resync" json:"resync,omitempty"`
	UdpPackets       *uint32  `protobuf:"varint,6,opt,name=udp_packets" json:"udp_packets,omitempty"`
	TcpPackets       *uint32  `protobuf:"varint,7,opt,name=tcp_packets" json:"tcp_packets,omitempty"`
	UdpPingAvg       *float32 `protobuf:"fixed32,8,opt,name=udp_ping_avg" json:"udp_ping_avg,omitempty"`
	UdpPingVar       *float32 `protobuf:"fixed32,9,opt,name=udp_ping_var" json:"udp_ping_var,omitempty"`
	TcpPingAvg       *float32 `protobuf:"fixed32,10,opt,name=tcp_ping_avg" json:"tcp_ping_avg,omitempty"`
	TcpPingVar       *float32 `protobuf:"fixed32,11,opt,name=tcp_ping_var" json:"tcp_ping_var,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *Ping) Reset()         { *m = Ping{} }
func (m *Ping) String() string { return proto.CompactTextString(m) }
func (*Ping) ProtoMessage()    {}

type Reject_RejectType int32

const (
	Reject_None              Reject_RejectType = 0
	Reject_WrongVersion      Reject_RejectType = 1
	Reject_InvalidUsername   Reject_RejectType = 2
	Reject_WrongUserPW       Reject_RejectType = 3
	Reject_WrongServerPW     Reject_RejectType = 4
	Reject_UsernameInUse     Reject_RejectType = 5
	Reject_ServerFull        Reject_RejectType = 6
	Reject_NoCertificate     Reject_RejectType = 7
	Reject_AuthenticatorFail Reject_RejectType = 8
)

func (t Reject_RejectType) Enum() *Reject_RejectType { return &t }

type Reject struct {
	Type             *Reject_RejectType `protobuf:"varint,1,opt,name=type,enum=MumbleProto.Reject_RejectType" json:"type,omitempty"`
	Reason           *string            `protobuf:"bytes,2,opt,name=reason" json:"reason,omitempty"`
	XXX_unrecognized []byte             `json:"-"`
}

func (m *Reject) Reset()         { *m = Reject{} }
func (m *Reject) String() string { return proto.CompactTextString(m) }
func (*Reject) ProtoMessage()    {}

type ServerSync struct {
	Session          *uint32 `protobuf:"varint,1,opt,name=session" json:"session,omitempty"`
	MaxBandwidth     *uint32 `protobuf:"varint,2,opt,name=max_bandwidth" json:"max_bandwidth,omitempty"`
	WelcomeText      *string `protobuf:"bytes,3,opt,name=welcome_text" json:"welcome_text,omitempty"`
	Permissions      *uint64 `protobuf:"varint,4,opt,name=permissions" json:"permissions,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *ServerSync) Reset()         { *m = ServerSync{} }
func (m *ServerSync) String() string { return proto.CompactTextString(m) }
func (*ServerSync) ProtoMessage()    {}

type ChannelRemove struct {
	ChannelId        *uint32 `protobuf:"varint,1,opt,name=channel_id" json:"channel_id,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *ChannelRemove) Reset()         { *m = ChannelRemove{} }
func (m *ChannelRemove) String() string { return proto.CompactTextString(m) }
func (*ChannelRemove) ProtoMessage()    {}

type ChannelState struct {
	ChannelId        *uint32  `protobuf:"varint,1,opt,name=channel_id" json:"channel_id,omitempty"`
	Parent           *uint32  `protobuf:"varint,2,opt,name=parent" json:"parent,omitempty"`
	Name             *string  `protobuf:"bytes,3,opt,name=name" json:"name,omitempty"`
	Links            []uint32 `protobuf:"varint,4,rep,name=links" json:"links,omitempty"`
	Description      *string  `protobuf:"bytes,5,opt,name=description" json:"description,omitempty"`
	LinksAdd         []uint32 `protobuf:"varint,6,rep,name=links_add" json:"links_add,omitempty"`
	LinksRemove      []uint32 `protobuf:"varint,7,rep,name=links_remove" json:"links_remove,omitempty"`
	Temporary        *bool    `protobuf:"varint,8,opt,name=temporary" json:"temporary,omitempty"`
	Position         *int32   `protobuf:"varint,9,opt,name=position" json:"position,omitempty"`
	DescriptionHash  []byte   `protobuf:"bytes,10,opt,name=description_hash" json:"description_hash,omitempty"`
	MaxUsers         *uint32  `protobuf:"varint,11,opt,name=max_users" json:"max_users,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *ChannelState) Reset()         { *m = ChannelState{} }
func (m *ChannelState) String() string { return proto.CompactTextString(m) }
func (*ChannelState) ProtoMessage()    {}

type UserRemove struct {
	Session          *uint32 `protobuf:"varint,1,opt,name=session" json:"session,omitempty"`
	Actor            *uint32 `protobuf:"varint,2,opt,name=actor" json:"actor,omitempty"`
	Reason           *string `protobuf:"bytes,3,opt,name=reason" json:"reason,omitempty"`
	Ban              *bool   `protobuf:"varint,4,opt,name=ban" json:"ban,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *UserRemove) Reset()         { *m = UserRemove{} }
func (m *UserRemove) String() string { return proto.CompactTextString(m) }
func (*UserRemove) ProtoMessage()    {}

type UserState struct {
	Session               *uint32  `protobuf:"varint,1,opt,name=session" json:"session,omitempty"`
	Actor                 *uint32  `protobuf:"varint,2,opt,name=actor" json:"actor,omitempty"`
	Name                  *string  `protobuf:"bytes,3,opt,name=name" json:"name,omitempty"`
	UserId                *uint32  `protobuf:"varint,4,opt,name=user_id" json:"user_id,omitempty"`
	ChannelId             *uint32  `protobuf:"varint,5,opt,name=channel_id" json:"channel_id,omitempty"`
	Mute                  *bool    `protobuf:"varint,6,opt,name=mute" json:"mute,omitempty"`
	Deaf                  *bool    `protobuf:"varint,7,opt,name=deaf" json:"deaf,omitempty"`
	Suppress              *bool    `protobuf:"varint,8,opt,name=suppress" json:"suppress,omitempty"`
	SelfMute              *bool    `protobuf:"varint,9,opt,name=self_mute" json:"self_mute,omitempty"`
	SelfDeaf              *bool    `protobuf:"varint,10,opt,name=self_deaf" json:"self_deaf,omitempty"`
	Texture               []byte   `protobuf:"bytes,11,opt,name=texture" json:"texture,omitempty"`
	PluginContext         []byte   `protobuf:"bytes,12,opt,name=plugin_context" json:"plugin_context,omitempty"`
	PluginIdentity        *string  `protobuf:"bytes,13,opt,name=plugin_identity" json:"plugin_identity,omitempty"`
	Comment               *string  `protobuf:"bytes,14,opt,name=comment" json:"comment,omitempty"`
	Hash                  *string  `protobuf:"bytes,15,opt,name=hash" json:"hash,omitempty"`
	CommentHash           []byte   `protobuf:"bytes,16,opt,name=comment_hash" json:"comment_hash,omitempty"`
	TextureHash           []byte   `protobuf:"bytes,17,opt,name=texture_hash" json:"texture_hash,omitempty"`
	PrioritySpeaker       *bool    `protobuf:"varint,18,opt,name=priority_speaker" json:"priority_speaker,omitempty"`
	Recording             *bool    `protobuf:"varint,19,opt,name=recording" json:"recording,omitempty"`
	TemporaryAccessTokens []string `protobuf:"bytes,20,rep,name=temporary_access_tokens" json:"temporary_access_tokens,omitempty"`
	ListeningChannelAdd   []uint32 `protobuf:"varint,21,rep,name=listening_channel_add" json:"listening_channel_add,omitempty"`
	ListeningChannelRemove []uint32 `protobuf:"varint,22,rep,name=listening_channel_remove" json:"listening_channel_remove,omitempty"`
	XXX_unrecognized      []byte   `json:"-"`
}

func (m *UserState) Reset()         { *m = UserState{} }
func (m *UserState) String() string { return proto.CompactTextString(m) }
func (*UserState) ProtoMessage()    {}

type BanList_BanEntry struct {
	Address          []byte  `protobuf:"bytes,1,opt,name=address" json:"address,omitempty"`
	Mask             *uint32 `protobuf:"varint,2,opt,name=mask" json:"mask,omitempty"`
	Name             *string `protobuf:"bytes,3,opt,name=name" json:"name,omitempty"`
	Hash             *string `protobuf:"bytes,4,opt,name=hash" json:"hash,omitempty"`
	Reason           *string `protobuf:"bytes,5,opt,name=reason" json:"reason,omitempty"`
	Start            *string `protobuf:"bytes,6,opt,name=start" json:"start,omitempty"`
	Duration         *uint32 `protobuf:"varint,7,opt,name=duration" json:"duration,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *BanList_BanEntry) Reset()         { *m = BanList_BanEntry{} }
func (m *BanList_BanEntry) String() string { return proto.CompactTextString(m) }
func (*BanList_BanEntry) ProtoMessage()    {}

type BanList struct {
	Bans             []*BanList_BanEntry `protobuf:"bytes,1,rep,name=bans" json:"bans,omitempty"`
	Query            *bool               `protobuf:"varint,2,opt,name=query" json:"query,omitempty"`
	XXX_unrecognized []byte              `json:"-"`
}

func (m *BanList) Reset()         { *m = BanList{} }
func (m *BanList) String() string { return proto.CompactTextString(m) }
func (*BanList) ProtoMessage()    {}

type TextMessage struct {
	Actor            *uint32  `protobuf:"varint,1,opt,name=actor" json:"actor,omitempty"`
	Session          []uint32 `protobuf:"varint,2,rep,name=session" json:"session,omitempty"`
	ChannelId        []uint32 `protobuf:"varint,3,rep,name=channel_id" json:"channel_id,omitempty"`
	TreeId           []uint32 `protobuf:"varint,4,rep,name=tree_id" json:"tree_id,omitempty"`
	Message          *string  `protobuf:"bytes,5,opt,name=message" json:"message,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *TextMessage) Reset()         { *m = TextMessage{} }
func (m *TextMessage) String() string { return proto.CompactTextString(m) }
func (*TextMessage) ProtoMessage()    {}

type PermissionDenied_DenyType int32

const (
	PermissionDenied_Text                 PermissionDenied_DenyType = 0
	PermissionDenied_Permission           PermissionDenied_DenyType = 1
	PermissionDenied_SuperUser            PermissionDenied_DenyType = 2
	PermissionDenied_ChannelName          PermissionDenied_DenyType = 3
	PermissionDenied_TextTooLong          PermissionDenied_DenyType = 4
	PermissionDenied_H9K                  PermissionDenied_DenyType = 5
	PermissionDenied_TemporaryChannel     PermissionDenied_DenyType = 6
	PermissionDenied_MissingCertificate   PermissionDenied_DenyType = 7
	PermissionDenied_UserName             PermissionDenied_DenyType = 8
	PermissionDenied_ChannelFull          PermissionDenied_DenyType = 9
	PermissionDenied_NestingLimit         PermissionDenied_DenyType = 10
	PermissionDenied_ChannelCountLimit    PermissionDenied_DenyType = 11
	PermissionDenied_ChannelListenerLimit PermissionDenied_DenyType = 12
	PermissionDenied_UserListenerLimit    PermissionDenied_DenyType = 13
)

func (t PermissionDenied_DenyType) Enum() *PermissionDenied_DenyType { return &t }

type PermissionDenied struct {
	Permission       *uint32                    `protobuf:"varint,1,opt,name=permission" json:"permission,omitempty"`
	ChannelId        *uint32                    `protobuf:"varint,2,opt,name=channel_id" json:"channel_id,omitempty"`
	Session          *uint32                    `protobuf:"varint,3,opt,name=session" json:"session,omitempty"`
	Reason           *string                    `protobuf:"bytes,4,opt,name=reason" json:"reason,omitempty"`
	Type             *PermissionDenied_DenyType `protobuf:"varint,5,opt,name=type,enum=MumbleProto.PermissionDenied_DenyType" json:"type,omitempty"`
	Name             *string                    `protobuf:"bytes,6,opt,name=name" json:"name,omitempty"`
	XXX_unrecognized []byte                     `json:"-"`
}

func (m *PermissionDenied) Reset()         { *m = PermissionDenied{} }
func (m *PermissionDenied) String() string { return proto.CompactTextString(m) }
func (*PermissionDenied) ProtoMessage()    {}

type ACL_ChanGroup struct {
	Name             *string  `protobuf:"bytes,1,opt,name=name" json:"name,omitempty"`
	Inherited        *bool    `protobuf:"varint,2,opt,name=inherited" json:"inherited,omitempty"`
	Inherit          *bool    `protobuf:"varint,3,opt,name=inherit" json:"inherit,omitempty"`
	Inheritable      *bool    `protobuf:"varint,4,opt,name=inheritable" json:"inheritable,omitempty"`
	Add              []uint32 `protobuf:"varint,5,rep,name=add" json:"add,omitempty"`
	Remove           []uint32 `protobuf:"varint,6,rep,name=remove" json:"remove,omitempty"`
	InheritedMembers []uint32 `protobuf:"varint,7,rep,name=inherited_members" json:"inherited_members,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *ACL_ChanGroup) Reset()         { *m = ACL_ChanGroup{} }
func (m *ACL_ChanGroup) String() string { return proto.CompactTextString(m) }
func (*ACL_ChanGroup) ProtoMessage()    {}

type ACL_ChanACL struct {
	ApplyHere        *bool   `protobuf:"varint,1,opt,name=apply_here" json:"apply_here,omitempty"`
	ApplySubs        *bool   `protobuf:"varint,2,opt,name=apply_subs" json:"apply_subs,omitempty"`
	Inherited        *bool   `protobuf:"varint,3,opt,name=inherited" json:"inherited,omitempty"`
	UserId           *uint32 `protobuf:"varint,4,opt,name=user_id" json:"user_id,omitempty"`
	Group            *string `protobuf:"bytes,5,opt,name=group" json:"group,omitempty"`
	Grant            *uint32 `protobuf:"varint,6,opt,name=grant" json:"grant,omitempty"`
	Deny             *uint32 `protobuf:"varint,7,opt,name=deny" json:"deny,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *ACL_ChanACL) Reset()         { *m = ACL_ChanACL{} }
func (m *ACL_ChanACL) String() string { return proto.CompactTextString(m) }
func (*ACL_ChanACL) ProtoMessage()    {}

type ACL struct {
	ChannelId        *uint32          `protobuf:"varint,1,opt,name=channel_id" json:"channel_id,omitempty"`
	InheritAcls      *bool            `protobuf:"varint,2,opt,name=inherit_acls" json:"inherit_acls,omitempty"`
	Groups           []*ACL_ChanGroup `protobuf:"bytes,3,rep,name=groups" json:"groups,omitempty"`
	Acls             []*ACL_ChanACL   `protobuf:"bytes,4,rep,name=acls" json:"acls,omitempty"`
	Query            *bool            `protobuf:"varint,5,opt,name=query" json:"query,omitempty"`
	XXX_unrecognized []byte           `json:"-"`
}

func (m *ACL) Reset()         { *m = ACL{} }
func (m *ACL) String() string { return proto.CompactTextString(m) }
func (*ACL) ProtoMessage()    {}

type QueryUsers struct {
	Ids              []uint32 `protobuf:"varint,1,rep,name=ids" json:"ids,omitempty"`
	Names            []string `protobuf:"bytes,2,rep,name=names" json:"names,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *QueryUsers) Reset()         { *m = QueryUsers{} }
func (m *QueryUsers) String() string { return proto.CompactTextString(m) }
func (*QueryUsers) ProtoMessage()    {}

type CryptSetup struct {
	Key              []byte `protobuf:"bytes,1,opt,name=key" json:"key,omitempty"`
	ClientNonce      []byte `protobuf:"bytes,2,opt,name=client_nonce" json:"client_nonce,omitempty"`
	ServerNonce      []byte `protobuf:"bytes,3,opt,name=server_nonce" json:"server_nonce,omitempty"`
	XXX_unrecognized []byte `json:"-"`
}

func (m *CryptSetup) Reset()         { *m = CryptSetup{} }
func (m *CryptSetup) String() string { return proto.CompactTextString(m) }
func (*CryptSetup) ProtoMessage()    {}

type ContextActionModify_Operation int32

const (
	ContextActionModify_Add    ContextActionModify_Operation = 0
	ContextActionModify_Remove ContextActionModify_Operation = 1
)

func (t ContextActionModify_Operation) Enum() *ContextActionModify_Operation { return &t }

type ContextActionModify struct {
	Action           *string                        `protobuf:"bytes,1,opt,name=action" json:"action,omitempty"`
	Text             *string                        `protobuf:"bytes,2,opt,name=text" json:"text,omitempty"`
	Context          *uint32                        `protobuf:"varint,3,opt,name=context" json:"context,omitempty"`
	Operation        *ContextActionModify_Operation `protobuf:"varint,4,opt,name=operation,enum=MumbleProto.ContextActionModify_Operation" json:"operation,omitempty"`
	XXX_unrecognized []byte                         `json:"-"`
}

func (m *ContextActionModify) Reset()         { *m = ContextActionModify{} }
func (m *ContextActionModify) String() string { return proto.CompactTextString(m) }
func (*ContextActionModify) ProtoMessage()    {}

type ContextAction struct {
	Session          *uint32 `protobuf:"varint,1,opt,name=session" json:"session,omitempty"`
	ChannelId        *uint32 `protobuf:"varint,2,opt,name=channel_id" json:"channel_id,omitempty"`
	Action           *string `protobuf:"bytes,3,opt,name=action" json:"action,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *ContextAction) Reset()         { *m = ContextAction{} }
func (m *ContextAction) String() string { return proto.CompactTextString(m) }
func (*ContextAction) ProtoMessage()    {}

type UserList_User struct {
	UserId           *uint32 `protobuf:"varint,1,opt,name=user_id" json:"user_id,omitempty"`
	Name             *string `protobuf:"bytes,2,opt,name=name" json:"name,omitempty"`
	LastSeen         *string `protobuf:"bytes,3,opt,name=last_seen" json:"last_seen,omitempty"`
	LastChannel      *uint32 `protobuf:"varint,4,opt,name=last_channel" json:"last_channel,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *UserList_User) Reset()         { *m = UserList_User{} }
func (m *UserList_User) String() string { return proto.CompactTextString(m) }
func (*UserList_User) ProtoMessage()    {}

type UserList struct {
	Users            []*UserList_User `protobuf:"bytes,1,rep,name=users" json:"users,omitempty"`
	XXX_unrecognized []byte           `json:"-"`
}

func (m *UserList) Reset()         { *m = UserList{} }
func (m *UserList) String() string { return proto.CompactTextString(m) }
func (*UserList) ProtoMessage()    {}

type VoiceTarget_Target struct {
	Session          []uint32 `protobuf:"varint,1,rep,name=session" json:"session,omitempty"`
	ChannelId        *uint32  `protobuf:"varint,2,opt,name=channel_id" json:"channel_id,omitempty"`
	Group            *string  `protobuf:"bytes,3,opt,name=group" json:"group,omitempty"`
	Links            *bool    `protobuf:"varint,4,opt,name=links" json:"links,omitempty"`
	Children         *bool    `protobuf:"varint,5,opt,name=children" json:"children,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *VoiceTarget_Target) Reset()         { *m = VoiceTarget_Target{} }
func (m *VoiceTarget_Target) String() string { return proto.CompactTextString(m) }
func (*VoiceTarget_Target) ProtoMessage()    {}

type VoiceTarget struct {
	Id               *uint32               `protobuf:"varint,1,opt,name=id" json:"id,omitempty"`
	Targets          []*VoiceTarget_Target `protobuf:"bytes,2,rep,name=targets" json:"targets,omitempty"`
	XXX_unrecognized []byte                `json:"-"`
}

func (m *VoiceTarget) Reset()         { *m = VoiceTarget{} }
func (m *VoiceTarget) String() string { return proto.CompactTextString(m) }
func (*VoiceTarget) ProtoMessage()    {}

type PermissionQuery struct {
	ChannelId        *uint32 `protobuf:"varint,1,opt,name=channel_id" json:"channel_id,omitempty"`
	Permissions      *uint32 `protobuf:"varint,2,opt,name=permissions" json:"permissions,omitempty"`
	Flush            *bool   `protobuf:"varint,3,opt,name=flush" json:"flush,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *PermissionQuery) Reset()         { *m = PermissionQuery{} }
func (m *PermissionQuery) String() string { return proto.CompactTextString(m) }
func (*PermissionQuery) ProtoMessage()    {}

type CodecVersion struct {
	Alpha            *int32 `protobuf:"varint,1,opt,name=alpha" json:"alpha,omitempty"`
	Beta             *int32 `protobuf:"varint,2,opt,name=beta" json:"beta,omitempty"`
	PreferAlpha      *bool  `protobuf:"varint,3,opt,name=prefer_alpha" json:"prefer_alpha,omitempty"`
	Opus             *bool  `protobuf:"varint,4,opt,name=opus" json:"opus,omitempty"`
	XXX_unrecognized []byte `json:"-"`
}

func (m *CodecVersion) Reset()         { *m = CodecVersion{} }
func (m *CodecVersion) String() string { return proto.CompactTextString(m) }
func (*CodecVersion) ProtoMessage()    {}

type UserStats_Stats struct {
	Good             *uint32 `protobuf:"varint,1,opt,name=good" json:"good,omitempty"`
	Late             *uint32 `protobuf:"varint,2,opt,name=late" json:"late,omitempty"`
	Lost             *uint32 `protobuf:"varint,3,opt,name=lost" json:"lost,omitempty"`
	Resync           *uint32 `protobuf:"varint,4,opt,name=resync" json:"resync,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *UserStats_Stats) Reset()         { *m = UserStats_Stats{} }
func (m *UserStats_Stats) String() string { return proto.CompactTextString(m) }
func (*UserStats_Stats) ProtoMessage()    {}

type UserStats struct {
	Session          *uint32          `protobuf:"varint,1,opt,name=session" json:"session,omitempty"`
	StatsOnly        *bool            `protobuf:"varint,2,opt,name=stats_only" json:"stats_only,omitempty"`
	Certificates     [][]byte         `protobuf:"bytes,3,rep,name=certificates" json:"certificates,omitempty"`
	FromClient       *UserStats_Stats `protobuf:"bytes,4,opt,name=from_client" json:"from_client,omitempty"`
	FromServer       *UserStats_Stats `protobuf:"bytes,5,opt,name=from_server" json:"from_server,omitempty"`
	UdpPackets       *uint32          `protobuf:"varint,6,opt,name=udp_packets" json:"udp_packets,omitempty"`
	TcpPackets       *uint32          `protobuf:"varint,7,opt,name=tcp_packets" json:"tcp_packets,omitempty"`
	UdpPingAvg       *float32         `protobuf:"fixed32,8,opt,name=udp_ping_avg" json:"udp_ping_avg,omitempty"`
	UdpPingVar       *float32         `protobuf:"fixed32,9,opt,name=udp_ping_var" json:"udp_ping_var,omitempty"`
	TcpPingAvg       *float32         `protobuf:"fixed32,10,opt,name=tcp_ping_avg" json:"tcp_ping_avg,omitempty"`
	TcpPingVar       *float32         `protobuf:"fixed32,11,opt,name=tcp_ping_var" json:"tcp_ping_var,omitempty"`
	Version          *Version         `protobuf:"bytes,12,opt,name=version" json:"version,omitempty"`
	CeltVersions     []int32          `protobuf:"varint,13,rep,name=celt_versions" json:"celt_versions,omitempty"`
	Address          []byte           `protobuf:"bytes,14,opt,name=address" json:"address,omitempty"`
	Bandwidth        *uint32          `protobuf:"varint,15,opt,name=bandwidth" json:"bandwidth,omitempty"`
	Onlinesecs       *uint32          `protobuf:"varint,16,opt,name=onlinesecs" json:"onlinesecs,omitempty"`
	Idlesecs         *uint32          `protobuf:"varint,17,opt,name=idlesecs" json:"idlesecs,omitempty"`
	StrongCertificate *bool           `protobuf:"varint,18,opt,name=strong_certificate" json:"strong_certificate,omitempty"`
	Opus             *bool            `protobuf:"varint,19,opt,name=opus" json:"opus,omitempty"`
	XXX_unrecognized []byte           `json:"-"`
}

func (m *UserStats) Reset()         { *m = UserStats{} }
func (m *UserStats) String() string { return proto.CompactTextString(m) }
func (*UserStats) ProtoMessage()    {}

type RequestBlob struct {
	SessionTexture     []uint32 `protobuf:"varint,1,rep,name=session_texture" json:"session_texture,omitempty"`
	SessionComment     []uint32 `protobuf:"varint,2,rep,name=session_comment" json:"session_comment,omitempty"`
	ChannelDescription []uint32 `protobuf:"varint,3,rep,name=channel_description" json:"channel_description,omitempty"`
	XXX_unrecognized   []byte   `json:"-"`
}

func (m *RequestBlob) Reset()         { *m = RequestBlob{} }
func (m *RequestBlob) String() string { return proto.CompactTextString(m) }
func (*RequestBlob) ProtoMessage()    {}

type ServerConfig struct {
	MaxBandwidth       *uint32 `protobuf:"varint,1,opt,name=max_bandwidth" json:"max_bandwidth,omitempty"`
	WelcomeText        *string `protobuf:"bytes,2,opt,name=welcome_text" json:"welcome_text,omitempty"`
	AllowHtml          *bool   `protobuf:"varint,3,opt,name=allow_html" json:"allow_html,omitempty"`
	MessageLength      *uint32 `protobuf:"varint,4,opt,name=message_length" json:"message_length,omitempty"`
	ImageMessageLength *uint32 `protobuf:"varint,5,opt,name=image_message_length" json:"image_message_length,omitempty"`
	MaxUsers           *uint32 `protobuf:"varint,6,opt,name=max_users" json:"max_users,omitempty"`
	XXX_unrecognized   []byte  `json:"-"`
}

func (m *ServerConfig) Reset()         { *m = ServerConfig{} }
func (m *ServerConfig) String() string { return proto.CompactTextString(m) }
func (*ServerConfig) ProtoMessage()    {}

type SuggestConfig struct {
	Version          *uint32 `protobuf:"varint,1,opt,name=version" json:"version,omitempty"`
	Positional       *bool   `protobuf:"varint,2,opt,name=positional" json:"positional,omitempty"`
	PushToTalk       *bool   `protobuf:"varint,3,opt,name=push_to_talk" json:"push_to_talk,omitempty"`
	XXX_unrecognized []byte  `json:"-"`
}

func (m *SuggestConfig) Reset()         { *m = SuggestConfig{} }
func (m *SuggestConfig) String() string { return proto.CompactTextString(m) }
func (*SuggestConfig) ProtoMessage()    {}

type PluginDataTransmission struct {
	SenderSession    *uint32  `protobuf:"varint,1,opt,name=senderSession" json:"senderSession,omitempty"`
	ReceiverSessions []uint32 `protobuf:"varint,2,rep,name=receiverSessions" json:"receiverSessions,omitempty"`
	Data             []byte   `protobuf:"bytes,3,opt,name=data" json:"data,omitempty"`
	XXX_unrecognized []byte   `json:"-"`
}

func (m *PluginDataTransmission) Reset()         { *m = PluginDataTransmission{} }
func (m *PluginDataTransmission) String() string { return proto.CompactTextString(m) }
func (*PluginDataTransmission) ProtoMessage()    {}
