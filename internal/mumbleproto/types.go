package mumbleproto

import (
	"fmt"

	proto "github.com/golang/protobuf/proto"
)

// Control channel message type ids, in wire order.
const (
	MessageVersion uint16 = iota
	MessageUDPTunnel
	MessageAuthenticate
	MessagePing
	MessageReject
	MessageServerSync
	MessageChannelRemove
	MessageChannelState
	MessageUserRemove
	MessageUserState
	MessageBanList
	MessageTextMessage
	MessagePermissionDenied
	MessageACL
	MessageQueryUsers
	MessageCryptSetup
	MessageContextActionModify
	MessageContextAction
	MessageUserList
	MessageVoiceTarget
	MessagePermissionQuery
	MessageCodecVersion
	MessageUserStats
	MessageRequestBlob
	MessageServerConfig
	MessageSuggestConfig
	MessagePluginDataTransmission
)

// TypeOf maps a message value to its wire type id.
func TypeOf(msg proto.Message) (uint16, bool) {
	switch msg.(type) {
	case *Version:
		return MessageVersion, true
	case *UDPTunnel:
		return MessageUDPTunnel, true
	case *Authenticate:
		return MessageAuthenticate, true
	case *Ping:
		return MessagePing, true
	case *Reject:
		return MessageReject, true
	case *ServerSync:
		return MessageServerSync, true
	case *ChannelRemove:
		return MessageChannelRemove, true
	case *ChannelState:
		return MessageChannelState, true
	case *UserRemove:
		return MessageUserRemove, true
	case *UserState:
		return MessageUserState, true
	case *BanList:
		return MessageBanList, true
	case *TextMessage:
		return MessageTextMessage, true
	case *PermissionDenied:
		return MessagePermissionDenied, true
	case *ACL:
		return MessageACL, true
	case *QueryUsers:
		return MessageQueryUsers, true
	case *CryptSetup:
		return MessageCryptSetup, true
	case *ContextActionModify:
		return MessageContextActionModify, true
	case *ContextAction:
		return MessageContextAction, true
	case *UserList:
		return MessageUserList, true
	case *VoiceTarget:
		return MessageVoiceTarget, true
	case *PermissionQuery:
		return MessagePermissionQuery, true
	case *CodecVersion:
		return MessageCodecVersion, true
	case *UserStats:
		return MessageUserStats, true
	case *RequestBlob:
		return MessageRequestBlob, true
	case *ServerConfig:
		return MessageServerConfig, true
	case *SuggestConfig:
		return MessageSuggestConfig, true
	case *PluginDataTransmission:
		return MessagePluginDataTransmission, true
	}
	return 0, false
}

// New returns a fresh message value for a wire type id. UDPTunnel payloads are
// raw voice frames, not protobuf, so the caller handles them before decoding.
func New(typ uint16) (proto.Message, error) {
	switch typ {
	case MessageVersion:
		return &Version{}, nil
	case MessageAuthenticate:
		return &Authenticate{}, nil
	case MessagePing:
		return &Ping{}, nil
	case MessageReject:
		return &Reject{}, nil
	case MessageServerSync:
		return &ServerSync{}, nil
	case MessageChannelRemove:
		return &ChannelRemove{}, nil
	case MessageChannelState:
		return &ChannelState{}, nil
	case MessageUserRemove:
		return &UserRemove{}, nil
	case MessageUserState:
		return &UserState{}, nil
	case MessageBanList:
		return &BanList{}, nil
	case MessageTextMessage:
		return &TextMessage{}, nil
	case MessagePermissionDenied:
		return &PermissionDenied{}, nil
	case MessageACL:
		return &ACL{}, nil
	case MessageQueryUsers:
		return &QueryUsers{}, nil
	case MessageCryptSetup:
		return &CryptSetup{}, nil
	case MessageContextActionModify:
		return &ContextActionModify{}, nil
	case MessageContextAction:
		return &ContextAction{}, nil
	case MessageUserList:
		return &UserList{}, nil
	case MessageVoiceTarget:
		return &VoiceTarget{}, nil
	case MessagePermissionQuery:
		return &PermissionQuery{}, nil
	case MessageCodecVersion:
		return &CodecVersion{}, nil
	case MessageUserStats:
		return &UserStats{}, nil
	case MessageRequestBlob:
		return &RequestBlob{}, nil
	case MessageServerConfig:
		return &ServerConfig{}, nil
	case MessageSuggestConfig:
		return &SuggestConfig{}, nil
	case MessagePluginDataTransmission:
		return &PluginDataTransmission{}, nil
	}
	return nil, fmt.Errorf("mumbleproto: unknown message type %d", typ)
}

// Marshal serializes msg and returns its wire type id alongside the payload.
func Marshal(msg proto.Message) (uint16, []byte, error) {
	typ, ok := TypeOf(msg)
	if !ok {
		return 0, nil, fmt.Errorf("mumbleproto: unregistered message %T", msg)
	}
	buf, err := proto.Marshal(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("mumbleproto: marshal %T: %w", msg, err)
	}
	return typ, buf, nil
}

// Unmarshal decodes payload into a fresh message for typ.
func Unmarshal(typ uint16, payload []byte) (proto.Message, error) {
	msg, err := New(typ)
	if err != nil {
		return nil, err
	}
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("mumbleproto: unmarshal type %d: %w", typ, err)
	}
	return msg, nil
}
