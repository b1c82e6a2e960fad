package mumbleproto

import (
	"testing"

	proto "github.com/golang/protobuf/proto"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()

	msgs := []proto.Message{
		&Version{Version: proto.Uint32(0x10205), Release: proto.String("bramble"), Os: proto.String("linux")},
		&Authenticate{Username: proto.String("alice"), Password: proto.String("s3cret"), Opus: proto.Bool(true), CeltVersions: []int32{-2147483637, -2147483632}},
		&Ping{Timestamp: proto.Uint64(12345), Good: proto.Uint32(7), Lost: proto.Uint32(2)},
		&Reject{Type: Reject_WrongUserPW.Enum(), Reason: proto.String("bad password")},
		&ServerSync{Session: proto.Uint32(4), MaxBandwidth: proto.Uint32(72000), WelcomeText: proto.String("hi"), Permissions: proto.Uint64(0xF)},
		&ChannelState{ChannelId: proto.Uint32(3), Parent: proto.Uint32(0), Name: proto.String("Lobby"), Links: []uint32{4, 5}, MaxUsers: proto.Uint32(10)},
		&UserState{Session: proto.Uint32(9), Name: proto.String("bob"), ChannelId: proto.Uint32(3), SelfMute: proto.Bool(true), ListeningChannelAdd: []uint32{7}},
		&UserRemove{Session: proto.Uint32(9), Reason: proto.String("kicked"), Ban: proto.Bool(false)},
		&TextMessage{Actor: proto.Uint32(9), ChannelId: []uint32{3}, Message: proto.String("hello")},
		&PermissionDenied{Type: PermissionDenied_TextTooLong.Enum(), Session: proto.Uint32(9)},
		&ACL{
			ChannelId:   proto.Uint32(3),
			InheritAcls: proto.Bool(true),
			Groups:      []*ACL_ChanGroup{{Name: proto.String("admin"), Inherit: proto.Bool(true), Add: []uint32{1}}},
			Acls:        []*ACL_ChanACL{{ApplyHere: proto.Bool(true), Group: proto.String("admin"), Grant: proto.Uint32(0x1F)}},
		},
		&CryptSetup{Key: make([]byte, 16), ClientNonce: make([]byte, 16), ServerNonce: make([]byte, 16)},
		&VoiceTarget{Id: proto.Uint32(2), Targets: []*VoiceTarget_Target{{ChannelId: proto.Uint32(3), Links: proto.Bool(true)}}},
		&PermissionQuery{ChannelId: proto.Uint32(3), Permissions: proto.Uint32(0x2C3), Flush: proto.Bool(true)},
		&CodecVersion{Alpha: proto.Int32(-2147483637), Beta: proto.Int32(0), PreferAlpha: proto.Bool(true), Opus: proto.Bool(true)},
		&UserStats{Session: proto.Uint32(9), FromClient: &UserStats_Stats{Good: proto.Uint32(100)}, Onlinesecs: proto.Uint32(60)},
		&RequestBlob{SessionComment: []uint32{9}, ChannelDescription: []uint32{3}},
		&ServerConfig{MessageLength: proto.Uint32(5000), AllowHtml: proto.Bool(false), MaxUsers: proto.Uint32(100)},
		&BanList{Bans: []*BanList_BanEntry{{Address: []byte{127, 0, 0, 1}, Mask: proto.Uint32(32), Reason: proto.String("spam")}}},
		&QueryUsers{Names: []string{"alice"}},
	}

	for _, msg := range msgs {
		typ, payload, err := Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", msg, err)
		}
		got, err := Unmarshal(typ, payload)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", msg, err)
		}
		if !proto.Equal(msg, got) {
			t.Fatalf("round trip %T:\n sent %v\n got  %v", msg, msg, got)
		}
	}
}

func TestTypeIdsMatchWireOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg  proto.Message
		want uint16
	}{
		{&Version{}, 0},
		{&Authenticate{}, 2},
		{&Ping{}, 3},
		{&ServerSync{}, 5},
		{&ChannelState{}, 7},
		{&UserState{}, 9},
		{&TextMessage{}, 11},
		{&ACL{}, 13},
		{&CryptSetup{}, 15},
		{&VoiceTarget{}, 19},
		{&CodecVersion{}, 21},
		{&ServerConfig{}, 24},
		{&PluginDataTransmission{}, 26},
	}
	for _, c := range cases {
		typ, ok := TypeOf(c.msg)
		if !ok || typ != c.want {
			t.Fatalf("%T: type %d ok=%v, want %d", c.msg, typ, ok, c.want)
		}
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	t.Parallel()

	if _, err := Unmarshal(99, nil); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
