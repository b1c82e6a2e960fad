package acl

import "testing"

func tree() (root, lobby, private *Context) {
	root = &Context{
		ChannelID:  0,
		InheritACL: true,
		Groups: map[string]*Group{
			"admin": {Name: "admin", Inherit: true, Inheritable: true, Add: map[int]bool{1: true}},
		},
		Entries: []Entry{
			{ApplyHere: true, ApplySubs: true, UserID: -1, Group: "admin", Grant: Write},
		},
	}
	lobby = &Context{Parent: root, ChannelID: 1, InheritACL: true}
	private = &Context{
		Parent:     lobby,
		ChannelID:  2,
		InheritACL: true,
		Entries: []Entry{
			{ApplyHere: true, ApplySubs: true, UserID: -1, Group: "all", Deny: Enter | Traverse | Speak},
			{ApplyHere: true, ApplySubs: true, UserID: -1, Group: "members", Grant: Enter | Traverse | Speak},
		},
		Groups: map[string]*Group{
			"members": {Name: "members", Inheritable: true, Add: map[int]bool{7: true}},
		},
	}
	return root, lobby, private
}

func TestDefaultPermissions(t *testing.T) {
	t.Parallel()

	_, lobby, _ := tree()
	guest := User{Session: 100, UserID: -1, ChannelID: 1}
	for _, p := range []Perm{Traverse, Enter, Speak, Whisper, TextMessage} {
		if !HasPermission(lobby, guest, p) {
			t.Fatalf("guest missing default perm %#x", p)
		}
	}
	for _, p := range []Perm{Write, Kick, Ban, MakeChannel, MuteDeafen} {
		if HasPermission(lobby, guest, p) {
			t.Fatalf("guest unexpectedly holds %#x", p)
		}
	}
}

func TestWriteImpliesAllButSpeech(t *testing.T) {
	t.Parallel()

	_, lobby, private := tree()
	admin := User{Session: 101, UserID: 1, ChannelID: 1}
	for _, p := range []Perm{Enter, Kick, Ban, Move, MakeChannel, MuteDeafen} {
		if !HasPermission(lobby, admin, p) {
			t.Fatalf("admin missing %#x", p)
		}
	}
	// Write punches through a Traverse deny too.
	if !HasPermission(private, admin, Enter) {
		t.Fatal("admin denied entry to locked channel")
	}
	// Speak inside the locked channel is still governed by the deny list.
	if HasPermission(private, admin, Speak) {
		t.Fatal("write implied speak")
	}
}

func TestGroupGateAndTraverseDeny(t *testing.T) {
	t.Parallel()

	_, _, private := tree()
	member := User{Session: 102, UserID: 7, ChannelID: 1}
	outsider := User{Session: 103, UserID: 8, ChannelID: 1}

	if !HasPermission(private, member, Enter) || !HasPermission(private, member, Speak) {
		t.Fatal("member locked out of own channel")
	}
	if HasPermission(private, outsider, Enter) {
		t.Fatal("outsider entered locked channel")
	}
	// Traverse denied to all without a matching grant blocks everything.
	if HasPermission(private, outsider, TextMessage) {
		t.Fatal("traverse deny did not cut access")
	}
}

func TestInheritACLReset(t *testing.T) {
	t.Parallel()

	root := &Context{ChannelID: 0, InheritACL: true, Entries: []Entry{
		{ApplyHere: true, ApplySubs: true, UserID: -1, Group: "all", Grant: MakeChannel},
	}}
	sealed := &Context{Parent: root, ChannelID: 5, InheritACL: false}
	u := User{Session: 104, UserID: -1, ChannelID: 0}

	if !HasPermission(root, u, MakeChannel) {
		t.Fatal("grant missing at root")
	}
	if HasPermission(sealed, u, MakeChannel) {
		t.Fatal("non-inheriting channel kept ancestor grant")
	}
	if !HasPermission(sealed, u, Enter) {
		t.Fatal("non-inheriting channel lost defaults")
	}
}

func TestSpecialGroups(t *testing.T) {
	t.Parallel()

	ch := &Context{ChannelID: 3, InheritACL: true, Entries: []Entry{
		{ApplyHere: true, UserID: -1, Group: "auth", Grant: MakeChannel},
		{ApplyHere: true, UserID: -1, Group: "in", Grant: MuteDeafen},
		{ApplyHere: true, UserID: -1, Group: "!auth", Deny: TextMessage},
		{ApplyHere: true, UserID: -1, Group: "$abcdef", Grant: Move},
		{ApplyHere: true, UserID: -1, Group: "#backstage", Grant: Kick},
	}}

	reg := User{Session: 1, UserID: 4, ChannelID: 3, CertHash: "abcdef"}
	anon := User{Session: 2, UserID: -1, ChannelID: 9, Tokens: []string{"backstage"}}

	if !HasPermission(ch, reg, MakeChannel) {
		t.Fatal("auth grant missed registered user")
	}
	if HasPermission(ch, anon, MakeChannel) {
		t.Fatal("auth grant matched anonymous user")
	}
	if !HasPermission(ch, reg, MuteDeafen) {
		t.Fatal("in-channel grant missed occupant")
	}
	if HasPermission(ch, anon, MuteDeafen) {
		t.Fatal("in-channel grant matched outsider")
	}
	if HasPermission(ch, anon, TextMessage) {
		t.Fatal("!auth deny skipped anonymous user")
	}
	if !HasPermission(ch, reg, TextMessage) {
		t.Fatal("!auth deny hit registered user")
	}
	if !HasPermission(ch, reg, Move) {
		t.Fatal("cert hash grant missed")
	}
	if !HasPermission(ch, anon, Kick) {
		t.Fatal("token grant missed")
	}
}

func TestGroupInheritance(t *testing.T) {
	t.Parallel()

	root := &Context{ChannelID: 0, InheritACL: true, Groups: map[string]*Group{
		"crew": {Name: "crew", Inheritable: true, Add: map[int]bool{1: true, 2: true}},
	}}
	mid := &Context{Parent: root, ChannelID: 1, InheritACL: true}
	leaf := &Context{Parent: mid, ChannelID: 2, InheritACL: true,
		Groups: map[string]*Group{
			"crew": {Name: "crew", Inherit: true, Inheritable: true,
				Add: map[int]bool{3: true}, Remove: map[int]bool{2: true}},
		},
		Entries: []Entry{
			{ApplyHere: true, UserID: -1, Group: "crew", Grant: MakeChannel},
		},
	}

	for id, want := range map[int]bool{1: true, 2: false, 3: true, 4: false} {
		u := User{Session: uint32(id), UserID: id, ChannelID: 2}
		if got := HasPermission(leaf, u, MakeChannel); got != want {
			t.Fatalf("user %d: member=%v, want %v", id, got, want)
		}
	}

	// A non-inheriting redefinition discards the parent's members.
	leaf.Groups["crew"].Inherit = false
	u1 := User{Session: 1, UserID: 1, ChannelID: 2}
	if HasPermission(leaf, u1, MakeChannel) {
		t.Fatal("non-inheriting group kept parent member")
	}
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()

	ch := &Context{ChannelID: 4, InheritACL: true}
	u := User{Session: 50, UserID: -1, ChannelID: 4}
	c := NewCache()

	if c.Check(ch, u, MakeChannel) {
		t.Fatal("unexpected grant")
	}
	ch.Entries = append(ch.Entries, Entry{ApplyHere: true, UserID: -1, Group: "all", Grant: MakeChannel})

	// Stale until flushed.
	if c.Check(ch, u, MakeChannel) {
		t.Fatal("cache did not memoize")
	}
	c.Flush()
	if !c.Check(ch, u, MakeChannel) {
		t.Fatal("flush did not recompute")
	}

	c.DropSession(50)
	ch.Entries = nil
	if c.Check(ch, u, MakeChannel) {
		t.Fatal("drop-session kept stale entry")
	}
}
