package store

import (
	"database/sql"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"bramble/internal/clusterpc"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hub.db")
	s1, err := New(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()
	s2, err := New(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

func TestChannelRoundTrip(t *testing.T) {
	t.Parallel()

	s := open(t)
	ch := clusterpc.ChannelInfo{
		ID: 3, ParentID: 0, Name: "Lobby", Description: "welcome",
		MaxUsers: 12, InheritACL: true,
		Entries: []clusterpc.EntryInfo{{ApplyHere: true, UserID: -1, Group: "admin", Grant: 1}},
		Groups:  []clusterpc.GroupInfo{{Name: "admin", Inheritable: true, Add: []int{1}}},
		Links:   []uint32{4},
	}
	if err := s.SaveChannel(ch); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Upsert path.
	ch.Name = "Lobby 2"
	if err := s.SaveChannel(ch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.LoadChannels()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d channels", len(got))
	}
	l := got[0]
	if l.Name != "Lobby 2" || l.MaxUsers != 12 || !l.InheritACL {
		t.Fatalf("channel: %+v", l)
	}
	if len(l.Entries) != 1 || l.Entries[0].Group != "admin" {
		t.Fatalf("acls: %+v", l.Entries)
	}
	if len(l.Groups) != 1 || len(l.Groups[0].Add) != 1 {
		t.Fatalf("groups: %+v", l.Groups)
	}
	if len(l.Links) != 1 || l.Links[0] != 4 {
		t.Fatalf("links: %+v", l.Links)
	}

	if err := s.DeleteChannel(3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteChannel(3); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestUserRegistration(t *testing.T) {
	t.Parallel()

	s := open(t)
	id, err := s.RegisterUser("alice", "deadbeef")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.RegisterUser("alice", ""); err == nil {
		t.Fatal("duplicate name accepted")
	}

	if err := s.TouchUser(id, 7); err != nil {
		t.Fatalf("touch: %v", err)
	}
	u, err := s.GetUserByName("alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.ID != id || u.LastChannel != 7 || u.LastSeen == 0 {
		t.Fatalf("user: %+v", u)
	}

	if err := s.RenameUser(id, "alicia"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	users, err := s.ListUsers()
	if err != nil || len(users) != 1 || users[0].Name != "alicia" {
		t.Fatalf("list: %+v %v", users, err)
	}

	if err := s.DeleteUser(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteUser(id); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestBanLifecycle(t *testing.T) {
	t.Parallel()

	s := open(t)
	if err := s.AddBan(clusterpc.BanInfo{Address: []byte{10, 0, 0, 7}, Mask: 32, Reason: "spam"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	banned, reason, err := s.IsBanned([]byte{10, 0, 0, 7}, "")
	if err != nil || !banned || reason != "spam" {
		t.Fatalf("banned=%v reason=%q err=%v", banned, reason, err)
	}
	banned, _, err = s.IsBanned([]byte{10, 0, 0, 8}, "")
	if err != nil || banned {
		t.Fatalf("wrong address banned=%v err=%v", banned, err)
	}

	// Replace drops the old list.
	repl := []clusterpc.BanInfo{{CertHash: "cafe", Reason: "cert ban", Mask: 128}}
	if err := s.ReplaceBans(repl); err != nil {
		t.Fatalf("replace: %v", err)
	}
	list, err := s.ListBans()
	if err != nil || len(list) != 1 || list[0].CertHash != "cafe" {
		t.Fatalf("list: %+v %v", list, err)
	}
	banned, _, err = s.IsBanned(nil, "cafe")
	if err != nil || !banned {
		t.Fatalf("cert ban missed: %v %v", banned, err)
	}
}

func TestBanRangeMatching(t *testing.T) {
	t.Parallel()

	s := open(t)
	// /24 expressed over the 16-byte form, the way auto-bans are stored.
	if err := s.AddBan(clusterpc.BanInfo{Address: net.ParseIP("10.0.0.0"), Mask: 120, Reason: "range"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	banned, reason, err := s.IsBanned(net.ParseIP("10.0.0.7"), "")
	if err != nil || !banned || reason != "range" {
		t.Fatalf("inside range: banned=%v reason=%q err=%v", banned, reason, err)
	}
	if banned, _, _ := s.IsBanned(net.ParseIP("10.0.1.7"), ""); banned {
		t.Fatal("address outside range matched")
	}

	// Client ban lists carry 4-byte addresses with IPv4 mask widths; a
	// 16-byte candidate still has to match.
	if err := s.AddBan(clusterpc.BanInfo{Address: []byte{192, 168, 4, 0}, Mask: 24, Reason: "v4 range"}); err != nil {
		t.Fatalf("add v4: %v", err)
	}
	banned, _, err = s.IsBanned(net.ParseIP("192.168.4.200"), "")
	if err != nil || !banned {
		t.Fatalf("v4 range: banned=%v err=%v", banned, err)
	}
	if banned, _, _ := s.IsBanned(net.ParseIP("192.168.5.1"), ""); banned {
		t.Fatal("v4 address outside range matched")
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()

	s := open(t)
	if _, ok, err := s.GetSetting("welcome"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting("welcome", "hi"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetSetting("welcome", "hello"); err != nil {
		t.Fatalf("update: %v", err)
	}
	v, ok, err := s.GetSetting("welcome")
	if err != nil || !ok || v != "hello" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
}

func TestBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "hub.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	s.SetSetting("k", "v")

	dest := filepath.Join(dir, "backup.db")
	if err := s.Backup(dest); err != nil {
		t.Fatalf("backup: %v", err)
	}
	restored, err := New(dest, nil)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer restored.Close()
	v, ok, err := restored.GetSetting("k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("restored: %q %v %v", v, ok, err)
	}
}
