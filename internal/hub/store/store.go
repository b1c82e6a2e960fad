// Package store persists the hub's authoritative state in an embedded SQLite
// database: the channel tree with its ACLs, registered users, bans and
// settings.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	_ "modernc.org/sqlite"

	"bramble/internal/clusterpc"
)

var migrations = []string{
	// v1 — settings key/value store
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v2 — channel tree; ACL entries, groups and links ride along as JSON
	`CREATE TABLE IF NOT EXISTS channels (
		id          INTEGER PRIMARY KEY,
		parent_id   INTEGER NOT NULL DEFAULT 0,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL DEFAULT 0,
		max_users   INTEGER NOT NULL DEFAULT 0,
		inherit_acl INTEGER NOT NULL DEFAULT 1,
		acl_json    TEXT NOT NULL DEFAULT '[]',
		groups_json TEXT NOT NULL DEFAULT '[]',
		links_json  TEXT NOT NULL DEFAULT '[]',
		created_at  INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v3 — registered users
	`CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		cert_hash  TEXT NOT NULL DEFAULT '',
		last_seen  INTEGER NOT NULL DEFAULT 0,
		last_channel INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v4 — bans
	`CREATE TABLE IF NOT EXISTS bans (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		address    TEXT NOT NULL DEFAULT '',
		mask       INTEGER NOT NULL DEFAULT 128,
		name       TEXT NOT NULL DEFAULT '',
		cert_hash  TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		duration_s INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v5 — indexes
	`CREATE INDEX IF NOT EXISTS idx_channels_parent ON channels(parent_id)`,
	// v6 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for ephemeral in-process storage (tests).
func New(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Allow multiple read connections but serialise writes.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Warn("WAL mode unavailable", "error", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Warn("busy_timeout not set", "error", err)
	}

	s := &Store{db: db, log: log.With("component", "store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		s.log.Debug("applied migration", "version", v)
	}
	return nil
}

// SaveChannel upserts one channel row from its wire form. Temporary channels
// are never persisted; the caller filters them.
func (s *Store) SaveChannel(ch clusterpc.ChannelInfo) error {
	aclJSON, err := json.Marshal(ch.Entries)
	if err != nil {
		return fmt.Errorf("marshal acls: %w", err)
	}
	groupsJSON, err := json.Marshal(ch.Groups)
	if err != nil {
		return fmt.Errorf("marshal groups: %w", err)
	}
	linksJSON, err := json.Marshal(ch.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	inherit := 0
	if ch.InheritACL {
		inherit = 1
	}
	_, err = s.db.Exec(
		`INSERT INTO channels(id, parent_id, name, description, position, max_users, inherit_acl, acl_json, groups_json, links_json)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			description = excluded.description,
			position = excluded.position,
			max_users = excluded.max_users,
			inherit_acl = excluded.inherit_acl,
			acl_json = excluded.acl_json,
			groups_json = excluded.groups_json,
			links_json = excluded.links_json`,
		ch.ID, ch.ParentID, ch.Name, ch.Description, ch.Position, ch.MaxUsers,
		inherit, string(aclJSON), string(groupsJSON), string(linksJSON),
	)
	return err
}

// DeleteChannel removes a channel row. Returns sql.ErrNoRows if absent.
func (s *Store) DeleteChannel(id uint32) error {
	res, err := s.db.Exec(`DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LoadChannels returns every persisted channel, parents ordered before
// children by id where possible.
func (s *Store) LoadChannels() ([]clusterpc.ChannelInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, parent_id, name, description, position, max_users, inherit_acl, acl_json, groups_json, links_json
		 FROM channels ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clusterpc.ChannelInfo
	for rows.Next() {
		var ch clusterpc.ChannelInfo
		var inherit int
		var aclJSON, groupsJSON, linksJSON string
		if err := rows.Scan(&ch.ID, &ch.ParentID, &ch.Name, &ch.Description,
			&ch.Position, &ch.MaxUsers, &inherit, &aclJSON, &groupsJSON, &linksJSON); err != nil {
			return nil, err
		}
		ch.InheritACL = inherit != 0
		if err := json.Unmarshal([]byte(aclJSON), &ch.Entries); err != nil {
			return nil, fmt.Errorf("channel %d acls: %w", ch.ID, err)
		}
		if err := json.Unmarshal([]byte(groupsJSON), &ch.Groups); err != nil {
			return nil, fmt.Errorf("channel %d groups: %w", ch.ID, err)
		}
		if err := json.Unmarshal([]byte(linksJSON), &ch.Links); err != nil {
			return nil, fmt.Errorf("channel %d links: %w", ch.ID, err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// User is one registered user row.
type User struct {
	ID          int64
	Name        string
	CertHash    string
	LastSeen    int64
	LastChannel uint32
}

// RegisterUser inserts a registered user and returns its id.
func (s *Store) RegisterUser(name, certHash string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users(name, cert_hash) VALUES(?, ?)`, name, certHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByName looks a registered user up by name.
func (s *Store) GetUserByName(name string) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, name, cert_hash, last_seen, last_channel FROM users WHERE name = ?`, name,
	).Scan(&u.ID, &u.Name, &u.CertHash, &u.LastSeen, &u.LastChannel)
	return u, err
}

// ListUsers returns all registered users ordered by id.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(
		`SELECT id, name, cert_hash, last_seen, last_channel FROM users ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.CertHash, &u.LastSeen, &u.LastChannel); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TouchUser records a sighting of a registered user.
func (s *Store) TouchUser(id int64, channel uint32) error {
	_, err := s.db.Exec(
		`UPDATE users SET last_seen = unixepoch(), last_channel = ? WHERE id = ?`,
		channel, id,
	)
	return err
}

// RenameUser changes a registered user's name.
func (s *Store) RenameUser(id int64, name string) error {
	res, err := s.db.Exec(`UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteUser drops a registration.
func (s *Store) DeleteUser(id int64) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceBans swaps the whole ban list, the semantics of a client BanList
// write.
func (s *Store) ReplaceBans(bans []clusterpc.BanInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM bans`); err != nil {
		return err
	}
	for _, b := range bans {
		start := time.Now().Unix()
		if b.Start != "" {
			if t, err := time.Parse(time.RFC3339, b.Start); err == nil {
				start = t.Unix()
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO bans(address, mask, name, cert_hash, reason, duration_s, created_at) VALUES(?,?,?,?,?,?,?)`,
			fmt.Sprintf("%x", b.Address), b.Mask, b.Name, b.CertHash, b.Reason, b.Duration, start,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddBan appends one ban.
func (s *Store) AddBan(b clusterpc.BanInfo) error {
	_, err := s.db.Exec(
		`INSERT INTO bans(address, mask, name, cert_hash, reason, duration_s) VALUES(?,?,?,?,?,?)`,
		fmt.Sprintf("%x", b.Address), b.Mask, b.Name, b.CertHash, b.Reason, b.Duration,
	)
	return err
}

// ListBans returns active and expired bans, most recent first.
func (s *Store) ListBans() ([]clusterpc.BanInfo, error) {
	rows, err := s.db.Query(
		`SELECT address, mask, name, cert_hash, reason, duration_s, created_at FROM bans ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clusterpc.BanInfo
	for rows.Next() {
		var b clusterpc.BanInfo
		var addrHex string
		var created int64
		if err := rows.Scan(&addrHex, &b.Mask, &b.Name, &b.CertHash, &b.Reason, &b.Duration, &created); err != nil {
			return nil, err
		}
		fmt.Sscanf(addrHex, "%x", &b.Address)
		b.Start = time.Unix(created, 0).UTC().Format(time.RFC3339)
		out = append(out, b)
	}
	return out, rows.Err()
}

// IsBanned checks the active bans for an address or cert hash match. Address
// bans are ranges: the address matches when it falls inside the banned
// prefix, mask counting bits out of 128 over the 16-byte form.
func (s *Store) IsBanned(address []byte, certHash string) (bool, string, error) {
	rows, err := s.db.Query(
		`SELECT address, mask, cert_hash, reason FROM bans
		 WHERE duration_s = 0 OR created_at + duration_s > unixepoch()`,
	)
	if err != nil {
		return false, "", err
	}
	defer rows.Close()

	addr, haveAddr := netip.AddrFromSlice(address)
	if haveAddr {
		addr = netip.AddrFrom16(addr.As16())
	}

	for rows.Next() {
		var addrHex, hash, reason string
		var mask uint32
		if err := rows.Scan(&addrHex, &mask, &hash, &reason); err != nil {
			return false, "", err
		}
		if hash != "" && hash == certHash {
			return true, reason, nil
		}
		if !haveAddr || addrHex == "" {
			continue
		}
		raw, err := hex.DecodeString(addrHex)
		if err != nil {
			continue
		}
		prefix, ok := banPrefix(raw, mask)
		if ok && prefix.Contains(addr) {
			return true, reason, nil
		}
	}
	return false, "", rows.Err()
}

// banPrefix canonicalizes a stored 4 or 16 byte ban address into a 16-byte
// prefix. An IPv4 address with a mask of at most 32 is read as an IPv4 range
// and shifted into the mapped form.
func banPrefix(address []byte, mask uint32) (netip.Prefix, bool) {
	a, ok := netip.AddrFromSlice(address)
	if !ok {
		return netip.Prefix{}, false
	}
	bits := int(mask)
	if a.Is4() && bits <= 32 {
		bits += 96
	}
	if bits > 128 {
		bits = 128
	}
	return netip.PrefixFrom(netip.AddrFrom16(a.As16()), bits), true
}

// PurgeExpiredBans removes bans past their duration.
func (s *Store) PurgeExpiredBans() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM bans WHERE duration_s > 0 AND created_at + duration_s <= unixepoch()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetSetting returns the value stored under key; false when absent.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetSetting upserts key → value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Backup copies the database to destPath using VACUUM INTO.
func (s *Store) Backup(destPath string) error {
	_, err := s.db.Exec(`VACUUM INTO ?`, destPath)
	return err
}
