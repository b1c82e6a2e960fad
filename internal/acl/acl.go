// Package acl evaluates channel access control the way Murmur does: each
// channel carries an ordered ACL list and named groups, permissions are
// resolved by walking the chain from the root down, and results are cached
// per (session, channel).
package acl

import "sync"

// Perm is a permission bitmask.
type Perm uint32

const (
	None        Perm = 0x0
	Write       Perm = 0x1
	Traverse    Perm = 0x2
	Enter       Perm = 0x4
	Speak       Perm = 0x8
	MuteDeafen  Perm = 0x10
	Move        Perm = 0x20
	MakeChannel Perm = 0x40
	LinkChannel Perm = 0x80
	Whisper     Perm = 0x100
	TextMessage Perm = 0x200
	TempChannel Perm = 0x400
	Listen      Perm = 0x800

	// Root-channel only.
	Kick         Perm = 0x10000
	Ban          Perm = 0x20000
	Register     Perm = 0x40000
	SelfRegister Perm = 0x80000

	All = Write | Traverse | Enter | Speak | MuteDeafen | Move |
		MakeChannel | LinkChannel | Whisper | TextMessage | TempChannel |
		Listen | Kick | Ban | Register | SelfRegister

	// Default for a user no ACL entry matches.
	Default = Traverse | Enter | Speak | Whisper | TextMessage
)

// Entry is one ACL line on a channel. Either UserID >= 0 or Group is set.
type Entry struct {
	ApplyHere bool
	ApplySubs bool
	UserID    int
	Group     string
	Grant     Perm
	Deny      Perm
}

// Group is a named member set on a channel. Add and Remove hold registered
// user ids; Inherit pulls the parent chain's members in, Inheritable lets
// subchannels see this group.
type Group struct {
	Name        string
	Inherit     bool
	Inheritable bool
	Add         map[int]bool
	Remove      map[int]bool
}

// Context is the ACL view of one channel, linked to its parent.
type Context struct {
	Parent     *Context
	ChannelID  uint32
	InheritACL bool
	Entries    []Entry
	Groups     map[string]*Group
}

// User is the subject of an evaluation. UserID is -1 for unregistered
// sessions; CertHash may be empty; ChannelID is where the user currently is.
type User struct {
	Session   uint32
	UserID    int
	CertHash  string
	Tokens    []string
	ChannelID uint32
}

// chain returns root..ctx.
func chain(ctx *Context) []*Context {
	var out []*Context
	for c := ctx; c != nil; c = c.Parent {
		out = append(out, c)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HasPermission reports whether user holds perm on the channel ctx describes.
// Write anywhere in the chain grants everything except Speak and Whisper; a
// Traverse deny on an ancestor cuts access entirely unless Write is held.
func HasPermission(ctx *Context, user User, perm Perm) bool {
	granted := Default
	traverse := true
	write := false

	for _, c := range chain(ctx) {
		// A channel that does not inherit resets the accumulated state.
		if !c.InheritACL {
			granted = Default
		}
		for i := range c.Entries {
			e := &c.Entries[i]
			if c == ctx && !e.ApplyHere {
				continue
			}
			if c != ctx && !e.ApplySubs {
				continue
			}
			if !matches(ctx, c, e, user) {
				continue
			}
			if e.Grant&Traverse != 0 {
				traverse = true
			}
			if e.Deny&Traverse != 0 {
				traverse = false
			}
			if e.Grant&Write != 0 {
				write = true
			}
			if e.Deny&Write != 0 {
				write = false
			}
			granted |= e.Grant
			granted &^= e.Deny
		}
	}

	if write && perm != Speak && perm != Whisper {
		return true
	}
	if !traverse && !write {
		return false
	}
	return granted&perm != 0
}

// Effective computes the full granted mask for PermissionQuery replies.
func Effective(ctx *Context, user User) Perm {
	var out Perm
	for p := Perm(1); p <= SelfRegister; p <<= 1 {
		if p&All == 0 {
			continue
		}
		if HasPermission(ctx, user, p) {
			out |= p
		}
	}
	return out
}

// matches reports whether entry e, defined on channel def and evaluated for
// the target channel ctx, applies to user.
func matches(ctx, def *Context, e *Entry, user User) bool {
	if e.Group == "" {
		return e.UserID >= 0 && e.UserID == user.UserID
	}
	return InGroup(ctx, def, e.Group, user)
}

// InGroup resolves membership of the possibly-prefixed group name for user.
// The evaluation channel is ctx; def is the channel the ACL entry lives on.
func InGroup(ctx, def *Context, name string, user User) bool {
	invert := false
	for len(name) > 0 {
		switch name[0] {
		case '!':
			invert = !invert
			name = name[1:]
			continue
		case '~':
			// Evaluate against the defining channel instead.
			ctx = def
			name = name[1:]
			continue
		}
		break
	}
	if name == "" {
		return invert
	}

	var member bool
	switch {
	case name == "all":
		member = true
	case name == "auth":
		member = user.UserID >= 0
	case name == "in":
		member = user.ChannelID == ctx.ChannelID
	case name == "out":
		member = user.ChannelID != ctx.ChannelID
	case name[0] == '$':
		member = user.CertHash != "" && name[1:] == user.CertHash
	case name[0] == '#':
		for _, tok := range user.Tokens {
			if tok == name[1:] {
				member = true
				break
			}
		}
	default:
		m, _ := members(ctx, name)
		member = user.UserID >= 0 && m[user.UserID]
	}
	return member != invert
}

// members resolves the named group's member set at ctx, honoring Inherit,
// Inheritable, Add and Remove along the parent chain. A channel that does
// not define the group passes the inherited set through unchanged.
func members(ctx *Context, name string) (map[int]bool, bool) {
	var base map[int]bool
	if ctx.Parent != nil {
		pm, inheritable := members(ctx.Parent, name)
		if inheritable {
			base = pm
		}
	}
	g := ctx.Groups[name]
	if g == nil {
		return base, true
	}
	out := make(map[int]bool, len(base)+len(g.Add))
	if g.Inherit {
		for id := range base {
			out[id] = true
		}
	}
	for id := range g.Add {
		out[id] = true
	}
	for id := range g.Remove {
		delete(out, id)
	}
	return out, g.Inheritable
}

type cacheKey struct {
	session uint32
	channel uint32
}

// Cache memoizes permission checks per (session, channel). Any ACL, group,
// or channel-tree mutation must flush it.
type Cache struct {
	mu    sync.RWMutex
	perms map[cacheKey]Perm
}

func NewCache() *Cache {
	return &Cache{perms: make(map[cacheKey]Perm)}
}

// Check answers a permission query through the cache, computing and storing
// the effective mask on a miss.
func (c *Cache) Check(ctx *Context, user User, perm Perm) bool {
	key := cacheKey{user.Session, ctx.ChannelID}
	c.mu.RLock()
	mask, ok := c.perms[key]
	c.mu.RUnlock()
	if !ok {
		mask = Effective(ctx, user)
		c.mu.Lock()
		c.perms[key] = mask
		c.mu.Unlock()
	}
	return mask&perm != 0
}

// DropSession removes all cached entries for one session.
func (c *Cache) DropSession(session uint32) {
	c.mu.Lock()
	for k := range c.perms {
		if k.session == session {
			delete(c.perms, k)
		}
	}
	c.mu.Unlock()
}

// Flush clears the whole cache.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.perms = make(map[cacheKey]Perm)
	c.mu.Unlock()
}
