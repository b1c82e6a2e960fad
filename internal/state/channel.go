// Package state holds the in-memory cluster model: the channel tree and the
// session directory. The hub owns the authoritative copy; edges hold replicas
// refreshed over the cluster link.
package state

import (
	"errors"
	"fmt"
	"sync"

	"bramble/internal/acl"
)

const (
	// RootChannelID is fixed; the root always exists.
	RootChannelID uint32 = 0

	// DefaultMaxNesting bounds channel depth below the root.
	DefaultMaxNesting = 10
	// DefaultMaxChannels bounds the total channel count.
	DefaultMaxChannels = 1000
)

var (
	ErrNoChannel      = errors.New("state: no such channel")
	ErrHasChildren    = errors.New("state: channel has children")
	ErrRootImmutable  = errors.New("state: root channel cannot be removed or moved")
	ErrNestingLimit   = errors.New("state: channel nesting limit reached")
	ErrChannelLimit   = errors.New("state: channel count limit reached")
	ErrDuplicateName  = errors.New("state: sibling with that name exists")
	ErrChannelNotEmpty = errors.New("state: channel still occupied")
)

// Channel is one node of the tree plus its ACL data.
type Channel struct {
	ID              uint32
	ParentID        uint32
	Name            string
	Description     string
	DescriptionHash []byte
	Position        int32
	Temporary       bool
	MaxUsers        uint32

	InheritACL bool
	Entries    []acl.Entry
	Groups     map[string]*acl.Group

	Links map[uint32]bool
}

// Tree is the channel hierarchy. All methods are safe for concurrent use.
type Tree struct {
	mu          sync.RWMutex
	channels    map[uint32]*Channel
	maxNesting  int
	maxChannels int
}

// NewTree builds a tree holding only the root channel.
func NewTree(rootName string) *Tree {
	if rootName == "" {
		rootName = "Root"
	}
	t := &Tree{
		channels:    make(map[uint32]*Channel),
		maxNesting:  DefaultMaxNesting,
		maxChannels: DefaultMaxChannels,
	}
	t.channels[RootChannelID] = &Channel{
		ID:         RootChannelID,
		Name:       rootName,
		InheritACL: true,
		Links:      make(map[uint32]bool),
	}
	return t
}

// SetLimits overrides the nesting and count limits. Zero keeps the default.
func (t *Tree) SetLimits(nesting, channels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if nesting > 0 {
		t.maxNesting = nesting
	}
	if channels > 0 {
		t.maxChannels = channels
	}
}

// Get returns a copy of the channel, or false if absent.
func (t *Tree) Get(id uint32) (Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.channels[id]
	if !ok {
		return Channel{}, false
	}
	return copyChannel(ch), true
}

// Exists reports whether the channel id is present.
func (t *Tree) Exists(id uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.channels[id]
	return ok
}

// Add inserts a channel under its parent, enforcing the nesting and count
// limits and sibling-name uniqueness.
func (t *Tree) Add(ch Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.channels[ch.ParentID]; !ok {
		return fmt.Errorf("parent %d: %w", ch.ParentID, ErrNoChannel)
	}
	if len(t.channels) >= t.maxChannels {
		return ErrChannelLimit
	}
	if t.depthLocked(ch.ParentID)+1 > t.maxNesting {
		return ErrNestingLimit
	}
	for _, sib := range t.channels {
		if sib.ParentID == ch.ParentID && sib.ID != ch.ParentID && sib.Name == ch.Name && sib.ID != ch.ID {
			return ErrDuplicateName
		}
	}
	stored := copyChannel(&ch)
	if stored.Links == nil {
		stored.Links = make(map[uint32]bool)
	}
	t.channels[ch.ID] = &stored
	return nil
}

// Update replaces the mutable fields of an existing channel. Parent moves are
// validated against the nesting limit.
func (t *Tree) Update(ch Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.channels[ch.ID]
	if !ok {
		return ErrNoChannel
	}
	if ch.ID == RootChannelID && ch.ParentID != RootChannelID {
		return ErrRootImmutable
	}
	if ch.ParentID != cur.ParentID {
		if _, ok := t.channels[ch.ParentID]; !ok {
			return fmt.Errorf("parent %d: %w", ch.ParentID, ErrNoChannel)
		}
		if t.depthLocked(ch.ParentID)+1 > t.maxNesting {
			return ErrNestingLimit
		}
	}
	stored := copyChannel(&ch)
	if stored.Links == nil {
		stored.Links = cur.Links
	}
	t.channels[ch.ID] = &stored
	return nil
}

// Remove deletes a leaf channel and drops any links pointing at it.
func (t *Tree) Remove(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == RootChannelID {
		return ErrRootImmutable
	}
	if _, ok := t.channels[id]; !ok {
		return ErrNoChannel
	}
	for _, ch := range t.channels {
		if ch.ParentID == id && ch.ID != id {
			return ErrHasChildren
		}
	}
	delete(t.channels, id)
	for _, ch := range t.channels {
		delete(ch.Links, id)
	}
	return nil
}

// Link records a symmetric link between two channels.
func (t *Tree) Link(a, b uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ca, ok := t.channels[a]
	if !ok {
		return ErrNoChannel
	}
	cb, ok := t.channels[b]
	if !ok {
		return ErrNoChannel
	}
	ca.Links[b] = true
	cb.Links[a] = true
	return nil
}

// Unlink removes a link in both directions.
func (t *Tree) Unlink(a, b uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ca, ok := t.channels[a]
	if !ok {
		return ErrNoChannel
	}
	cb, ok := t.channels[b]
	if !ok {
		return ErrNoChannel
	}
	delete(ca.Links, b)
	delete(cb.Links, a)
	return nil
}

// LinkedSet returns the transitive link closure including id itself. Voice
// spoken into a channel reaches every channel in this set.
func (t *Tree) LinkedSet(id uint32) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.channels[id]; !ok {
		return nil
	}
	seen := map[uint32]bool{id: true}
	queue := []uint32{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range t.channels[cur].Links {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	out := make([]uint32, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	return out
}

// Children returns the ids of the direct children of id.
func (t *Tree) Children(id uint32) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint32
	for _, ch := range t.channels {
		if ch.ParentID == id && ch.ID != id {
			out = append(out, ch.ID)
		}
	}
	return out
}

// Subtree returns id plus every descendant.
func (t *Tree) Subtree(id uint32) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.channels[id]; !ok {
		return nil
	}
	out := []uint32{id}
	for i := 0; i < len(out); i++ {
		for _, ch := range t.channels {
			if ch.ParentID == out[i] && ch.ID != out[i] {
				out = append(out, ch.ID)
			}
		}
	}
	return out
}

// All returns every channel ordered parent-before-child, the order the tree
// must be announced to a connecting client.
func (t *Tree) All() []Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Channel, 0, len(t.channels))
	var walk func(parent uint32)
	walk = func(parent uint32) {
		for _, ch := range t.channels {
			if ch.ParentID == parent && ch.ID != parent {
				out = append(out, copyChannel(ch))
				walk(ch.ID)
			}
		}
	}
	if root, ok := t.channels[RootChannelID]; ok {
		out = append(out, copyChannel(root))
		walk(RootChannelID)
	}
	return out
}

// Replace swaps the whole tree for the given channels, keeping a root even
// when the input lacks one. Edges use this to install a hub snapshot.
func (t *Tree) Replace(channels []Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rootName := "Root"
	if cur, ok := t.channels[RootChannelID]; ok {
		rootName = cur.Name
	}
	t.channels = make(map[uint32]*Channel, len(channels)+1)
	for i := range channels {
		stored := copyChannel(&channels[i])
		if stored.Links == nil {
			stored.Links = make(map[uint32]bool)
		}
		t.channels[stored.ID] = &stored
	}
	if _, ok := t.channels[RootChannelID]; !ok {
		t.channels[RootChannelID] = &Channel{
			ID:         RootChannelID,
			Name:       rootName,
			InheritACL: true,
			Links:      make(map[uint32]bool),
		}
	}
}

// Count returns the number of channels.
func (t *Tree) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels)
}

// ACLContext builds the acl evaluation chain for id, root first.
func (t *Tree) ACLContext(id uint32) (*acl.Context, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var build func(id uint32, depth int) (*acl.Context, error)
	build = func(id uint32, depth int) (*acl.Context, error) {
		if depth > t.maxNesting+1 {
			return nil, fmt.Errorf("channel %d: cycle in parent chain", id)
		}
		ch, ok := t.channels[id]
		if !ok {
			return nil, ErrNoChannel
		}
		ctx := &acl.Context{
			ChannelID:  ch.ID,
			InheritACL: ch.InheritACL,
			Entries:    ch.Entries,
			Groups:     ch.Groups,
		}
		if ch.ID != RootChannelID {
			parent, err := build(ch.ParentID, depth+1)
			if err != nil {
				return nil, err
			}
			ctx.Parent = parent
		}
		return ctx, nil
	}
	return build(id, 0)
}

func (t *Tree) depthLocked(id uint32) int {
	depth := 0
	for id != RootChannelID {
		ch, ok := t.channels[id]
		if !ok || depth > t.maxNesting+1 {
			break
		}
		id = ch.ParentID
		depth++
	}
	return depth
}

func copyChannel(ch *Channel) Channel {
	out := *ch
	out.Links = make(map[uint32]bool, len(ch.Links))
	for k, v := range ch.Links {
		out.Links[k] = v
	}
	out.Entries = append([]acl.Entry(nil), ch.Entries...)
	if ch.Groups != nil {
		out.Groups = make(map[string]*acl.Group, len(ch.Groups))
		for name, g := range ch.Groups {
			gc := *g
			gc.Add = copySet(g.Add)
			gc.Remove = copySet(g.Remove)
			out.Groups[name] = &gc
		}
	}
	if ch.DescriptionHash != nil {
		out.DescriptionHash = append([]byte(nil), ch.DescriptionHash...)
	}
	return out
}

func copySet(in map[int]bool) map[int]bool {
	if in == nil {
		return nil
	}
	out := make(map[int]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
