package state

import (
	"errors"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// MaxWhisperTargets is the number of configurable whisper target slots.
// Slot 0 is normal speech and slot 31 is server loopback.
const MaxWhisperTargets = 30

var ErrNoSession = errors.New("state: no such session")

// WhisperTarget is one configured voice target slot.
type WhisperTarget struct {
	Sessions  []uint32
	ChannelID uint32
	HasChannel bool
	Group     string
	Links     bool
	Children  bool
}

// Session is one connected user as the cluster sees it. EdgeID names the edge
// terminating the connection; for sessions on this edge it matches the local
// edge id.
type Session struct {
	ID       uint32
	UserID   int
	Name     string
	EdgeID   string
	ChannelID uint32

	Address  string
	CertHash string
	Tokens   []string

	Mute            bool
	Deaf            bool
	Suppress        bool
	SelfMute        bool
	SelfDeaf        bool
	PrioritySpeaker bool
	Recording       bool

	Comment     string
	CommentHash []byte
	Texture     []byte
	TextureHash []byte

	ListeningChannels map[uint32]bool
	Targets           [MaxWhisperTargets + 1]*WhisperTarget
}

// Clone returns a deep copy safe to hand out across goroutines.
func (s *Session) Clone() *Session {
	out := *s
	out.Tokens = append([]string(nil), s.Tokens...)
	out.ListeningChannels = make(map[uint32]bool, len(s.ListeningChannels))
	for k, v := range s.ListeningChannels {
		out.ListeningChannels[k] = v
	}
	for i, tgt := range s.Targets {
		if tgt != nil {
			tc := *tgt
			tc.Sessions = append([]uint32(nil), tgt.Sessions...)
			out.Targets[i] = &tc
		}
	}
	return &out
}

// Directory indexes sessions by id and name. Reads dominate writes during
// voice routing, hence the concurrent map.
type Directory struct {
	mu      sync.Mutex // serializes writers; readers go through the xsync map
	byID    *xsync.Map[uint32, *Session]
	byName  *xsync.Map[string, uint32]
}

func NewDirectory() *Directory {
	return &Directory{
		byID:   xsync.NewMap[uint32, *Session](),
		byName: xsync.NewMap[string, uint32](),
	}
}

// Put inserts or replaces a session. The stored value is a clone; callers
// keep ownership of sess.
func (d *Directory) Put(sess *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.byID.Load(sess.ID); ok && old.Name != sess.Name {
		d.byName.Delete(old.Name)
	}
	d.byID.Store(sess.ID, sess.Clone())
	d.byName.Store(sess.Name, sess.ID)
}

// Get returns a clone of the session, or false.
func (d *Directory) Get(id uint32) (*Session, bool) {
	s, ok := d.byID.Load(id)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetByName looks a session up by user name.
func (d *Directory) GetByName(name string) (*Session, bool) {
	id, ok := d.byName.Load(name)
	if !ok {
		return nil, false
	}
	return d.Get(id)
}

// Update applies fn to the stored session under the writer lock and stores
// the result. Returns ErrNoSession if absent.
func (d *Directory) Update(id uint32, fn func(*Session)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.byID.Load(id)
	if !ok {
		return ErrNoSession
	}
	next := cur.Clone()
	fn(next)
	if next.Name != cur.Name {
		d.byName.Delete(cur.Name)
		d.byName.Store(next.Name, id)
	}
	d.byID.Store(id, next)
	return nil
}

// Remove deletes a session; it reports whether one was present.
func (d *Directory) Remove(id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.byID.Load(id)
	if !ok {
		return false
	}
	d.byID.Delete(id)
	if cur, ok := d.byName.Load(s.Name); ok && cur == id {
		d.byName.Delete(s.Name)
	}
	return true
}

// NameTaken reports whether a session already uses name.
func (d *Directory) NameTaken(name string) bool {
	_, ok := d.byName.Load(name)
	return ok
}

// InChannel returns clones of every session currently in the channel.
func (d *Directory) InChannel(channel uint32) []*Session {
	var out []*Session
	d.byID.Range(func(_ uint32, s *Session) bool {
		if s.ChannelID == channel {
			out = append(out, s.Clone())
		}
		return true
	})
	return out
}

// ListeningTo returns clones of every session listening to the channel from
// elsewhere.
func (d *Directory) ListeningTo(channel uint32) []*Session {
	var out []*Session
	d.byID.Range(func(_ uint32, s *Session) bool {
		if s.ListeningChannels[channel] && s.ChannelID != channel {
			out = append(out, s.Clone())
		}
		return true
	})
	return out
}

// OnEdge returns clones of every session terminated by the named edge.
func (d *Directory) OnEdge(edgeID string) []*Session {
	var out []*Session
	d.byID.Range(func(_ uint32, s *Session) bool {
		if s.EdgeID == edgeID {
			out = append(out, s.Clone())
		}
		return true
	})
	return out
}

// All returns clones of every session.
func (d *Directory) All() []*Session {
	var out []*Session
	d.byID.Range(func(_ uint32, s *Session) bool {
		out = append(out, s.Clone())
		return true
	})
	return out
}

// Len returns the session count.
func (d *Directory) Len() int {
	return d.byID.Size()
}
