package hub

import (
	"log/slog"
	"sync"
	"time"

	"bramble/internal/clusterpc"
)

// edgeLink is one registered edge and its control connection.
type edgeLink struct {
	id        string
	voiceAddr string
	conn      *clusterpc.Conn

	mu       sync.Mutex
	joined   bool
	sessions int
	lastSeen time.Time
}

func (e *edgeLink) touch(sessions int) {
	e.mu.Lock()
	e.lastSeen = time.Now()
	if sessions >= 0 {
		e.sessions = sessions
	}
	e.mu.Unlock()
}

func (e *edgeLink) markJoined() {
	e.mu.Lock()
	e.joined = true
	e.mu.Unlock()
}

func (e *edgeLink) isJoined() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.joined
}

// registry tracks the edge fleet.
type registry struct {
	mu    sync.RWMutex
	edges map[string]*edgeLink
	log   *slog.Logger
}

func newRegistry(log *slog.Logger) *registry {
	return &registry{
		edges: make(map[string]*edgeLink),
		log:   log.With("component", "registry"),
	}
}

// add registers an edge, replacing a stale link with the same id.
func (r *registry) add(e *edgeLink) (replaced *edgeLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.edges[e.id]; ok {
		replaced = old
	}
	r.edges[e.id] = e
	return replaced
}

// remove drops an edge; only if the stored link is the one given, so a
// reconnect that already replaced it is not clobbered.
func (r *registry) remove(e *edgeLink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.edges[e.id]; ok && cur == e {
		delete(r.edges, e.id)
		return true
	}
	return false
}

func (r *registry) get(id string) (*edgeLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.edges[id]
	return e, ok
}

// peers lists every joined edge except the one named.
func (r *registry) peers(except string) []clusterpc.PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []clusterpc.PeerInfo
	for id, e := range r.edges {
		if id == except || !e.isJoined() {
			continue
		}
		out = append(out, clusterpc.PeerInfo{EdgeID: id, VoiceAddr: e.voiceAddr})
	}
	return out
}

// notifyOthers fans a notification to every joined edge except origin.
// Delivery is best effort; a dead link is reaped by its own serve loop.
func (r *registry) notifyOthers(origin, method string, params any) {
	r.mu.RLock()
	targets := make([]*edgeLink, 0, len(r.edges))
	for id, e := range r.edges {
		if id != origin && e.isJoined() {
			targets = append(targets, e)
		}
	}
	r.mu.RUnlock()

	for _, e := range targets {
		if err := e.conn.Notify(method, params); err != nil {
			r.log.Warn("notify failed", "edge", e.id, "method", method, "error", err)
		}
	}
}

// notifyAll fans a notification to every joined edge.
func (r *registry) notifyAll(method string, params any) {
	r.notifyOthers("", method, params)
}

// count returns registered edges and total reported sessions.
func (r *registry) count() (edges, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.edges {
		e.mu.Lock()
		sessions += e.sessions
		e.mu.Unlock()
		edges++
	}
	return edges, sessions
}
