// Package edge implements the client-facing cluster node: it terminates
// Mumble TLS and UDP sessions, keeps a replica of the hub's channel tree and
// session directory, routes voice between local clients and peer edges, and
// forwards every authoritative mutation to the hub.
package edge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	proto "github.com/golang/protobuf/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bramble/internal/acl"
	"bramble/internal/blob"
	"bramble/internal/clusterpc"
	"bramble/internal/config"
	"bramble/internal/mumbleproto"
	"bramble/internal/state"
	"bramble/internal/tlsutil"
)

// Version is stamped by the build and reported to hub and clients.
var Version = "dev"

type metrics struct {
	clients  prometheus.Gauge
	voiceRx  *prometheus.CounterVec
	voiceTx  *prometheus.CounterVec
	control  prometheus.Counter
	rejected *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	auto := promauto.With(reg)
	return &metrics{
		clients: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "bramble", Subsystem: "edge", Name: "clients",
			Help: "Connected clients.",
		}),
		voiceRx: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bramble", Subsystem: "edge", Name: "voice_rx_total",
			Help: "Voice packets received, by path.",
		}, []string{"path"}),
		voiceTx: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bramble", Subsystem: "edge", Name: "voice_tx_total",
			Help: "Voice packets sent, by path.",
		}, []string{"path"}),
		control: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "bramble", Subsystem: "edge", Name: "control_total",
			Help: "Control messages handled.",
		}),
		rejected: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bramble", Subsystem: "edge", Name: "rejects_total",
			Help: "Rejected connection attempts, by cause.",
		}, []string{"cause"}),
	}
}

// Edge is one client-terminating node.
type Edge struct {
	cfg   *config.Edge
	log   *slog.Logger
	blobs *blob.Store
	tree  *state.Tree
	dir   *state.Directory
	cache *acl.Cache
	hub   *hubLink
	peers *peerManager
	met   *metrics
	reg   *prometheus.Registry

	clientsMu sync.RWMutex
	clients   map[uint32]*Client

	cfgMu   sync.RWMutex
	cfgInfo clusterpc.ServerConfigInfo

	udpMu     sync.Mutex
	udpConn   *net.UDPConn
	addrIndex *xsync.Map[string, uint32]

	started time.Time
}

// New wires an edge from its config.
func New(cfg *config.Edge, log *slog.Logger) (*Edge, error) {
	if log == nil {
		log = slog.Default()
	}
	blobs, err := blob.Open(cfg.BlobDir, log)
	if err != nil {
		return nil, err
	}
	e := &Edge{
		cfg:     cfg,
		log:     log.With("component", "edge", "edge", cfg.EdgeID),
		blobs:   blobs,
		tree:    state.NewTree(""),
		dir:     state.NewDirectory(),
		cache:   acl.NewCache(),
		clients:   make(map[uint32]*Client),
		addrIndex: xsync.NewMap[string, uint32](),
		started:   time.Now(),
	}
	e.reg = prometheus.NewRegistry()
	e.met = newMetrics(e.reg)
	e.hub = newHubLink(e)
	e.peers, err = newPeerManager(e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Run serves clients and the cluster link until ctx is canceled.
func (e *Edge) Run(ctx context.Context) error {
	tlsCfg, fingerprint, err := tlsutil.Load(e.cfg.TLS.Cert, e.cfg.TLS.Key, "")
	if err != nil {
		return err
	}
	ln, err := tls.Listen("tcp", e.cfg.Listen, tlsCfg)
	if err != nil {
		return fmt.Errorf("edge: listen %s: %w", e.cfg.Listen, err)
	}
	e.log.Info("edge listening", "addr", e.cfg.Listen, "fingerprint", fingerprint[:16])

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return nil
	})

	g.Go(func() error { return e.hub.run(ctx) })
	g.Go(func() error { return e.serveUDP(ctx) })
	g.Go(func() error { return e.peers.run(ctx) })

	if e.cfg.MetricsListen != "" {
		g.Go(func() error { return e.serveMetrics(ctx) })
	}

	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("edge: accept: %w", err)
			}
			go e.serveClient(ctx, nc)
		}
	})

	return g.Wait()
}

func (e *Edge) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: e.cfg.MetricsListen, Handler: mux}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	e.log.Info("metrics listening", "addr", e.cfg.MetricsListen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serverConfig returns the hub-distributed policy.
func (e *Edge) serverConfig() clusterpc.ServerConfigInfo {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfgInfo
}

func (e *Edge) setServerConfig(info clusterpc.ServerConfigInfo) {
	e.cfgMu.Lock()
	e.cfgInfo = info
	e.cfgMu.Unlock()
}

func (e *Edge) addClient(c *Client) {
	e.clientsMu.Lock()
	e.clients[c.session] = c
	e.clientsMu.Unlock()
	e.met.clients.Inc()
}

func (e *Edge) removeClient(c *Client) {
	e.clientsMu.Lock()
	if cur, ok := e.clients[c.session]; ok && cur == c {
		delete(e.clients, c.session)
		e.met.clients.Dec()
	}
	e.clientsMu.Unlock()
}

func (e *Edge) client(session uint32) (*Client, bool) {
	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()
	c, ok := e.clients[session]
	return c, ok
}

func (e *Edge) localClients() []*Client {
	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()
	out := make([]*Client, 0, len(e.clients))
	for _, c := range e.clients {
		out = append(out, c)
	}
	return out
}

// broadcast sends msg to every synced local client.
func (e *Edge) broadcast(msg proto.Message) {
	for _, c := range e.localClients() {
		if c.isSynced() {
			c.sendMessage(msg)
		}
	}
}

// broadcastRaw fans a pre-marshaled control message out locally.
func (e *Edge) broadcastRaw(typ uint16, payload []byte) {
	for _, c := range e.localClients() {
		if c.isSynced() {
			c.sendRaw(typ, payload)
		}
	}
}

// disconnectAll drops every client; used when the cluster link is lost for
// good.
func (e *Edge) disconnectAll(reason string) {
	for _, c := range e.localClients() {
		c.disconnect(reason)
	}
}

// refreshSuppress recomputes the suppressed flag for local sessions after an
// ACL change and publishes any deltas to the cluster and local clients.
func (e *Edge) refreshSuppress() {
	for _, c := range e.localClients() {
		if !c.isSynced() {
			continue
		}
		sess, ok := e.dir.Get(c.session)
		if !ok {
			continue
		}
		want := !e.hasPerm(sess, sess.ChannelID, acl.Speak) && !sess.SelfMute
		if want == sess.Suppress {
			continue
		}
		if err := e.dir.Update(sess.ID, func(s *state.Session) { s.Suppress = want }); err != nil {
			continue
		}
		if updated, ok := e.dir.Get(sess.ID); ok {
			if err := e.reportSession(updated); err != nil {
				e.log.Warn("suppress report failed", "session", sess.ID, "error", err)
			}
		}
		out, err := proto.Marshal(&mumbleproto.UserState{
			Session:  proto.Uint32(sess.ID),
			Suppress: proto.Bool(want),
		})
		if err == nil {
			e.broadcastRaw(mumbleproto.MessageUserState, out)
		}
	}
}

// hasPerm answers a permission check against the replica tree.
func (e *Edge) hasPerm(sess *state.Session, channel uint32, perm acl.Perm) bool {
	if sess.UserID == 0 {
		// SuperUser.
		return true
	}
	ctx, err := e.tree.ACLContext(channel)
	if err != nil {
		return false
	}
	return e.cache.Check(ctx, acl.User{
		Session:   sess.ID,
		UserID:    sess.UserID,
		CertHash:  sess.CertHash,
		Tokens:    sess.Tokens,
		ChannelID: sess.ChannelID,
	}, perm)
}

// effectivePerms computes the full mask for PermissionQuery and ServerSync.
func (e *Edge) effectivePerms(sess *state.Session, channel uint32) acl.Perm {
	if sess.UserID == 0 {
		return acl.All
	}
	ctx, err := e.tree.ACLContext(channel)
	if err != nil {
		return acl.None
	}
	return acl.Effective(ctx, acl.User{
		Session:   sess.ID,
		UserID:    sess.UserID,
		CertHash:  sess.CertHash,
		Tokens:    sess.Tokens,
		ChannelID: sess.ChannelID,
	})
}
