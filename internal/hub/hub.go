// Package hub implements the authoritative cluster node: it owns the channel
// tree, registered users, bans and settings, terminates edge control links
// and coordinates authentication and ACL decisions for the whole fleet.
package hub

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bramble/internal/acl"
	"bramble/internal/clusterpc"
	"bramble/internal/config"
	"bramble/internal/hub/store"
	"bramble/internal/state"
	"bramble/internal/tlsutil"
)

// Version is stamped by the build; edges report theirs at register time.
var Version = "dev"

type metrics struct {
	edges      prometheus.Gauge
	sessions   prometheus.Gauge
	authTotal  *prometheus.CounterVec
	rpcServed  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	auto := promauto.With(reg)
	return &metrics{
		edges: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "bramble", Subsystem: "hub", Name: "edges",
			Help: "Registered edges.",
		}),
		sessions: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "bramble", Subsystem: "hub", Name: "sessions",
			Help: "Sessions across the fleet.",
		}),
		authTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bramble", Subsystem: "hub", Name: "auth_total",
			Help: "Authentication decisions.",
		}, []string{"decision"}),
		rpcServed: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bramble", Subsystem: "hub", Name: "rpc_total",
			Help: "Cluster RPCs served.",
		}, []string{"method"}),
	}
}

// Hub is the authoritative node.
type Hub struct {
	cfg   *config.Hub
	log   *slog.Logger
	db    *store.Store
	tree  *state.Tree
	dir   *state.Directory
	edges *registry
	auth  *authenticator
	cache *acl.Cache
	met   *metrics
	reg   *prometheus.Registry

	nextSession atomic.Uint32
	nextChannel atomic.Uint32
}

// New wires a hub from its config, opening the database and loading the
// persisted channel tree.
func New(cfg *config.Hub, log *slog.Logger) (*Hub, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("hub: data dir: %w", err)
	}
	db, err := store.New(filepath.Join(cfg.DataDir, "hub.db"), log)
	if err != nil {
		return nil, fmt.Errorf("hub: open store: %w", err)
	}

	h := &Hub{
		cfg:   cfg,
		log:   log.With("component", "hub"),
		db:    db,
		tree:  state.NewTree(cfg.Server.RootChannelName),
		dir:   state.NewDirectory(),
		edges: newRegistry(log),
		auth:  newAuthenticator(cfg.Auth, log),
		cache: acl.NewCache(),
	}
	h.reg = prometheus.NewRegistry()
	h.met = newMetrics(h.reg)
	h.tree.SetLimits(cfg.Server.MaxChannelNesting, cfg.Server.MaxChannels)

	if err := h.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// bootstrap loads persisted channels into the tree and seeds the id
// counters. A fresh database gets the root channel persisted back.
func (h *Hub) bootstrap() error {
	channels, err := h.db.LoadChannels()
	if err != nil {
		return fmt.Errorf("hub: load channels: %w", err)
	}
	maxID := uint32(0)
	if len(channels) == 0 {
		root, _ := h.tree.Get(state.RootChannelID)
		root.Description = h.cfg.Server.WelcomeText
		h.tree.Update(root)
		if err := h.db.SaveChannel(clusterpc.ChannelToInfo(root)); err != nil {
			return fmt.Errorf("hub: persist root: %w", err)
		}
	}
	for _, info := range channels {
		ch := clusterpc.InfoToChannel(info)
		if ch.ID > maxID {
			maxID = ch.ID
		}
		if ch.ID == state.RootChannelID {
			if err := h.tree.Update(ch); err != nil {
				return fmt.Errorf("hub: restore root: %w", err)
			}
			continue
		}
		if err := h.tree.Add(ch); err != nil {
			h.log.Warn("skipping unrestorable channel", "channel", ch.ID, "error", err)
		}
	}
	h.nextChannel.Store(maxID)
	h.nextSession.Store(0)
	h.log.Info("state loaded", "channels", h.tree.Count())
	return nil
}

// Run serves edge links until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	tlsCfg, fingerprint, err := tlsutil.Load(h.cfg.TLS.Cert, h.cfg.TLS.Key, "")
	if err != nil {
		return err
	}
	ln, err := tls.Listen("tcp", h.cfg.Listen, tlsCfg)
	if err != nil {
		return fmt.Errorf("hub: listen %s: %w", h.cfg.Listen, err)
	}
	h.log.Info("hub listening", "addr", h.cfg.Listen, "fingerprint", fingerprint[:16])

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return nil
	})

	g.Go(func() error { return h.runMaintenance(ctx) })

	if h.cfg.MetricsListen != "" {
		g.Go(func() error { return h.serveMetrics(ctx) })
	}

	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("hub: accept: %w", err)
			}
			go h.serveEdge(ctx, nc)
		}
	})

	err = g.Wait()
	h.db.Close()
	return err
}

// serveEdge runs one edge control link to completion.
func (h *Hub) serveEdge(ctx context.Context, nc net.Conn) {
	conn := clusterpc.New(nc, h.log)
	link := &edgeLink{conn: conn, lastSeen: time.Now()}
	h.registerHandlers(conn, link)

	err := conn.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Info("edge link closed", "edge", link.id, "error", err)
	}
	h.dropEdge(link)
}

// dropEdge removes a departed edge and its sessions, telling the rest of the
// fleet.
func (h *Hub) dropEdge(link *edgeLink) {
	if link.id == "" || !h.edges.remove(link) {
		return
	}
	for _, s := range h.dir.OnEdge(link.id) {
		h.dir.Remove(s.ID)
		h.cache.DropSession(s.ID)
		h.edges.notifyOthers(link.id, clusterpc.NotifyRemoteUserRemove, clusterpc.ReportSessionParams{
			Session: clusterpc.SessionToInfo(s), Removed: true,
		})
	}
	h.edges.notifyOthers(link.id, clusterpc.NotifyPeerLeft, clusterpc.PeerInfo{EdgeID: link.id})
	h.updateGauges()
	h.log.Info("edge dropped", "edge", link.id)
}

// snapshot builds the full-sync payload an edge receives at join.
func (h *Hub) snapshot() clusterpc.JoinResult {
	var out clusterpc.JoinResult
	for _, ch := range h.tree.All() {
		out.Channels = append(out.Channels, clusterpc.ChannelToInfo(ch))
	}
	for _, s := range h.dir.All() {
		out.Sessions = append(out.Sessions, clusterpc.SessionToInfo(s))
	}
	if bans, err := h.db.ListBans(); err == nil {
		out.Bans = bans
	} else {
		h.log.Warn("ban list unavailable", "error", err)
	}
	out.Config = clusterpc.ServerConfigInfo{
		WelcomeText:        h.cfg.Server.WelcomeText,
		MaxBandwidth:       h.cfg.Server.MaxBandwidth,
		MaxUsers:           h.cfg.Server.MaxUsers,
		MessageLength:      h.cfg.Server.MessageLength,
		ImageMessageLength: h.cfg.Server.ImageMessageLength,
		AllowHTML:          h.cfg.Server.AllowHTML,
		MaxListenersPerChannel: h.cfg.Server.MaxListenersPerChannel,
		MaxListensPerUser:      h.cfg.Server.MaxListensPerUser,
	}
	return out
}

// runMaintenance schedules periodic backups and ban expiry.
func (h *Hub) runMaintenance(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("hub: scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if n, err := h.db.PurgeExpiredBans(); err != nil {
				h.log.Warn("ban purge failed", "error", err)
			} else if n > 0 {
				h.log.Info("purged expired bans", "count", n)
			}
		}),
	); err != nil {
		return err
	}

	if h.cfg.BackupInterval > 0 {
		backupDir := filepath.Join(h.cfg.DataDir, "backups")
		if err := os.MkdirAll(backupDir, 0o750); err != nil {
			return fmt.Errorf("hub: backup dir: %w", err)
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(h.cfg.BackupInterval),
			gocron.NewTask(func() {
				dest := filepath.Join(backupDir, fmt.Sprintf("hub-%s.db", time.Now().UTC().Format("20060102-150405")))
				if err := h.db.Backup(dest); err != nil {
					h.log.Error("backup failed", "error", err)
					return
				}
				h.log.Info("backup written", "path", dest)
			}),
		); err != nil {
			return err
		}
	}

	sched.Start()
	<-ctx.Done()
	return sched.Shutdown()
}

func (h *Hub) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: h.cfg.MetricsListen, Handler: mux}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	h.log.Info("metrics listening", "addr", h.cfg.MetricsListen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Hub) updateGauges() {
	edges, _ := h.edges.count()
	h.met.edges.Set(float64(edges))
	h.met.sessions.Set(float64(h.dir.Len()))
}

// allocateChannelID hands out the next channel id.
func (h *Hub) allocateChannelID() uint32 {
	return h.nextChannel.Add(1)
}
