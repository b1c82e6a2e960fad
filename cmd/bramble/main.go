// Command bramble runs the voice cluster nodes: the authoritative hub, the
// client-terminating edges, and a headless test client.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"bramble/internal/client"
	"bramble/internal/config"
	"bramble/internal/edge"
	"bramble/internal/hub"
)

// Version is stamped by the build.
var Version = "dev"

const (
	exitFatal  = 1
	exitConfig = 2
)

func main() {
	hub.Version = Version
	edge.Version = Version

	root := &cobra.Command{
		Use:           "bramble",
		Short:         "Distributed Mumble-compatible voice server cluster",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.AddCommand(hubCmd(), edgeCmd(), clientCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFatal)
	}
}

var logLevel string

func newLogger() *slog.Logger {
	chosen := logLevel
	if chosen == "" {
		chosen = os.Getenv("LOG_LEVEL")
	}
	level := slog.LevelInfo
	switch strings.ToLower(chosen) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func hubCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hub", Short: "Authoritative cluster state node"}

	var configPath string
	start := &cobra.Command{
		Use:   "start",
		Short: "Run the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			slog.SetDefault(log)
			cfg, err := config.LoadHub(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(exitConfig)
			}
			h, err := hub.New(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return h.Run(ctx)
		},
	}
	start.Flags().StringVar(&configPath, "config", "hub.yaml", "hub configuration file")
	cmd.AddCommand(start)
	return cmd
}

func edgeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "edge", Short: "Client-terminating voice node"}

	var (
		configPath string
		host       string
		port       int
		hubHost    string
		hubPort    int
	)
	loadEdge := func() (*config.Edge, error) {
		cfg, err := config.LoadEdge(configPath)
		if err != nil {
			return nil, err
		}
		// Flag overrides, applied after file defaults.
		if host != "" || port != 0 {
			h, p, err := net.SplitHostPort(cfg.Listen)
			if err != nil {
				return nil, err
			}
			if host != "" {
				h = host
			}
			if port != 0 {
				p = fmt.Sprintf("%d", port)
			}
			cfg.Listen = net.JoinHostPort(h, p)
		}
		if hubHost != "" || hubPort != 0 {
			h, p, err := net.SplitHostPort(cfg.Hub.Addr)
			if err != nil {
				return nil, err
			}
			if hubHost != "" {
				h = hubHost
			}
			if hubPort != 0 {
				p = fmt.Sprintf("%d", hubPort)
			}
			cfg.Hub.Addr = net.JoinHostPort(h, p)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	addFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&configPath, "config", "edge.yaml", "edge configuration file")
		c.Flags().StringVar(&host, "host", "", "override listen host")
		c.Flags().IntVar(&port, "port", 0, "override listen port")
		c.Flags().StringVar(&hubHost, "hub-host", "", "override hub host")
		c.Flags().IntVar(&hubPort, "hub-port", 0, "override hub port")
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Run an edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			slog.SetDefault(log)
			cfg, err := loadEdge()
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(exitConfig)
			}
			e, err := edge.New(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return e.Run(ctx)
		},
	}
	addFlags(start)

	validate := &cobra.Command{
		Use:   "validate-config",
		Short: "Check an edge configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadEdge()
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(exitConfig)
			}
			fmt.Printf("ok: edge %s listening on %s, hub %s\n", cfg.EdgeID, cfg.Listen, cfg.Hub.Addr)
			return nil
		},
	}
	validate.Flags().StringVar(&configPath, "config", "edge.yaml", "edge configuration file")

	cmd.AddCommand(start, validate)
	return cmd
}

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "client", Short: "Headless test client"}

	var (
		host     string
		port     int
		username string
		password string
		tokens   []string
		forceTCP bool
		insecure bool
	)
	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect, sync, and print server traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			slog.SetDefault(log)
			if username == "" {
				fmt.Fprintln(os.Stderr, "error: --username is required")
				os.Exit(exitConfig)
			}

			ctx, stop := signalContext()
			defer stop()

			c, err := client.Dial(ctx, client.Config{
				Addr:               net.JoinHostPort(host, fmt.Sprintf("%d", port)),
				Username:           username,
				Password:           password,
				Tokens:             tokens,
				ForceTCPVoice:      forceTCP,
				InsecureSkipVerify: insecure,
				Log:                log,
			})
			if err != nil {
				return err
			}
			defer c.Close()

			c.OnText = func(actor uint32, message string) {
				fmt.Printf("[text] %d: %s\n", actor, message)
			}

			syncCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := c.WaitSynced(syncCtx); err != nil {
				return err
			}
			if w := c.WelcomeText(); w != "" {
				fmt.Println(w)
			}
			for _, ch := range c.Channels() {
				fmt.Printf("[channel] %d %s\n", ch.ID, ch.Name)
			}
			for _, u := range c.Users() {
				fmt.Printf("[user] %d %s (channel %d)\n", u.Session, u.Name, u.ChannelID)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-c.Done():
				return c.Err()
			}
		},
	}
	connect.Flags().StringVar(&host, "host", "127.0.0.1", "edge host")
	connect.Flags().IntVar(&port, "port", config.DefaultClientPort, "edge port")
	connect.Flags().StringVar(&username, "username", "", "username")
	connect.Flags().StringVar(&password, "password", "", "password")
	connect.Flags().StringSliceVar(&tokens, "tokens", nil, "access tokens")
	connect.Flags().BoolVar(&forceTCP, "force-tcp-voice", false, "tunnel voice over the control channel")
	connect.Flags().BoolVar(&insecure, "insecure", true, "accept any server certificate")

	cmd.AddCommand(connect)
	return cmd
}
