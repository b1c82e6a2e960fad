// Package config loads and validates the YAML configuration for the hub and
// edge processes.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultClientPort  = 64738
	DefaultHubPort     = 11080
	DefaultMaxUsers    = 100
	DefaultMaxBandwidth = 72000
	DefaultMessageLength = 5000
	DefaultImageMessageLength = 131072
)

// StaticUser is a credential entry usable without an external authenticator.
type StaticUser struct {
	Username string `yaml:"username"`
	// Password holds the hex SHA-256 of the password.
	Password string   `yaml:"password"`
	UserID   int      `yaml:"user_id"`
	Groups   []string `yaml:"groups,omitempty"`
}

// AuthConfig selects how the hub verifies credentials.
type AuthConfig struct {
	// Endpoint, when set, is POSTed a JSON credential document.
	Endpoint string        `yaml:"endpoint,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`
	// SuperUserPassword uses the sha1$salt$digest scheme.
	SuperUserPassword string       `yaml:"superuser_password,omitempty"`
	Static            []StaticUser `yaml:"static,omitempty"`
}

// AutoBanConfig throttles repeated failed logins per address.
type AutoBanConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
	Duration time.Duration `yaml:"duration"`
}

// ServerConfig is the hub-owned policy announced to clients.
type ServerConfig struct {
	WelcomeText        string `yaml:"welcome_text,omitempty"`
	MaxUsers           uint32 `yaml:"max_users"`
	MaxBandwidth       uint32 `yaml:"max_bandwidth"`
	MessageLength      uint32 `yaml:"message_length"`
	ImageMessageLength uint32 `yaml:"image_message_length"`
	AllowHTML          bool   `yaml:"allow_html"`
	RootChannelName    string `yaml:"root_channel_name,omitempty"`
	MaxChannelNesting  int    `yaml:"max_channel_nesting,omitempty"`
	MaxChannels        int    `yaml:"max_channels,omitempty"`
	MaxListenersPerChannel uint32 `yaml:"max_listeners_per_channel,omitempty"`
	MaxListensPerUser      uint32 `yaml:"max_listens_per_user,omitempty"`
}

// TLSConfig points at a certificate pair; both empty means self-signed.
type TLSConfig struct {
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Hub is the hub process configuration.
type Hub struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`

	TLS     TLSConfig     `yaml:"tls,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	AutoBan AutoBanConfig `yaml:"auto_ban,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`

	BackupInterval time.Duration `yaml:"backup_interval,omitempty"`
	MetricsListen  string        `yaml:"metrics_listen,omitempty"`
}

// Edge is the edge process configuration.
type Edge struct {
	EdgeID string `yaml:"edge_id,omitempty"`
	Listen string `yaml:"listen"`
	// PublicVoiceAddr is how peer edges reach this edge's voice port. Empty
	// derives it from Listen.
	PublicVoiceAddr string `yaml:"public_voice_addr,omitempty"`

	Hub struct {
		Addr string `yaml:"addr"`
		// InsecureSkipVerify accepts any hub certificate; for labs only.
		InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
	} `yaml:"hub"`

	Cluster struct {
		// VoiceKey is a 32-hex-char AES-128 key sealing edge-to-edge voice.
		VoiceKey string `yaml:"voice_key,omitempty"`
	} `yaml:"cluster,omitempty"`

	TLS           TLSConfig `yaml:"tls,omitempty"`
	BlobDir       string    `yaml:"blob_dir,omitempty"`
	MetricsListen string    `yaml:"metrics_listen,omitempty"`

	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty"`
}

// LoadHub reads, defaults and validates a hub config file.
func LoadHub(path string) (*Hub, error) {
	var cfg Hub
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEdge reads, defaults and validates an edge config file.
func LoadEdge(path string) (*Edge, error) {
	var cfg Edge
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Hub) applyDefaults() {
	if c.Listen == "" {
		c.Listen = fmt.Sprintf(":%d", DefaultHubPort)
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Auth.CacheTTL == 0 {
		c.Auth.CacheTTL = 5 * time.Minute
	}
	if c.AutoBan.Attempts == 0 {
		c.AutoBan.Attempts = 10
	}
	if c.AutoBan.Window == 0 {
		c.AutoBan.Window = 2 * time.Minute
	}
	if c.AutoBan.Duration == 0 {
		c.AutoBan.Duration = 5 * time.Minute
	}
	if c.Server.MaxUsers == 0 {
		c.Server.MaxUsers = DefaultMaxUsers
	}
	if c.Server.MaxBandwidth == 0 {
		c.Server.MaxBandwidth = DefaultMaxBandwidth
	}
	if c.Server.MessageLength == 0 {
		c.Server.MessageLength = DefaultMessageLength
	}
	if c.Server.ImageMessageLength == 0 {
		c.Server.ImageMessageLength = DefaultImageMessageLength
	}
	if c.Server.RootChannelName == "" {
		c.Server.RootChannelName = "Root"
	}
}

// Validate rejects configurations the hub cannot start with.
func (c *Hub) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("config: listen %q: %w", c.Listen, err)
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return fmt.Errorf("config: tls cert and key must be set together")
	}
	seen := make(map[string]bool, len(c.Auth.Static))
	for _, u := range c.Auth.Static {
		if u.Username == "" {
			return fmt.Errorf("config: static user with empty username")
		}
		if seen[u.Username] {
			return fmt.Errorf("config: duplicate static user %q", u.Username)
		}
		seen[u.Username] = true
		if len(u.Password) != 64 {
			return fmt.Errorf("config: static user %q: password must be hex sha-256", u.Username)
		}
	}
	return nil
}

func (c *Edge) applyDefaults() {
	if c.EdgeID == "" {
		c.EdgeID = "edge-" + uuid.NewString()[:8]
	}
	if c.Listen == "" {
		c.Listen = fmt.Sprintf(":%d", DefaultClientPort)
	}
	if c.Hub.Addr == "" {
		c.Hub.Addr = fmt.Sprintf("127.0.0.1:%d", DefaultHubPort)
	}
	if c.BlobDir == "" {
		c.BlobDir = "blobs"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.PublicVoiceAddr == "" {
		if host, port, err := net.SplitHostPort(c.Listen); err == nil {
			var p int
			fmt.Sscanf(port, "%d", &p)
			if host == "" {
				host = "127.0.0.1"
			}
			c.PublicVoiceAddr = net.JoinHostPort(host, fmt.Sprintf("%d", p+1))
		}
	}
}

// VoicePort returns the edge-to-edge voice port, client port + 1.
func (c *Edge) VoicePort() (int, error) {
	_, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return 0, err
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return 0, fmt.Errorf("config: listen port %q: %w", port, err)
	}
	return p + 1, nil
}

// Validate rejects configurations the edge cannot start with.
func (c *Edge) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("config: listen %q: %w", c.Listen, err)
	}
	if _, err := c.VoicePort(); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.Hub.Addr); err != nil {
		return fmt.Errorf("config: hub addr %q: %w", c.Hub.Addr, err)
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return fmt.Errorf("config: tls cert and key must be set together")
	}
	if k := c.Cluster.VoiceKey; k != "" && len(k) != 32 {
		return fmt.Errorf("config: cluster voice_key must be 32 hex chars")
	}
	return nil
}
