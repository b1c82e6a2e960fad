package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadHubDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadHub(writeFile(t, "data_dir: /tmp/hub\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":11080" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Server.MaxUsers != 100 || cfg.Server.MaxBandwidth != 72000 {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.AutoBan.Attempts != 10 || cfg.AutoBan.Window != 2*time.Minute {
		t.Fatalf("auto ban defaults: %+v", cfg.AutoBan)
	}
}

func TestLoadHubStaticUsers(t *testing.T) {
	t.Parallel()

	cfg, err := LoadHub(writeFile(t, `
data_dir: /tmp/hub
auth:
  superuser_password: sha1$2f$9d6d0c6eae8e6f986fdcb552fae4a1f3a6a3e0eb
  static:
    - username: alice
      password: 2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b
      user_id: 1
      groups: [admin]
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Auth.Static) != 1 || cfg.Auth.Static[0].Groups[0] != "admin" {
		t.Fatalf("static users: %+v", cfg.Auth.Static)
	}
}

func TestHubRejectsBadStaticPassword(t *testing.T) {
	t.Parallel()

	_, err := LoadHub(writeFile(t, `
data_dir: /tmp/hub
auth:
  static:
    - username: alice
      password: plaintext
`))
	if err == nil || !strings.Contains(err.Error(), "sha-256") {
		t.Fatalf("got %v", err)
	}
}

func TestHubRejectsUnknownField(t *testing.T) {
	t.Parallel()

	if _, err := LoadHub(writeFile(t, "data_dir: /tmp/hub\nlisten_addr: ':1'\n")); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestLoadEdgeDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadEdge(writeFile(t, "hub:\n  addr: 10.0.0.1:11080\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":64738" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.EdgeID == "" {
		t.Fatal("edge id not generated")
	}
	port, err := cfg.VoicePort()
	if err != nil || port != 64739 {
		t.Fatalf("voice port = %d, %v", port, err)
	}
}

func TestEdgeRejectsBadVoiceKey(t *testing.T) {
	t.Parallel()

	_, err := LoadEdge(writeFile(t, `
hub:
  addr: 10.0.0.1:11080
cluster:
  voice_key: tooshort
`))
	if err == nil || !strings.Contains(err.Error(), "voice_key") {
		t.Fatalf("got %v", err)
	}
}

func TestEdgeRejectsLoneTLSCert(t *testing.T) {
	t.Parallel()

	_, err := LoadEdge(writeFile(t, `
hub:
  addr: 10.0.0.1:11080
tls:
  cert: /etc/edge.pem
`))
	if err == nil || !strings.Contains(err.Error(), "tls") {
		t.Fatalf("got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadHub(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
