package hub

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"bramble/internal/config"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.@+-]{0,63}$`)

// authVerdict is what credential verification alone decides; the session
// handler layers bans, capacity and name collisions on top.
type authVerdict struct {
	ok        bool
	userID    int
	groups    []string
	superUser bool
	reason    string
}

type cacheEntry struct {
	verdict authVerdict
	expires time.Time
}

// authenticator verifies credentials against the configured sources in
// order: SuperUser, the HTTP endpoint, the static list, then open access
// for unknown names.
type authenticator struct {
	cfg    config.AuthConfig
	log    *slog.Logger
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry

	failMu   sync.Mutex
	failures map[string][]time.Time
}

func newAuthenticator(cfg config.AuthConfig, log *slog.Logger) *authenticator {
	return &authenticator{
		cfg:      cfg,
		log:      log.With("component", "auth"),
		client:   &http.Client{Timeout: 5 * time.Second},
		cache:    make(map[string]cacheEntry),
		failures: make(map[string][]time.Time),
	}
}

// endpointRequest is the JSON document POSTed to the external authenticator.
type endpointRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	CertHash string `json:"cert_hash,omitempty"`
	Address  string `json:"address"`
}

type endpointResponse struct {
	Allow  bool     `json:"allow"`
	UserID int      `json:"user_id"`
	Groups []string `json:"groups,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// verify checks username/password and returns the verdict. Results from the
// HTTP endpoint are cached by (username, sha256(password)) for the TTL.
func (a *authenticator) verify(ctx context.Context, username, password, certHash, address string) authVerdict {
	if !usernameRe.MatchString(username) {
		return authVerdict{reason: "invalid username"}
	}

	if username == "SuperUser" {
		if a.cfg.SuperUserPassword != "" && checkSaltedSHA1(a.cfg.SuperUserPassword, password) {
			return authVerdict{ok: true, userID: 0, superUser: true}
		}
		return authVerdict{reason: "wrong SuperUser password"}
	}

	if a.cfg.Endpoint != "" {
		return a.verifyEndpoint(ctx, username, password, certHash, address)
	}

	for _, u := range a.cfg.Static {
		if u.Username != username {
			continue
		}
		sum := sha256.Sum256([]byte(password))
		if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(u.Password))) == 1 {
			super := false
			for _, g := range u.Groups {
				if g == "admin" || g == "superuser" {
					super = true
				}
			}
			return authVerdict{ok: true, userID: u.UserID, groups: u.Groups, superUser: super}
		}
		return authVerdict{reason: "wrong password"}
	}

	// Unknown names connect as unregistered guests.
	return authVerdict{ok: true, userID: -1}
}

func (a *authenticator) verifyEndpoint(ctx context.Context, username, password, certHash, address string) authVerdict {
	sum := sha256.Sum256([]byte(password))
	key := username + "\x00" + hex.EncodeToString(sum[:])

	a.mu.Lock()
	if e, ok := a.cache[key]; ok && time.Now().Before(e.expires) {
		a.mu.Unlock()
		return e.verdict
	}
	a.mu.Unlock()

	body, err := json.Marshal(endpointRequest{
		Username: username, Password: password, CertHash: certHash, Address: address,
	})
	if err != nil {
		return authVerdict{reason: "authenticator unavailable"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return authVerdict{reason: "authenticator unavailable"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn("auth endpoint unreachable", "error", err)
		return authVerdict{reason: "authenticator unavailable"}
	}
	defer resp.Body.Close()

	var out endpointResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&out) != nil {
		a.log.Warn("auth endpoint bad response", "status", resp.StatusCode)
		return authVerdict{reason: "authenticator unavailable"}
	}

	v := authVerdict{ok: out.Allow, userID: out.UserID, groups: out.Groups, reason: out.Reason}
	if !out.Allow && v.reason == "" {
		v.reason = "wrong password"
	}
	for _, g := range out.Groups {
		if g == "admin" || g == "superuser" {
			v.superUser = true
		}
	}

	a.mu.Lock()
	a.cache[key] = cacheEntry{verdict: v, expires: time.Now().Add(a.cfg.CacheTTL)}
	a.mu.Unlock()
	return v
}

// recordFailure notes a failed login for address and reports whether the
// auto-ban threshold was crossed within the window.
func (a *authenticator) recordFailure(address string, ban config.AutoBanConfig) bool {
	now := time.Now()
	cutoff := now.Add(-ban.Window)

	a.failMu.Lock()
	defer a.failMu.Unlock()

	recent := a.failures[address][:0]
	for _, t := range a.failures[address] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	a.failures[address] = recent
	return len(recent) >= ban.Attempts
}

// clearFailures resets the failure window after a successful login.
func (a *authenticator) clearFailures(address string) {
	a.failMu.Lock()
	delete(a.failures, address)
	a.failMu.Unlock()
}

// checkSaltedSHA1 verifies password against a sha1$salt$digest credential.
func checkSaltedSHA1(stored, password string) bool {
	parts := strings.SplitN(stored, "$", 3)
	if len(parts) != 3 || parts[0] != "sha1" {
		return false
	}
	h := sha1.New()
	fmt.Fprint(h, parts[1])
	fmt.Fprint(h, password)
	digest := hex.EncodeToString(h.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(parts[2]))) == 1
}
