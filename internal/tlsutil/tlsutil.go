// Package tlsutil builds the TLS configurations for the client, cluster and
// voice listeners: either a configured certificate pair or a generated
// self-signed one.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// Load returns a server TLS config from a certificate pair on disk, or a
// fresh self-signed one when both paths are empty. The second return value
// is the hex SHA-256 fingerprint of the leaf.
func Load(certPath, keyPath, hostname string) (*tls.Config, string, error) {
	if certPath == "" && keyPath == "" {
		return SelfSigned(365*24*time.Hour, hostname)
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, "", fmt.Errorf("tls: load key pair: %w", err)
	}
	fp := sha256.Sum256(cert.Certificate[0])
	return &tls.Config{Certificates: []tls.Certificate{cert}}, hex.EncodeToString(fp[:]), nil
}

// SelfSigned creates a self-signed ECDSA P-256 certificate. hostname lands in
// the CN and the DNS SANs alongside "localhost".
func SelfSigned(validity time.Duration, hostname string) (*tls.Config, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("tls: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("tls: generate serial: %w", err)
	}

	cn := "bramble"
	if hostname != "" {
		cn = hostname
	}
	sans := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		sans = append(sans, hostname)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("tls: create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("tls: parse certificate: %w", err)
	}

	fp := sha256.Sum256(certDER)
	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		// Mumble clients present their identity certificate unprompted.
		ClientAuth: tls.RequestClientCert,
	}
	return cfg, hex.EncodeToString(fp[:]), nil
}

// PeerCertHash returns the hex SHA-1 of the peer's leaf certificate, the
// identity hash the ACL layer matches $hash groups against. Empty when the
// peer sent no certificate.
func PeerCertHash(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	sum := sha1.Sum(state.PeerCertificates[0].Raw)
	return hex.EncodeToString(sum[:])
}
