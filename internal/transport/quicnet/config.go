// Package quicnet carries peer connections over QUIC for peers that can
// reach each other directly, such as two machines on one LAN.
package quicnet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

// MaxFrameSize bounds a single message. Files are sent whole, so this is
// also the largest file the transport carries.
const MaxFrameSize = 64 << 20

const (
	alpn         = "peer-drop/1"
	keepAlive    = 10 * time.Second
	idleTimeout  = 30 * time.Second
	certLifetime = 24 * time.Hour
)

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: keepAlive,
		MaxIdleTimeout:  idleTimeout,
	}
}

// tlsConfig is shared by the listener and the dialer. Peers are addressed by
// host:port, so certificates are throwaway and never verified.
func tlsConfig() (*tls.Config, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}, nil
}

func selfSignedCert() (tls.Certificate, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "peerdrop"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(certLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
