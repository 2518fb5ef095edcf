package quicnet

import (
	"bytes"
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

func openPair(t *testing.T) (*Transport, *Transport, string, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := New("127.0.0.1:0", logger.Discard())
	serverID, err := server.Open(ctx)
	if err != nil {
		t.Fatalf("Open server failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	client := New("127.0.0.1:0", logger.Discard())
	clientID, err := client.Open(ctx)
	if err != nil {
		t.Fatalf("Open client failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return server, client, serverID, clientID
}

func TestTransportOpenAndClose(t *testing.T) {
	tr := New("127.0.0.1:0", logger.Discard())
	id, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected non-empty local id")
	}

	again, err := tr.Open(context.Background())
	if err != nil || again != id {
		t.Errorf("Expected second Open to return %s, got %s (%v)", id, again, err)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestConnectBeforeOpen(t *testing.T) {
	tr := New("127.0.0.1:0", logger.Discard())
	if _, err := tr.Connect(context.Background(), "127.0.0.1:1"); err != transport.ErrNotOpen {
		t.Fatalf("Expected ErrNotOpen, got %v", err)
	}
}

func TestConnectExchange(t *testing.T) {
	server, client, serverID, clientID := openPair(t)

	accepted := make(chan transport.Conn, 1)
	server.OnConnection(func(c transport.Conn) { accepted <- c })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, serverID)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if conn.PeerID() != serverID {
		t.Errorf("Expected peer id %s, got %s", serverID, conn.PeerID())
	}

	var serverConn transport.Conn
	select {
	case serverConn = <-accepted:
	case <-ctx.Done():
		t.Fatal("Timeout waiting for inbound connection")
	}
	if serverConn.PeerID() != clientID {
		t.Errorf("Expected inbound peer id %s, got %s", clientID, serverConn.PeerID())
	}

	toServer := make(chan []byte, 1)
	serverConn.OnData(func(p []byte) { toServer <- p })
	toClient := make(chan []byte, 1)
	conn.OnData(func(p []byte) { toClient <- p })

	if err := conn.Send([]byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-toServer:
		if !bytes.Equal(got, []byte("ping")) {
			t.Errorf("Expected ping, got %q", got)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for ping")
	}

	if err := serverConn.Send([]byte("pong")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-toClient:
		if !bytes.Equal(got, []byte("pong")) {
			t.Errorf("Expected pong, got %q", got)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for pong")
	}
}

func TestRemoteCloseNotifies(t *testing.T) {
	server, client, serverID, _ := openPair(t)

	accepted := make(chan transport.Conn, 1)
	server.OnConnection(func(c transport.Conn) { accepted <- c })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, serverID)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var serverConn transport.Conn
	select {
	case serverConn = <-accepted:
	case <-ctx.Done():
		t.Fatal("Timeout waiting for inbound connection")
	}

	closed := make(chan struct{})
	serverConn.OnClose(func() { close(closed) })

	_ = conn.Close()

	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("Timeout waiting for close notification")
	}

	if err := conn.Send([]byte("late")); err != transport.ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}
	if err := writeFrame(&buf, nil); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	got, err := readFrame(&buf)
	if err != nil || string(got) != "hello" {
		t.Fatalf("Expected hello, got %q (%v)", got, err)
	}
	got, err = readFrame(&buf)
	if err != nil || len(got) != 0 {
		t.Fatalf("Expected empty frame, got %q (%v)", got, err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := readFrame(buf); err == nil {
		t.Fatal("Expected error for oversized frame")
	}
}

func TestSelfSignedCert(t *testing.T) {
	cert, err := selfSignedCert()
	if err != nil {
		t.Fatalf("selfSignedCert failed: %v", err)
	}
	if len(cert.Certificate) != 1 {
		t.Fatalf("Expected one certificate, got %d", len(cert.Certificate))
	}

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("Parsing certificate: %v", err)
	}
	if !parsed.NotAfter.After(time.Now()) {
		t.Error("Expected certificate to be valid now")
	}

	conf, err := tlsConfig()
	if err != nil {
		t.Fatalf("tlsConfig failed: %v", err)
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != alpn {
		t.Errorf("Unexpected ALPN %v", conf.NextProtos)
	}
}
