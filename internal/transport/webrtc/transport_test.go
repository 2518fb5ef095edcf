package webrtc

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
	"github.com/rudransh-shrivastava/peer-drop/internal/signal"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

// pipeSignaler links signalers in one process, standing in for the
// websocket signaling server.
type pipeSignaler struct {
	id      string
	hub     *pipeHub
	signals chan transport.Signal
}

type pipeHub struct {
	mu    sync.Mutex
	peers map[string]*pipeSignaler
}

func (h *pipeHub) signaler(id string) *pipeSignaler {
	s := &pipeSignaler{id: id, hub: h, signals: make(chan transport.Signal, 16)}
	h.mu.Lock()
	h.peers[id] = s
	h.mu.Unlock()
	return s
}

func (s *pipeSignaler) Register(context.Context) (string, error) { return s.id, nil }

func (s *pipeSignaler) SendSignal(_ context.Context, sig transport.Signal) error {
	s.hub.mu.Lock()
	target, ok := s.hub.peers[sig.PeerID]
	s.hub.mu.Unlock()
	if !ok {
		return transport.ErrUnknownPeer
	}
	target.signals <- transport.Signal{PeerID: s.id, Type: sig.Type, Payload: sig.Payload}
	return nil
}

func (s *pipeSignaler) Signals() <-chan transport.Signal { return s.signals }

func (s *pipeSignaler) Close() error { return nil }

func newLocalTransport(sig transport.Signaler) *Transport {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return New(sig, nil, logger.Discard(), WithSettingEngine(se))
}

func TestConnectBeforeOpen(t *testing.T) {
	hub := &pipeHub{peers: make(map[string]*pipeSignaler)}
	tr := newLocalTransport(hub.signaler("a"))
	if _, err := tr.Connect(context.Background(), "b"); err != transport.ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestConnectUnknownPeerFailsFast(t *testing.T) {
	srv := httptest.NewServer(signal.NewServer(logger.Discard()).Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	tr := newLocalTransport(signal.NewClient(url, logger.Discard()))
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := tr.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err := tr.Connect(ctx, "nobody")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if !errors.Is(err, transport.ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("connect waited for the context to expire")
	}

	tr.mu.Lock()
	pending := len(tr.connections)
	tr.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected no tracked connections, got %d", pending)
	}
}

func TestDataChannelExchange(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sessions")
	}

	hub := &pipeHub{peers: make(map[string]*pipeSignaler)}
	alice := newLocalTransport(hub.signaler("alice"))
	bob := newLocalTransport(hub.signaler("bob"))
	defer func() { _ = alice.Close() }()
	defer func() { _ = bob.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := alice.Open(ctx); err != nil {
		t.Fatalf("Open alice failed: %v", err)
	}
	if _, err := bob.Open(ctx); err != nil {
		t.Fatalf("Open bob failed: %v", err)
	}

	inbound := make(chan transport.Conn, 1)
	bob.OnConnection(func(c transport.Conn) { inbound <- c })

	conn, err := alice.Connect(ctx, "bob")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if conn.PeerID() != "bob" {
		t.Errorf("expected peer id bob, got %s", conn.PeerID())
	}

	var bobConn transport.Conn
	select {
	case bobConn = <-inbound:
	case <-ctx.Done():
		t.Fatal("timeout waiting for inbound connection")
	}
	if bobConn.PeerID() != "alice" {
		t.Errorf("expected peer id alice, got %s", bobConn.PeerID())
	}

	got := make(chan []byte, 1)
	bobConn.OnData(func(p []byte) { got <- p })

	if err := conn.Send([]byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case p := <-got:
		if string(p) != "hello" {
			t.Errorf("expected hello, got %q", p)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for message")
	}

	closed := make(chan struct{})
	bobConn.OnClose(func() { close(closed) })
	_ = conn.Close()

	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("timeout waiting for close")
	}
}
