package quicnet

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

// Transport listens on a UDP address. The local id handed out by Open is
// that address, so it can be typed into the remote peer as-is.
type Transport struct {
	listenAddr string
	logger     *logrus.Logger

	mu      sync.Mutex
	udp     *net.UDPConn
	qt      *quic.Transport
	ln      *quic.Listener
	tlsConf *tls.Config
	localID string
	cancel  context.CancelFunc
	onConn  func(transport.Conn)
	conns   map[*Conn]struct{}
}

func New(listenAddr string, logger *logrus.Logger) *Transport {
	return &Transport{
		listenAddr: listenAddr,
		logger:     logger,
		conns:      make(map[*Conn]struct{}),
	}
}

func (t *Transport) Open(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.localID != "" {
		return t.localID, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tlsConf, err := tlsConfig()
	if err != nil {
		return "", fmt.Errorf("failed to create tls config: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", t.listenAddr)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", t.listenAddr, err)
	}

	udp, err := net.ListenUDP("udp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", t.listenAddr, err)
	}

	qt := &quic.Transport{Conn: udp}
	ln, err := qt.Listen(tlsConf, quicConfig())
	if err != nil {
		_ = qt.Close()
		_ = udp.Close()
		return "", fmt.Errorf("failed to start quic listener: %w", err)
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	t.udp, t.qt, t.ln, t.tlsConf, t.cancel = udp, qt, ln, tlsConf, cancel
	t.localID = udp.LocalAddr().String()

	go t.acceptLoop(acceptCtx, ln)

	t.logger.Infof("QUIC transport listening on %s", t.localID)
	return t.localID, nil
}

func (t *Transport) Connect(ctx context.Context, remoteID string) (transport.Conn, error) {
	t.mu.Lock()
	qt, tlsConf, localID := t.qt, t.tlsConf, t.localID
	t.mu.Unlock()

	if qt == nil {
		return nil, transport.ErrNotOpen
	}

	addr, err := net.ResolveUDPAddr("udp", remoteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrUnknownPeer, remoteID, err)
	}

	qc, err := qt.Dial(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", remoteID, err)
	}

	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	// The first frame tells the acceptor who we are.
	if err := writeFrame(stream, []byte(localID)); err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}

	conn := newConn(remoteID, qc, stream, t.untrack)
	t.track(conn)
	go conn.readLoop()
	return conn, nil
}

func (t *Transport) OnConnection(fn func(transport.Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

func (t *Transport) Close() error {
	t.mu.Lock()
	ln, qt, udp, cancel := t.ln, t.qt, t.udp, t.cancel
	conns := make([]*Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.ln, t.qt, t.udp, t.cancel = nil, nil, nil, nil
	t.localID = ""
	t.mu.Unlock()

	if qt == nil {
		return nil
	}

	cancel()
	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	err = multierr.Append(err, ln.Close())
	err = multierr.Append(err, qt.Close())
	_ = udp.Close()
	return err
}

func (t *Transport) acceptLoop(ctx context.Context, ln *quic.Listener) {
	for {
		qc, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		go t.handleInbound(ctx, qc)
	}
}

func (t *Transport) handleInbound(ctx context.Context, qc *quic.Conn) {
	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		t.logger.Warnf("Failed to accept stream from %s: %v", qc.RemoteAddr(), err)
		_ = qc.CloseWithError(0, "")
		return
	}

	hello, err := readFrame(stream)
	if err != nil || len(hello) == 0 {
		t.logger.Warnf("Dropping connection from %s without hello", qc.RemoteAddr())
		_ = qc.CloseWithError(1, "missing hello")
		return
	}

	conn := newConn(string(hello), qc, stream, t.untrack)
	t.track(conn)

	t.mu.Lock()
	onConn := t.onConn
	t.mu.Unlock()

	if onConn != nil {
		onConn(conn)
	}
	go conn.readLoop()
}

func (t *Transport) track(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c] = struct{}{}
}

func (t *Transport) untrack(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}
