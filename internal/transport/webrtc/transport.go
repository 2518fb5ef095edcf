// Package webrtc carries peer connections over WebRTC data channels. Session
// descriptions travel through a transport.Signaler with all ICE candidates
// gathered up front, so a single offer and answer are exchanged per peer.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

var ErrConnectionFailed = errors.New("peer connection failed")

type Option func(*Transport)

// WithSettingEngine replaces pion's default settings, e.g. to allow
// loopback candidates.
func WithSettingEngine(se webrtc.SettingEngine) Option {
	return func(t *Transport) {
		t.api = webrtc.NewAPI(webrtc.WithSettingEngine(se))
	}
}

type Transport struct {
	api      *webrtc.API
	config   webrtc.Configuration
	signaler transport.Signaler
	logger   *logrus.Logger

	mu          sync.Mutex
	localID     string
	cancel      context.CancelFunc
	onConn      func(transport.Conn)
	connections map[string]*connection
}

func New(signaler transport.Signaler, stunServers []string, logger *logrus.Logger, opts ...Option) *Transport {
	t := &Transport{
		api:         webrtc.NewAPI(),
		config:      NewConfiguration(stunServers),
		signaler:    signaler,
		logger:      logger,
		connections: make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open registers with the signaler; the id it hands out is the local id.
func (t *Transport) Open(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.localID != "" {
		id := t.localID
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	id, err := t.signaler.Register(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to register with signaling server: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.localID = id
	t.cancel = cancel
	t.mu.Unlock()

	go t.signalLoop(loopCtx)
	return id, nil
}

func (t *Transport) Connect(ctx context.Context, remoteID string) (transport.Conn, error) {
	t.mu.Lock()
	open := t.localID != ""
	t.mu.Unlock()
	if !open {
		return nil, transport.ErrNotOpen
	}

	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := newConnection(remoteID, pc, true)
	conn.release = t.untrack
	if err := conn.createDataChannel(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	t.track(conn)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	sdp, err := t.setLocalDescription(ctx, pc, offer)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	signal := transport.Signal{PeerID: remoteID, Type: transport.SignalOffer, Payload: []byte(sdp)}
	if err := t.signaler.SendSignal(ctx, signal); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	select {
	case <-conn.ready:
		return conn, nil
	case <-conn.done:
		_ = conn.Close()
		if err := conn.failure(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, remoteID)
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}

func (t *Transport) OnConnection(fn func(transport.Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	conns := make([]*connection, 0, len(t.connections))
	for _, c := range t.connections {
		conns = append(conns, c)
	}
	t.connections = make(map[string]*connection)
	t.localID = ""
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	return multierr.Append(err, t.signaler.Close())
}

func (t *Transport) signalLoop(ctx context.Context) {
	signals := t.signaler.Signals()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-signals:
			if !ok {
				return
			}
			switch s.Type {
			case transport.SignalOffer:
				go func() {
					if err := t.handleOffer(ctx, s); err != nil {
						t.logger.Warnf("Failed to answer offer from %s: %v", s.PeerID, err)
					}
				}()
			case transport.SignalAnswer:
				if err := t.handleAnswer(s); err != nil {
					t.logger.Warnf("Failed to apply answer from %s: %v", s.PeerID, err)
				}
			case transport.SignalError:
				t.handleReject(s)
			default:
				t.logger.Debugf("Ignoring signal %q from %s", s.Type, s.PeerID)
			}
		}
	}
}

func (t *Transport) handleOffer(ctx context.Context, s transport.Signal) error {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := newConnection(s.PeerID, pc, false)
	conn.release = t.untrack
	conn.onOpen = func() {
		t.mu.Lock()
		onConn := t.onConn
		t.mu.Unlock()
		if onConn != nil {
			onConn(conn)
		}
	}
	t.track(conn)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(s.Payload)}
	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create answer: %w", err)
	}

	sdp, err := t.setLocalDescription(ctx, pc, answer)
	if err != nil {
		_ = conn.Close()
		return err
	}

	reply := transport.Signal{PeerID: s.PeerID, Type: transport.SignalAnswer, Payload: []byte(sdp)}
	if err := t.signaler.SendSignal(ctx, reply); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send answer: %w", err)
	}
	return nil
}

func (t *Transport) handleAnswer(s transport.Signal) error {
	t.mu.Lock()
	conn, ok := t.connections[s.PeerID]
	t.mu.Unlock()

	if !ok || !conn.isInitiator {
		return fmt.Errorf("%w: no pending offer", transport.ErrUnknownPeer)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(s.Payload)}
	if err := conn.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// handleReject fails a pending dial whose offer the signaler could not deliver.
func (t *Transport) handleReject(s transport.Signal) {
	t.mu.Lock()
	conn, ok := t.connections[s.PeerID]
	t.mu.Unlock()

	if !ok || !conn.isInitiator {
		return
	}
	select {
	case <-conn.ready:
		return
	default:
	}

	t.logger.Debugf("Offer to %s rejected: %s", s.PeerID, s.Payload)
	conn.fail(fmt.Errorf("%w: %s", transport.ErrUnknownPeer, s.PeerID))
}

// setLocalDescription applies desc and waits for ICE gathering to finish so
// the returned SDP carries every candidate.
func (t *Transport) setLocalDescription(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

func (t *Transport) track(c *connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.connections[c.peerID]; ok && old != c {
		go func() { _ = old.Close() }()
	}
	t.connections[c.peerID] = c
}

func (t *Transport) untrack(c *connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connections[c.peerID] == c {
		delete(t.connections, c.peerID)
	}
}
