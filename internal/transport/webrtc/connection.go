package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

type connection struct {
	peerID      string
	pc          *webrtc.PeerConnection
	isInitiator bool
	cb          transport.Callbacks

	mu      sync.Mutex
	dc      *webrtc.DataChannel
	ready   chan struct{}
	done    chan struct{}
	err     error
	once    sync.Once
	onOpen  func()
	release func(*connection)
}

func newConnection(peerID string, pc *webrtc.PeerConnection, isInitiator bool) *connection {
	conn := &connection{
		peerID:      peerID,
		pc:          pc,
		isInitiator: isInitiator,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			conn.shutdown()
		}
	})

	if !isInitiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			conn.setupDataChannel(dc)
		})
	}

	return conn
}

func (c *connection) createDataChannel() error {
	dc, err := c.pc.CreateDataChannel(DataChannelLabel, dataChannelInit())
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)
	return nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		close(c.ready)
		c.mu.Lock()
		onOpen := c.onOpen
		c.mu.Unlock()
		if onOpen != nil {
			onOpen()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.cb.Data(msg.Data)
	})

	dc.OnClose(func() {
		c.shutdown()
	})
}

func (c *connection) PeerID() string {
	return c.peerID
}

func (c *connection) Send(data []byte) error {
	if c.cb.IsClosed() {
		return transport.ErrClosed
	}

	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel not ready")
	}
	return dc.Send(data)
}

func (c *connection) OnData(fn func([]byte)) { c.cb.SetData(fn) }

func (c *connection) OnClose(fn func()) { c.cb.SetClose(fn) }

func (c *connection) Close() error {
	c.shutdown()

	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	return c.pc.Close()
}

// fail records why the connection ended, then shuts it down.
func (c *connection) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.shutdown()
}

func (c *connection) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *connection) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.cb.Closed()
		if c.release != nil {
			c.release(c)
		}
	})
}
