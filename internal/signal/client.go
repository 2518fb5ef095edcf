package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

var ErrNotRegistered = errors.New("not registered with signaling server")

// Client implements transport.Signaler against a Server. It can register
// again after Close, receiving a new id.
type Client struct {
	url    string
	logger *logrus.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	id      string
	signals chan transport.Signal
	done    chan struct{}
}

var _ transport.Signaler = (*Client)(nil)

func NewClient(url string, logger *logrus.Logger) *Client {
	return &Client{
		url:     url,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		signals: make(chan transport.Signal),
	}
}

func (c *Client) Register(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.id, nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("failed to read id: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if hello.Type != TypeID || hello.To == "" {
		_ = conn.Close()
		return "", fmt.Errorf("expected id message, got %q", hello.Type)
	}

	signals := make(chan transport.Signal, 16)
	done := make(chan struct{})
	c.conn, c.id, c.signals, c.done = conn, hello.To, signals, done
	go c.readLoop(conn, signals, done)

	c.logger.Infof("Registered with signaling server as %s", c.id)
	return c.id, nil
}

func (c *Client) SendSignal(ctx context.Context, s transport.Signal) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotRegistered
	}

	msg := Message{Type: MessageType(s.Type), To: s.PeerID, Payload: string(s.Payload)}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteJSON(msg)
}

// Signals returns the channel of the current registration. It is closed
// when that registration ends.
func (c *Client) Signals() <-chan transport.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signals
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn, c.done = nil, nil
	c.id = ""
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(done)

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn, signals chan transport.Signal, done <-chan struct{}) {
	defer close(signals)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var s transport.Signal
		switch msg.Type {
		case TypeOffer, TypeAnswer:
			s = transport.Signal{
				PeerID:  msg.From,
				Type:    transport.SignalType(msg.Type),
				Payload: []byte(msg.Payload),
			}
		case TypeError:
			c.logger.Warnf("Signaling server: %s", msg.Error)
			if msg.From == "" {
				continue
			}
			s = transport.Signal{
				PeerID:  msg.From,
				Type:    transport.SignalError,
				Payload: []byte(msg.Error),
			}
		default:
			c.logger.Debugf("Ignoring signaling message %q", msg.Type)
			continue
		}

		select {
		case signals <- s:
		case <-done:
			return
		}
	}
}
