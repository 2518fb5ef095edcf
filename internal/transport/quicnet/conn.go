package quicnet

import (
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

// Conn is a peer connection carried on a single bidirectional stream.
type Conn struct {
	peerID  string
	qc      *quic.Conn
	stream  *quic.Stream
	cb      transport.Callbacks
	writeMu sync.Mutex
	release func(*Conn)
}

func newConn(peerID string, qc *quic.Conn, stream *quic.Stream, release func(*Conn)) *Conn {
	return &Conn{
		peerID:  peerID,
		qc:      qc,
		stream:  stream,
		release: release,
	}
}

func (c *Conn) PeerID() string { return c.peerID }

func (c *Conn) RemoteAddr() string {
	return c.qc.RemoteAddr().String()
}

func (c *Conn) Send(data []byte) error {
	if c.cb.IsClosed() {
		return transport.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.stream, data)
}

func (c *Conn) OnData(fn func([]byte)) { c.cb.SetData(fn) }

func (c *Conn) OnClose(fn func()) { c.cb.SetClose(fn) }

func (c *Conn) Close() error {
	c.shutdown()
	_ = c.stream.Close()
	return c.qc.CloseWithError(0, "")
}

func (c *Conn) readLoop() {
	defer c.shutdown()

	for {
		data, err := readFrame(c.stream)
		if err != nil {
			return
		}
		c.cb.Data(data)
	}
}

func (c *Conn) shutdown() {
	c.cb.Closed()
	if c.release != nil {
		c.release(c)
	}
}
