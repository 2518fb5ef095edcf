// Package mem is an in-process transport used by tests and the demo shell.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

// Network links the transports created from it. Ids are unique per network.
type Network struct {
	mu     sync.Mutex
	nodes  map[string]*Transport
	nextID int
}

func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Transport)}
}

func (n *Network) NewTransport() *Transport {
	return &Transport{network: n}
}

func (n *Network) register(t *Transport) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := fmt.Sprintf("mem-%d", n.nextID)
	n.nodes[id] = t
	return id
}

func (n *Network) lookup(id string) (*Transport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.nodes[id]
	return t, ok
}

func (n *Network) unregister(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

// Transport is one node of a Network. The exported hooks let tests inject
// failures and hold operations open.
type Transport struct {
	network *Network

	// OpenErr and ConnectErr make the next calls fail.
	OpenErr    error
	ConnectErr error
	// OpenGate and ConnectGate, when set, block Open and Connect until
	// they are closed or the context ends.
	OpenGate    chan struct{}
	ConnectGate chan struct{}

	mu     sync.Mutex
	id     string
	onConn func(transport.Conn)
	conns  []*Conn
	closed int
}

func (t *Transport) Open(ctx context.Context) (string, error) {
	if err := wait(ctx, t.OpenGate); err != nil {
		return "", err
	}
	if t.OpenErr != nil {
		return "", t.OpenErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.id != "" {
		return t.id, nil
	}
	t.id = t.network.register(t)
	return t.id, nil
}

func (t *Transport) Connect(ctx context.Context, remoteID string) (transport.Conn, error) {
	if err := wait(ctx, t.ConnectGate); err != nil {
		return nil, err
	}
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}

	t.mu.Lock()
	localID := t.id
	t.mu.Unlock()
	if localID == "" {
		return nil, transport.ErrNotOpen
	}

	remote, ok := t.network.lookup(remoteID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownPeer, remoteID)
	}

	local := &Conn{peerID: remoteID}
	far := &Conn{peerID: localID}
	local.peer, far.peer = far, local

	t.track(local)
	remote.track(far)

	remote.mu.Lock()
	onConn := remote.onConn
	remote.mu.Unlock()
	if onConn != nil {
		onConn(far)
	}
	return local, nil
}

func (t *Transport) OnConnection(fn func(transport.Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

func (t *Transport) Close() error {
	t.mu.Lock()
	id := t.id
	conns := t.conns
	t.id = ""
	t.conns = nil
	t.closed++
	t.mu.Unlock()

	if id != "" {
		t.network.unregister(id)
	}
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

// CloseCount reports how many times Close was called.
func (t *Transport) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Conns returns the connections this node has seen, in creation order.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

func (t *Transport) track(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns = append(t.conns, c)
}

// Conn is one end of an in-memory pipe.
type Conn struct {
	peerID string
	peer   *Conn
	cb     transport.Callbacks
}

func (c *Conn) PeerID() string { return c.peerID }

func (c *Conn) Send(data []byte) error {
	if c.cb.IsClosed() {
		return transport.ErrClosed
	}
	c.peer.cb.Data(append([]byte(nil), data...))
	return nil
}

func (c *Conn) OnData(fn func([]byte)) { c.cb.SetData(fn) }

func (c *Conn) OnClose(fn func()) { c.cb.SetClose(fn) }

// Close shuts both ends.
func (c *Conn) Close() error {
	c.cb.Closed()
	c.peer.cb.Closed()
	return nil
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
