package transport

import "sync"

// Callbacks holds the data and close handlers of a Conn. Adapters feed it
// from their own goroutines; handlers are invoked one at a time.
type Callbacks struct {
	mu      sync.Mutex
	onData  func([]byte)
	onClose func()
	pending [][]byte
	closed  bool
}

func (c *Callbacks) SetData(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onData = fn
	if fn == nil {
		return
	}
	for _, p := range c.pending {
		fn(p)
	}
	c.pending = nil
}

func (c *Callbacks) SetClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onClose = fn
	if fn != nil && c.closed {
		fn()
	}
}

// Data delivers a payload, or buffers it until a data handler exists.
// Payloads after close are dropped.
func (c *Callbacks) Data(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.onData == nil {
		c.pending = append(c.pending, p)
		return
	}
	c.onData(p)
}

// Closed marks the connection closed. Only the first call has an effect.
func (c *Callbacks) Closed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Callbacks) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
