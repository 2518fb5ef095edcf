// Package peer manages the local session and the connections made through it.
//
// A Session runs a single loop goroutine that owns all session and registry
// state. Public methods and transport callbacks hand closures to that loop;
// transport calls that can block always run outside it.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusStarted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusStarted:
		return "started"
	default:
		return "unknown"
	}
}

var errClosed = fmt.Errorf("%w: session closed", ErrSession)

type Session struct {
	newTransport func() transport.Transport
	codec        protocol.Codec
	logger       *logrus.Logger

	ops       chan func()
	events    chan Event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	tokens    atomic.Uint64

	// Owned by the loop.
	status   Status
	localID  string
	gen      uint64
	tr       transport.Transport
	registry *Registry
}

func NewSession(cfg Config) *Session {
	if cfg.Codec == nil {
		cfg.Codec = protocol.ProtoCodec{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	s := &Session{
		newTransport: cfg.NewTransport,
		codec:        cfg.Codec,
		logger:       cfg.Logger,
		ops:          make(chan func(), 64),
		events:       make(chan Event, cfg.EventBuffer),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		registry:     NewRegistry(),
	}
	go s.run()
	return s
}

// Events delivers UI notifications. Events are dropped when the buffer is
// full. The channel is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start opens a transport session and returns the local id. Calling it while
// started returns the current id.
func (s *Session) Start(ctx context.Context) (string, error) {
	var (
		id      string
		gen     uint64
		tr      transport.Transport
		proceed bool
		err     error
	)
	if xerr := s.exec(func() {
		switch s.status {
		case StatusStarted:
			id = s.localID
		case StatusStarting:
			err = fmt.Errorf("%w: start already in progress", ErrSession)
		default:
			if s.newTransport == nil {
				err = fmt.Errorf("%w: no transport configured", ErrSession)
				return
			}
			s.gen++
			gen = s.gen
			tr = s.newTransport()
			s.tr = tr
			s.status = StatusStarting
			proceed = true
		}
	}); xerr != nil {
		return "", xerr
	}
	if !proceed {
		return id, err
	}

	tr.OnConnection(func(c transport.Conn) {
		s.acceptInbound(gen, c)
	})

	s.logger.Debugf("Opening transport session")
	localID, openErr := tr.Open(ctx)
	if openErr == nil && localID == "" {
		openErr = errors.New("transport returned an empty id")
	}

	stale := false
	if xerr := s.exec(func() {
		if s.gen != gen || s.status != StatusStarting {
			stale = true
			return
		}
		if openErr != nil {
			s.status = StatusIdle
			s.tr = nil
			return
		}
		s.status = StatusStarted
		s.localID = localID
		s.emit(Event{Type: EventStarted, LocalID: localID})
	}); xerr != nil {
		stale = true
	}

	switch {
	case stale:
		// Stop already took and closed tr.
		if openErr != nil {
			return "", fmt.Errorf("%w: %w", ErrSession, openErr)
		}
		return "", fmt.Errorf("%w: stopped before start completed", ErrSession)
	case openErr != nil:
		_ = tr.Close()
		s.logger.Warnf("Failed to start session: %v", openErr)
		return "", fmt.Errorf("%w: %w", ErrSession, openErr)
	}

	s.logger.Infof("Session started with id %s", localID)
	return localID, nil
}

// Stop tears the session down. It is idempotent, and teardown failures are
// logged rather than returned.
func (s *Session) Stop() {
	var (
		tr    transport.Transport
		conns []transport.Conn
	)
	_ = s.exec(func() {
		if s.status == StatusIdle {
			return
		}
		s.gen++
		tr = s.tr
		conns = s.registry.Clear()
		s.tr = nil
		s.status = StatusIdle
		s.localID = ""
		s.emit(Event{Type: EventStopped})
	})

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	if tr != nil {
		err = multierr.Append(err, tr.Close())
		s.logger.Infof("Session stopped")
	}
	if err != nil {
		s.logger.Warnf("Errors while stopping session: %v", err)
	}
}

// Close stops the session and ends its loop. The session is unusable after.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Stop()
		close(s.quit)
		<-s.done
		close(s.events)
	})
}

// ConnectTo opens a connection to remoteID. Connecting to an id that is
// already open does nothing.
func (s *Session) ConnectTo(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("%w: remote id is required", ErrValidation)
	}

	var (
		tr      transport.Transport
		gen     uint64
		token   uint64
		already bool
		err     error
	)
	if xerr := s.exec(func() {
		if s.status != StatusStarted {
			err = ErrNotStarted
			return
		}
		if rec, ok := s.registry.Get(remoteID); ok {
			switch rec.Status {
			case ConnOpen:
				already = true
			default:
				err = fmt.Errorf("%w: connection to %s already in progress", ErrValidation, remoteID)
			}
			return
		}
		if remoteID == s.localID {
			err = fmt.Errorf("%w: cannot connect to own id", ErrValidation)
			return
		}
		token = s.tokens.Add(1)
		s.registry.Connecting(remoteID, token)
		tr, gen = s.tr, s.gen
	}); xerr != nil {
		return xerr
	}
	if err != nil || already {
		return err
	}

	s.logger.Debugf("Connecting to %s", remoteID)
	conn, connErr := tr.Connect(ctx, remoteID)

	var accepted, superseded, stopped bool
	if xerr := s.exec(func() {
		if s.gen != gen {
			stopped = true
			return
		}
		rec, ok := s.registry.Get(remoteID)
		if ok && rec.token != token {
			superseded = rec.Status == ConnOpen
			return
		}
		if connErr != nil {
			s.registry.Remove(remoteID)
			return
		}
		// The record may be gone if an inbound connection from the same
		// peer took it and then closed; the dialed conn takes its place.
		s.registry.Open(remoteID, conn, token)
		accepted = true
		s.emit(Event{Type: EventConnectionOpened, RemoteID: remoteID})
	}); xerr != nil {
		stopped = true
	}

	switch {
	case superseded:
		// The remote reached us first; that connection stays.
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	case connErr != nil:
		s.logger.Warnf("Failed to connect to %s: %v", remoteID, connErr)
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, remoteID, connErr)
	case stopped:
		_ = conn.Close()
		return fmt.Errorf("%w: %s: session stopped", ErrConnectFailed, remoteID)
	case !accepted:
		_ = conn.Close()
		return fmt.Errorf("%w: %s: another attempt is in progress", ErrConnectFailed, remoteID)
	}

	s.watch(gen, token, remoteID, conn)
	s.logger.Infof("Connected to %s", remoteID)
	return nil
}

// Select makes remoteID the transfer target. Only open connections can be
// selected; otherwise nothing changes.
func (s *Session) Select(remoteID string) error {
	var err error
	if xerr := s.exec(func() {
		err = s.registry.Select(remoteID)
	}); xerr != nil {
		return xerr
	}
	return err
}

// SendText sends text to the selected connection.
func (s *Session) SendText(text string) error {
	return s.sendSelected(protocol.TextEnvelope(text))
}

// SendFile encodes fh and sends it to the selected connection.
func (s *Session) SendFile(fh *protocol.FileHandle) error {
	if fh == nil {
		return protocol.ErrEmptyFileSelection
	}
	conn, err := s.selectedConn()
	if err != nil {
		return err
	}

	env, err := protocol.EncodeFile(fh)
	if err != nil {
		return err
	}
	return protocol.Send(conn, s.codec, env)
}

// SendTo sends e on the open connection to remoteID.
func (s *Session) SendTo(remoteID string, e protocol.Envelope) error {
	if remoteID == "" {
		return fmt.Errorf("%w: remote id is required", ErrValidation)
	}

	var (
		conn transport.Conn
		err  error
	)
	if xerr := s.exec(func() {
		if s.status != StatusStarted {
			err = ErrNotStarted
			return
		}
		rec, ok := s.registry.Get(remoteID)
		if !ok || rec.Status != ConnOpen {
			err = fmt.Errorf("%w: %s is not open", protocol.ErrSendFailed, remoteID)
			return
		}
		conn = rec.conn
	}); xerr != nil {
		return xerr
	}
	if err != nil {
		return err
	}
	return protocol.Send(conn, s.codec, e)
}

func (s *Session) Status() Status {
	st := StatusIdle
	_ = s.exec(func() { st = s.status })
	return st
}

func (s *Session) LocalID() string {
	var id string
	_ = s.exec(func() { id = s.localID })
	return id
}

// Connections lists open remote ids in first-open order.
func (s *Session) Connections() []string {
	var ids []string
	_ = s.exec(func() { ids = s.registry.Connections() })
	return ids
}

func (s *Session) Selected() string {
	var id string
	_ = s.exec(func() { id = s.registry.Selected() })
	return id
}

// Lookup reports the status of remoteID, or ConnClosed and false when the
// registry does not hold it.
func (s *Session) Lookup(remoteID string) (ConnStatus, bool) {
	st, found := ConnClosed, false
	_ = s.exec(func() {
		if rec, ok := s.registry.Get(remoteID); ok {
			st, found = rec.Status, true
		}
	})
	return st, found
}

func (s *Session) sendSelected(e protocol.Envelope) error {
	conn, err := s.selectedConn()
	if err != nil {
		return err
	}
	return protocol.Send(conn, s.codec, e)
}

func (s *Session) selectedConn() (transport.Conn, error) {
	var (
		conn transport.Conn
		err  error
	)
	if xerr := s.exec(func() {
		if s.status != StatusStarted {
			err = ErrNotStarted
			return
		}
		id := s.registry.Selected()
		if id == "" {
			err = fmt.Errorf("%w: no connection selected", ErrValidation)
			return
		}
		rec, _ := s.registry.Get(id)
		conn = rec.conn
	}); xerr != nil {
		return nil, xerr
	}
	return conn, err
}

// acceptInbound runs on the transport's goroutine.
func (s *Session) acceptInbound(gen uint64, c transport.Conn) {
	remoteID := c.PeerID()
	token := s.tokens.Add(1)

	accepted := false
	if err := s.exec(func() {
		if s.gen != gen || s.status == StatusIdle || remoteID == "" {
			return
		}
		if replaced := s.registry.Open(remoteID, c, token); replaced != nil {
			go func() { _ = replaced.Close() }()
		}
		accepted = true
		s.emit(Event{Type: EventConnectionOpened, RemoteID: remoteID, Inbound: true})
	}); err != nil || !accepted {
		_ = c.Close()
		return
	}

	s.logger.Infof("Accepted connection from %s", remoteID)
	s.watch(gen, token, remoteID, c)
}

// watch routes data and close callbacks of c to the loop. Payloads are
// decoded on the callback goroutine.
func (s *Session) watch(gen, token uint64, remoteID string, c transport.Conn) {
	c.OnData(func(data []byte) {
		env, err := protocol.Decode(s.codec, data)
		s.post(func() {
			if !s.owns(gen, token, remoteID) {
				return
			}
			if err != nil {
				s.logger.Warnf("Dropping message from %s: %v", remoteID, err)
				s.emit(Event{Type: EventError, RemoteID: remoteID, Err: err})
				return
			}
			s.emit(Event{Type: EventMessage, RemoteID: remoteID, Envelope: env})
		})
	})

	c.OnClose(func() {
		s.post(func() {
			if !s.owns(gen, token, remoteID) {
				return
			}
			s.registry.Remove(remoteID)
			s.logger.Infof("Connection to %s closed", remoteID)
			s.emit(Event{Type: EventConnectionClosed, RemoteID: remoteID})
		})
	})
}

func (s *Session) owns(gen, token uint64, remoteID string) bool {
	if s.gen != gen {
		return false
	}
	rec, ok := s.registry.Get(remoteID)
	return ok && rec.token == token
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warnf("Event buffer full, dropping %s event", e.Type)
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			return
		}
	}
}

// exec runs fn on the loop and waits for it.
func (s *Session) exec(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(finished) }:
	case <-s.done:
		return errClosed
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return errClosed
	}
}

// post queues fn without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}
