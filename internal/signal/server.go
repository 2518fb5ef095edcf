package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

func NewServer(logger *logrus.Logger) *Server {
	return &Server{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Handler serves the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	return mux
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("Signaling server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, sendBacklog),
	}
	s.add(c)
	s.logger.Infof("Client %s connected from %s", c.id, r.RemoteAddr)

	done := make(chan struct{})
	go s.writeLoop(c, done)

	c.send <- Message{Type: TypeID, To: c.id}
	s.readLoop(c)

	s.remove(c)
	close(done)
	_ = conn.Close()
	s.logger.Infof("Client %s disconnected", c.id)
}

func (s *Server) readLoop(c *client) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugf("Read from %s ended: %v", c.id, err)
			}
			return
		}
		s.route(c, msg)
	}
}

func (s *Server) route(from *client, msg Message) {
	if !forwardable(msg.Type) {
		s.reply(from, Message{Type: TypeError, Error: "unsupported message type " + string(msg.Type)})
		return
	}

	s.mu.RLock()
	target, ok := s.clients[msg.To]
	s.mu.RUnlock()

	if !ok {
		s.reply(from, Message{Type: TypeError, From: msg.To, To: from.id, Error: "unknown peer " + msg.To})
		return
	}

	msg.From = from.id
	s.logger.Debugf("Forwarding %s from %s to %s", msg.Type, from.id, target.id)
	s.reply(target, msg)
}

// reply queues msg for c, dropping it if c is not keeping up.
func (s *Server) reply(c *client, msg Message) {
	select {
	case c.send <- msg:
	default:
		s.logger.Warnf("Dropping %s for slow client %s", msg.Type, c.id)
	}
}

func (s *Server) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Debugf("Write to %s failed: %v", c.id, err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (s *Server) add(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}
