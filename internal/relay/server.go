package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTTL = 5 * time.Minute

type entry struct {
	value   string
	expires time.Time
}

// Server is a self-hosted relay: a POST stores the body under the request
// path for the TTL, and the first GET takes it.
type Server struct {
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewServer(ttl time.Duration, logger *logrus.Logger) *Server {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Server{
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize+1))
		if err != nil {
			http.Error(w, "read failed", http.StatusBadRequest)
			return
		}
		if len(body) > maxValueSize {
			http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.put(key, string(body))
		s.logger.Debugf("Stored key %s from %s", key, r.RemoteAddr)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")

	case http.MethodGet:
		value, ok := s.take(key)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Debugf("Handed key %s to %s", key, r.RemoteAddr)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, value)

	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Len reports the stored, unexpired entries.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

// ListenAndServe runs until ctx is cancelled, sweeping expired keys once
// per TTL.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				return
			case <-ticker.C:
				s.mu.Lock()
				s.sweepLocked()
				s.mu.Unlock()
			}
		}
	}()

	s.logger.Infof("Relay server listening on %s (ttl %s)", addr, s.ttl)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expires: s.now().Add(s.ttl)}
}

func (s *Server) take(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	delete(s.entries, key)
	if !s.now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

func (s *Server) sweepLocked() {
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
