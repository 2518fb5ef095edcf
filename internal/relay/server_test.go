package relay

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
)

func TestServerExpiresEntries(t *testing.T) {
	srv := NewServer(time.Minute, logger.Discard())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	srv.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/k", strings.NewReader("v")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, srv.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, srv.Len())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/k", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerOverwriteKeepsLatest(t *testing.T) {
	srv := NewServer(0, logger.Discard())

	for _, v := range []string{"first", "second"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/k", strings.NewReader(v)))
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/k", nil))
	assert.Equal(t, "second", rec.Body.String())
}

func TestServerRejects(t *testing.T) {
	srv := NewServer(0, logger.Discard())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/k", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	big := strings.Repeat("x", maxValueSize+1)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/k", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestListenAndServeAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	result := make(chan error, 1)
	go func() {
		result <- NewServer(time.Minute, logger.Discard()).ListenAndServe(context.Background(), ln.Addr().String())
	}()

	select {
	case err := <-result:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
