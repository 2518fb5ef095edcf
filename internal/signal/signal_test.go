package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-drop/internal/logger"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(logger.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestRegisterAssignsDistinctIDs(t *testing.T) {
	_, url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := NewClient(url, logger.Discard())
	b := NewClient(url, logger.Discard())
	defer func() { _ = a.Close() }()
	defer func() { _ = b.Close() }()

	aID, err := a.Register(ctx)
	require.NoError(t, err)
	bID, err := b.Register(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, aID)
	assert.NotEqual(t, aID, bID)

	again, err := a.Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, aID, again)
}

func TestForwardOfferAndAnswer(t *testing.T) {
	_, url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := NewClient(url, logger.Discard())
	b := NewClient(url, logger.Discard())
	defer func() { _ = a.Close() }()
	defer func() { _ = b.Close() }()

	aID, err := a.Register(ctx)
	require.NoError(t, err)
	bID, err := b.Register(ctx)
	require.NoError(t, err)

	require.NoError(t, a.SendSignal(ctx, transport.Signal{PeerID: bID, Type: transport.SignalOffer, Payload: []byte("v=0 offer")}))

	select {
	case s := <-b.Signals():
		assert.Equal(t, aID, s.PeerID)
		assert.Equal(t, transport.SignalOffer, s.Type)
		assert.Equal(t, "v=0 offer", string(s.Payload))
	case <-ctx.Done():
		t.Fatal("timeout waiting for offer")
	}

	require.NoError(t, b.SendSignal(ctx, transport.Signal{PeerID: aID, Type: transport.SignalAnswer, Payload: []byte("v=0 answer")}))

	select {
	case s := <-a.Signals():
		assert.Equal(t, bID, s.PeerID)
		assert.Equal(t, transport.SignalAnswer, s.Type)
	case <-ctx.Done():
		t.Fatal("timeout waiting for answer")
	}
}

func TestUnknownTargetReturnsError(t *testing.T) {
	_, url := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, TypeID, hello.Type)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeOffer, To: "nobody", Payload: "sdp"}))

	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, "nobody", reply.From)
	assert.Contains(t, reply.Error, "nobody")
}

func TestClientDeliversRejectedTarget(t *testing.T) {
	_, url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(url, logger.Discard())
	_, err := c.Register(ctx)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.SendSignal(ctx, transport.Signal{PeerID: "nobody", Type: transport.SignalOffer, Payload: []byte("sdp")}))

	select {
	case s := <-c.Signals():
		assert.Equal(t, transport.SignalError, s.Type)
		assert.Equal(t, "nobody", s.PeerID)
		assert.Contains(t, string(s.Payload), "unknown peer")
	case <-ctx.Done():
		t.Fatal("timeout waiting for rejection")
	}
}

func TestUnsupportedTypeReturnsError(t *testing.T) {
	_, url := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))

	require.NoError(t, conn.WriteJSON(Message{Type: TypeID, To: hello.To}))

	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeError, reply.Type)
}

func TestCloseAndRegisterAgain(t *testing.T) {
	srv, url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(url, logger.Discard())
	first, err := c.Register(ctx)
	require.NoError(t, err)
	signals := c.Signals()

	require.NoError(t, c.Close())

	select {
	case _, ok := <-signals:
		assert.False(t, ok)
	case <-ctx.Done():
		t.Fatal("signals channel not closed")
	}

	second, err := c.Register(ctx)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.NotEqual(t, first, second)

	assert.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSendBeforeRegister(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", logger.Discard())
	err := c.SendSignal(context.Background(), transport.Signal{PeerID: "x", Type: transport.SignalOffer})
	assert.ErrorIs(t, err, ErrNotRegistered)
}
