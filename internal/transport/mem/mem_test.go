package mem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

func TestConnectAndExchange(t *testing.T) {
	ctx := context.Background()
	network := NewNetwork()
	a, b := network.NewTransport(), network.NewTransport()

	aID, err := a.Open(ctx)
	require.NoError(t, err)
	bID, err := b.Open(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, aID, bID)

	inbound := make(chan transport.Conn, 1)
	b.OnConnection(func(c transport.Conn) { inbound <- c })

	conn, err := a.Connect(ctx, bID)
	require.NoError(t, err)
	assert.Equal(t, bID, conn.PeerID())

	far := <-inbound
	assert.Equal(t, aID, far.PeerID())

	got := make(chan []byte, 1)
	far.OnData(func(p []byte) { got <- p })
	require.NoError(t, conn.Send([]byte("ping")))
	assert.Equal(t, []byte("ping"), <-got)
}

func TestCloseNotifiesBothEnds(t *testing.T) {
	ctx := context.Background()
	network := NewNetwork()
	a, b := network.NewTransport(), network.NewTransport()
	_, err := a.Open(ctx)
	require.NoError(t, err)
	bID, err := b.Open(ctx)
	require.NoError(t, err)

	conn, err := a.Connect(ctx, bID)
	require.NoError(t, err)

	closed := false
	conn.OnClose(func() { closed = true })
	require.NoError(t, b.Close())

	assert.True(t, closed)
	assert.ErrorIs(t, conn.Send([]byte("x")), transport.ErrClosed)
	assert.Equal(t, 1, b.CloseCount())
}

func TestConnectUnknownPeer(t *testing.T) {
	ctx := context.Background()
	a := NewNetwork().NewTransport()
	_, err := a.Open(ctx)
	require.NoError(t, err)

	_, err = a.Connect(ctx, "mem-404")
	assert.ErrorIs(t, err, transport.ErrUnknownPeer)
}

func TestConnectBeforeOpen(t *testing.T) {
	a := NewNetwork().NewTransport()
	_, err := a.Connect(context.Background(), "mem-1")
	assert.ErrorIs(t, err, transport.ErrNotOpen)
}

func TestInjectedFailures(t *testing.T) {
	boom := errors.New("boom")
	a := NewNetwork().NewTransport()
	a.OpenErr = boom

	_, err := a.Open(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGateHonoursContext(t *testing.T) {
	a := NewNetwork().NewTransport()
	a.OpenGate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
