package peer

import (
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

const defaultEventBuffer = 64

type Config struct {
	// NewTransport is called once per Start, so a stopped session never
	// shares a transport with the next one.
	NewTransport func() transport.Transport
	Codec        protocol.Codec
	Logger       *logrus.Logger
	EventBuffer  int
}
