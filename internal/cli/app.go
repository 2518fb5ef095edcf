package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-drop/internal/config"
	"github.com/rudransh-shrivastava/peer-drop/internal/inbox"
	"github.com/rudransh-shrivastava/peer-drop/internal/peer"
	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
	"github.com/rudransh-shrivastava/peer-drop/internal/relay"
	"github.com/rudransh-shrivastava/peer-drop/internal/signal"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport/quicnet"
	"github.com/rudransh-shrivastava/peer-drop/internal/transport/webrtc"
)

const relayTimeout = 30 * time.Second

// newTransportFactory returns the constructor the session calls on every
// Start.
func newTransportFactory(cfg *config.Config, log *logrus.Logger) (func() transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "webrtc":
		return func() transport.Transport {
			return webrtc.New(signal.NewClient(cfg.Signal.URL, log), cfg.Transport.STUNServers, log)
		}, nil
	case "quic":
		return func() transport.Transport {
			return quicnet.New(cfg.Transport.QUICListen, log)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport.Kind)
	}
}

// newShellFromConfig wires the session, relay and inbox described by cfg.
// The returned cleanup closes everything the shell owns.
func newShellFromConfig(cfg *config.Config, log *logrus.Logger, opts ShellOptions) (*Shell, func(), error) {
	newTransport, err := newTransportFactory(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	codec, err := protocol.NewCodec(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}

	endpoints, err := relay.NewEndpoints(cfg.Relay.Endpoints, cfg.Relay.Default)
	if err != nil {
		return nil, nil, err
	}

	db, err := inbox.NewDB(cfg.Inbox.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening inbox: %w", err)
	}

	session := peer.NewSession(peer.Config{
		NewTransport: newTransport,
		Codec:        codec,
		Logger:       log,
	})

	opts.Session = session
	opts.Relay = relay.NewClient(&http.Client{Timeout: relayTimeout}, log)
	opts.Endpoints = endpoints
	opts.Inbox = inbox.NewStore(db)
	opts.Logger = log
	if opts.DownloadDir == "" {
		opts.DownloadDir = cfg.Inbox.DownloadDir
	}

	cleanup := func() {
		session.Close()
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warnf("Closing inbox: %v", err)
			}
		}
	}
	return NewShell(opts), cleanup, nil
}
