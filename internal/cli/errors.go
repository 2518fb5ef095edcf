package cli

import (
	"errors"
	"strings"

	"github.com/rudransh-shrivastava/peer-drop/internal/inbox"
	"github.com/rudransh-shrivastava/peer-drop/internal/peer"
	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
	"github.com/rudransh-shrivastava/peer-drop/internal/relay"
)

// describe turns an error into the line shown to the user. Each failure
// kind gets its own wording.
func describe(err error) string {
	switch {
	case errors.Is(err, peer.ErrNotStarted):
		return "Session is not started. Run 'start' first."
	case errors.Is(err, peer.ErrValidation):
		return "Invalid request: " + detail(err, peer.ErrValidation)
	case errors.Is(err, peer.ErrConnectFailed):
		return "Could not connect: " + detail(err, peer.ErrConnectFailed)
	case errors.Is(err, peer.ErrNotSelectable):
		return "Cannot select that connection: " + detail(err, peer.ErrNotSelectable)
	case errors.Is(err, peer.ErrSession):
		return "Session failure: " + detail(err, peer.ErrSession)
	case errors.Is(err, protocol.ErrEmptyFileSelection):
		return "No file selected."
	case errors.Is(err, protocol.ErrMalformedMessage):
		return "Discarded a malformed message: " + detail(err, protocol.ErrMalformedMessage)
	case errors.Is(err, protocol.ErrSendFailed):
		return "Sending failed: " + detail(err, protocol.ErrSendFailed)
	case errors.Is(err, relay.ErrRelay):
		return "Relay exchange failed: " + err.Error()
	case errors.Is(err, inbox.ErrNotFound):
		return "No such file in the inbox."
	default:
		return "Error: " + err.Error()
	}
}

// detail drops the sentinel's own text from the front of err's message.
func detail(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}
