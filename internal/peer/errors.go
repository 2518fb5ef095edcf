package peer

import "errors"

var (
	ErrSession       = errors.New("session error")
	ErrNotStarted    = errors.New("session not started")
	ErrValidation    = errors.New("invalid request")
	ErrConnectFailed = errors.New("connect failed")
	ErrNotSelectable = errors.New("connection not selectable")
)
