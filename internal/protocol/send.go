package protocol

import "fmt"

// Sender is the part of a transport connection needed to push a payload.
type Sender interface {
	Send(data []byte) error
}

// Send encodes e with c and hands it to conn. Transport rejections are
// reported as ErrSendFailed and never retried.
func Send(conn Sender, c Codec, e Envelope) error {
	data, err := c.Encode(e)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("%w: no connection", ErrSendFailed)
	}
	if err := conn.Send(data); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}
