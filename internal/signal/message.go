// Package signal relays session descriptions between peers over websockets.
// Every client gets an id on connect and can address offers and answers to
// any other connected id.
package signal

type MessageType string

const (
	TypeID     MessageType = "id"
	TypeOffer  MessageType = "offer"
	TypeAnswer MessageType = "answer"
	TypeError  MessageType = "error"
)

// Message is one frame on the wire. On TypeError replies From names the peer
// the rejected message was addressed to, when there is one.
type Message struct {
	Type    MessageType `json:"type"`
	From    string      `json:"from,omitempty"`
	To      string      `json:"to,omitempty"`
	Payload string      `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func forwardable(t MessageType) bool {
	return t == TypeOffer || t == TypeAnswer
}
