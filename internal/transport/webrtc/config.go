package webrtc

import "github.com/pion/webrtc/v3"

const (
	// DataChannelLabel names the single channel each connection carries.
	DataChannelLabel = "peer-drop"
	// SubProtocol tells the far side the channel carries envelopes.
	SubProtocol = "peer-drop-envelope"
)

// NewConfiguration puts all stun servers in one ICE server group. An empty
// list gathers host candidates only.
func NewConfiguration(stunServers []string) webrtc.Configuration {
	config := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: append([]string(nil), stunServers...)},
		}
	}
	return config
}

// dataChannelInit asks for a reliable ordered channel: a file is one message
// and must arrive whole.
func dataChannelInit() *webrtc.DataChannelInit {
	ordered := true
	protocol := SubProtocol
	return &webrtc.DataChannelInit{
		Ordered:  &ordered,
		Protocol: &protocol,
	}
}
