package wire

import "github.com/eclipse-opendut/opendut-go/pkg/model"

// TracingContext carries W3C Trace Context propagation keys (traceparent/tracestate) on
// each frame.
type TracingContext map[string]string

// DownstreamPayloadKind discriminates DownstreamMessage.Payload.
type DownstreamPayloadKind string

const (
	DownPong                  DownstreamPayloadKind = "Pong"
	DownApplyPeerConfiguration DownstreamPayloadKind = "ApplyPeerConfiguration"
	DownDisconnectNotice       DownstreamPayloadKind = "DisconnectNotice"
)

// ApplyPeerConfigurationPayload is the payload of a DownApplyPeerConfiguration frame.
type ApplyPeerConfigurationPayload struct {
	Old model.OldPeerConfiguration
	New model.PeerConfiguration
}

// DownstreamMessage is sent from CCP to ECA over the PeerMessagingBroker stream.
type DownstreamMessage struct {
	Kind                   DownstreamPayloadKind
	ApplyPeerConfiguration *ApplyPeerConfigurationPayload `json:",omitempty"`
	Context                TracingContext                 `json:",omitempty"`
}

func Pong(ctx TracingContext) DownstreamMessage {
	return DownstreamMessage{Kind: DownPong, Context: ctx}
}

func ApplyPeerConfiguration(old model.OldPeerConfiguration, new model.PeerConfiguration, ctx TracingContext) DownstreamMessage {
	return DownstreamMessage{
		Kind:                   DownApplyPeerConfiguration,
		ApplyPeerConfiguration: &ApplyPeerConfigurationPayload{Old: old, New: new},
		Context:                ctx,
	}
}

func DisconnectNotice(ctx TracingContext) DownstreamMessage {
	return DownstreamMessage{Kind: DownDisconnectNotice, Context: ctx}
}

// UpstreamPayloadKind discriminates UpstreamMessage.Payload.
type UpstreamPayloadKind string

const (
	UpPing                       UpstreamPayloadKind = "Ping"
	UpEdgePeerConfigurationState UpstreamPayloadKind = "EdgePeerConfigurationState"
)

// UpstreamMessage is sent from ECA to CCP over the PeerMessagingBroker stream.
type UpstreamMessage struct {
	Kind                       UpstreamPayloadKind                   `json:"Kind"`
	EdgePeerConfigurationState *model.EdgePeerConfigurationState `json:",omitempty"`
	Context                    TracingContext                     `json:",omitempty"`
}

func Ping(ctx TracingContext) UpstreamMessage {
	return UpstreamMessage{Kind: UpPing, Context: ctx}
}

func EdgePeerConfigurationStateMessage(s model.EdgePeerConfigurationState, ctx TracingContext) UpstreamMessage {
	return UpstreamMessage{Kind: UpEdgePeerConfigurationState, EdgePeerConfigurationState: &s, Context: ctx}
}
