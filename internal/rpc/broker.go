package rpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	brokerpkg "github.com/eclipse-opendut/opendut-go/internal/broker"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

// PeerMessagingBrokerServer implements the bidirectional Open RPC every ECA holds open for
// its lifetime.
type PeerMessagingBrokerServer struct {
	broker  *brokerpkg.Broker
	onState func(context.Context, ids.PeerId, wire.UpstreamMessage)
}

func NewPeerMessagingBrokerServer(b *brokerpkg.Broker, onState func(context.Context, ids.PeerId, wire.UpstreamMessage)) *PeerMessagingBrokerServer {
	return &PeerMessagingBrokerServer{broker: b, onState: onState}
}

// Open pumps DownstreamMessages queued for this peer out over stream, and dispatches every
// received UpstreamMessage to onState (heartbeats and detected-state reports alike).
func (s *PeerMessagingBrokerServer) Open(stream grpc.ServerStream) error {
	identity, ok := PeerIdentity(stream.Context())
	if !ok {
		return status.Error(codes.Unauthenticated, "no peer identity on stream")
	}
	peerId, err := ids.ParsePeerId(identity)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid peer identity %q: %v", identity, err)
	}

	peerAddr := remoteHost(stream.Context())
	session := s.broker.Open(stream.Context(), peerId, peerAddr)
	defer s.broker.Close(session)

	errc := make(chan error, 2)
	go func() {
		for msg := range session.Downstream() {
			if err := stream.SendMsg(&msg); err != nil {
				errc <- err
				return
			}
		}
	}()
	go func() {
		for {
			var msg wire.UpstreamMessage
			if err := stream.RecvMsg(&msg); err != nil {
				errc <- err
				return
			}
			s.broker.Heartbeat(peerId)
			if s.onState != nil {
				s.onState(stream.Context(), peerId, msg)
			}
		}
	}()
	err = <-errc
	log.Debugf("rpc: peer messaging session for %s ended: %v", peerId, err)
	return err
}

var peerMessagingBrokerServiceDesc = grpc.ServiceDesc{
	ServiceName: PeerMessagingBrokerService,
	HandlerType: (*PeerMessagingBrokerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Open",
			Handler:       peerMessagingBrokerOpenHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "opendut/peer_messaging_broker.proto",
}

func peerMessagingBrokerOpenHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*PeerMessagingBrokerServer).Open(stream)
}

// remoteHost extracts the dialing address from the gRPC peer info attached to ctx, stripping
// the port so broker.Session.RemoteHost carries a bare host the way model.UpState's net.ParseIP
// expects. Returns "" if no peer info is attached (e.g. an in-process test stream).
func remoteHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
