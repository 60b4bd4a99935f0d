package rpc

import (
	"google.golang.org/grpc"

	observerpkg "github.com/eclipse-opendut/opendut-go/internal/observer"
)

// ObserverMessagingBrokerServer implements the server-streaming WaitForPeersOnline RPC: the
// stream carries a Pending update whenever at least one watched peer is still offline (and
// periodically as a keep-alive), then a single Success update once all are online, after which
// the stream closes.
type ObserverMessagingBrokerServer struct {
	observer *observerpkg.Broker
}

func NewObserverMessagingBrokerServer(o *observerpkg.Broker) *ObserverMessagingBrokerServer {
	return &ObserverMessagingBrokerServer{observer: o}
}

func (s *ObserverMessagingBrokerServer) WaitForPeersOnline(stream grpc.ServerStream) error {
	var req WaitForPeersOnlineRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return s.observer.Watch(stream.Context(), req.Peers, func(u observerpkg.Update) error {
		update := WaitForPeersOnlineUpdate{Kind: WaitForPeersOnlinePending, Offline: u.Offline}
		if u.AllOnline {
			update = WaitForPeersOnlineUpdate{Kind: WaitForPeersOnlineSuccess}
		}
		return stream.SendMsg(&update)
	})
}

var observerMessagingBrokerServiceDesc = grpc.ServiceDesc{
	ServiceName: ObserverMessagingBrokerService,
	HandlerType: (*ObserverMessagingBrokerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WaitForPeersOnline",
			Handler:       observerMessagingBrokerWaitHandler,
			ServerStreams: true,
			ClientStreams: false,
		},
	},
	Metadata: "opendut/observer_messaging_broker.proto",
}

func observerMessagingBrokerWaitHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*ObserverMessagingBrokerServer).WaitForPeersOnline(stream)
}
