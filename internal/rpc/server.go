package rpc

import (
	"google.golang.org/grpc"

	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

// NewServer builds a *grpc.Server forced onto wire.JSONCodec and registers every RPC Surface
// service. auth.Validate is called for every method not listed in auth.SkipMethods, so it
// must be set unless every method is skipped.
func NewServer(auth AuthConfig, opts ...grpc.ServerOption) *grpc.Server {
	allOpts := append([]grpc.ServerOption{
		grpc.ForceServerCodec(wire.JSONCodec{}),
		grpc.ChainUnaryInterceptor(UnaryAuthInterceptor(auth)),
		grpc.ChainStreamInterceptor(StreamAuthInterceptor(auth)),
	}, opts...)
	server := grpc.NewServer(allOpts...)
	return server
}

// RegisterPeerManager registers the PeerManager service on server.
func RegisterPeerManager(server *grpc.Server, impl *PeerManagerServer) {
	server.RegisterService(&peerManagerServiceDesc, impl)
}

// RegisterClusterManager registers the ClusterManager service on server.
func RegisterClusterManager(server *grpc.Server, impl *ClusterManagerServer) {
	server.RegisterService(&clusterManagerServiceDesc, impl)
}

// RegisterPeerMessagingBroker registers the PeerMessagingBroker service on server.
func RegisterPeerMessagingBroker(server *grpc.Server, impl *PeerMessagingBrokerServer) {
	server.RegisterService(&peerMessagingBrokerServiceDesc, impl)
}

// RegisterObserverMessagingBroker registers the ObserverMessagingBroker service on server.
func RegisterObserverMessagingBroker(server *grpc.Server, impl *ObserverMessagingBrokerServer) {
	server.RegisterService(&observerMessagingBrokerServiceDesc, impl)
}
