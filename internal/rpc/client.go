package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

// DialOptions supplies the fixed codec every client needs; callers add transport credentials
// and bearer-token-attaching interceptors on top.
func DialOptions(extra ...grpc.DialOption) []grpc.DialOption {
	return append([]grpc.DialOption{grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.JSONCodec{}))}, extra...)
}

// PeerMessagingClient opens the bidirectional Open stream the ECA holds for its lifetime.
type PeerMessagingClient struct {
	conn *grpc.ClientConn
}

func NewPeerMessagingClient(conn *grpc.ClientConn) *PeerMessagingClient {
	return &PeerMessagingClient{conn: conn}
}

// Open establishes the long-lived bidi stream; callers SendMsg(*wire.UpstreamMessage) and
// RecvMsg(*wire.DownstreamMessage) on the returned ClientStream.
func (c *PeerMessagingClient) Open(ctx context.Context) (grpc.ClientStream, error) {
	desc := &grpc.StreamDesc{StreamName: "Open", ServerStreams: true, ClientStreams: true}
	return c.conn.NewStream(ctx, desc, "/"+PeerMessagingBrokerService+"/Open")
}

// ObserverClient calls the server-streaming WaitForPeersOnline RPC.
type ObserverClient struct {
	conn *grpc.ClientConn
}

func NewObserverClient(conn *grpc.ClientConn) *ObserverClient {
	return &ObserverClient{conn: conn}
}

// WaitForPeersOnline blocks, draining Pending updates, until the stream delivers its final
// Success update (or fails). onPending may be nil.
func (c *ObserverClient) WaitForPeersOnline(ctx context.Context, req WaitForPeersOnlineRequest, onPending func(WaitForPeersOnlineUpdate)) (*WaitForPeersOnlineUpdate, error) {
	desc := &grpc.StreamDesc{StreamName: "WaitForPeersOnline", ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, "/"+ObserverMessagingBrokerService+"/WaitForPeersOnline")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	for {
		var update WaitForPeersOnlineUpdate
		if err := stream.RecvMsg(&update); err != nil {
			return nil, err
		}
		if update.Kind == WaitForPeersOnlineSuccess {
			return &update, nil
		}
		if onPending != nil {
			onPending(update)
		}
	}
}

// PeerManagerClient calls the PeerManager unary RPCs.
type PeerManagerClient struct {
	conn *grpc.ClientConn
}

func NewPeerManagerClient(conn *grpc.ClientConn) *PeerManagerClient {
	return &PeerManagerClient{conn: conn}
}

func (c *PeerManagerClient) StorePeer(ctx context.Context, req StorePeerRequest) (*StorePeerResponse, error) {
	var resp StorePeerResponse
	if err := c.conn.Invoke(ctx, "/"+PeerManagerService+"/StorePeer", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PeerManagerClient) DeletePeer(ctx context.Context, req DeletePeerRequest) (*DeletePeerResponse, error) {
	var resp DeletePeerResponse
	if err := c.conn.Invoke(ctx, "/"+PeerManagerService+"/DeletePeer", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PeerManagerClient) ListPeerStates(ctx context.Context, req ListPeerStatesRequest) (*ListPeerStatesResponse, error) {
	var resp ListPeerStatesResponse
	if err := c.conn.Invoke(ctx, "/"+PeerManagerService+"/ListPeerStates", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PeerManagerClient) ListPeers(ctx context.Context, req ListPeersRequest) (*ListPeersResponse, error) {
	var resp ListPeersResponse
	if err := c.conn.Invoke(ctx, "/"+PeerManagerService+"/ListPeers", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PeerManagerClient) GetPeerDescriptor(ctx context.Context, req GetPeerDescriptorRequest) (*GetPeerDescriptorResponse, error) {
	var resp GetPeerDescriptorResponse
	if err := c.conn.Invoke(ctx, "/"+PeerManagerService+"/GetPeerDescriptor", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PeerManagerClient) GeneratePeerSetup(ctx context.Context, req GeneratePeerSetupRequest) (*GeneratePeerSetupResponse, error) {
	var resp GeneratePeerSetupResponse
	if err := c.conn.Invoke(ctx, "/"+PeerManagerService+"/GeneratePeerSetup", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClusterManagerClient calls the ClusterManager unary RPCs.
type ClusterManagerClient struct {
	conn *grpc.ClientConn
}

func NewClusterManagerClient(conn *grpc.ClientConn) *ClusterManagerClient {
	return &ClusterManagerClient{conn: conn}
}

func (c *ClusterManagerClient) StoreClusterConfiguration(ctx context.Context, req StoreClusterConfigurationRequest) (*StoreClusterConfigurationResponse, error) {
	var resp StoreClusterConfigurationResponse
	if err := c.conn.Invoke(ctx, "/"+ClusterManagerService+"/StoreClusterConfiguration", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ClusterManagerClient) DeleteClusterConfiguration(ctx context.Context, req DeleteClusterConfigurationRequest) (*DeleteClusterConfigurationResponse, error) {
	var resp DeleteClusterConfigurationResponse
	if err := c.conn.Invoke(ctx, "/"+ClusterManagerService+"/DeleteClusterConfiguration", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ClusterManagerClient) ListClusterConfigurations(ctx context.Context, req ListClusterConfigurationsRequest) (*ListClusterConfigurationsResponse, error) {
	var resp ListClusterConfigurationsResponse
	if err := c.conn.Invoke(ctx, "/"+ClusterManagerService+"/ListClusterConfigurations", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ClusterManagerClient) ListClusterDeployments(ctx context.Context, req ListClusterDeploymentsRequest) (*ListClusterDeploymentsResponse, error) {
	var resp ListClusterDeploymentsResponse
	if err := c.conn.Invoke(ctx, "/"+ClusterManagerService+"/ListClusterDeployments", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ClusterManagerClient) StoreClusterDeployment(ctx context.Context, req StoreClusterDeploymentRequest) (*StoreClusterDeploymentResponse, error) {
	var resp StoreClusterDeploymentResponse
	if err := c.conn.Invoke(ctx, "/"+ClusterManagerService+"/StoreClusterDeployment", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ClusterManagerClient) DeleteClusterDeployment(ctx context.Context, req DeleteClusterDeploymentRequest) (*DeleteClusterDeploymentResponse, error) {
	var resp DeleteClusterDeploymentResponse
	if err := c.conn.Invoke(ctx, "/"+ClusterManagerService+"/DeleteClusterDeployment", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
