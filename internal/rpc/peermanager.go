package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/pkg/pki"
)

// CarlEndpoint names the information a freshly generated PeerSetup embeds so a brand-new ECA
// knows how to reach this CCP and trust its TLS certificate.
type CarlEndpoint struct {
	Host             string
	Port             int
	CaCertificatePEM []byte
}

// PeerManagerServer implements the PeerManager RPC surface: store_peer, delete_peer,
// list_peers, get_peer_descriptor, generate_peer_setup, list_peer_states.
type PeerManagerServer struct {
	actions  *actions.Actions
	endpoint CarlEndpoint

	// issuer signs one client certificate per generated peer setup; nil when ccpd runs
	// without access to the CA key, in which case setups carry the trust root only.
	issuer *pki.Authority
}

func NewPeerManagerServer(a *actions.Actions, endpoint CarlEndpoint, issuer *pki.Authority) *PeerManagerServer {
	return &PeerManagerServer{actions: a, endpoint: endpoint, issuer: issuer}
}

func (s *PeerManagerServer) StorePeer(ctx context.Context, req *StorePeerRequest) (*StorePeerResponse, error) {
	if err := s.actions.StorePeer(ctx, req.Peer); err != nil {
		return nil, err
	}
	return &StorePeerResponse{}, nil
}

// DeletePeer maps each DeletePeerError variant onto its own status code so CLI callers can
// distinguish "still deployed" from "no such peer" without parsing messages.
func (s *PeerManagerServer) DeletePeer(ctx context.Context, req *DeletePeerRequest) (*DeletePeerResponse, error) {
	if err := s.actions.DeletePeer(ctx, req.Id); err != nil {
		var deleteErr *actions.DeletePeerError
		if errors.As(err, &deleteErr) {
			switch deleteErr.Kind {
			case actions.ErrClusterDeploymentExists:
				return nil, status.Error(codes.FailedPrecondition, deleteErr.Error())
			case actions.ErrPeerNotFound:
				return nil, status.Error(codes.NotFound, deleteErr.Error())
			}
		}
		return nil, err
	}
	return &DeletePeerResponse{}, nil
}

func (s *PeerManagerServer) ListPeerStates(ctx context.Context, _ *ListPeerStatesRequest) (*ListPeerStatesResponse, error) {
	states, err := s.actions.ListPeerStates(ctx)
	if err != nil {
		return nil, err
	}
	return &ListPeerStatesResponse{States: states}, nil
}

func (s *PeerManagerServer) ListPeers(ctx context.Context, _ *ListPeersRequest) (*ListPeersResponse, error) {
	peers, err := s.actions.ListPeers(ctx)
	if err != nil {
		return nil, err
	}
	return &ListPeersResponse{Peers: peers}, nil
}

func (s *PeerManagerServer) GetPeerDescriptor(ctx context.Context, req *GetPeerDescriptorRequest) (*GetPeerDescriptorResponse, error) {
	peer, ok, err := s.actions.GetPeerDescriptor(ctx, req.Id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "peer %s not found", req.Id)
	}
	return &GetPeerDescriptorResponse{Peer: peer}, nil
}

// GeneratePeerSetup mints the bootstrap blob a new ECA reads from its bootstrap environment
// variable: CCP address, CA certificate, and, when OIDC is enabled, the confidential-client
// credential already registered for the peer.
func (s *PeerManagerServer) GeneratePeerSetup(ctx context.Context, req *GeneratePeerSetupRequest) (*GeneratePeerSetupResponse, error) {
	if _, ok, err := s.actions.GetPeerDescriptor(ctx, req.Id); err != nil {
		return nil, err
	} else if !ok {
		return nil, status.Errorf(codes.NotFound, "peer %s not found", req.Id)
	}

	setup := PeerSetup{
		PeerId:           req.Id,
		CarlHost:         s.endpoint.Host,
		CarlPort:         s.endpoint.Port,
		CaCertificatePEM: s.endpoint.CaCertificatePEM,
	}
	if s.issuer != nil {
		kp, err := s.issuer.IssueClientCertificate(req.Id.String())
		if err != nil {
			return nil, status.Errorf(codes.Internal, "issuing client certificate for peer %s: %v", req.Id, err)
		}
		setup.CertificatePEM = kp.CertPEM
		setup.PrivateKeyPEM = kp.KeyPEM
	}
	if reg, ok := s.actions.OidcRegistrations.Get(req.Id); ok {
		setup.AuthClientId = reg.ClientID
		setup.AuthClientSecret = reg.ClientSecret
	}
	return &GeneratePeerSetupResponse{Setup: setup}, nil
}

var peerManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: PeerManagerService,
	HandlerType: (*PeerManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StorePeer", Handler: peerManagerStorePeerHandler},
		{MethodName: "DeletePeer", Handler: peerManagerDeletePeerHandler},
		{MethodName: "ListPeerStates", Handler: peerManagerListPeerStatesHandler},
		{MethodName: "ListPeers", Handler: peerManagerListPeersHandler},
		{MethodName: "GetPeerDescriptor", Handler: peerManagerGetPeerDescriptorHandler},
		{MethodName: "GeneratePeerSetup", Handler: peerManagerGeneratePeerSetupHandler},
	},
	Metadata: "opendut/peer_manager.proto",
}

func peerManagerListPeersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListPeersRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*PeerManagerServer).ListPeers(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PeerManagerService + "/ListPeers"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*PeerManagerServer).ListPeers(ctx, req.(*ListPeersRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func peerManagerGetPeerDescriptorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetPeerDescriptorRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*PeerManagerServer).GetPeerDescriptor(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PeerManagerService + "/GetPeerDescriptor"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*PeerManagerServer).GetPeerDescriptor(ctx, req.(*GetPeerDescriptorRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func peerManagerGeneratePeerSetupHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GeneratePeerSetupRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*PeerManagerServer).GeneratePeerSetup(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PeerManagerService + "/GeneratePeerSetup"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*PeerManagerServer).GeneratePeerSetup(ctx, req.(*GeneratePeerSetupRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func peerManagerStorePeerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StorePeerRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*PeerManagerServer).StorePeer(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PeerManagerService + "/StorePeer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*PeerManagerServer).StorePeer(ctx, req.(*StorePeerRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func peerManagerDeletePeerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DeletePeerRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*PeerManagerServer).DeletePeer(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PeerManagerService + "/DeletePeer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*PeerManagerServer).DeletePeer(ctx, req.(*DeletePeerRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func peerManagerListPeerStatesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListPeerStatesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*PeerManagerServer).ListPeerStates(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PeerManagerService + "/ListPeerStates"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*PeerManagerServer).ListPeerStates(ctx, req.(*ListPeerStatesRequest))
	}
	return interceptor(ctx, req, info, handler)
}
