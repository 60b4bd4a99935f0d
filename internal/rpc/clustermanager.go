package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/eclipse-opendut/opendut-go/internal/cluster"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// ClusterManagerServer implements store_cluster_configuration, store_cluster_deployment and
// delete_cluster_deployment.
type ClusterManagerServer struct {
	resources *resources.Manager
	cluster   *cluster.Manager
}

func NewClusterManagerServer(r *resources.Manager, c *cluster.Manager) *ClusterManagerServer {
	return &ClusterManagerServer{resources: r, cluster: c}
}

func (s *ClusterManagerServer) StoreClusterConfiguration(ctx context.Context, req *StoreClusterConfigurationRequest) (*StoreClusterConfigurationResponse, error) {
	if err := req.Configuration.Validate(); err != nil {
		return nil, err
	}
	err := s.resources.ResourcesMut(func(r *resources.Manager) error {
		return r.ClusterConfigurations.Insert(ctx, req.Configuration.Id, req.Configuration)
	})
	if err != nil {
		return nil, err
	}
	return &StoreClusterConfigurationResponse{}, nil
}

func (s *ClusterManagerServer) DeleteClusterConfiguration(ctx context.Context, req *DeleteClusterConfigurationRequest) (*DeleteClusterConfigurationResponse, error) {
	err := s.resources.ResourcesMut(func(r *resources.Manager) error {
		_, _, err := r.ClusterConfigurations.Remove(ctx, req.Id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DeleteClusterConfigurationResponse{}, nil
}

func (s *ClusterManagerServer) ListClusterConfigurations(ctx context.Context, _ *ListClusterConfigurationsRequest) (*ListClusterConfigurationsResponse, error) {
	var configs []model.ClusterConfiguration
	err := s.resources.Resources(func(r *resources.Manager) error {
		var err error
		configs, err = r.ClusterConfigurations.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ListClusterConfigurationsResponse{Configurations: configs}, nil
}

func (s *ClusterManagerServer) ListClusterDeployments(ctx context.Context, _ *ListClusterDeploymentsRequest) (*ListClusterDeploymentsResponse, error) {
	var deployments []model.ClusterDeployment
	err := s.resources.Resources(func(r *resources.Manager) error {
		var err error
		deployments, err = r.ClusterDeployments.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ListClusterDeploymentsResponse{Deployments: deployments}, nil
}

func (s *ClusterManagerServer) StoreClusterDeployment(ctx context.Context, req *StoreClusterDeploymentRequest) (*StoreClusterDeploymentResponse, error) {
	id, err := s.cluster.StoreClusterDeployment(ctx, req.Deployment)
	if err != nil {
		return nil, err
	}
	return &StoreClusterDeploymentResponse{ClusterId: id}, nil
}

func (s *ClusterManagerServer) DeleteClusterDeployment(ctx context.Context, req *DeleteClusterDeploymentRequest) (*DeleteClusterDeploymentResponse, error) {
	if err := s.cluster.DeleteClusterDeployment(ctx, req.Id); err != nil {
		return nil, err
	}
	return &DeleteClusterDeploymentResponse{}, nil
}

var clusterManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: ClusterManagerService,
	HandlerType: (*ClusterManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StoreClusterConfiguration", Handler: clusterManagerStoreConfigurationHandler},
		{MethodName: "DeleteClusterConfiguration", Handler: clusterManagerDeleteConfigurationHandler},
		{MethodName: "ListClusterConfigurations", Handler: clusterManagerListConfigurationsHandler},
		{MethodName: "StoreClusterDeployment", Handler: clusterManagerStoreDeploymentHandler},
		{MethodName: "DeleteClusterDeployment", Handler: clusterManagerDeleteDeploymentHandler},
		{MethodName: "ListClusterDeployments", Handler: clusterManagerListDeploymentsHandler},
	},
	Metadata: "opendut/cluster_manager.proto",
}

func clusterManagerDeleteConfigurationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DeleteClusterConfigurationRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ClusterManagerServer).DeleteClusterConfiguration(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClusterManagerService + "/DeleteClusterConfiguration"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*ClusterManagerServer).DeleteClusterConfiguration(ctx, req.(*DeleteClusterConfigurationRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func clusterManagerListConfigurationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListClusterConfigurationsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ClusterManagerServer).ListClusterConfigurations(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClusterManagerService + "/ListClusterConfigurations"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*ClusterManagerServer).ListClusterConfigurations(ctx, req.(*ListClusterConfigurationsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func clusterManagerListDeploymentsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListClusterDeploymentsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ClusterManagerServer).ListClusterDeployments(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClusterManagerService + "/ListClusterDeployments"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*ClusterManagerServer).ListClusterDeployments(ctx, req.(*ListClusterDeploymentsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func clusterManagerStoreConfigurationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StoreClusterConfigurationRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ClusterManagerServer).StoreClusterConfiguration(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClusterManagerService + "/StoreClusterConfiguration"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*ClusterManagerServer).StoreClusterConfiguration(ctx, req.(*StoreClusterConfigurationRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func clusterManagerStoreDeploymentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StoreClusterDeploymentRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ClusterManagerServer).StoreClusterDeployment(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClusterManagerService + "/StoreClusterDeployment"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*ClusterManagerServer).StoreClusterDeployment(ctx, req.(*StoreClusterDeploymentRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func clusterManagerDeleteDeploymentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(DeleteClusterDeploymentRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ClusterManagerServer).DeleteClusterDeployment(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClusterManagerService + "/DeleteClusterDeployment"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*ClusterManagerServer).DeleteClusterDeployment(ctx, req.(*DeleteClusterDeploymentRequest))
	}
	return interceptor(ctx, req, info, handler)
}
