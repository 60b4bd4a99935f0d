package store

import (
	"context"

	"github.com/eclipse-opendut/opendut-go/internal/store/sqlstore"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// ClusterConfigurationStore is the typed resource store for ClusterConfiguration.
type ClusterConfigurationStore struct {
	backend *sqlstore.ClusterConfigurationBackend
	mem     *base[ids.ClusterId, model.ClusterConfiguration]
}

func NewClusterConfigurationStore(backend *sqlstore.ClusterConfigurationBackend) *ClusterConfigurationStore {
	return &ClusterConfigurationStore{backend: backend, mem: newBase[ids.ClusterId, model.ClusterConfiguration]()}
}

func (s *ClusterConfigurationStore) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	all, err := s.backend.List(ctx)
	if err != nil {
		return wrapErr(OpList, "ClusterConfiguration", "", err)
	}
	for _, c := range all {
		s.mem.put(c.Id, c)
	}
	return nil
}

func (s *ClusterConfigurationStore) Insert(ctx context.Context, id ids.ClusterId, value model.ClusterConfiguration) error {
	if err := value.Validate(); err != nil {
		return wrapErr(OpInsert, "ClusterConfiguration", id.String(), err)
	}
	if s.backend != nil {
		if err := s.backend.Insert(ctx, id, value); err != nil {
			return wrapErr(OpInsert, "ClusterConfiguration", id.String(), err)
		}
	}
	s.mem.put(id, value)
	return nil
}

func (s *ClusterConfigurationStore) Remove(ctx context.Context, id ids.ClusterId) (model.ClusterConfiguration, bool, error) {
	prior, existed := s.mem.get(id)
	if s.backend != nil {
		if err := s.backend.Remove(ctx, id); err != nil {
			return model.ClusterConfiguration{}, false, wrapErr(OpRemove, "ClusterConfiguration", id.String(), err)
		}
	}
	s.mem.delete(id)
	return prior, existed, nil
}

func (s *ClusterConfigurationStore) Get(ctx context.Context, id ids.ClusterId) (model.ClusterConfiguration, bool, error) {
	if v, ok := s.mem.get(id); ok {
		return v, true, nil
	}
	if s.backend == nil {
		return model.ClusterConfiguration{}, false, nil
	}
	v, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return model.ClusterConfiguration{}, false, wrapErr(OpGet, "ClusterConfiguration", id.String(), err)
	}
	return v, ok, nil
}

func (s *ClusterConfigurationStore) List(ctx context.Context) ([]model.ClusterConfiguration, error) {
	return s.mem.list(), nil
}

func (s *ClusterConfigurationStore) Subscribe() (<-chan SubscriptionEvent[ids.ClusterId, model.ClusterConfiguration], func()) {
	return s.mem.subscribe()
}

var _ Persistable[ids.ClusterId, model.ClusterConfiguration] = (*ClusterConfigurationStore)(nil)

// ClusterDeploymentStore is the typed resource store for ClusterDeployment.
type ClusterDeploymentStore struct {
	backend *sqlstore.ClusterDeploymentBackend
	mem     *base[ids.ClusterId, model.ClusterDeployment]
}

func NewClusterDeploymentStore(backend *sqlstore.ClusterDeploymentBackend) *ClusterDeploymentStore {
	return &ClusterDeploymentStore{backend: backend, mem: newBase[ids.ClusterId, model.ClusterDeployment]()}
}

func (s *ClusterDeploymentStore) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	all, err := s.backend.List(ctx)
	if err != nil {
		return wrapErr(OpList, "ClusterDeployment", "", err)
	}
	for _, d := range all {
		s.mem.put(d.Id, d)
	}
	return nil
}

func (s *ClusterDeploymentStore) Insert(ctx context.Context, id ids.ClusterId, value model.ClusterDeployment) error {
	if s.backend != nil {
		if err := s.backend.Insert(ctx, id, value); err != nil {
			return wrapErr(OpInsert, "ClusterDeployment", id.String(), err)
		}
	}
	s.mem.put(id, value)
	return nil
}

func (s *ClusterDeploymentStore) Remove(ctx context.Context, id ids.ClusterId) (model.ClusterDeployment, bool, error) {
	prior, existed := s.mem.get(id)
	if s.backend != nil {
		if err := s.backend.Remove(ctx, id); err != nil {
			return model.ClusterDeployment{}, false, wrapErr(OpRemove, "ClusterDeployment", id.String(), err)
		}
	}
	s.mem.delete(id)
	return prior, existed, nil
}

func (s *ClusterDeploymentStore) Get(ctx context.Context, id ids.ClusterId) (model.ClusterDeployment, bool, error) {
	if v, ok := s.mem.get(id); ok {
		return v, true, nil
	}
	if s.backend == nil {
		return model.ClusterDeployment{}, false, nil
	}
	v, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return model.ClusterDeployment{}, false, wrapErr(OpGet, "ClusterDeployment", id.String(), err)
	}
	return v, ok, nil
}

func (s *ClusterDeploymentStore) List(ctx context.Context) ([]model.ClusterDeployment, error) {
	return s.mem.list(), nil
}

func (s *ClusterDeploymentStore) Subscribe() (<-chan SubscriptionEvent[ids.ClusterId, model.ClusterDeployment], func()) {
	return s.mem.subscribe()
}

var _ Persistable[ids.ClusterId, model.ClusterDeployment] = (*ClusterDeploymentStore)(nil)
