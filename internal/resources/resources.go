// Package resources is the Resource Manager: a single-writer/many-reader wrapper composing
// the concrete Persistence Layer stores behind two entry points, a read-only snapshot and an
// exclusive read-write transaction.
package resources

import (
	"context"
	"sync"

	"github.com/eclipse-opendut/opendut-go/internal/store"
)

// Manager owns every concrete resource store and serializes mutation against concurrent
// reads at the whole-resource-set granularity rather than per-table, so a mutating closure
// can touch several stores atomically with respect to every other caller.
type Manager struct {
	mu sync.RWMutex

	Peers                 *store.PeerStore
	ClusterConfigurations *store.ClusterConfigurationStore
	ClusterDeployments     *store.ClusterDeploymentStore
}

func NewManager(peers *store.PeerStore, clusterConfigurations *store.ClusterConfigurationStore, clusterDeployments *store.ClusterDeploymentStore) *Manager {
	return &Manager{
		Peers:                 peers,
		ClusterConfigurations: clusterConfigurations,
		ClusterDeployments:    clusterDeployments,
	}
}

// Load populates every store's in-memory overlay from its SQL backend. Call once at startup
// before serving requests.
func (m *Manager) Load(ctx context.Context) error {
	if err := m.Peers.Load(ctx); err != nil {
		return err
	}
	if err := m.ClusterConfigurations.Load(ctx); err != nil {
		return err
	}
	if err := m.ClusterDeployments.Load(ctx); err != nil {
		return err
	}
	return nil
}

// Resources runs f with a read lock held, guaranteeing f observes a consistent snapshot with
// respect to any concurrent ResourcesMut call (though not with respect to another concurrent
// Resources call, which is intentionally unserialized).
func (m *Manager) Resources(f func(r *Manager) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f(m)
}

// ResourcesMut runs f with the write lock held, serializing it against every other
// Resources/ResourcesMut call. f should be short: no network I/O beyond the owned stores.
func (m *Manager) ResourcesMut(f func(r *Manager) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m)
}
