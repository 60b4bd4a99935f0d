package resources

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/internal/store"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	peers, err := store.NewPeerStore(nil)
	require.NoError(t, err)
	return NewManager(peers, store.NewClusterConfigurationStore(nil), store.NewClusterDeploymentStore(nil))
}

// TestResourcesMut_SerializesMutations covers the Resource Manager's core contract: no two
// mutating closures ever overlap, so check-then-act sequences inside one closure are atomic
// with respect to every other mutation.
func TestResourcesMut_SerializesMutations(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	deployment := model.ClusterDeployment{Id: ids.NewClusterId()}

	const writers = 50
	var succeeded int
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_ = m.ResourcesMut(func(r *Manager) error {
				_, exists, err := r.ClusterDeployments.Get(ctx, deployment.Id)
				if err != nil {
					return err
				}
				if exists {
					return nil
				}
				if err := r.ClusterDeployments.Insert(ctx, deployment.Id, deployment); err != nil {
					return err
				}
				succeeded++
				return nil
			})
		}()
	}
	wg.Wait()

	// Exactly one closure observed the deployment as absent and inserted it; every other saw
	// the first one's write.
	assert.Equal(t, 1, succeeded)
}

func TestResources_ErrorPropagates(t *testing.T) {
	m := newTestManager(t)
	want := assertErr("boom")

	err := m.Resources(func(*Manager) error { return want })
	assert.ErrorIs(t, err, want)

	err = m.ResourcesMut(func(*Manager) error { return want })
	assert.ErrorIs(t, err, want)
}

// TestLoad_MemoryOnlyStoresIsANoop ensures a Manager over backendless stores (the
// configuration every test in this repository uses) starts cleanly.
func TestLoad_MemoryOnlyStoresIsANoop(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Load(context.Background()))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
