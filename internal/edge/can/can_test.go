package can

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// fakeRunner replays canned cangw output instead of invoking the real binary.
type fakeRunner struct {
	listOutput string
	setSuccess bool
	setStderr  string
	setCalls   [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, bool, error) {
	if len(args) > 0 && args[0] == "-L" {
		return r.listOutput, "", true, nil
	}
	r.setCalls = append(r.setCalls, args)
	return "", r.setStderr, r.setSuccess, nil
}

func TestRouteExists_MatchesExactEntry(t *testing.T) {
	runner := &fakeRunner{listOutput: "cangw -A -s can0 -d br-cluster -X -e -l 2 # some comment\n"}
	m := NewManager(runner)

	present, err := m.RouteExists(context.Background(), "can0", "br-cluster", true)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = m.RouteExists(context.Background(), "can0", "br-cluster", false)
	require.NoError(t, err)
	assert.False(t, present, "entry has CAN FD flag set, non-FD query must not match")
}

func TestRouteExists_NoEntries(t *testing.T) {
	runner := &fakeRunner{listOutput: ""}
	m := NewManager(runner)

	present, err := m.RouteExists(context.Background(), "can0", "br-cluster", false)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestSetRoute_CreateSendsExpectedFlags(t *testing.T) {
	runner := &fakeRunner{setSuccess: true}
	m := NewManager(runner)

	require.NoError(t, m.SetRoute(context.Background(), "can0", "br-cluster", true, opCreate))
	require.Len(t, runner.setCalls, 1)
	assert.Equal(t, []string{"-A", "-s", "can0", "-d", "br-cluster", "-e", "-l", "2", "-X"}, runner.setCalls[0])
}

func TestSetRoute_FailureReturnsRouteError(t *testing.T) {
	runner := &fakeRunner{setSuccess: false, setStderr: "no such device"}
	m := NewManager(runner)

	err := m.SetRoute(context.Background(), "can0", "br-cluster", false, opCreate)
	require.Error(t, err)
	var routeErr *RouteError
	require.ErrorAs(t, err, &routeErr)
	assert.Equal(t, "no such device", routeErr.Cause)
}

func TestTaskFactory_OnlyClaimsCanLocalRoute(t *testing.T) {
	factory := TaskFactory(NewManager(&fakeRunner{}))

	tasks, err := factory(model.CanLocalRoute(model.CanLocalRouteValue{Can: "can0", Bridge: "br0"}))
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	tasks, err = factory(model.CanVirtualDevice(model.CanVirtualDeviceValue{Name: "vcan0"}))
	require.NoError(t, err)
	assert.Nil(t, tasks)
}
