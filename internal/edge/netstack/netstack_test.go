package netstack

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// fakeHandle is an in-memory netlink.Link table keyed by name, standing in for the kernel so
// these tests run without root or a live netlink socket.
type fakeHandle struct {
	links map[string]netlink.Link
}

func newFakeHandle() *fakeHandle { return &fakeHandle{links: map[string]netlink.Link{}} }

func (h *fakeHandle) LinkByName(name string) (netlink.Link, error) {
	if link, ok := h.links[name]; ok {
		return link, nil
	}
	return nil, netlink.LinkNotFoundError{}
}

func (h *fakeHandle) LinkAdd(link netlink.Link) error {
	attrs := link.Attrs()
	attrs.Index = len(h.links) + 1
	h.links[attrs.Name] = link
	return nil
}

func (h *fakeHandle) LinkDel(link netlink.Link) error {
	delete(h.links, link.Attrs().Name)
	return nil
}

func (h *fakeHandle) LinkSetUp(link netlink.Link) error {
	link.Attrs().Flags |= net.FlagUp
	return nil
}

func (h *fakeHandle) LinkAddAltName(link netlink.Link, altName string) error {
	attrs := link.Attrs()
	attrs.AltNames = append(attrs.AltNames, altName)
	return nil
}

func (h *fakeHandle) LinkSetMaster(link, master netlink.Link) error {
	link.Attrs().MasterIndex = master.Attrs().Index
	return nil
}

func (h *fakeHandle) LinkSetNoMaster(link netlink.Link) error {
	link.Attrs().MasterIndex = 0
	return nil
}

func TestEnsureBridge_CreateThenIdempotent(t *testing.T) {
	m := NewManager(newFakeHandle())
	name := model.NetworkInterfaceName("br-cluster")

	require.NoError(t, m.EnsureBridge(name, model.TargetPresent))
	present, err := m.CheckPresent(name)
	require.NoError(t, err)
	assert.True(t, present)

	require.NoError(t, m.EnsureBridge(name, model.TargetPresent))
	present, err = m.CheckPresent(name)
	require.NoError(t, err)
	assert.True(t, present)
}

func TestEnsureBridge_Remove(t *testing.T) {
	m := NewManager(newFakeHandle())
	name := model.NetworkInterfaceName("br-cluster")

	require.NoError(t, m.EnsureBridge(name, model.TargetPresent))
	require.NoError(t, m.EnsureBridge(name, model.TargetAbsent))
	present, err := m.CheckPresent(name)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, m.EnsureBridge(name, model.TargetAbsent))
}

func TestEnsureBridge_DoesNotAdoptForeignInterface(t *testing.T) {
	handle := newFakeHandle()
	attrs := netlink.NewLinkAttrs()
	attrs.Name = "br-cluster"
	handle.links["br-cluster"] = &netlink.Dummy{LinkAttrs: attrs}

	m := NewManager(handle)
	present, err := m.CheckPresent(model.NetworkInterfaceName("br-cluster"))
	require.NoError(t, err)
	assert.False(t, present, "a same-named interface opendut did not create is not reported present")
}

func TestGreInterfaceName_DeterministicAndShort(t *testing.T) {
	local := net.ParseIP("10.0.1.2")
	remote := net.ParseIP("10.0.1.3")

	name := GreInterfaceName(local, remote)
	assert.LessOrEqual(t, len(name), 15)
	assert.Equal(t, name, GreInterfaceName(local, remote))
	assert.NotEqual(t, name, GreInterfaceName(remote, local))
}

func TestEnsureGreTap_CreateAndRemove(t *testing.T) {
	m := NewManager(newFakeHandle())
	local := net.ParseIP("10.0.1.2")
	remote := net.ParseIP("10.0.1.3")

	name, err := m.EnsureGreTap(local, remote, model.TargetPresent)
	require.NoError(t, err)
	present, err := m.CheckPresent(name)
	require.NoError(t, err)
	assert.True(t, present)

	_, err = m.EnsureGreTap(local, remote, model.TargetAbsent)
	require.NoError(t, err)
	present, err = m.CheckPresent(name)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestJoin_EnslaveAndRelease(t *testing.T) {
	handle := newFakeHandle()
	m := NewManager(handle)

	bridgeName := model.NetworkInterfaceName("br-cluster")
	require.NoError(t, m.EnsureBridge(bridgeName, model.TargetPresent))

	ifaceAttrs := netlink.NewLinkAttrs()
	ifaceAttrs.Name = "eth1"
	handle.links["eth1"] = &netlink.Dummy{LinkAttrs: ifaceAttrs}
	ifaceName := model.NetworkInterfaceName("eth1")

	joined, err := m.IsJoined(ifaceName, bridgeName)
	require.NoError(t, err)
	assert.False(t, joined)

	require.NoError(t, m.Join(ifaceName, bridgeName, model.TargetPresent))
	joined, err = m.IsJoined(ifaceName, bridgeName)
	require.NoError(t, err)
	assert.True(t, joined)

	require.NoError(t, m.Join(ifaceName, bridgeName, model.TargetAbsent))
	joined, err = m.IsJoined(ifaceName, bridgeName)
	require.NoError(t, err)
	assert.False(t, joined)
}

func TestTaskFactory_DispatchesKnownKinds(t *testing.T) {
	manager := NewManager(newFakeHandle())
	factory := TaskFactory(manager)

	tasks, err := factory(model.EthernetBridge(model.EthernetBridgeValue{Name: "br0"}))
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	tasks, err = factory(model.DeviceInterface(model.DeviceInterfaceValue{Name: "eth0"}))
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "DeviceInterface is owned by the network stack factory")
}
