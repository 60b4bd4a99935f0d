package actions

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/edge/netstack"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// Options groups the Peer Action Library's deployment-wide defaults needed to derive a
// PeerConfiguration, distinct from anything carried in a PeerDescriptor or ClusterAssignment.
type Options struct {
	// BridgeNameDefault names the bridge a peer joins its cluster interfaces to when its own
	// PeerNetworkDescriptor does not specify one.
	BridgeNameDefault model.NetworkInterfaceName
}

// DeriveConfiguration computes the full (OldPeerConfiguration, PeerConfiguration) pair one
// peer receives for its membership in assignment: one EthernetBridge, a
// DeviceInterface/JoinedInterface pair per device the peer contributes to the cluster (plus a
// CanLocalRoute for CAN and vCAN interfaces, and a CanVirtualDevice for vCAN interfaces), one
// Executor per the peer's own executor descriptors, and a GreInterface/JoinedInterface/RemotePeerConnectionCheck
// triple per other cluster member.
//
// Interface names for GRE tunnels are computed via netstack.GreInterfaceName rather than
// invented here, so the Edge Network Stack's own check of "is this tunnel already up" resolves
// to the same name this derivation assumed it would.
func DeriveConfiguration(peer model.PeerDescriptor, assignment model.ClusterAssignment, opts Options) (model.OldPeerConfiguration, model.PeerConfiguration) {
	old := model.OldPeerConfiguration{ClusterAssignment: &assignment}

	bridgeName := opts.BridgeNameDefault
	if peer.Network.BridgeName != nil {
		bridgeName = *peer.Network.BridgeName
	}

	bridgeId := model.NewParameterId("bridge")
	var params []model.Parameter
	params = append(params, model.Parameter{
		Id:     bridgeId,
		Target: model.TargetPresent,
		Value:  model.EthernetBridge(model.EthernetBridgeValue{Name: bridgeName}),
	})

	ifaceById := make(map[ids.NetworkInterfaceId]model.NetworkInterfaceDescriptor, len(peer.Network.Interfaces))
	for _, iface := range peer.Network.Interfaces {
		ifaceById[iface.Id] = iface
	}

	for _, device := range peer.Topology.Devices {
		iface, ok := ifaceById[device.Interface]
		if !ok {
			// Unreachable given PeerDescriptor.Validate: every device's Interface must name an
			// interface the same descriptor declares.
			continue
		}
		params = append(params, deviceParameters(bridgeId, bridgeName, iface)...)
	}

	for _, executor := range peer.Executors {
		params = append(params, model.Parameter{
			Id:     model.NewParameterId(fmt.Sprintf("executor-%s", executor.Id)),
			Target: model.TargetPresent,
			Value:  model.Executor(model.ExecutorValue{Descriptor: executor}),
		})
	}

	self, isMember := assignment.Assignments[peer.Id]
	if isMember {
		for memberId, member := range assignment.Assignments {
			if memberId == peer.Id {
				continue
			}
			params = append(params, peerLinkParameters(bridgeId, bridgeName, self, memberId, member)...)
		}
	}

	return old, model.PeerConfiguration{Parameters: params}
}

// deviceParameters derives the DeviceInterface/JoinedInterface pair for one of the peer's own
// devices, plus a CanLocalRoute if its interface is CAN or vCAN, and a CanVirtualDevice if it
// is vCAN.
func deviceParameters(bridgeId model.ParameterId, bridgeName model.NetworkInterfaceName, iface model.NetworkInterfaceDescriptor) []model.Parameter {
	ifaceId := model.NewParameterId(fmt.Sprintf("device-interface-%s", iface.Id))
	joinId := model.NewParameterId(fmt.Sprintf("joined-device-%s", iface.Id))

	params := []model.Parameter{
		{
			Id:     ifaceId,
			Target: model.TargetPresent,
			Value:  model.DeviceInterface(model.DeviceInterfaceValue{Name: iface.Name}),
		},
		{
			Id:           joinId,
			Dependencies: []model.ParameterId{bridgeId, ifaceId},
			Target:       model.TargetPresent,
			Value:        model.JoinedInterface(model.JoinedInterfaceValue{Interface: iface.Name, Bridge: bridgeName}),
		},
	}

	switch iface.Configuration.Kind {
	case model.InterfaceKindVCan:
		vcanId := model.NewParameterId(fmt.Sprintf("vcan-%s", iface.Id))
		params = append(params, model.Parameter{
			Id:     vcanId,
			Target: model.TargetPresent,
			Value:  model.CanVirtualDevice(model.CanVirtualDeviceValue{Name: iface.Name}),
		})
		params = append(params, canRouteParameter(bridgeId, bridgeName, iface, []model.ParameterId{bridgeId, ifaceId, vcanId}))
	case model.InterfaceKindCan:
		params = append(params, canRouteParameter(bridgeId, bridgeName, iface, []model.ParameterId{bridgeId, ifaceId}))
	}

	return params
}

func canRouteParameter(_ model.ParameterId, bridgeName model.NetworkInterfaceName, iface model.NetworkInterfaceDescriptor, deps []model.ParameterId) model.Parameter {
	fd := iface.Configuration.Can != nil && iface.Configuration.Can.FD
	return model.Parameter{
		Id:           model.NewParameterId(fmt.Sprintf("can-route-%s", iface.Id)),
		Dependencies: deps,
		Target:       model.TargetPresent,
		Value:        model.CanLocalRoute(model.CanLocalRouteValue{Can: iface.Name, Bridge: bridgeName, CanFD: fd}),
	}
}

// peerLinkParameters derives the GreInterface/JoinedInterface/RemotePeerConnectionCheck triple
// connecting self to one other cluster member over the VPN overlay.
func peerLinkParameters(bridgeId model.ParameterId, bridgeName model.NetworkInterfaceName, self model.PeerClusterAssignment, memberId ids.PeerId, member model.PeerClusterAssignment) []model.Parameter {
	greId := model.NewParameterId(fmt.Sprintf("gre-%s", memberId))
	greName := netstack.GreInterfaceName(self.VpnAddress, member.VpnAddress)
	joinId := model.NewParameterId(fmt.Sprintf("joined-gre-%s", memberId))

	return []model.Parameter{
		{
			Id:           greId,
			Dependencies: []model.ParameterId{bridgeId},
			Target:       model.TargetPresent,
			Value: model.GreInterface(model.GreInterfaceValue{
				LocalIP:  self.VpnAddress,
				RemoteIP: member.VpnAddress,
			}),
		},
		{
			Id:           joinId,
			Dependencies: []model.ParameterId{bridgeId, greId},
			Target:       model.TargetPresent,
			Value:        model.JoinedInterface(model.JoinedInterfaceValue{Interface: greName, Bridge: bridgeName}),
		},
		{
			Id:           model.NewParameterId(fmt.Sprintf("check-%s", memberId)),
			Dependencies: []model.ParameterId{joinId},
			Target:       model.TargetPresent,
			Value: model.RemotePeerConnectionCheck(model.RemotePeerConnectionCheckValue{
				PeerId:   memberId,
				RemoteIP: member.VpnAddress,
			}),
		},
	}
}

// AbsentConfiguration retargets every parameter of cfg to Absent, keeping its ids,
// dependencies and values unchanged. Used on cluster teardown so a former member receives an
// explicit teardown frame instead of simply going quiet.
func AbsentConfiguration(cfg model.PeerConfiguration) model.PeerConfiguration {
	out := make([]model.Parameter, len(cfg.Parameters))
	for i, p := range cfg.Parameters {
		out[i] = model.Parameter{Id: p.Id, Dependencies: p.Dependencies, Target: model.TargetAbsent, Value: p.Value}
	}
	return model.PeerConfiguration{Parameters: out}
}

// ConfigurationFor re-reads peerId's current PeerDescriptor and derives its (old, new)
// PeerConfiguration pair for assignment. Used both right after a cluster deploys and
// whenever an already-assigned peer reconnects, so the agent is always handed a freshly
// derived configuration rather than a cached one.
func (a *Actions) ConfigurationFor(ctx context.Context, peerId ids.PeerId, assignment model.ClusterAssignment, opts Options) (model.OldPeerConfiguration, model.PeerConfiguration, error) {
	peer, ok, err := a.GetPeerDescriptor(ctx, peerId)
	if err != nil {
		return model.OldPeerConfiguration{}, model.PeerConfiguration{}, err
	}
	if !ok {
		return model.OldPeerConfiguration{}, model.PeerConfiguration{}, errors.Errorf("configuration for peer %s: not found", peerId)
	}
	old, cfg := DeriveConfiguration(peer, assignment, opts)
	return old, cfg, nil
}
