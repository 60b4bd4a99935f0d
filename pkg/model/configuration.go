package model

import (
	"fmt"
	"net"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// ParameterId identifies one Parameter within a PeerConfiguration.
type ParameterId struct{ Value string }

func NewParameterId(value string) ParameterId { return ParameterId{Value: value} }

func (p ParameterId) String() string { return p.Value }

// Target is the desired state a Parameter should be driven to.
type Target string

const (
	TargetPresent Target = "Present"
	TargetAbsent  Target = "Absent"
)

// ParameterValueKind discriminates ParameterValue.
type ParameterValueKind string

const (
	ValueEthernetBridge          ParameterValueKind = "EthernetBridge"
	ValueDeviceInterface         ParameterValueKind = "DeviceInterface"
	ValueGreInterface            ParameterValueKind = "GreInterface"
	ValueJoinedInterface         ParameterValueKind = "JoinedInterface"
	ValueExecutor                ParameterValueKind = "Executor"
	ValueRemotePeerConnectionCheck ParameterValueKind = "RemotePeerConnectionCheck"
	ValueCanLocalRoute            ParameterValueKind = "CanLocalRoute"
	ValueCanVirtualDevice          ParameterValueKind = "CanVirtualDevice"
)

type EthernetBridgeValue struct {
	Name NetworkInterfaceName
}

type DeviceInterfaceValue struct {
	Name NetworkInterfaceName
}

type GreInterfaceValue struct {
	LocalIP  net.IP
	RemoteIP net.IP
}

type JoinedInterfaceValue struct {
	Interface NetworkInterfaceName
	Bridge    NetworkInterfaceName
}

type ExecutorValue struct {
	Descriptor ExecutorDescriptor
}

type RemotePeerConnectionCheckValue struct {
	PeerId   ids.PeerId
	RemoteIP net.IP
}

type CanLocalRouteValue struct {
	Can    NetworkInterfaceName
	Bridge NetworkInterfaceName
	CanFD  bool
}

type CanVirtualDeviceValue struct {
	Name NetworkInterfaceName
}

// ParameterValue is the tagged union of every kind of thing a Parameter can describe. Exactly
// one of the pointer fields matching Kind is populated.
type ParameterValue struct {
	Kind ParameterValueKind

	EthernetBridge            *EthernetBridgeValue
	DeviceInterface            *DeviceInterfaceValue
	GreInterface               *GreInterfaceValue
	JoinedInterface             *JoinedInterfaceValue
	Executor                    *ExecutorValue
	RemotePeerConnectionCheck   *RemotePeerConnectionCheckValue
	CanLocalRoute               *CanLocalRouteValue
	CanVirtualDevice            *CanVirtualDeviceValue
}

func EthernetBridge(v EthernetBridgeValue) ParameterValue {
	return ParameterValue{Kind: ValueEthernetBridge, EthernetBridge: &v}
}
func DeviceInterface(v DeviceInterfaceValue) ParameterValue {
	return ParameterValue{Kind: ValueDeviceInterface, DeviceInterface: &v}
}
func GreInterface(v GreInterfaceValue) ParameterValue {
	return ParameterValue{Kind: ValueGreInterface, GreInterface: &v}
}
func JoinedInterface(v JoinedInterfaceValue) ParameterValue {
	return ParameterValue{Kind: ValueJoinedInterface, JoinedInterface: &v}
}
func Executor(v ExecutorValue) ParameterValue {
	return ParameterValue{Kind: ValueExecutor, Executor: &v}
}
func RemotePeerConnectionCheck(v RemotePeerConnectionCheckValue) ParameterValue {
	return ParameterValue{Kind: ValueRemotePeerConnectionCheck, RemotePeerConnectionCheck: &v}
}
func CanLocalRoute(v CanLocalRouteValue) ParameterValue {
	return ParameterValue{Kind: ValueCanLocalRoute, CanLocalRoute: &v}
}
func CanVirtualDevice(v CanVirtualDeviceValue) ParameterValue {
	return ParameterValue{Kind: ValueCanVirtualDevice, CanVirtualDevice: &v}
}

// Parameter is one atomic element of a PeerConfiguration. Dependencies form a DAG; a
// parameter is processed only after every dependency has been processed. The (Target, Value)
// pair is idempotent: applying it twice yields the same kernel state.
type Parameter struct {
	Id           ParameterId
	Dependencies []ParameterId
	Target       Target
	Value        ParameterValue
}

// PeerConfiguration is the derived, ordered set of parameters sent to one agent.
type PeerConfiguration struct {
	Parameters []Parameter
}

// OldPeerConfiguration is carried alongside PeerConfiguration for backward compatibility;
// the ECA uses it only to discover the current ClusterAssignment.
type OldPeerConfiguration struct {
	ClusterAssignment *ClusterAssignment
}

// ValidateDAG checks that dependencies reference only known parameters and contain no
// cycle.
func (c PeerConfiguration) ValidateDAG() error {
	known := make(map[ParameterId]struct{}, len(c.Parameters))
	for _, p := range c.Parameters {
		known[p.Id] = struct{}{}
	}
	state := make(map[ParameterId]int) // 0 unvisited, 1 visiting, 2 done
	var visit func(id ParameterId) error
	byId := make(map[ParameterId]Parameter, len(c.Parameters))
	for _, p := range c.Parameters {
		byId[p.Id] = p
	}
	visit = func(id ParameterId) error {
		switch state[id] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("parameter dependency cycle detected at %s", id)
		}
		state[id] = 1
		for _, dep := range byId[id].Dependencies {
			if _, ok := known[dep]; !ok {
				return fmt.Errorf("parameter %s depends on unknown parameter %s", id, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = 2
		return nil
	}
	for _, p := range c.Parameters {
		if err := visit(p.Id); err != nil {
			return err
		}
	}
	return nil
}
