// Package model defines the domain entities owned by the Resource Manager and their
// invariants. Types here are plain data; no entity holds a mutable reference to another,
// matching the "flat tables, resolve references at query time" design note.
package model

import (
	"fmt"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// PeerName is a non-empty, validated peer display name. Names must be unique across all
// PeerDescriptors; uniqueness is enforced by the persistence layer's unique index, not by
// this type.
type PeerName string

func NewPeerName(s string) (PeerName, error) {
	if s == "" {
		return "", fmt.Errorf("peer name must not be empty")
	}
	return PeerName(s), nil
}

// NetworkInterfaceName is a validated Linux interface name (max 15 bytes, kernel IFNAMSIZ-1).
type NetworkInterfaceName string

func NewNetworkInterfaceName(s string) (NetworkInterfaceName, error) {
	if s == "" || len(s) > 15 {
		return "", fmt.Errorf("interface name %q must be 1-15 bytes", s)
	}
	return NetworkInterfaceName(s), nil
}

// CanParameters groups the classic and data-phase (CAN FD) bitrate/sample-point pair.
type CanParameters struct {
	Bitrate          uint32
	SamplePoint      float32
	FD               bool
	DataBitrate      uint32
	DataSamplePoint  float32
}

// NetworkInterfaceConfigurationKind discriminates NetworkInterfaceConfiguration: every
// interface has exactly one kind.
type NetworkInterfaceConfigurationKind string

const (
	InterfaceKindEthernet NetworkInterfaceConfigurationKind = "Ethernet"
	InterfaceKindCan      NetworkInterfaceConfigurationKind = "Can"
	InterfaceKindVCan     NetworkInterfaceConfigurationKind = "VCan"
)

// NetworkInterfaceConfiguration is a tagged union over Ethernet, Can{...} and VCan. Only the
// field matching Kind is populated; Can is nil unless Kind == InterfaceKindCan.
type NetworkInterfaceConfiguration struct {
	Kind NetworkInterfaceConfigurationKind
	Can  *CanParameters
}

func EthernetConfiguration() NetworkInterfaceConfiguration {
	return NetworkInterfaceConfiguration{Kind: InterfaceKindEthernet}
}

func CanConfiguration(p CanParameters) NetworkInterfaceConfiguration {
	return NetworkInterfaceConfiguration{Kind: InterfaceKindCan, Can: &p}
}

func VCanConfiguration() NetworkInterfaceConfiguration {
	return NetworkInterfaceConfiguration{Kind: InterfaceKindVCan}
}

func (c NetworkInterfaceConfiguration) Validate() error {
	switch c.Kind {
	case InterfaceKindEthernet, InterfaceKindVCan:
		if c.Can != nil {
			return fmt.Errorf("interface kind %s must not carry CAN parameters", c.Kind)
		}
	case InterfaceKindCan:
		if c.Can == nil {
			return fmt.Errorf("interface kind Can requires CAN parameters")
		}
	default:
		return fmt.Errorf("unknown network interface kind %q", c.Kind)
	}
	return nil
}

// NetworkInterfaceDescriptor is one of a peer's network interfaces.
type NetworkInterfaceDescriptor struct {
	Id            ids.NetworkInterfaceId
	Name          NetworkInterfaceName
	Configuration NetworkInterfaceConfiguration
}

// PeerNetworkDescriptor groups a peer's interfaces and the optional bridge interface used
// when the peer joins a deployed cluster.
type PeerNetworkDescriptor struct {
	Interfaces []NetworkInterfaceDescriptor
	BridgeName *NetworkInterfaceName
}

// Device is a terminal (often an ECU) attached to one of a peer's network interfaces.
// Interface must reference an id present in the owning peer's network interfaces.
type Device struct {
	Id          ids.DeviceId
	Name        string
	Description string
	Location    string
	Interface   ids.NetworkInterfaceId
	Tags        []string
}

// Topology groups a peer's devices.
type Topology struct {
	Devices []Device
}

// ContainerEngine names the container runtime an executor uses.
type ContainerEngine string

const (
	EngineDocker ContainerEngine = "docker"
	EnginePodman ContainerEngine = "podman"
)

// ExecutorKindTag discriminates ExecutorKind.
type ExecutorKindTag string

const (
	ExecutorKindContainer   ExecutorKindTag = "Container"
	ExecutorKindExecutable  ExecutorKindTag = "Executable"
)

// ContainerExecutor describes a container-based executor.
type ContainerExecutor struct {
	Engine  ContainerEngine
	Name    string
	Image   string
	Volumes []string
	Devices []string
	Envs    map[string]string
	Ports   []string
	Command string
	Args    []string
}

// ExecutableExecutor describes a bare-process executor.
type ExecutableExecutor struct {
	Path string
	Args []string
}

// ExecutorKind is a tagged union over Container and Executable.
type ExecutorKind struct {
	Tag        ExecutorKindTag
	Container  *ContainerExecutor
	Executable *ExecutableExecutor
}

func ContainerExecutorKind(c ContainerExecutor) ExecutorKind {
	return ExecutorKind{Tag: ExecutorKindContainer, Container: &c}
}

func ExecutableExecutorKind(e ExecutableExecutor) ExecutorKind {
	return ExecutorKind{Tag: ExecutorKindExecutable, Executable: &e}
}

// ExecutorDescriptor is one of a peer's declared executors.
type ExecutorDescriptor struct {
	Id         ids.ExecutorId
	Kind       ExecutorKind
	ResultsURL *string
}

// PeerDescriptor is the CCP's authoritative record of one host agent.
//
// Every Device.Interface references an id present in Network.Interfaces, Name is unique
// across all PeerDescriptors (enforced by the store), and every NetworkInterfaceDescriptor
// has exactly one configuration kind.
type PeerDescriptor struct {
	Id        ids.PeerId
	Name      PeerName
	Location  *string
	Network   PeerNetworkDescriptor
	Topology  Topology
	Executors []ExecutorDescriptor
}

// Validate checks the device-interface references and interface-kind constraints. Name
// uniqueness is a cross-entity constraint enforced by the persistence layer's unique index,
// not checkable from one descriptor alone.
func (p PeerDescriptor) Validate() error {
	known := make(map[ids.NetworkInterfaceId]struct{}, len(p.Network.Interfaces))
	for _, iface := range p.Network.Interfaces {
		if err := iface.Configuration.Validate(); err != nil {
			return fmt.Errorf("peer %s: interface %s: %w", p.Id, iface.Id, err)
		}
		known[iface.Id] = struct{}{}
	}
	for _, d := range p.Topology.Devices {
		if _, ok := known[d.Interface]; !ok {
			return fmt.Errorf("peer %s: device %s references unknown interface %s", p.Id, d.Id, d.Interface)
		}
	}
	return nil
}

// DeviceIds returns the ids of every device this peer owns.
func (p PeerDescriptor) DeviceIds() []ids.DeviceId {
	out := make([]ids.DeviceId, 0, len(p.Topology.Devices))
	for _, d := range p.Topology.Devices {
		out = append(out, d.Id)
	}
	return out
}
