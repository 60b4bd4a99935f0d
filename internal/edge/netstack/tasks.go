package netstack

import (
	"context"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// createEthernetBridge is the Task behind an EthernetBridge parameter.
type createEthernetBridge struct {
	manager *Manager
	name    model.NetworkInterfaceName
}

func (t *createEthernetBridge) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	present, err := t.manager.CheckPresent(t.name)
	if err != nil {
		return reconcile.FulfilledNo, err
	}
	return fulfilledFor(present, target), nil
}

func (t *createEthernetBridge) Make(_ context.Context, target model.Target) error {
	return t.manager.EnsureBridge(t.name, target)
}

// canVirtualDevice is the Task behind a CanVirtualDevice parameter.
type canVirtualDevice struct {
	manager *Manager
	name    model.NetworkInterfaceName
}

func (t *canVirtualDevice) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	present, err := t.manager.CheckPresent(t.name)
	if err != nil {
		return reconcile.FulfilledNo, err
	}
	return fulfilledFor(present, target), nil
}

func (t *canVirtualDevice) Make(_ context.Context, target model.Target) error {
	return t.manager.EnsureVCan(t.name, target)
}

// manageGreInterface is the Task behind a GreInterface parameter. The interface it drives is
// named deterministically from (local, remote) rather than carried in the parameter value, so
// the derived JoinedInterface parameter that references it can compute the same name
// independently (see internal/actions' Parameter derivation).
type manageGreInterface struct {
	manager *Manager
	value   model.GreInterfaceValue
}

func (t *manageGreInterface) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	present, err := t.manager.CheckPresent(GreInterfaceName(t.value.LocalIP, t.value.RemoteIP))
	if err != nil {
		return reconcile.FulfilledNo, err
	}
	return fulfilledFor(present, target), nil
}

func (t *manageGreInterface) Make(_ context.Context, target model.Target) error {
	_, err := t.manager.EnsureGreTap(t.value.LocalIP, t.value.RemoteIP, target)
	return err
}

// deviceInterface is the Task behind a DeviceInterface parameter. The interface it names is
// one of the peer's own NICs or CAN devices, not something this package can create: Check
// simply confirms it exists, and Make only ever runs when it doesn't, which is always an
// error (the hardware it should be bound to is missing) rather than something to remediate.
type deviceInterface struct {
	manager *Manager
	name    model.NetworkInterfaceName
}

func (t *deviceInterface) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	if target == model.TargetAbsent {
		// Externally owned hardware is never torn down by opendut; teardown is vacuously
		// fulfilled so reconciliation of a deleted cluster never fails on it.
		return reconcile.FulfilledYes, nil
	}
	if _, err := t.manager.nl.LinkByName(string(t.name)); err != nil {
		if isNotFound(err) {
			return reconcile.FulfilledNo, nil
		}
		return reconcile.FulfilledNo, err
	}
	return reconcile.FulfilledYes, nil
}

func (t *deviceInterface) Make(_ context.Context, target model.Target) error {
	if target == model.TargetAbsent {
		return nil
	}
	return errors.Errorf("device interface %q is not present on this host", t.name)
}

// manageJoinedInterface is the Task behind a JoinedInterface parameter: it enslaves an
// existing device or GRE interface to the cluster bridge.
type manageJoinedInterface struct {
	manager *Manager
	value   model.JoinedInterfaceValue
}

func (t *manageJoinedInterface) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	joined, err := t.manager.IsJoined(t.value.Interface, t.value.Bridge)
	if err != nil {
		return reconcile.FulfilledNo, err
	}
	return fulfilledFor(joined, target), nil
}

func (t *manageJoinedInterface) Make(_ context.Context, target model.Target) error {
	return t.manager.Join(t.value.Interface, t.value.Bridge, target)
}

func fulfilledFor(present bool, target model.Target) reconcile.Fulfilled {
	want := target == model.TargetPresent
	if present == want {
		return reconcile.FulfilledYes
	}
	return reconcile.FulfilledNo
}

// TaskFactory resolves the Edge Network Stack's parameter kinds into their Tasks, leaving
// every other kind for a sibling factory (can, executor) to claim.
func TaskFactory(manager *Manager) reconcile.TaskFactory {
	return func(value model.ParameterValue) ([]reconcile.Task, error) {
		switch value.Kind {
		case model.ValueEthernetBridge:
			return []reconcile.Task{&createEthernetBridge{manager: manager, name: value.EthernetBridge.Name}}, nil
		case model.ValueCanVirtualDevice:
			return []reconcile.Task{&canVirtualDevice{manager: manager, name: value.CanVirtualDevice.Name}}, nil
		case model.ValueGreInterface:
			return []reconcile.Task{&manageGreInterface{manager: manager, value: *value.GreInterface}}, nil
		case model.ValueJoinedInterface:
			return []reconcile.Task{&manageJoinedInterface{manager: manager, value: *value.JoinedInterface}}, nil
		case model.ValueDeviceInterface:
			return []reconcile.Task{&deviceInterface{manager: manager, name: value.DeviceInterface.Name}}, nil
		default:
			return nil, nil
		}
	}
}
