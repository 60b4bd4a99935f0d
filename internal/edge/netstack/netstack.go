// Package netstack is the Edge Network Stack: it turns EthernetBridge, GreInterface,
// JoinedInterface and CanVirtualDevice parameters into real Linux network interfaces via
// github.com/vishvananda/netlink rather than shelling out to `ip`. It consumes declarative,
// pre-derived Parameters; deriving setup from a ClusterAssignment is the control plane's job.
package netstack

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// markerAltName is added as an rtnetlink IFLA_PROP_LIST alternative name on every interface
// this package creates, so later reconciliations can tell an interface opendut created apart
// from one that merely has a matching primary name.
const markerAltName = "opendut-managed"

// Handle abstracts the subset of the netlink API this package drives, so tests can run without
// root privileges or a live kernel netlink socket.
type Handle interface {
	LinkByName(name string) (netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkAddAltName(link netlink.Link, altName string) error
	LinkSetMaster(link, master netlink.Link) error
	LinkSetNoMaster(link netlink.Link) error
}

// SystemHandle calls straight through to the netlink package's process-wide default handle.
type SystemHandle struct{}

func (SystemHandle) LinkByName(name string) (netlink.Link, error)       { return netlink.LinkByName(name) }
func (SystemHandle) LinkAdd(link netlink.Link) error                    { return netlink.LinkAdd(link) }
func (SystemHandle) LinkDel(link netlink.Link) error                    { return netlink.LinkDel(link) }
func (SystemHandle) LinkSetUp(link netlink.Link) error                  { return netlink.LinkSetUp(link) }
func (SystemHandle) LinkAddAltName(link netlink.Link, altName string) error {
	return netlink.LinkAddAltName(link, altName)
}
func (SystemHandle) LinkSetMaster(link, master netlink.Link) error { return netlink.LinkSetMaster(link, master) }
func (SystemHandle) LinkSetNoMaster(link netlink.Link) error       { return netlink.LinkSetNoMaster(link) }

// Manager wraps a Handle with the bridge/GRE/vcan operations the reconciler's tasks need.
type Manager struct {
	nl Handle
}

func NewManager(nl Handle) *Manager {
	if nl == nil {
		nl = SystemHandle{}
	}
	return &Manager{nl: nl}
}

// findManaged looks up name and reports whether it exists and carries opendut's marker alt
// name. A name that exists but was not created by opendut (no marker) is reported as absent so
// the create path never silently adopts a foreign interface.
func (m *Manager) findManaged(name string) (netlink.Link, bool, error) {
	link, err := m.nl.LinkByName(name)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "lookup interface %q", name)
	}
	for _, alt := range link.Attrs().AltNames {
		if alt == markerAltName {
			return link, true, nil
		}
	}
	return link, false, nil
}

func isNotFound(err error) bool {
	_, ok := err.(netlink.LinkNotFoundError)
	return ok
}

// EnsureBridge creates an empty, opendut-marked bridge named name if absent, or removes it
// if present. Idempotent in both directions.
func (m *Manager) EnsureBridge(name model.NetworkInterfaceName, target model.Target) error {
	return m.ensureSimple(string(name), target, func(attrs netlink.LinkAttrs) netlink.Link {
		return &netlink.Bridge{LinkAttrs: attrs}
	})
}

// EnsureVCan creates an opendut-marked virtual CAN interface named name if absent, or removes
// it if present.
func (m *Manager) EnsureVCan(name model.NetworkInterfaceName, target model.Target) error {
	return m.ensureSimple(string(name), target, func(attrs netlink.LinkAttrs) netlink.Link {
		return &netlink.GenericLink{LinkAttrs: attrs, LinkType: "vcan"}
	})
}

func (m *Manager) ensureSimple(name string, target model.Target, build func(netlink.LinkAttrs) netlink.Link) error {
	link, managed, err := m.findManaged(name)
	if err != nil {
		return err
	}

	if target == model.TargetAbsent {
		if !managed {
			return nil
		}
		return errors.Wrapf(m.nl.LinkDel(link), "delete interface %q", name)
	}

	if managed {
		return nil
	}

	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	created := build(attrs)
	if err := m.nl.LinkAdd(created); err != nil {
		return errors.Wrapf(err, "create interface %q", name)
	}
	if err := m.nl.LinkAddAltName(created, markerAltName); err != nil {
		return errors.Wrapf(err, "mark interface %q", name)
	}
	return errors.Wrapf(m.nl.LinkSetUp(created), "bring up interface %q", name)
}

// CheckPresent reports whether an opendut-managed interface named name currently exists.
func (m *Manager) CheckPresent(name model.NetworkInterfaceName) (bool, error) {
	_, managed, err := m.findManaged(string(name))
	return managed, err
}

// EnsureGreTap creates (or removes) a point-to-point GRE tap between local and remote. The
// interface name is derived deterministically from the address pair so repeated
// reconciliation of the same GreInterface parameter always targets the same interface.
func (m *Manager) EnsureGreTap(local, remote net.IP, target model.Target) (model.NetworkInterfaceName, error) {
	name := GreInterfaceName(local, remote)

	link, managed, err := m.findManaged(string(name))
	if err != nil {
		return name, err
	}

	if target == model.TargetAbsent {
		if !managed {
			return name, nil
		}
		return name, errors.Wrapf(m.nl.LinkDel(link), "delete gre interface %q", name)
	}

	if managed {
		return name, nil
	}

	attrs := netlink.NewLinkAttrs()
	attrs.Name = string(name)
	gretap := &netlink.Gretap{LinkAttrs: attrs, Local: local, Remote: remote}
	if err := m.nl.LinkAdd(gretap); err != nil {
		return name, errors.Wrapf(err, "create gre interface %q", name)
	}
	if err := m.nl.LinkAddAltName(gretap, markerAltName); err != nil {
		return name, errors.Wrapf(err, "mark gre interface %q", name)
	}
	return name, errors.Wrapf(m.nl.LinkSetUp(gretap), "bring up gre interface %q", name)
}

// Join enslaves iface to bridge (or releases it), the kernel operation backing a
// JoinedInterface parameter.
func (m *Manager) Join(iface, bridge model.NetworkInterfaceName, target model.Target) error {
	ifaceLink, err := m.nl.LinkByName(string(iface))
	if err != nil {
		return errors.Wrapf(err, "lookup interface %q", iface)
	}

	if target == model.TargetAbsent {
		if ifaceLink.Attrs().MasterIndex == 0 {
			return nil
		}
		return errors.Wrapf(m.nl.LinkSetNoMaster(ifaceLink), "release interface %q from bridge", iface)
	}

	bridgeLink, err := m.nl.LinkByName(string(bridge))
	if err != nil {
		return errors.Wrapf(err, "lookup bridge %q", bridge)
	}
	if ifaceLink.Attrs().MasterIndex == bridgeLink.Attrs().Index {
		return nil
	}
	return errors.Wrapf(m.nl.LinkSetMaster(ifaceLink, bridgeLink), "join interface %q to bridge %q", iface, bridge)
}

// IsJoined reports whether iface is currently enslaved to bridge.
func (m *Manager) IsJoined(iface, bridge model.NetworkInterfaceName) (bool, error) {
	ifaceLink, err := m.nl.LinkByName(string(iface))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "lookup interface %q", iface)
	}
	bridgeLink, err := m.nl.LinkByName(string(bridge))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "lookup bridge %q", bridge)
	}
	return ifaceLink.Attrs().MasterIndex == bridgeLink.Attrs().Index, nil
}

// GreInterfaceName derives a stable, IFNAMSIZ-safe interface name from an (local, remote)
// address pair: "gre" followed by 12 hex characters of the pair's digest.
func GreInterfaceName(local, remote net.IP) model.NetworkInterfaceName {
	h := sha1.New()
	h.Write(local.To16())
	h.Write(remote.To16())
	sum := hex.EncodeToString(h.Sum(nil))
	return model.NetworkInterfaceName(fmt.Sprintf("gre%s", sum[:12]))
}
