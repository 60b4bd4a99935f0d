// Package vpn defines the small interface the Cluster Manager uses to delegate VPN address
// assignment and group lifecycle to an overlay network provider (NetBird in production).
// Only the interface and a disabled stand-in live here; the provider daemon itself is an
// external collaborator.
package vpn

import (
	"context"
	"net"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// Client delegates VPN address assignment and per-cluster group lifecycle.
type Client interface {
	// Enabled reports whether a real VPN provider is configured.
	Enabled() bool

	// AssignAddresses returns one VPN address per member, keyed by PeerId.
	AssignAddresses(ctx context.Context, cluster ids.ClusterId, members []ids.PeerId) (map[ids.PeerId]net.IP, error)

	// CreateGroup establishes connectivity among the given addresses for a cluster.
	CreateGroup(ctx context.Context, cluster ids.ClusterId, members map[ids.PeerId]net.IP) error

	// DeleteGroup tears down a previously created group.
	DeleteGroup(ctx context.Context, cluster ids.ClusterId) error
}

// Disabled is a no-op Client for deployments that do not configure a VPN provider; addresses
// are still synthesized deterministically so CAN-server port derivation remains exercised.
type Disabled struct{}

func NewDisabled() Disabled { return Disabled{} }

func (Disabled) Enabled() bool { return false }

func (Disabled) AssignAddresses(_ context.Context, _ ids.ClusterId, members []ids.PeerId) (map[ids.PeerId]net.IP, error) {
	out := make(map[ids.PeerId]net.IP, len(members))
	for i, m := range members {
		// 10.0.x.y synthetic block, deterministic from position only; never routed anywhere
		// real, since no VPN provider is active.
		out[m] = net.IPv4(10, 0, byte(i>>8), byte(i))
	}
	return out, nil
}

func (Disabled) CreateGroup(_ context.Context, _ ids.ClusterId, _ map[ids.PeerId]net.IP) error {
	return nil
}

func (Disabled) DeleteGroup(_ context.Context, _ ids.ClusterId) error { return nil }
