package model

import (
	"net"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// MemberStateKind discriminates MemberState.
type MemberStateKind string

const (
	MemberAvailable MemberStateKind = "Available"
	MemberBlocked   MemberStateKind = "Blocked"
)

// MemberState is a peer's availability for new cluster assignments.
type MemberState struct {
	Kind      MemberStateKind
	ByCluster ids.ClusterId // populated iff Kind == MemberBlocked
}

func Available() MemberState { return MemberState{Kind: MemberAvailable} }

func Blocked(by ids.ClusterId) MemberState {
	return MemberState{Kind: MemberBlocked, ByCluster: by}
}

// PeerStateKind discriminates PeerState.
type PeerStateKind string

const (
	PeerDown PeerStateKind = "Down"
	PeerUp   PeerStateKind = "Up"
)

// PeerState reflects whether a peer currently has a live edge session, and if so its
// member-state for cluster-assignment purposes.
type PeerState struct {
	Kind         PeerStateKind
	RemoteHost   net.IP      // populated iff Kind == PeerUp
	MemberState  MemberState // populated iff Kind == PeerUp
}

func DownState() PeerState { return PeerState{Kind: PeerDown} }

func UpState(remoteHost net.IP, member MemberState) PeerState {
	return PeerState{Kind: PeerUp, RemoteHost: remoteHost, MemberState: member}
}

// PeerConnectionStateKind discriminates PeerConnectionState.
type PeerConnectionStateKind string

const (
	ConnectionOffline PeerConnectionStateKind = "Offline"
	ConnectionOnline  PeerConnectionStateKind = "Online"
)

// PeerConnectionState mirrors PeerState for observer subscribers.
type PeerConnectionState struct {
	Kind       PeerConnectionStateKind
	RemoteHost net.IP // populated iff Kind == ConnectionOnline
}

func Offline() PeerConnectionState { return PeerConnectionState{Kind: ConnectionOffline} }

func Online(remoteHost net.IP) PeerConnectionState {
	return PeerConnectionState{Kind: ConnectionOnline, RemoteHost: remoteHost}
}

func (s PeerState) ConnectionState() PeerConnectionState {
	if s.Kind == PeerDown {
		return Offline()
	}
	return Online(s.RemoteHost)
}
