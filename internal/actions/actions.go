// Package actions is the Peer Action Library: the small, composable operations the RPC
// Surface and Cluster Manager call against the Resource Manager.
package actions

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/oidc"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// DeletePeerErrorKind discriminates DeletePeerError.
type DeletePeerErrorKind string

const (
	// ErrClusterDeploymentExists rejects deleting a peer while any deployed cluster includes
	// one of its devices, whether or not the peer's agent is currently connected.
	ErrClusterDeploymentExists DeletePeerErrorKind = "ClusterDeploymentExists"
	ErrPeerNotFound            DeletePeerErrorKind = "PeerNotFound"
	ErrAuthRevocation          DeletePeerErrorKind = "AuthRevocation"
)

type DeletePeerError struct {
	Kind      DeletePeerErrorKind
	PeerId    ids.PeerId
	ClusterId ids.ClusterId // populated iff Kind == ErrClusterDeploymentExists
	Cause     error
}

func (e *DeletePeerError) Error() string {
	switch e.Kind {
	case ErrClusterDeploymentExists:
		return fmt.Sprintf("delete peer %s: cluster %s is deployed and includes this peer", e.PeerId, e.ClusterId)
	case ErrPeerNotFound:
		return fmt.Sprintf("delete peer %s: not found", e.PeerId)
	default:
		return errors.Wrapf(e.Cause, "delete peer %s", e.PeerId).Error()
	}
}

func (e *DeletePeerError) Unwrap() error { return e.Cause }

// OidcRegistrations tracks the per-peer confidential-client credential OIDC registration
// issues, keyed the same way PeerStates is: runtime-derived, not persisted to the SQL
// backend (the credential secret itself must not be written to the relational store).
type OidcRegistrations struct {
	mu     sync.RWMutex
	byPeer map[ids.PeerId]oidc.PeerRegistration
}

func NewOidcRegistrations() *OidcRegistrations {
	return &OidcRegistrations{byPeer: make(map[ids.PeerId]oidc.PeerRegistration)}
}

func (o *OidcRegistrations) Get(id ids.PeerId) (oidc.PeerRegistration, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.byPeer[id]
	return reg, ok
}

func (o *OidcRegistrations) Set(id ids.PeerId, reg oidc.PeerRegistration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byPeer[id] = reg
}

func (o *OidcRegistrations) Delete(id ids.PeerId) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.byPeer, id)
}

// PeerStates tracks each peer's live edge-session state: whether it is connected and from
// where. Connection state is runtime-derived and never persisted. A peer's cluster
// membership is NOT owned here; it is derived from the deployment records (see
// DeriveMemberStates), so it survives the agent disconnecting.
type PeerStates struct {
	mu     sync.RWMutex
	byPeer map[ids.PeerId]model.PeerState
}

func NewPeerStates() *PeerStates {
	return &PeerStates{byPeer: make(map[ids.PeerId]model.PeerState)}
}

func (s *PeerStates) Get(id ids.PeerId) model.PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.byPeer[id]; ok {
		return st
	}
	return model.DownState()
}

func (s *PeerStates) Set(id ids.PeerId, state model.PeerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPeer[id] = state
}

func (s *PeerStates) List() map[ids.PeerId]model.PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ids.PeerId]model.PeerState, len(s.byPeer))
	for k, v := range s.byPeer {
		out[k] = v
	}
	return out
}

// ReportedStates tracks the most recent EdgePeerConfigurationState each peer has reported
// over its PeerMessagingBroker session, keyed the same runtime-only way as PeerStates.
type ReportedStates struct {
	mu     sync.RWMutex
	byPeer map[ids.PeerId]model.EdgePeerConfigurationState
}

func NewReportedStates() *ReportedStates {
	return &ReportedStates{byPeer: make(map[ids.PeerId]model.EdgePeerConfigurationState)}
}

func (s *ReportedStates) Get(id ids.PeerId) (model.EdgePeerConfigurationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byPeer[id]
	return st, ok
}

func (s *ReportedStates) Set(id ids.PeerId, state model.EdgePeerConfigurationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPeer[id] = state
}

// Actions composes the Resource Manager and live peer states behind one handle the RPC
// handlers and Cluster Manager share.
type Actions struct {
	Resources *resources.Manager
	States    *PeerStates
	Reported  *ReportedStates

	// Oidc is nil when the deployment runs without an identity provider;
	// StorePeer/DeletePeer skip registration entirely in that case.
	Oidc              *oidc.Registrar
	OidcRegistrations *OidcRegistrations
}

func New(r *resources.Manager, states *PeerStates) *Actions {
	return &Actions{Resources: r, States: states, Reported: NewReportedStates(), OidcRegistrations: NewOidcRegistrations()}
}

// WithOidc enables OIDC client registration for StorePeer/DeletePeer.
func (a *Actions) WithOidc(registrar *oidc.Registrar) *Actions {
	a.Oidc = registrar
	return a
}

// DeriveMemberStates joins every peer's devices against the clusters that currently have a
// ClusterDeployment record: a peer contributing any device to a deployed cluster is Blocked
// by that cluster, whether or not its agent is connected. Callers already inside a
// Resources/ResourcesMut closure call this directly so the derivation and any dependent
// write are atomic; everyone else goes through ListPeerMemberStates.
func DeriveMemberStates(ctx context.Context, r *resources.Manager) (map[ids.PeerId]model.MemberState, error) {
	peers, err := r.Peers.List(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := r.ClusterConfigurations.List(ctx)
	if err != nil {
		return nil, err
	}
	deployments, err := r.ClusterDeployments.List(ctx)
	if err != nil {
		return nil, err
	}

	deployed := make(map[ids.ClusterId]struct{}, len(deployments))
	for _, d := range deployments {
		deployed[d.Id] = struct{}{}
	}
	owner := make(map[ids.DeviceId]ids.PeerId)
	out := make(map[ids.PeerId]model.MemberState, len(peers))
	for _, p := range peers {
		out[p.Id] = model.Available()
		for _, d := range p.DeviceIds() {
			owner[d] = p.Id
		}
	}
	for _, config := range configs {
		if _, ok := deployed[config.Id]; !ok {
			continue
		}
		for device := range config.Devices {
			if peerId, ok := owner[device]; ok {
				out[peerId] = model.Blocked(config.Id)
			}
		}
	}
	return out, nil
}

// ListPeerMemberStates returns every known peer's membership state, derived from the
// deployment records.
func (a *Actions) ListPeerMemberStates(ctx context.Context) (map[ids.PeerId]model.MemberState, error) {
	var out map[ids.PeerId]model.MemberState
	err := a.Resources.Resources(func(r *resources.Manager) error {
		var err error
		out, err = DeriveMemberStates(ctx, r)
		return err
	})
	return out, err
}

// MemberStateFor returns one peer's derived membership state, defaulting an unknown peer to
// Available.
func (a *Actions) MemberStateFor(ctx context.Context, id ids.PeerId) (model.MemberState, error) {
	states, err := a.ListPeerMemberStates(ctx)
	if err != nil {
		return model.Available(), err
	}
	if st, ok := states[id]; ok {
		return st, nil
	}
	return model.Available(), nil
}

// ConnectionOpened records a freshly opened edge session, deriving the peer's member state
// from the deployment records so a reconnecting member of a deployed cluster comes back
// Blocked rather than Available.
func (a *Actions) ConnectionOpened(ctx context.Context, id ids.PeerId, remoteHost net.IP) {
	member, err := a.MemberStateFor(ctx, id)
	if err != nil {
		member = model.Available()
	}
	a.States.Set(id, model.UpState(remoteHost, member))
}

// ConnectionClosed records a closed edge session. Only the live connection state is dropped;
// membership stays derivable from the deployment records, so a deployed member that goes
// offline is still Blocked.
func (a *Actions) ConnectionClosed(id ids.PeerId) {
	a.States.Set(id, model.DownState())
}

// StorePeer validates and upserts a PeerDescriptor, enforcing name uniqueness against every
// other currently stored peer. A peer that is currently connected and blocked by a deployed
// cluster cannot be redefined out from under that cluster. When OIDC is enabled, StorePeer
// registers (or re-registers) a confidential client for the peer before the descriptor is
// committed.
func (a *Actions) StorePeer(ctx context.Context, peer model.PeerDescriptor) error {
	if err := peer.Validate(); err != nil {
		return errors.Wrapf(err, "store peer %s", peer.Id)
	}

	if live := a.States.Get(peer.Id); live.Kind == model.PeerUp {
		member, err := a.MemberStateFor(ctx, peer.Id)
		if err != nil {
			return errors.Wrapf(err, "store peer %s", peer.Id)
		}
		if member.Kind == model.MemberBlocked {
			return errors.Errorf("store peer %s: peer is blocked by cluster %s", peer.Id, member.ByCluster)
		}
	}

	if a.Oidc != nil {
		old, _ := a.OidcRegistrations.Get(peer.Id)
		reg, err := a.Oidc.RotatePeer(ctx, peer.Id, old.ClientID)
		if err != nil {
			return errors.Wrapf(err, "store peer %s: registering oidc client", peer.Id)
		}
		a.OidcRegistrations.Set(peer.Id, reg)
	}

	return a.Resources.ResourcesMut(func(r *resources.Manager) error {
		existing, err := r.Peers.List(ctx)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Id != peer.Id && other.Name == peer.Name {
				return errors.Errorf("store peer %s: name %q already used by peer %s", peer.Id, peer.Name, other.Id)
			}
		}
		return r.Peers.Insert(ctx, peer.Id, peer)
	})
}

// DeletePeer removes a PeerDescriptor. A peer belonging to any currently deployed cluster
// cannot be deleted, connected or not; membership in merely configured (undeployed) clusters
// does not block deletion. The peer's OIDC client, if any, is revoked after the descriptor
// is removed.
func (a *Actions) DeletePeer(ctx context.Context, id ids.PeerId) error {
	err := a.Resources.ResourcesMut(func(r *resources.Manager) error {
		members, err := DeriveMemberStates(ctx, r)
		if err != nil {
			return err
		}
		if st, ok := members[id]; ok && st.Kind == model.MemberBlocked {
			return &DeletePeerError{Kind: ErrClusterDeploymentExists, PeerId: id, ClusterId: st.ByCluster}
		}
		_, existed, err := r.Peers.Remove(ctx, id)
		if err != nil {
			return err
		}
		if !existed {
			return &DeletePeerError{Kind: ErrPeerNotFound, PeerId: id}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if a.Oidc != nil {
		if reg, ok := a.OidcRegistrations.Get(id); ok {
			if err := a.Oidc.RevokePeer(ctx, id, reg.ClientID); err != nil {
				return &DeletePeerError{Kind: ErrAuthRevocation, PeerId: id, Cause: err}
			}
			a.OidcRegistrations.Delete(id)
		}
	}
	return nil
}

// ListPeers returns every stored PeerDescriptor.
func (a *Actions) ListPeers(ctx context.Context) ([]model.PeerDescriptor, error) {
	var peers []model.PeerDescriptor
	err := a.Resources.Resources(func(r *resources.Manager) error {
		var err error
		peers, err = r.Peers.List(ctx)
		return err
	})
	return peers, err
}

// GetPeerDescriptor returns one stored PeerDescriptor by id.
func (a *Actions) GetPeerDescriptor(ctx context.Context, id ids.PeerId) (model.PeerDescriptor, bool, error) {
	var peer model.PeerDescriptor
	var ok bool
	err := a.Resources.Resources(func(r *resources.Manager) error {
		var err error
		peer, ok, err = r.Peers.Get(ctx, id)
		return err
	})
	return peer, ok, err
}

// ListPeerStates returns every known peer's PeerState: connection state from the live
// session map, membership derived from the deployment records.
func (a *Actions) ListPeerStates(ctx context.Context) (map[ids.PeerId]model.PeerState, error) {
	members, err := a.ListPeerMemberStates(ctx)
	if err != nil {
		return nil, err
	}
	live := a.States.List()
	out := make(map[ids.PeerId]model.PeerState, len(members))
	for id, member := range members {
		if st, ok := live[id]; ok && st.Kind == model.PeerUp {
			out[id] = model.UpState(st.RemoteHost, member)
		} else {
			out[id] = model.DownState()
		}
	}
	return out, nil
}

// AssignCluster refreshes the live session state of every assignment member that currently
// has one, so RPC callers observe the block immediately. Offline members need no update
// here: their membership is derived from the deployment record the Cluster Manager has
// already written.
func (a *Actions) AssignCluster(ctx context.Context, assignment model.ClusterAssignment) error {
	if err := assignment.Validate(); err != nil {
		return errors.Wrapf(err, "assign cluster %s", assignment.Id)
	}
	for _, peerId := range assignment.Members() {
		current := a.States.Get(peerId)
		if current.Kind == model.PeerUp {
			a.States.Set(peerId, model.UpState(current.RemoteHost, model.Blocked(assignment.Id)))
		}
	}
	return nil
}

// ReleaseCluster refreshes the live session state of every former member of a torn-down
// assignment.
func (a *Actions) ReleaseCluster(assignment model.ClusterAssignment) {
	for _, peerId := range assignment.Members() {
		current := a.States.Get(peerId)
		if current.Kind == model.PeerUp {
			a.States.Set(peerId, model.UpState(current.RemoteHost, model.Available()))
		}
	}
}
