package store

import (
	"context"

	"github.com/eclipse-opendut/opendut-go/internal/store/kvcache"
	"github.com/eclipse-opendut/opendut-go/internal/store/sqlstore"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// peerCacheKind is the kvcache bucket PeerDescriptor blobs live under.
const peerCacheKind = "peer_descriptor"

// PeerStore is the typed resource store for PeerDescriptor, satisfying Persistable. Reads are
// served from the in-memory overlay; the optional kvcache holds JSON blobs behind the SQL
// tables so a Get that misses the overlay (e.g. right after a restart, before Load) can be
// answered without re-assembling the descriptor from its seven relational tables.
type PeerStore struct {
	backend *sqlstore.PeerBackend
	cache   *kvcache.Cache
	mem     *base[ids.PeerId, model.PeerDescriptor]
}

func NewPeerStore(backend *sqlstore.PeerBackend) (*PeerStore, error) {
	return &PeerStore{backend: backend, mem: newBase[ids.PeerId, model.PeerDescriptor]()}, nil
}

// WithCache attaches the embedded KV blob cache. Cache writes are best-effort: the SQL tables
// stay authoritative and a stale or missing blob only costs the relational read it was saving.
func (s *PeerStore) WithCache(cache *kvcache.Cache) *PeerStore {
	s.cache = cache
	return s
}

// Load populates the in-memory overlay from the SQL backend; call once at startup. A nil
// backend (memory-only store, as tests use) has nothing to load.
func (s *PeerStore) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	all, err := s.backend.List(ctx)
	if err != nil {
		return wrapErr(OpList, "PeerDescriptor", "", err)
	}
	for _, p := range all {
		s.mem.put(p.Id, p)
	}
	return nil
}

func (s *PeerStore) Insert(ctx context.Context, id ids.PeerId, value model.PeerDescriptor) error {
	if err := value.Validate(); err != nil {
		return wrapErr(OpInsert, "PeerDescriptor", id.String(), err)
	}
	if s.backend != nil {
		if err := s.backend.Insert(ctx, id, value); err != nil {
			return wrapErr(OpInsert, "PeerDescriptor", id.String(), err)
		}
	}
	if s.cache != nil {
		_ = kvcache.Put(s.cache, peerCacheKind, id.UUID, value)
	}
	s.mem.put(id, value)
	return nil
}

func (s *PeerStore) Remove(ctx context.Context, id ids.PeerId) (model.PeerDescriptor, bool, error) {
	prior, existed := s.mem.get(id)
	if s.backend != nil {
		if err := s.backend.Remove(ctx, id); err != nil {
			return model.PeerDescriptor{}, false, wrapErr(OpRemove, "PeerDescriptor", id.String(), err)
		}
	}
	if s.cache != nil {
		_ = kvcache.Delete(s.cache, peerCacheKind, id.UUID)
	}
	s.mem.delete(id)
	return prior, existed, nil
}

func (s *PeerStore) Get(ctx context.Context, id ids.PeerId) (model.PeerDescriptor, bool, error) {
	if v, ok := s.mem.get(id); ok {
		return v, true, nil
	}
	if s.cache != nil {
		if v, ok, err := kvcache.Get[model.PeerDescriptor](s.cache, peerCacheKind, id.UUID); err == nil && ok {
			return v, true, nil
		}
	}
	if s.backend == nil {
		return model.PeerDescriptor{}, false, nil
	}
	v, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return model.PeerDescriptor{}, false, wrapErr(OpGet, "PeerDescriptor", id.String(), err)
	}
	return v, ok, nil
}

func (s *PeerStore) List(ctx context.Context) ([]model.PeerDescriptor, error) {
	return s.mem.list(), nil
}

func (s *PeerStore) Subscribe() (<-chan SubscriptionEvent[ids.PeerId, model.PeerDescriptor], func()) {
	return s.mem.subscribe()
}

var _ Persistable[ids.PeerId, model.PeerDescriptor] = (*PeerStore)(nil)
