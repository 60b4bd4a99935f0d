// Package kvcache is the secondary embedded key-value store sitting behind the SQL tables:
// it caches JSON-serialised blobs (PeerDescriptor and siblings) keyed by the entity's
// 16-byte uuid, so a read that misses the in-memory overlay can be served without
// re-assembling the entity from its relational tables.
package kvcache

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var rootBucket = []byte("opendut-cache")

// Cache is a bbolt-backed JSON blob cache, one bucket per value kind.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt file at path and ensures the root bucket exists.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "kvcache: opening %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "kvcache: creating root bucket")
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func bucketName(kind string) []byte { return []byte("kind/" + kind) }

// Put stores value, JSON-encoded, under kind/id.
func Put[V any](c *Cache, kind string, id uuid.UUID, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "kvcache: marshalling %s %s", kind, id)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(kind))
		if err != nil {
			return err
		}
		return b.Put(id[:], data)
	})
	return errors.Wrapf(err, "kvcache: putting %s %s", kind, id)
}

// Get looks up kind/id, reporting ok=false on a cache miss rather than an error.
func Get[V any](c *Cache, kind string, id uuid.UUID) (value V, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return nil
		}
		data := b.Get(id[:])
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return value, false, errors.Wrapf(err, "kvcache: getting %s %s", kind, id)
	}
	return value, ok, nil
}

// Delete removes kind/id if present; a miss is not an error.
func Delete(c *Cache, kind string, id uuid.UUID) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return nil
		}
		return b.Delete(id[:])
	})
	return errors.Wrapf(err, "kvcache: deleting %s %s", kind, id)
}
