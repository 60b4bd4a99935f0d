// Package store implements the Persistence Layer: a typed resource store over a relational
// database plus an in-memory overlay, with a per-resource-type subscription bus.
//
// Each concrete resource store (PeerStore, ClusterConfigurationStore, ...) implements the
// Persistable contract below. Go's lack of parameterized methods on non-generic types means
// a single open-ended "insert any resource" dispatcher does not translate cleanly; instead
// every concrete store exposes the same four operations at its own concrete id/value types,
// and internal/resources composes one field per resource type. This trades open
// extensibility for compile-time type safety, which fits a fixed, small domain model better.
package store

import (
	"context"
	"fmt"
)

// Op names a Persistence Layer operation, for PersistenceError classification.
type Op string

const (
	OpInsert Op = "Insert"
	OpRemove Op = "Remove"
	OpGet    Op = "Get"
	OpList   Op = "List"
	OpCustom Op = "Custom"
)

// PersistenceError wraps a lower-level database/KV failure with the resource type name and
// id for diagnostics.
type PersistenceError struct {
	Op       Op
	Resource string
	Id       string
	Cause    error
}

func (e *PersistenceError) Error() string {
	if e.Id != "" {
		return fmt.Sprintf("persistence: %s %s(%s): %v", e.Op, e.Resource, e.Id, e.Cause)
	}
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Resource, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

func wrapErr(op Op, resource, id string, cause error) error {
	if cause == nil {
		return nil
	}
	return &PersistenceError{Op: op, Resource: resource, Id: id, Cause: cause}
}

// EventKind discriminates SubscriptionEvent.
type EventKind int

const (
	Inserted EventKind = iota
	Removed
)

// SubscriptionEvent is published by a resource store on every committed insert/remove.
// Events a subscriber receives for one entity id arrive in write order; an event is dropped
// for a subscriber whose buffer is full, so the received sequence can have gaps.
type SubscriptionEvent[ID comparable, R any] struct {
	Kind  EventKind
	Id    ID
	Value R
}

// Persistable is the contract every typed resource store implements: insert, remove, get,
// list, each composing a SQL write and an in-memory overlay write atomically from the
// caller's perspective.
type Persistable[ID comparable, R any] interface {
	Insert(ctx context.Context, id ID, value R) error
	Remove(ctx context.Context, id ID) (R, bool, error)
	Get(ctx context.Context, id ID) (R, bool, error)
	List(ctx context.Context) ([]R, error)
	Subscribe() (<-chan SubscriptionEvent[ID, R], func())
}
