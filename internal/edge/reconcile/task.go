// Package reconcile is the Edge Reconciler: a deterministic task runner that topologically
// sorts a PeerConfiguration's parameters by dependency and drives each through a check/make
// contract, reporting per-parameter detected state upstream.
//
// Dispatch across task kinds goes through TaskFactory functions, each switching over the
// parameter value kinds it owns; every resulting task implements the Task interface and
// carries only its own data.
package reconcile

import (
	"context"

	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// Fulfilled is the result of a task's check.
type Fulfilled int

const (
	FulfilledUnchecked Fulfilled = iota
	FulfilledYes
	FulfilledNo
)

// Task is one small, idempotent action a parameter's value variant resolves to.
type Task interface {
	Check(ctx context.Context, target model.Target) (Fulfilled, error)
	Make(ctx context.Context, target model.Target) error
}

// TaskFactory resolves the task list for one parameter value (EthernetBridge ->
// CreateEthernetBridge, GreInterface -> ManageGreInterface, ...). Kept as a function value
// rather than a registry map so each Edge Network Stack component can contribute its own
// factory without a central import cycle.
type TaskFactory func(value model.ParameterValue) ([]Task, error)
