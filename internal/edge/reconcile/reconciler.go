package reconcile

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// Registry resolves the task list for one parameter. Each Edge Network Stack component
// (netstack, can, executor) registers its own factory rather than the reconciler importing
// them directly, avoiding an import cycle between the engine and the kernel-facing packages
// it drives.
type Registry struct {
	factories []TaskFactory
}

func NewRegistry(factories ...TaskFactory) *Registry {
	return &Registry{factories: factories}
}

// Resolve returns the first non-empty task list a registered factory produces for value.
func (r *Registry) Resolve(value model.ParameterValue) ([]Task, error) {
	for _, f := range r.factories {
		tasks, err := f(value)
		if err != nil {
			return nil, err
		}
		if tasks != nil {
			return tasks, nil
		}
	}
	return nil, errors.Errorf("reconcile: no task factory handles parameter kind %q", value.Kind)
}

// Reconciler is the Edge Reconciler: a deterministic task runner driving a PeerConfiguration
// to a steady state.
type Reconciler struct {
	registry *Registry
}

func New(registry *Registry) *Reconciler {
	return &Reconciler{registry: registry}
}

// Reconcile drives every parameter of cfg to its target, respecting the dependency DAG, and
// returns a report covering every parameter exactly once, regardless of individual task
// failures.
//
// Algorithm:
//  1. Topologically sort parameters by dependencies.
//  2. Resolve each parameter's task list from its value variant.
//  3. check(target); if No, make(target); then check(target) again; if still No, the
//     parameter is failed.
//  4. A parameter whose prerequisites failed is not executed; it is reported with
//     WaitingForDependenciesFailed{missing_dependencies}.
//  5. Emit one EdgePeerConfigurationState covering every parameter.
func (rec *Reconciler) Reconcile(ctx context.Context, cfg model.PeerConfiguration) model.EdgePeerConfigurationState {
	order, err := topologicalOrder(cfg)
	if err != nil {
		// A malformed DAG (cycle, dangling dependency) is a caller bug, not a per-parameter
		// runtime failure; still produce a report so the agent has something to send upstream
		// rather than dropping the whole reconciliation silently.
		return rec.failAll(cfg, err)
	}

	failed := make(map[model.ParameterId]struct{})
	states := make([]model.ParameterState, 0, len(cfg.Parameters))
	byId := make(map[model.ParameterId]model.Parameter, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		byId[p.Id] = p
	}

	for _, id := range order {
		p := byId[id]

		if missing := missingDependencies(p, failed); len(missing) > 0 {
			failed[p.Id] = struct{}{}
			states = append(states, model.ParameterState{
				Id:            p.Id,
				Timestamp:     now(),
				DetectedState: model.ErrorState(model.ErrorWaitingForDependenciesFailed, model.MissingDependenciesCause(missing...)),
			})
			continue
		}

		detected := rec.reconcileOne(ctx, p)
		if detected.Kind == model.DetectedError {
			failed[p.Id] = struct{}{}
		}
		states = append(states, model.ParameterState{Id: p.Id, Timestamp: now(), DetectedState: detected})
	}

	return model.EdgePeerConfigurationState{ParameterStates: states}
}

// reconcileOne drives a single parameter through check/make/check.
func (rec *Reconciler) reconcileOne(ctx context.Context, p model.Parameter) model.DetectedState {
	tasks, err := rec.registry.Resolve(p.Value)
	if err != nil {
		return model.ErrorState(model.ErrorCreatingFailed, model.UnclassifiedCause(err.Error()))
	}

	for _, task := range tasks {
		if state, ok := runTask(ctx, task, p.Target); !ok {
			return state
		}
	}
	if p.Target == model.TargetPresent {
		return model.Present()
	}
	return model.Absent()
}

// runTask executes the check/make/check contract for one task. The returned bool is true
// when the task ultimately succeeded (so the caller may proceed to the next task for the same
// parameter); a false return always carries the terminal DetectedState to report.
func runTask(ctx context.Context, task Task, target model.Target) (model.DetectedState, bool) {
	presentErrKind, absentErrKind := model.ErrorCheckPresentFailed, model.ErrorCheckAbsentFailed
	checkFailKind := presentErrKind
	if target == model.TargetAbsent {
		checkFailKind = absentErrKind
	}

	fulfilled, err := task.Check(ctx, target)
	if err != nil {
		return model.ErrorState(checkFailKind, model.UnclassifiedCause(err.Error())), false
	}
	if fulfilled == FulfilledYes {
		return model.DetectedState{}, true
	}

	makeErrKind := model.ErrorCreatingFailed
	if target == model.TargetAbsent {
		makeErrKind = model.ErrorRemovingFailed
	}
	if err := task.Make(ctx, target); err != nil {
		return model.ErrorState(makeErrKind, model.UnclassifiedCause(err.Error())), false
	}

	fulfilled, err = task.Check(ctx, target)
	if err != nil {
		return model.ErrorState(checkFailKind, model.UnclassifiedCause(err.Error())), false
	}
	if fulfilled != FulfilledYes {
		return model.ErrorState(makeErrKind, model.UnclassifiedCause("still not fulfilled after make")), false
	}
	return model.DetectedState{}, true
}

func missingDependencies(p model.Parameter, failed map[model.ParameterId]struct{}) []model.ParameterId {
	var missing []model.ParameterId
	for _, dep := range p.Dependencies {
		if _, ok := failed[dep]; ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (rec *Reconciler) failAll(cfg model.PeerConfiguration, cause error) model.EdgePeerConfigurationState {
	log.Errorf("reconcile: invalid PeerConfiguration: %v", cause)
	states := make([]model.ParameterState, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		states = append(states, model.ParameterState{
			Id:            p.Id,
			Timestamp:     now(),
			DetectedState: model.ErrorState(model.ErrorCreatingFailed, model.UnclassifiedCause(cause.Error())),
		})
	}
	return model.EdgePeerConfigurationState{ParameterStates: states}
}

// topologicalOrder returns parameter ids in an order respecting the dependency DAG, using
// Kahn's algorithm so that ties break in input order for determinism.
func topologicalOrder(cfg model.PeerConfiguration) ([]model.ParameterId, error) {
	if err := cfg.ValidateDAG(); err != nil {
		return nil, err
	}

	indegree := make(map[model.ParameterId]int, len(cfg.Parameters))
	dependents := make(map[model.ParameterId][]model.ParameterId)
	var inputOrder []model.ParameterId
	for _, p := range cfg.Parameters {
		indegree[p.Id] = len(p.Dependencies)
		inputOrder = append(inputOrder, p.Id)
		for _, dep := range p.Dependencies {
			dependents[dep] = append(dependents[dep], p.Id)
		}
	}

	var queue []model.ParameterId
	for _, id := range inputOrder {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]model.ParameterId, 0, len(cfg.Parameters))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return order, nil
}

// now is a seam so tests can normalise timestamps; production always uses wall-clock time.
var now = func() time.Time { return time.Now().UTC() }
