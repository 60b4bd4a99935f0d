// Package executor drives Executor parameters: starting and stopping the container or
// executable process a peer's ExecutorDescriptor names. Container engine invocation shells
// out to the configured engine binary via internal/edge/process rather than a Docker/OCI
// client SDK; only process-level start/stop is this component's job, the container daemon is
// an external collaborator.
package executor

import (
	"context"
	"os/exec"
	"sync"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/edge/process"
	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// Manager starts and stops the processes backing Executor parameters, keyed by ExecutorId so
// repeated reconciliation of the same parameter finds the process it already started.
type Manager struct {
	processes *process.Manager

	mu      sync.Mutex
	running map[ids.ExecutorId]process.Id
}

func NewManager(processes *process.Manager) *Manager {
	return &Manager{processes: processes, running: make(map[ids.ExecutorId]process.Id)}
}

// Running reports whether the executor's process is currently alive.
func (m *Manager) Running(id ids.ExecutorId) bool {
	m.mu.Lock()
	procId, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.processes.Running(procId)
}

// Start launches the process backing descriptor, unless one is already running.
func (m *Manager) Start(descriptor model.ExecutorDescriptor) error {
	if m.Running(descriptor.Id) {
		return nil
	}

	cmd, err := commandFor(descriptor.Kind)
	if err != nil {
		return err
	}
	procId, err := m.processes.Spawn(descriptor.Id.String(), cmd)
	if err != nil {
		return errors.Wrapf(err, "start executor %s", descriptor.Id)
	}

	m.mu.Lock()
	m.running[descriptor.Id] = procId
	m.mu.Unlock()
	return nil
}

// Stop terminates the process backing id, if one is tracked.
func (m *Manager) Stop(ctx context.Context, id ids.ExecutorId) error {
	m.mu.Lock()
	procId, ok := m.running[id]
	if ok {
		delete(m.running, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.processes.Terminate(ctx, procId)
}

// commandFor builds the exec.Cmd for one ExecutorKind. Container executors invoke the
// configured engine's "run" subcommand directly; Executable executors run their path as-is.
func commandFor(kind model.ExecutorKind) (*exec.Cmd, error) {
	switch kind.Tag {
	case model.ExecutorKindExecutable:
		return exec.Command(kind.Executable.Path, kind.Executable.Args...), nil
	case model.ExecutorKindContainer:
		return containerCommand(*kind.Container), nil
	default:
		return nil, errors.Errorf("unknown executor kind %q", kind.Tag)
	}
}

func containerCommand(c model.ContainerExecutor) *exec.Cmd {
	args := []string{"run", "--rm", "--name", c.Name}
	for _, v := range c.Volumes {
		args = append(args, "-v", v)
	}
	for _, d := range c.Devices {
		args = append(args, "--device", d)
	}
	for k, v := range c.Envs {
		args = append(args, "-e", k+"="+v)
	}
	for _, p := range c.Ports {
		args = append(args, "-p", p)
	}
	args = append(args, c.Image)
	if c.Command != "" {
		args = append(args, c.Command)
	}
	args = append(args, c.Args...)
	return exec.Command(string(c.Engine), args...)
}

// task is the reconcile.Task behind an Executor parameter.
type task struct {
	manager    *Manager
	descriptor model.ExecutorDescriptor
}

func (t *task) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	running := t.manager.Running(t.descriptor.Id)
	want := target == model.TargetPresent
	if running == want {
		return reconcile.FulfilledYes, nil
	}
	return reconcile.FulfilledNo, nil
}

func (t *task) Make(ctx context.Context, target model.Target) error {
	if target == model.TargetAbsent {
		return t.manager.Stop(ctx, t.descriptor.Id)
	}
	return t.manager.Start(t.descriptor)
}

// TaskFactory resolves Executor parameters into Tasks.
func TaskFactory(manager *Manager) reconcile.TaskFactory {
	return func(value model.ParameterValue) ([]reconcile.Task, error) {
		if value.Kind != model.ValueExecutor {
			return nil, nil
		}
		return []reconcile.Task{&task{manager: manager, descriptor: value.Executor.Descriptor}}, nil
	}
}
