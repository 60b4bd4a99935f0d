// Package process is the agent-side process manager backing Executable and Container
// executors: it spawns external OS processes, tracks them by an opaque id, and guarantees
// cleanup on termination via SIGTERM, a bounded grace period, then SIGKILL.
package process

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/pkg/log"
)

// gracePeriod is how long a process gets to exit after SIGTERM before it is killed outright.
const gracePeriod = 100 * time.Millisecond

// Id identifies one process this Manager has spawned.
type Id uint64

type managed struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Manager spawns and supervises external OS processes for container/executable executors.
type Manager struct {
	mu      sync.Mutex
	procs   map[Id]*managed
	nextId  Id
}

func NewManager() *Manager {
	return &Manager{procs: make(map[Id]*managed)}
}

// Spawn starts cmd under name for logging and returns an Id to later Terminate or inspect it.
// cmd must not yet have been started.
func (m *Manager) Spawn(name string, cmd *exec.Cmd) (Id, error) {
	log.Debugf("process: spawning %q", name)
	if err := cmd.Start(); err != nil {
		return 0, errors.Wrapf(err, "spawn process %q", name)
	}

	m.mu.Lock()
	id := m.nextId
	m.nextId++
	proc := &managed{name: name, cmd: cmd, done: make(chan struct{})}
	m.procs[id] = proc
	m.mu.Unlock()

	go func() {
		proc.err = cmd.Wait()
		close(proc.done)
	}()

	log.Infof("process: spawned %q as pid %d (id %d)", name, cmd.Process.Pid, id)
	return id, nil
}

// Terminate sends SIGTERM, waits up to gracePeriod, then sends SIGKILL if the process is
// still alive. Terminating an unknown or already-exited id is a no-op.
func (m *Manager) Terminate(ctx context.Context, id Id) error {
	m.mu.Lock()
	proc, ok := m.procs[id]
	if ok {
		delete(m.procs, id)
	}
	m.mu.Unlock()
	if !ok {
		log.Warnf("process: attempted to terminate unknown process id %d", id)
		return nil
	}

	log.Debugf("process: terminating %q (pid %d)", proc.name, proc.cmd.Process.Pid)
	if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil && !isFinished(proc) {
		log.Warnf("process: failed to send SIGTERM to %q: %v", proc.name, err)
	}

	select {
	case <-proc.done:
		return nil
	case <-time.After(gracePeriod):
	case <-ctx.Done():
		return ctx.Err()
	}

	if isFinished(proc) {
		return nil
	}

	log.Warnf("process: %q did not terminate gracefully, forcing kill", proc.name)
	if err := proc.cmd.Process.Kill(); err != nil && !isFinished(proc) {
		return errors.Wrapf(err, "kill process %q", proc.name)
	}
	<-proc.done
	return nil
}

func isFinished(proc *managed) bool {
	select {
	case <-proc.done:
		return true
	default:
		return false
	}
}

// Running reports whether the process behind id is still alive.
func (m *Manager) Running(id Id) bool {
	m.mu.Lock()
	proc, ok := m.procs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return !isFinished(proc)
}

// Len reports the number of processes currently tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}

// Shutdown terminates every tracked process, guaranteeing cleanup on agent exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]Id, 0, len(m.procs))
	for id := range m.procs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	log.Infof("process: shutting down %d managed processes", len(ids))
	for _, id := range ids {
		if err := m.Terminate(ctx, id); err != nil {
			log.Errorf("process: failed to terminate process %d during shutdown: %v", id, err)
		}
	}
}
