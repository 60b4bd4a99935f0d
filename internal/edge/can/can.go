// Package can is the slice of the Edge Network Stack that wires CAN gateway routes via the
// cangw command-line tool; no netlink binding exposes the CAN gateway, so existing routes
// are detected by listing and regex-matching `cangw -L` output.
package can

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// canMaxHops is the hop-limit opendut always sets on routes it creates, so the existence
// regex can match only routes it owns.
const canMaxHops = 2

// cangwEntry matches one line of `cangw -L` output, e.g. "cangw -A -s can0 -d br-cluster -X -e -l 2 # ...".
var cangwEntry = regexp.MustCompile(`(?m)^cangw -A -s (\S+) -d (\S+) ((?:-X )?)-e -l (\d+)\s*#`)

// Runner abstracts process execution so tests don't require a real cangw binary or CAP_NET_ADMIN.
// success reflects the process exit code; stdout/stderr are always returned, even on a
// non-zero exit, since `cangw -L` is known to exit non-zero despite succeeding.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, success bool, err error)
}

// ExecRunner shells out via os/exec, the production Runner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, bool, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return stdout.String(), stderr.String(), false, nil
		}
		return "", "", false, errors.Wrapf(err, "execute %s", name)
	}
	return stdout.String(), stderr.String(), true, nil
}

type routeOperation string

const (
	opCreate routeOperation = "-A"
	opDelete routeOperation = "-D"
)

// RouteError reports a failed cangw invocation creating or deleting a route.
type RouteError struct {
	Src, Dst  model.NetworkInterfaceName
	Operation string
	Cause     string
}

func (e *RouteError) Error() string {
	return "failed to " + e.Operation + " CAN route '" + string(e.Src) + "' -> '" + string(e.Dst) + "': " + e.Cause
}

func routeErr(src, dst model.NetworkInterfaceName, op routeOperation, cause string) error {
	return &RouteError{Src: src, Dst: dst, Operation: string(op), Cause: cause}
}

// Manager drives cangw to create and inspect local CAN routes.
type Manager struct {
	run Runner
}

func NewManager(run Runner) *Manager {
	if run == nil {
		run = ExecRunner{}
	}
	return &Manager{run: run}
}

// RouteExists reports whether a route matching src, dst, canFD and the fixed hop limit
// already exists, by listing and regex-matching `cangw -L` output.
func (m *Manager) RouteExists(ctx context.Context, src, dst model.NetworkInterfaceName, canFD bool) (bool, error) {
	out, _, _, err := m.run.Run(ctx, "cangw", "-L")
	if err != nil {
		return false, errors.Wrap(err, "list CAN gateway routes")
	}

	for _, match := range cangwEntry.FindAllStringSubmatch(out, -1) {
		existingSrc, existingDst, fdFlag, hops := match[1], match[2], strings.TrimSpace(match[3]), match[4]
		existingFD := fdFlag == "-X"
		existingHops, err := strconv.Atoi(hops)
		if err != nil {
			continue
		}
		if existingSrc == string(src) && existingDst == string(dst) && existingFD == canFD && existingHops == canMaxHops {
			return true, nil
		}
	}
	return false, nil
}

// SetRoute creates or deletes the route via `cangw -A|-D -s src -d dst -e -l 2 [-X]`.
func (m *Manager) SetRoute(ctx context.Context, src, dst model.NetworkInterfaceName, canFD bool, op routeOperation) error {
	args := []string{string(op), "-s", string(src), "-d", string(dst), "-e", "-l", strconv.Itoa(canMaxHops)}
	if canFD {
		args = append(args, "-X")
	}
	_, stderr, success, err := m.run.Run(ctx, "cangw", args...)
	if err != nil {
		return errors.Wrapf(err, "run cangw")
	}
	if !success {
		return routeErr(src, dst, op, strings.TrimSpace(stderr))
	}
	return nil
}

// localRoute is the Task behind a CanLocalRoute parameter.
type localRoute struct {
	manager *Manager
	value   model.CanLocalRouteValue
}

func (t *localRoute) Check(ctx context.Context, target model.Target) (reconcile.Fulfilled, error) {
	present, err := t.manager.RouteExists(ctx, t.value.Can, t.value.Bridge, t.value.CanFD)
	if err != nil {
		return reconcile.FulfilledNo, err
	}
	want := target == model.TargetPresent
	if present == want {
		return reconcile.FulfilledYes, nil
	}
	return reconcile.FulfilledNo, nil
}

func (t *localRoute) Make(ctx context.Context, target model.Target) error {
	op := opCreate
	if target == model.TargetAbsent {
		op = opDelete
	}
	return t.manager.SetRoute(ctx, t.value.Can, t.value.Bridge, t.value.CanFD, op)
}

// TaskFactory resolves CanLocalRoute parameters into Tasks, leaving CanVirtualDevice (owned by
// netstack) and every other kind for sibling factories.
func TaskFactory(manager *Manager) reconcile.TaskFactory {
	return func(value model.ParameterValue) ([]reconcile.Task, error) {
		if value.Kind != model.ValueCanLocalRoute {
			return nil, nil
		}
		return []reconcile.Task{&localRoute{manager: manager, value: *value.CanLocalRoute}}, nil
	}
}
