package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/internal/edge/process"
	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

func executableDescriptor() model.ExecutorDescriptor {
	return model.ExecutorDescriptor{
		Id:   ids.NewExecutorId(),
		Kind: model.ExecutableExecutorKind(model.ExecutableExecutor{Path: "sleep", Args: []string{"10"}}),
	}
}

func TestStartAndStop(t *testing.T) {
	m := NewManager(process.NewManager())
	descriptor := executableDescriptor()

	require.NoError(t, m.Start(descriptor))
	assert.True(t, m.Running(descriptor.Id))

	require.NoError(t, m.Stop(context.Background(), descriptor.Id))
	assert.False(t, m.Running(descriptor.Id))
}

func TestStartIsIdempotent(t *testing.T) {
	m := NewManager(process.NewManager())
	descriptor := executableDescriptor()

	require.NoError(t, m.Start(descriptor))
	require.NoError(t, m.Start(descriptor))
	assert.True(t, m.Running(descriptor.Id))
	require.NoError(t, m.Stop(context.Background(), descriptor.Id))
}

func TestStopUnknownIsNoop(t *testing.T) {
	m := NewManager(process.NewManager())
	require.NoError(t, m.Stop(context.Background(), ids.NewExecutorId()))
}

func TestTask_ReconcilesPresentThenAbsent(t *testing.T) {
	m := NewManager(process.NewManager())
	descriptor := executableDescriptor()
	factory := TaskFactory(m)

	tasks, err := factory(model.Executor(model.ExecutorValue{Descriptor: descriptor}))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]

	fulfilled, err := task.Check(context.Background(), model.TargetPresent)
	require.NoError(t, err)
	assert.Equal(t, reconcile.FulfilledNo, fulfilled)

	require.NoError(t, task.Make(context.Background(), model.TargetPresent))
	fulfilled, err = task.Check(context.Background(), model.TargetPresent)
	require.NoError(t, err)
	assert.Equal(t, reconcile.FulfilledYes, fulfilled)
	assert.True(t, m.Running(descriptor.Id))

	require.NoError(t, task.Make(context.Background(), model.TargetAbsent))
	time.Sleep(10 * time.Millisecond)
	assert.False(t, m.Running(descriptor.Id))
}
