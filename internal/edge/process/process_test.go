package process

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndTerminate(t *testing.T) {
	m := NewManager()

	id, err := m.Spawn("sleep", exec.Command("sleep", "10"))
	require.NoError(t, err)
	assert.True(t, m.Running(id))
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Terminate(context.Background(), id))
	assert.False(t, m.Running(id))
	assert.Equal(t, 0, m.Len())
}

func TestTerminateUnknownIdIsNoop(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Terminate(context.Background(), Id(999)))
}

func TestShutdownTerminatesAll(t *testing.T) {
	m := NewManager()
	_, err := m.Spawn("sleep1", exec.Command("sleep", "10"))
	require.NoError(t, err)
	_, err = m.Spawn("sleep2", exec.Command("sleep", "10"))
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	m.Shutdown(context.Background())
	assert.Equal(t, 0, m.Len())
}

func TestProcessThatExitsOnItsOwnIsNotRunning(t *testing.T) {
	m := NewManager()
	id, err := m.Spawn("true", exec.Command("true"))
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for m.Running(id) {
		select {
		case <-deadline:
			t.Fatal("process did not exit in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.False(t, m.Running(id))
}
