package jobs

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemRejectsBadSizes(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsEveryTask(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	require.NoError(t, err)

	var ran, completed atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, js.Submit(Task{
			Run: func() error {
				ran.Add(1)
				return nil
			},
			OnComplete: func() { completed.Add(1) },
		}))
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(50), ran.Load())
	assert.Equal(t, int32(50), completed.Load())
}

func TestJobSystemCollectsFailures(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)

	boom := errors.New("boom")
	var failed atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		fail := name != "b"
		require.NoError(t, js.Submit(Task{
			Name: name,
			Run: func() error {
				if fail {
					return boom
				}
				return nil
			},
			OnFailure: func(error) { failed.Add(1) },
		}))
	}
	err = js.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Contains(t, err.Error(), "c: boom")
	assert.Equal(t, int32(2), failed.Load())

	assert.ErrorIs(t, js.Submit(Task{Run: func() error { return nil }}), ErrShutdown)
	assert.ErrorIs(t, js.Shutdown(), ErrShutdown)
}
