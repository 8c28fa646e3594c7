package camera

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunPendingFIFO(t *testing.T) {
	loop := NewLoop()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		loop.Dispatch(func() { order = append(order, i) })
	}
	assert.Equal(t, 3, loop.Pending())
	assert.Empty(t, order, "Dispatch must not run tasks inline")

	assert.Equal(t, 3, loop.RunPending())
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 0, loop.Pending())
}

func TestLoop_RunPendingDefersNewTasks(t *testing.T) {
	loop := NewLoop()

	ran := 0
	loop.Dispatch(func() {
		ran++
		loop.Dispatch(func() { ran++ })
	})

	assert.Equal(t, 1, loop.RunPending())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, loop.Pending())

	assert.Equal(t, 1, loop.RunPending())
	assert.Equal(t, 2, ran)
}

func TestLoop_Run(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	var count atomic.Int32
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	for i := 0; i < 10; i++ {
		loop.Dispatch(func() { count.Add(1) })
	}

	require.Eventually(t, func() bool { return count.Load() == 10 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestDispatcherFunc(t *testing.T) {
	var queued []func()
	d := DispatcherFunc(func(task func()) { queued = append(queued, task) })

	ran := false
	d.Dispatch(func() { ran = true })
	require.Len(t, queued, 1)
	assert.False(t, ran)

	queued[0]()
	assert.True(t, ran)
}

func TestMainLoop(t *testing.T) {
	assert.Same(t, MainLoop(), MainLoop())
}
