package queue

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobResultReachesCaller(t *testing.T) {
	p := NewPool(4, 2)
	defer p.Shutdown()

	errc := make(chan error, 1)
	want := errors.New("boom")
	p.Enqueue(Job{Fn: func() error { return want }, Errc: errc})

	select {
	case err := <-errc:
		require.ErrorIs(t, err, want)
	case <-time.After(time.Second):
		t.Fatal("job result never delivered")
	}
}

func TestShutdownWaitsForInFlightWork(t *testing.T) {
	p := NewPool(4, 2)

	var done atomic.Int32
	for i := 0; i < 4; i++ {
		p.Enqueue(Job{Fn: func() error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		}})
	}
	p.Shutdown()
	assert.Equal(t, int32(4), done.Load())
}

func TestTryEnqueueDropsWhenFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Shutdown()

	block := make(chan struct{})
	p.Enqueue(Job{Fn: func() error { <-block; return nil }})

	// Fill the single queue slot, then the next attempt must not block.
	require.Eventually(t, func() bool {
		return p.TryEnqueue(Job{Fn: func() error { return nil }})
	}, time.Second, time.Millisecond)

	assert.False(t, p.TryEnqueue(Job{Fn: func() error { return nil }}))
	assert.Equal(t, 1, p.Depth())

	close(block)
}
