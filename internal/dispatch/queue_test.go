package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()
	q := NewQueue(8)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, q.Push(ctx, &Envelope{ID: string(rune('a' + i))}))
	}
	assert.Equal(t, 8, q.Len())

	for i := 0; i < 8; i++ {
		env, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i)), env.ID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, &Envelope{ID: "first"}))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(ctx, &Envelope{ID: "second"})
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	env, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", env.ID)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push should unblock once a slot frees")
	}

	env, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", env.ID)
}

func TestQueue_PushCancelled(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)
	require.NoError(t, q.Push(context.Background(), &Envelope{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, &Envelope{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseReleasesBlockedCallers(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)
	ctx := context.Background()

	popped := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		popped <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-popped:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("pop should return after close")
	}

	assert.ErrorIs(t, q.Push(ctx, &Envelope{}), ErrQueueClosed)
	q.Close() // idempotent
}

func TestQueue_PopDrainsAfterClose(t *testing.T) {
	t.Parallel()
	q := NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, &Envelope{ID: "x"}))
	q.Close()

	env, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", env.ID)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_MinimumCapacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, NewQueue(0).Cap())
	assert.Equal(t, 1, NewQueue(-3).Cap())
}
