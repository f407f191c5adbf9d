package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDurablePushPop(t *testing.T) {
	d := NewMemoryDurable()
	require.NoError(t, d.Push(context.Background(), "42"))

	payload, ok, err := d.BlockingPop(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", payload)
}

func TestMemoryDurableBlockingPopTimesOut(t *testing.T) {
	d := NewMemoryDurable()
	_, ok, err := d.BlockingPop(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDurableFIFO(t *testing.T) {
	d := NewMemoryDurable()
	require.NoError(t, d.Push(context.Background(), "a"))
	require.NoError(t, d.Push(context.Background(), "b"))

	first, _, _ := d.BlockingPop(context.Background(), time.Second)
	second, _, _ := d.BlockingPop(context.Background(), time.Second)
	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestMemoryDurableBlockingPopWakesOnPush(t *testing.T) {
	d := NewMemoryDurable()
	done := make(chan string, 1)
	go func() {
		payload, ok, _ := d.BlockingPop(context.Background(), 2*time.Second)
		if ok {
			done <- payload
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, d.Push(context.Background(), "woken"))

	select {
	case payload := <-done:
		assert.Equal(t, "woken", payload)
	case <-time.After(time.Second):
		t.Fatal("BlockingPop did not wake on Push")
	}
}

func TestInMemoryPushPopPreservesRetries(t *testing.T) {
	q := NewInMemory(4)
	q.Push(SubmitTask{ID: 7, Retries: 2})

	task, ok := q.Pop(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(7), task.ID)
	assert.Equal(t, 2, task.Retries)
}

func TestInMemoryPopTimesOut(t *testing.T) {
	q := NewInMemory(1)
	_, ok := q.Pop(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
}

func TestInMemoryLen(t *testing.T) {
	q := NewInMemory(4)
	assert.Equal(t, 0, q.Len())
	q.Push(SubmitTask{ID: 1})
	q.Push(SubmitTask{ID: 2})
	assert.Equal(t, 2, q.Len())
	q.Pop(context.Background(), time.Second)
	assert.Equal(t, 1, q.Len())
}

func TestInMemoryProblemsPushPop(t *testing.T) {
	q := NewInMemoryProblems(4)
	q.Push("1001")
	id, ok := q.Pop(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "1001", id)
	assert.Equal(t, 0, q.Len())
}
