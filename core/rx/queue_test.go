package rx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/rfheatmap/core"
)

func block(id int) core.Block {
	return core.Block{complex(float32(id), 0)}
}

func ids(blocks []core.Block) []int {
	result := make([]int, len(blocks))
	for i, b := range blocks {
		result[i] = int(real(b[0]))
	}
	return result
}

func TestQueue_DropOldestOnOverflow(t *testing.T) {
	const capacity = 4
	q := NewQueue(capacity)

	for i := 0; i < capacity; i++ {
		assert.False(t, q.Push(block(i)))
	}
	assert.True(t, q.Push(block(capacity)))

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, []int{1, 2, 3, 4}, ids(q.Drain()))
}

func TestQueue_DrainAllInArrivalOrder(t *testing.T) {
	q := NewQueue(8)
	assert.Empty(t, q.Drain())

	q.Push(block(1))
	q.Push(block(2))
	q.Push(block(3))

	assert.Equal(t, []int{1, 2, 3}, ids(q.Drain()))
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueue_ManyOverflows(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 100; i++ {
		q.Push(block(i))
	}

	assert.Equal(t, uint64(97), q.Dropped())
	assert.Equal(t, []int{97, 98, 99}, ids(q.Drain()))
}

func TestQueue_ConcurrentProducerKeepsOrder(t *testing.T) {
	q := NewQueue(16)
	const count = 10000
	wait := new(sync.WaitGroup)
	wait.Add(1)
	go func() {
		defer wait.Done()
		for i := 0; i < count; i++ {
			q.Push(block(i))
		}
	}()

	received := []int{}
	done := false
	for !done {
		drained := ids(q.Drain())
		received = append(received, drained...)
		if len(drained) > 0 && drained[len(drained)-1] == count-1 {
			done = true
		}
	}
	wait.Wait()

	require.NotEmpty(t, received)
	for i := 1; i < len(received); i++ {
		assert.True(t, received[i] > received[i-1], "%d after %d", received[i], received[i-1])
	}
	assert.Equal(t, uint64(count-len(received)), q.Dropped())
}
