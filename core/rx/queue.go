package rx

import (
	"sync/atomic"

	"github.com/ftl/rfheatmap/core"
)

// NewQueue returns a new queue that holds at most capacity blocks.
func NewQueue(capacity int) *Queue {
	return &Queue{
		blocks: make(chan core.Block, capacity),
	}
}

// Queue hands blocks over from one producer to one consumer. Neither side ever blocks: when the
// queue is full, the oldest block is dropped in favor of the new one.
type Queue struct {
	blocks  chan core.Block
	dropped uint64
}

// Push the given block. The caller gives up the ownership of the block. Returns true if an older
// block had to be dropped.
func (q *Queue) Push(block core.Block) bool {
	dropped := false
	for {
		select {
		case q.blocks <- block:
			return dropped
		default:
		}

		select {
		case <-q.blocks:
			dropped = true
			atomic.AddUint64(&q.dropped, 1)
		default:
		}
	}
}

// Drain returns all blocks that are queued at the time of the call, oldest first.
func (q *Queue) Drain() []core.Block {
	n := len(q.blocks)
	if n == 0 {
		return nil
	}
	result := make([]core.Block, 0, n)
	for i := 0; i < n; i++ {
		select {
		case block := <-q.blocks:
			result = append(result, block)
		default:
			return result
		}
	}
	return result
}

// Len is the number of queued blocks.
func (q *Queue) Len() int {
	return len(q.blocks)
}

// Dropped is the number of blocks that were dropped so far.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
