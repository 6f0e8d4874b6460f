package rx

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

// NewReceiver returns a new receiver that reads blocks of readSize samples from the given source
// and pushes them into the queue.
func NewReceiver(source radio.SampleSource, queue *Queue, readSize int, timeout time.Duration) *Receiver {
	return &Receiver{
		worker:   newWorker("receiver"),
		source:   source,
		queue:    queue,
		readSize: readSize,
		timeout:  timeout,
		backoff:  newBackoff(),
	}
}

// Receiver continuously reads samples from the radio.
type Receiver struct {
	worker
	source   radio.SampleSource
	queue    *Queue
	readSize int
	timeout  time.Duration
	backoff  *backoff.ExponentialBackOff
	blocks   uint64
}

// Run the receiver until stop is closed or the source fails. After wait returns, no more blocks
// are pushed into the queue.
func (r *Receiver) Run(stop chan struct{}, wait *sync.WaitGroup) {
	wait.Add(1)
	go func() {
		defer wait.Done()

		var block core.Block
		for {
			select {
			case <-stop:
				r.finish(nil)
				return
			default:
			}

			if block == nil {
				block = make(core.Block, r.readSize)
			}
			n, err := r.source.ReadBlock(block, r.timeout)
			switch {
			case radio.IsFatal(err):
				log.Printf("[ERROR] reading samples failed: %v", err)
				r.finish(err)
				return
			case err != nil:
				log.Printf("[WARN] reading samples failed (status %d): %v", radio.Code(err), err)
				if !r.pause(stop) {
					r.finish(nil)
					return
				}
			case n == 0:
				if !r.pause(stop) {
					r.finish(nil)
					return
				}
			default:
				var filled core.Block
				filled, block = handOver(block, n)
				if r.queue.Push(filled) {
					log.Print("[DEBUG] queue overflow, dropped oldest block")
				}
				atomic.AddUint64(&r.blocks, 1)
				r.backoff.Reset()
			}
		}
	}()
}

// handOver returns the filled part of the buffer for the queue and the buffer to read into next.
// Short reads are copied so the buffer can be reused and the queue does not hold on to it.
func handOver(buffer core.Block, n int) (filled core.Block, next core.Block) {
	if n < len(buffer)/2 {
		filled = make(core.Block, n)
		copy(filled, buffer[:n])
		return filled, buffer
	}
	return buffer[:n], nil
}

func (r *Receiver) pause(stop chan struct{}) bool {
	select {
	case <-time.After(r.backoff.NextBackOff()):
		return true
	case <-stop:
		return false
	}
}

// Blocks is the number of blocks pushed into the queue so far.
func (r *Receiver) Blocks() uint64 {
	return atomic.LoadUint64(&r.blocks)
}

func newBackoff() *backoff.ExponentialBackOff {
	result := backoff.NewExponentialBackOff()
	result.InitialInterval = 1 * time.Millisecond
	result.MaxInterval = 50 * time.Millisecond
	result.MaxElapsedTime = 0
	result.Reset()
	return result
}

func newWorker(name string) worker {
	return worker{
		name: name,
		done: make(chan struct{}),
	}
}

// worker reports how a goroutine ended.
type worker struct {
	name string
	done chan struct{}
	err  error
}

func (w *worker) finish(err error) {
	if err != nil {
		w.err = errors.Wrap(err, w.name)
	}
	log.Printf("[INFO] %s shutdown", w.name)
	close(w.done)
}

// Done is closed when the worker ended.
func (w *worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the failure that ended the worker, or nil if it was stopped. Only valid after Done is closed.
func (w *worker) Err() error {
	return w.err
}
