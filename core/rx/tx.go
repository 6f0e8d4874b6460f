package rx

import (
	"log"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

// NewToneTransmitter returns a transmitter that sends a continuous tone at the given frequency
// offset, one block of blockSize samples per block duration.
func NewToneTransmitter(out radio.Transmitter, sampleRate float64, frequency core.Frequency, blockSize int, timeout time.Duration) *Transmitter {
	result := &Transmitter{
		worker:  newWorker("transmitter"),
		out:     out,
		period:  time.Duration(float64(blockSize) / sampleRate * float64(time.Second)),
		timeout: timeout,
		backoff: newBackoff(),
	}
	result.nextBlock = (&toneGenerator{
		step:      2 * math.Pi * float64(frequency) / sampleRate,
		blockSize: blockSize,
	}).next
	return result
}

// NewPulseTransmitter returns a transmitter that sends the given pulse block once per period.
func NewPulseTransmitter(out radio.Transmitter, pulse core.Block, period time.Duration, timeout time.Duration) *Transmitter {
	return &Transmitter{
		worker:  newWorker("transmitter"),
		out:     out,
		period:  period,
		timeout: timeout,
		backoff: newBackoff(),
		nextBlock: func() core.Block {
			return pulse
		},
	}
}

// Transmitter writes a generated waveform to the radio.
type Transmitter struct {
	worker
	out       radio.Transmitter
	period    time.Duration
	timeout   time.Duration
	backoff   *backoff.ExponentialBackOff
	nextBlock func() core.Block
	blocks    uint64
}

// Run the transmitter until stop is closed. Write errors are retried, only fatal errors end the transmitter.
func (t *Transmitter) Run(stop chan struct{}, wait *sync.WaitGroup) {
	wait.Add(1)
	go func() {
		defer wait.Done()

		tick := time.NewTicker(t.period)
		defer tick.Stop()

		pending := t.nextBlock()
		for {
			select {
			case <-tick.C:
				err := t.out.WriteBlock(pending, t.timeout)
				if radio.IsFatal(err) {
					log.Printf("[ERROR] writing samples failed: %v", err)
					t.finish(err)
					return
				}
				if err != nil {
					log.Printf("[WARN] writing samples failed (status %d): %v", radio.Code(err), err)
					select {
					case <-time.After(t.backoff.NextBackOff()):
					case <-stop:
						t.finish(nil)
						return
					}
					continue
				}
				t.backoff.Reset()
				atomic.AddUint64(&t.blocks, 1)
				pending = t.nextBlock()
			case <-stop:
				t.finish(nil)
				return
			}
		}
	}()
}

// Blocks is the number of blocks written so far.
func (t *Transmitter) Blocks() uint64 {
	return atomic.LoadUint64(&t.blocks)
}

// toneGenerator produces a phase-continuous complex tone.
type toneGenerator struct {
	step      float64
	phase     float64
	blockSize int
}

func (g *toneGenerator) next() core.Block {
	result := make(core.Block, g.blockSize)
	for i := range result {
		result[i] = complex64(cmplx.Exp(complex(0, g.phase+g.step*float64(i))))
	}
	g.phase = math.Mod(g.phase+g.step*float64(g.blockSize), 2*math.Pi)
	return result
}
