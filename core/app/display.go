package app

import (
	"log"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ftl/rfheatmap/core"
)

// Display renders snapshots of the rolling buffer. Row 0 of the matrix is the oldest row.
type Display interface {
	Render(m mat.Matrix, valueRange core.DBRange) error
}

type snapshotSource interface {
	Count() int
	Snapshot() *mat.Dense
}

func newDisplayLoop(display Display, buffer snapshotSource, valueRange func() core.DBRange, period time.Duration) *displayLoop {
	return &displayLoop{
		display:    display,
		buffer:     buffer,
		valueRange: valueRange,
		period:     period,
	}
}

// displayLoop renders the buffer on its own cadence, independent of the main loop.
type displayLoop struct {
	display    Display
	buffer     snapshotSource
	valueRange func() core.DBRange
	period     time.Duration
	rendered   int
}

// Run the display loop until stop is closed. The current state is rendered once more on stop.
func (d *displayLoop) Run(stop chan struct{}, wait *sync.WaitGroup) {
	wait.Add(1)
	go func() {
		defer wait.Done()
		defer log.Print("[INFO] display shutdown")

		tick := time.NewTicker(d.period)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				d.render()
			case <-stop:
				d.render()
				return
			}
		}
	}()
}

func (d *displayLoop) render() {
	if d.buffer.Count() == 0 {
		return
	}
	err := d.display.Render(d.buffer.Snapshot(), d.valueRange())
	if err != nil {
		log.Printf("[ERROR] cannot render heatmap: %v", err)
		return
	}
	d.rendered++
}
