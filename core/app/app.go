/*
Package app wires the acquisition pipeline together: the receiver and the optional transmitter
run on their own, the main loop processes the queued blocks on every tick, and the display loop
renders the rolling buffer.
*/
package app

import (
	"context"
	"log"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/cfg"
	"github.com/ftl/rfheatmap/core/dsp"
	"github.com/ftl/rfheatmap/core/radio"
	"github.com/ftl/rfheatmap/core/rolling"
	"github.com/ftl/rfheatmap/core/rx"
	"github.com/ftl/rfheatmap/core/store"
	"github.com/ftl/rfheatmap/core/vfo"
)

const (
	autoRangeLength  = 50
	recorderCapacity = 256
)

// New returns a new controller for the given configuration. The configuration is validated before
// anything is started. The controller owns the source and closes it on shutdown. The display is
// optional.
func New(config core.Configuration, source radio.SampleSource, display Display) (*Controller, error) {
	err := cfg.Validate(config)
	if err != nil {
		return nil, err
	}
	pipeline, err := dsp.NewPipeline(config)
	if err != nil {
		return nil, err
	}

	return &Controller{
		config:   config,
		source:   source,
		display:  display,
		pipeline: pipeline,
		failed:   make(chan error, 1),
	}, nil
}

// Controller for the application.
type Controller struct {
	config   core.Configuration
	source   radio.SampleSource
	display  Display
	pipeline *dsp.Pipeline

	queue       *rx.Queue
	buffer      *rolling.Buffer
	receiver    *rx.Receiver
	transmitter *rx.Transmitter
	mainLoop    *mainLoop
	displayLoop *displayLoop
	store       *store.Store
	recorder    *store.Recorder

	rig      stage
	workers  stage
	loop     stage
	output   stage
	watching stage

	failed chan error
}

// stage of goroutines that are stopped together.
type stage struct {
	stop chan struct{}
	wait *sync.WaitGroup
}

func newStage() stage {
	return stage{
		stop: make(chan struct{}),
		wait: new(sync.WaitGroup),
	}
}

func (s stage) halt() {
	close(s.stop)
	s.wait.Wait()
}

// Startup the application.
func (c *Controller) Startup() error {
	c.rig = newStage()
	c.workers = newStage()
	c.loop = newStage()
	c.output = newStage()
	c.watching = newStage()

	c.queue = rx.NewQueue(c.config.QueueCapacity)
	c.buffer = rolling.New(c.config.HistoryDepth, c.pipeline.Bins(), c.fill())
	levels := dsp.NewLevels(c.config.DynamicRange, c.config.AutoRange, autoRangeLength)
	c.mainLoop = newMainLoop(c.queue, c.pipeline, c.buffer, levels, c.config.TickPeriod)

	if c.config.RecordPath != "" {
		err := c.openRecorder()
		if err != nil {
			return err
		}
		c.mainLoop.recorder = c.recorder
	}

	log.Printf("[INFO] receiving at %s, %s, decimation %d, output rate %s",
		humanize.SIWithDigits(float64(c.config.CenterFrequency), 6, "Hz"),
		humanize.SI(c.config.HardwareSampleRate, "S/s"),
		c.pipeline.Decimation(),
		humanize.SI(c.pipeline.OutputRate(), "S/s"))

	c.receiver = rx.NewReceiver(c.source, c.queue, c.config.ReadSize, c.config.ReadTimeout)
	c.receiver.Run(c.workers.stop, c.workers.wait)
	c.startTransmitter()
	c.watch()

	c.mainLoop.Run(c.loop.stop, c.loop.wait)

	if c.display != nil {
		c.displayLoop = newDisplayLoop(c.display, c.buffer, c.mainLoop.ValueRange, c.config.DisplayPeriod)
		c.displayLoop.Run(c.output.stop, c.output.wait)
	}

	if c.config.RigAddress != "" {
		c.startRig()
	}

	return nil
}

// fill value of the empty history: the bottom of the value range in spectral mode, zero magnitude
// in correlation mode.
func (c *Controller) fill() float64 {
	if c.config.Mode == core.CorrelationMode {
		return 0
	}
	return float64(c.config.DynamicRange.Normalized().From)
}

func (c *Controller) openRecorder() error {
	s, err := store.Open(c.config.RecordPath)
	if err != nil {
		return err
	}
	session, err := s.CreateSession(context.Background(), string(c.config.Mode), c.config)
	if err != nil {
		s.Close()
		return err
	}
	log.Printf("[INFO] recording session %d to %s", session, c.config.RecordPath)
	c.store = s
	c.recorder = store.NewRecorder(s, session, recorderCapacity)
	return nil
}

func (c *Controller) startTransmitter() {
	if c.config.TxMode == "" || c.config.TxMode == core.TxNone {
		return
	}
	out, ok := c.source.(radio.Transmitter)
	if !ok {
		log.Printf("[WARN] the %s source cannot transmit", c.config.Source)
		return
	}

	switch c.config.TxMode {
	case core.TxTone:
		c.transmitter = rx.NewToneTransmitter(out, c.config.HardwareSampleRate, c.config.ToneFrequency, c.config.TxBlockSize, c.config.WriteTimeout)
	case core.TxPulse:
		pulse := dsp.NewPulse(c.config.HardwareSampleRate, c.config.PulseWidth, c.config.PulseFrequency)
		c.transmitter = rx.NewPulseTransmitter(out, dsp.PulseBlock(pulse, c.config.TxBlockSize), c.config.PulsePeriod, c.config.WriteTimeout)
	}
	c.transmitter.Run(c.workers.stop, c.workers.wait)
	log.Printf("[INFO] transmitting %s", c.config.TxMode)
}

// watch the workers and report the first fatal failure of the receiver. A failing transmitter
// does not stop the reception.
func (c *Controller) watch() {
	c.watching.wait.Add(1)
	go func() {
		defer c.watching.wait.Done()

		var transmitterDone <-chan struct{}
		if c.transmitter != nil {
			transmitterDone = c.transmitter.Done()
		}
		for {
			select {
			case <-c.receiver.Done():
				if err := c.receiver.Err(); err != nil {
					c.failed <- err
				}
				return
			case <-transmitterDone:
				if err := c.transmitter.Err(); err != nil {
					log.Printf("[WARN] transmitter failed, receiving continues: %v", err)
				}
				transmitterDone = nil
			case <-c.watching.stop:
				return
			}
		}
	}()
}

func (c *Controller) startRig() {
	tuner, ok := c.source.(radio.Tuner)
	if !ok {
		log.Printf("[WARN] the %s source cannot be tuned, not following the rig", c.config.Source)
		return
	}
	rig, err := vfo.Open(c.config.RigAddress, 0)
	if err != nil {
		log.Printf("[WARN] not following the rig: %v", err)
		return
	}
	rig.OnFrequencyChange(func(f core.Frequency) {
		c.mainLoop.Retune(tuner, f)
	})
	rig.Run(c.rig.stop, c.rig.wait)
}

// Failed reports the failure of the receiver. After a failure, the controller must be shut down.
func (c *Controller) Failed() <-chan error {
	return c.failed
}

// Shutdown the application. The rig follower stops first, then the workers and the main loop. The
// display renders a last time before the recorder and the source are closed. Returns the failure
// of the receiver, if any.
func (c *Controller) Shutdown() error {
	c.rig.halt()
	c.workers.halt()
	c.watching.halt()
	c.loop.halt()
	c.output.halt()

	var result error
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			result = errors.Wrap(err, "recorder")
		}
		log.Printf("[INFO] recorded %s rows, dropped %s", humanize.Comma(int64(c.recorder.Written())), humanize.Comma(int64(c.recorder.Dropped())))
		if err := c.store.Close(); err != nil && result == nil {
			result = errors.Wrap(err, "store")
		}
	}
	if err := c.source.Close(); err != nil && result == nil {
		result = errors.Wrap(err, "cannot close source")
	}

	log.Printf("[INFO] %s rows, %s blocks skipped, %s blocks dropped",
		humanize.Comma(int64(c.mainLoop.Rows())),
		humanize.Comma(int64(c.mainLoop.Skipped())),
		humanize.Comma(int64(c.queue.Dropped())))

	if err := c.receiver.Err(); err != nil {
		return err
	}
	return result
}

// Snapshot of the rolling buffer.
func (c *Controller) Snapshot() *mat.Dense {
	return c.buffer.Snapshot()
}

// ValueRange of the produced rows.
func (c *Controller) ValueRange() core.DBRange {
	return c.mainLoop.ValueRange()
}

// Rows is the number of produced rows.
func (c *Controller) Rows() uint64 {
	return c.mainLoop.Rows()
}

// Pipeline of this controller.
func (c *Controller) Pipeline() *dsp.Pipeline {
	return c.pipeline
}
