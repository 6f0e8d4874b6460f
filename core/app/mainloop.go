package app

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

func newMainLoop(queue blockQueue, pipeline rowPipeline, buffer rowBuffer, levels valueLevels, tickPeriod time.Duration) *mainLoop {
	return &mainLoop{
		queue:      queue,
		pipeline:   pipeline,
		buffer:     buffer,
		levels:     levels,
		tickPeriod: tickPeriod,
		command:    make(chan command, 4),
		valueRange: levels.Range(),
		rangeLock:  new(sync.RWMutex),
	}
}

type command func()

type mainLoop struct {
	queue    blockQueue
	pipeline rowPipeline
	buffer   rowBuffer
	levels   valueLevels
	recorder rowRecorder

	tickPeriod time.Duration
	command    chan command

	valueRange core.DBRange
	rangeLock  *sync.RWMutex

	rows    uint64
	skipped uint64
}

type blockQueue interface {
	Drain() []core.Block
}

type rowPipeline interface {
	Process(core.Block) ([]float64, bool)
	Reset()
}

type rowBuffer interface {
	Push([]float64)
}

type valueLevels interface {
	Put([]float64)
	Range() core.DBRange
}

type rowRecorder interface {
	Record([]float64)
}

// Run the main loop until stop is closed. Every tick drains the queue and processes all blocks
// in arrival order. Commands are executed between ticks.
func (m *mainLoop) Run(stop chan struct{}, wait *sync.WaitGroup) {
	wait.Add(1)
	go func() {
		defer wait.Done()
		defer log.Print("[INFO] main loop shutdown")

		tick := time.NewTicker(m.tickPeriod)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				m.tick()
			case command := <-m.command:
				command()
			case <-stop:
				return
			}
		}
	}()
}

// tick processes all queued blocks and returns the number of produced rows.
func (m *mainLoop) tick() int {
	produced := 0
	for _, block := range m.queue.Drain() {
		row, ok := m.pipeline.Process(block)
		if !ok {
			atomic.AddUint64(&m.skipped, 1)
			continue
		}
		m.buffer.Push(row)
		m.levels.Put(row)
		if m.recorder != nil {
			m.recorder.Record(row)
		}
		produced++
	}
	if produced == 0 {
		return 0
	}

	atomic.AddUint64(&m.rows, uint64(produced))
	m.setValueRange(m.levels.Range())
	return produced
}

func (m *mainLoop) setValueRange(valueRange core.DBRange) {
	m.rangeLock.Lock()
	defer m.rangeLock.Unlock()
	m.valueRange = valueRange
}

// ValueRange of the rows produced so far.
func (m *mainLoop) ValueRange() core.DBRange {
	m.rangeLock.RLock()
	defer m.rangeLock.RUnlock()
	return m.valueRange
}

// Rows is the number of rows produced so far.
func (m *mainLoop) Rows() uint64 {
	return atomic.LoadUint64(&m.rows)
}

// Skipped is the number of blocks that were too short to produce a row.
func (m *mainLoop) Skipped() uint64 {
	return atomic.LoadUint64(&m.skipped)
}

func (m *mainLoop) q(cmd command) {
	select {
	case m.command <- cmd:
	default:
		log.Print("[WARN] Mainloop.q hangs")
	}
}

// Reset the pipeline state on the main loop's goroutine.
func (m *mainLoop) Reset() {
	m.q(func() {
		m.pipeline.Reset()
	})
}

// Retune the tuner to the given frequency. Queued blocks still belong to the old frequency and
// are discarded, the pipeline starts over.
func (m *mainLoop) Retune(tuner radio.Tuner, f core.Frequency) {
	m.q(func() {
		err := tuner.SetCenterFrequency(f)
		if err != nil {
			log.Printf("[ERROR] cannot retune to %v: %v", f, err)
			return
		}
		discarded := len(m.queue.Drain())
		m.pipeline.Reset()
		log.Printf("[INFO] retuned to %v, discarded %d blocks", f, discarded)
	})
}
