package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/dsp"
	"github.com/ftl/rfheatmap/core/rolling"
	"github.com/ftl/rfheatmap/core/rx"
)

func TestStopAndDone(t *testing.T) {
	m := newMainLoop(rx.NewQueue(1), &mockPipeline{}, &mockBuffer{}, fixedLevels(), 10*time.Millisecond)
	stop := make(chan struct{})
	wait := new(sync.WaitGroup)

	start := time.Now()
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(stop)
	}()
	m.Run(stop, wait)
	wait.Wait()
	duration := time.Since(start)

	assert.True(t, duration >= 100*time.Millisecond)
}

func TestMainLoop_TickDrainsAllBlocks(t *testing.T) {
	queue := rx.NewQueue(8)
	pipeline := &mockPipeline{minLength: 2}
	buffer := &mockBuffer{}
	recorder := &mockBuffer{}
	m := newMainLoop(queue, pipeline, buffer, fixedLevels(), time.Second)
	m.recorder = recorder

	queue.Push(core.Block{1, 1})
	queue.Push(core.Block{2})
	queue.Push(core.Block{3, 3, 3})

	assert.Equal(t, 2, m.tick())
	assert.Equal(t, [][]float64{{1, 1}, {3, 3, 3}}, buffer.rows, "rows in arrival order")
	assert.Equal(t, buffer.rows, recorder.rows)
	assert.Equal(t, uint64(2), m.Rows())
	assert.Equal(t, uint64(1), m.Skipped())
	assert.Equal(t, 0, queue.Len())
}

func TestMainLoop_EmptyTickProducesNoRows(t *testing.T) {
	buffer := &mockBuffer{}
	m := newMainLoop(rx.NewQueue(8), &mockPipeline{}, buffer, fixedLevels(), time.Second)

	assert.Equal(t, 0, m.tick())
	assert.Empty(t, buffer.rows)
	assert.Equal(t, core.DBRange{From: -40, To: 60}, m.ValueRange())
}

func TestMainLoop_SkippedBlockLeavesBufferUnchanged(t *testing.T) {
	config := testConfig()
	config.HardwareSampleRate = 1000
	config.DecimationFactor = 1
	config.TransformSize = 1024
	pipeline, err := dsp.NewPipeline(config)
	require.NoError(t, err)
	buffer := rolling.New(4, pipeline.Bins(), -100)
	queue := rx.NewQueue(4)
	m := newMainLoop(queue, pipeline, buffer, fixedLevels(), time.Second)

	queue.Push(make(core.Block, 500))
	before := buffer.Snapshot()

	assert.Equal(t, 0, m.tick())
	assert.Equal(t, 0, buffer.Count())
	assert.Equal(t, before, buffer.Snapshot())
	assert.Equal(t, uint64(1), m.Skipped())
}

func TestMainLoop_AutoRange(t *testing.T) {
	queue := rx.NewQueue(8)
	m := newMainLoop(queue, &mockPipeline{}, &mockBuffer{}, dsp.NewLevels(core.DBRange{From: -40, To: 60}, true, 10), time.Second)

	queue.Push(core.Block{0, 5, 10})
	m.tick()

	assert.Equal(t, core.DBRange{From: 0, To: 10}, m.ValueRange())
}

func TestMainLoop_RetuneResetsAndDiscards(t *testing.T) {
	queue := rx.NewQueue(8)
	pipeline := &mockPipeline{}
	tuner := &mockTuner{}
	m := newMainLoop(queue, pipeline, &mockBuffer{}, fixedLevels(), time.Hour)
	stop := make(chan struct{})
	wait := new(sync.WaitGroup)
	m.Run(stop, wait)

	queue.Push(core.Block{1})
	m.Retune(tuner, 7030000)
	m.Reset()
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wait.Wait()

	assert.Equal(t, []core.Frequency{7030000}, tuner.frequencies)
	assert.Equal(t, 2, pipeline.resets)
	assert.Equal(t, 0, queue.Len())
}

func fixedLevels() *dsp.Levels {
	return dsp.NewLevels(core.DBRange{From: -40, To: 60}, false, 10)
}

// mockPipeline turns each block into a row of the real parts, blocks shorter than minLength are skipped.
type mockPipeline struct {
	minLength int
	resets    int
}

func (m *mockPipeline) Process(block core.Block) ([]float64, bool) {
	if len(block) < m.minLength {
		return nil, false
	}
	result := make([]float64, len(block))
	for i, v := range block {
		result[i] = float64(real(v))
	}
	return result, true
}

func (m *mockPipeline) Reset() {
	m.resets++
}

type mockBuffer struct {
	rows [][]float64
}

func (m *mockBuffer) Push(row []float64) {
	m.rows = append(m.rows, row)
}

func (m *mockBuffer) Record(row []float64) {
	m.Push(row)
}

type mockTuner struct {
	frequencies []core.Frequency
}

func (m *mockTuner) SetCenterFrequency(f core.Frequency) error {
	m.frequencies = append(m.frequencies, f)
	return nil
}
