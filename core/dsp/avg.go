package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ftl/rfheatmap/core"
)

// NewLevels returns the value range of the display. With auto, the range follows the sliding
// average of the row minimum and maximum over the given number of rows, otherwise it is fixed.
func NewLevels(fixed core.DBRange, auto bool, length int) *Levels {
	return &Levels{
		fixed:   fixed.Normalized(),
		auto:    auto,
		floor:   newSlidingWindow(length),
		ceiling: newSlidingWindow(length),
	}
}

// Levels tracks the value range of the produced rows.
type Levels struct {
	fixed   core.DBRange
	auto    bool
	floor   *slidingWindow
	ceiling *slidingWindow
}

// Put the next row.
func (l *Levels) Put(row []float64) {
	if !l.auto || len(row) == 0 {
		return
	}
	min := floats.Min(row)
	max := floats.Max(row)
	if math.IsInf(min, 0) || math.IsNaN(min) || math.IsInf(max, 0) || math.IsNaN(max) {
		return
	}
	l.floor.Put(min)
	l.ceiling.Put(max)
}

// Range returns the current value range.
func (l *Levels) Range() core.DBRange {
	if !l.auto || l.floor.count == 0 {
		return l.fixed
	}
	result := core.DBRange{From: core.DB(l.floor.current), To: core.DB(l.ceiling.current)}
	if result.Width() <= 0 {
		result.To = result.From + 1
	}
	return result
}

func newSlidingWindow(length int) *slidingWindow {
	if length < 1 {
		length = 1
	}
	return &slidingWindow{
		length: length,
		buffer: make([]float64, length),
	}
}

// slidingWindow averages the last length values. Until it is filled, it averages what it has.
type slidingWindow struct {
	length  int
	buffer  []float64
	index   int
	count   int
	sum     float64
	current float64
}

func (w *slidingWindow) Put(v float64) float64 {
	if w.count < w.length {
		w.count++
	} else {
		w.sum -= w.buffer[w.index]
	}
	w.sum += v
	w.buffer[w.index] = v
	w.index = (w.index + 1) % w.length
	w.current = w.sum / float64(w.count)
	return w.current
}
