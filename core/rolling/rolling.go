// Package rolling provides the fixed-size history of heatmap rows.
package rolling

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// New returns a buffer of history rows with the given number of bins, filled with the given value.
func New(history, bins int, fill float64) *Buffer {
	data := make([]float64, history*bins)
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return &Buffer{
		history: history,
		bins:    bins,
		data:    data,
		lock:    new(sync.RWMutex),
	}
}

// Buffer keeps the latest rows in a ring. Row i of a snapshot is the i-th oldest row, the newest
// row is always the last one. Push and Snapshot may be called from different goroutines.
type Buffer struct {
	history int
	bins    int
	data    []float64
	oldest  int
	count   int
	lock    *sync.RWMutex
}

// Rows is the number of rows of every snapshot.
func (b *Buffer) Rows() int {
	return b.history
}

// Bins is the number of columns of every snapshot.
func (b *Buffer) Bins() int {
	return b.bins
}

// Push replaces the oldest row with the given row. Longer rows are truncated, shorter rows are
// padded with zeros.
func (b *Buffer) Push(row []float64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	slot := b.data[b.oldest*b.bins : (b.oldest+1)*b.bins]
	n := copy(slot, row)
	for i := n; i < len(slot); i++ {
		slot[i] = 0
	}
	b.oldest = (b.oldest + 1) % b.history
	b.count++
}

// Count is the total number of pushed rows.
func (b *Buffer) Count() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.count
}

// Snapshot returns a copy of the current history, oldest row first.
func (b *Buffer) Snapshot() *mat.Dense {
	result := make([]float64, len(b.data))

	b.lock.RLock()
	split := b.oldest * b.bins
	n := copy(result, b.data[split:])
	copy(result[n:], b.data[:split])
	b.lock.RUnlock()

	return mat.NewDense(b.history, b.bins, result)
}

// Latest returns a copy of the newest row.
func (b *Buffer) Latest() []float64 {
	b.lock.RLock()
	defer b.lock.RUnlock()

	newest := (b.oldest + b.history - 1) % b.history
	result := make([]float64, b.bins)
	copy(result, b.data[newest*b.bins:(newest+1)*b.bins])
	return result
}
